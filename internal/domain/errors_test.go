package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentExtension(t *testing.T) {
	tests := []struct {
		filename string
		expected string
	}{
		{"report.pdf", "pdf"},
		{"REPORT.PDF", "pdf"},
		{"archive.tar.gz", "gz"},
		{"noext", ""},
		{"trailing.", ""},
	}

	for _, tc := range tests {
		t.Run(tc.filename, func(t *testing.T) {
			assert.Equal(t, tc.expected, Document{Filename: tc.filename}.Extension())
		})
	}
}

func TestWrapService(t *testing.T) {
	cause := errors.New("connection refused")

	err := WrapService("google", "embed", cause)
	require.Error(t, err)

	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "google", se.Service)
	assert.Equal(t, "embed", se.Op)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "google embed: connection refused", err.Error())
}

func TestWrapService_KeepsExisting(t *testing.T) {
	inner := WrapService("openai", "embed_batch", errors.New("boom"))
	outer := WrapService("other", "embed", fmt.Errorf("build: %w", inner))

	var se *ServiceError
	require.ErrorAs(t, outer, &se)
	assert.Equal(t, "openai", se.Service)
	assert.Equal(t, "embed_batch", se.Op)
}

func TestWrapService_Nil(t *testing.T) {
	assert.NoError(t, WrapService("google", "embed", nil))
}

func TestIndexErrorsAreDistinct(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrIndexUnavailable, ErrIndexNotFound)
	assert.ErrorIs(t, err, ErrIndexUnavailable)
	assert.ErrorIs(t, err, ErrIndexNotFound)
	assert.NotErrorIs(t, err, ErrIndexCorrupt)
}
