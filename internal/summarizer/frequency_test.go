package summarizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize_PicksFrequentSentencesInOrder(t *testing.T) {
	text := "Solar panels convert sunlight into electricity. " +
		"The weather was pleasant on Tuesday. " +
		"Modern solar panels convert more sunlight than older panels. " +
		"Cats sleep a lot."

	summary, err := NewFrequencySummarizer().Summarize(text, 2)
	require.NoError(t, err)

	assert.Equal(t,
		"Solar panels convert sunlight into electricity. Modern solar panels convert more sunlight than older panels.",
		summary)
}

func TestSummarize_FewerSentencesThanRequested(t *testing.T) {
	summary, err := NewFrequencySummarizer().Summarize("Only one sentence here.", 5)
	require.NoError(t, err)
	assert.Equal(t, "Only one sentence here.", summary)
}

func TestSummarize_NoSentences(t *testing.T) {
	summary, err := NewFrequencySummarizer().Summarize("  \n ... ", 3)
	require.NoError(t, err)
	assert.Empty(t, summary)
}

func TestSummarize_UnterminatedLines(t *testing.T) {
	summary, err := NewFrequencySummarizer().Summarize("Heading without a period\nBody text follows", 0)
	require.NoError(t, err)
	assert.Equal(t, "Heading without a period Body text follows", summary)
}

func TestSummarize_LargeInputIsBounded(t *testing.T) {
	text := strings.Repeat("Repeated sentence about databases. ", 20000)

	summary, err := NewFrequencySummarizer().Summarize(text, 1)
	require.NoError(t, err)
	assert.Equal(t, "Repeated sentence about databases.", summary)
}
