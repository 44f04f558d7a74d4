package domain

import (
	"errors"
	"fmt"
)

// Input errors. Rejected before any side effect.
var (
	ErrNoFile     = errors.New("no file provided")
	ErrNoQuestion = errors.New("no question provided")
)

// Pipeline errors. An ingestion failing with one of these leaves the
// persisted index untouched.
var (
	ErrNoExtractableText = errors.New("no text could be extracted")
	ErrIndexBuild        = errors.New("index build failed")
	ErrIndexPersist      = errors.New("index persist failed")
)

// Index availability errors.
var (
	ErrIndexNotFound = errors.New("index not found")
	ErrIndexCorrupt  = errors.New("index corrupt")

	// ErrIndexUnavailable is what queries surface when the index cannot be
	// loaded; it wraps ErrIndexNotFound or ErrIndexCorrupt.
	ErrIndexUnavailable = errors.New("index unavailable")
)

// ErrEmptyResponse is returned by generators that answered without any
// usable text.
var ErrEmptyResponse = errors.New("empty response")

// ServiceError records a failed call to an external embedding or
// generation service.
type ServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// WrapService wraps err in a ServiceError unless it already carries one.
func WrapService(service, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}
	return &ServiceError{Service: service, Op: op, Err: err}
}
