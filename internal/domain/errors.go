package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSourceUnavailable = errors.New("recipient source unavailable")
	ErrRender            = errors.New("render failed")
	ErrSend              = errors.New("send failed")
	ErrStore             = errors.New("tracking store error")
	ErrDuplicate         = errors.New("tracking record already exists")
	ErrNotFound          = errors.New("tracking record not found")
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNonRetryable marks a send failure that another attempt cannot fix.
	ErrNonRetryable = errors.New("non-retryable")
)

// ValidationError describes malformed campaign input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
