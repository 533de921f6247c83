package assistant

import (
	"errors"
	"fmt"

	"github.com/film4u/film4u-ai/internal/guard"
)

// RejectionError carries an admission rejection out of an assistant operation.
type RejectionError struct {
	Decision guard.Decision
}

// Error returns the message meant for the end user.
func (e *RejectionError) Error() string {
	return e.Decision.Message
}

// AsRejection unwraps a RejectionError from err.
func AsRejection(err error) (*RejectionError, bool) {
	var rejection *RejectionError
	if errors.As(err, &rejection) {
		return rejection, true
	}
	return nil, false
}

// UpstreamError is a non-success answer from the completion API.
// Status is the HTTP status the API answered with, or the gateway's own for transport
// and breaker failures; Err holds the underlying cause when there is one.
type UpstreamError struct {
	Model   string
	Status  int
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("assistant: %s: %s: %v", e.Model, e.Message, e.Err)
	}
	return fmt.Sprintf("assistant: %s: %s", e.Model, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
