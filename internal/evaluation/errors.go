package evaluation

import (
	"errors"
	"fmt"
)

var ErrNotEvaluable = errors.New("task is graded locally")

// ServerError is an evaluation the backend refused, with its error message.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// TransportError is a network failure or a non-2xx reply without a
// structured error body.
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("network error: %v", e.Err)
	}
	return fmt.Sprintf("HTTP error! status: %d", e.Status)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedError is a reply that is not a feedback report.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return "malformed evaluation response: " + e.Reason
}
