package services

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	ErrorValidation        ErrorCode = "VALIDATION_ERROR"
	ErrorConfiguration     ErrorCode = "CONFIGURATION_ERROR"
	ErrorUpstreamStatus    ErrorCode = "UPSTREAM_STATUS_ERROR"
	ErrorUpstreamTransport ErrorCode = "UPSTREAM_TRANSPORT_ERROR"
)

// Error is the typed failure the services return. For ErrorUpstreamStatus the
// Reason carries the terminal run state string, so the HTTP boundary can
// surface it.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("services: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("services: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// AsServiceError unwraps err into *Error when the chain contains one.
func AsServiceError(err error) (*Error, bool) {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}
