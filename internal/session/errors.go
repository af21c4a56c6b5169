package session

import (
	"errors"
	"fmt"
)

var (
	// ErrRequestFailed matches every RequestFailedError.
	ErrRequestFailed = errors.New("request failed")
	// ErrMalformedResponse matches every ParseError.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrClosed is returned once the store has been closed.
	ErrClosed = errors.New("session store closed")
)

// RequestFailedError reports a non-2xx response or a transport failure.
// StatusCode is zero when no response was received.
type RequestFailedError struct {
	Method     string
	Path       string
	StatusCode int
	Err        error
}

func (e *RequestFailedError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s failed: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s failed with status %d", e.Method, e.Path, e.StatusCode)
}

func (e *RequestFailedError) Unwrap() error { return e.Err }

func (e *RequestFailedError) Is(target error) bool { return target == ErrRequestFailed }

// ParseError reports a 2xx response whose body could not be decoded or
// failed validation.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse response from %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrMalformedResponse }
