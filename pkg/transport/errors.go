package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/cockroachdb/errors"
)

// ErrorClass represents a classification of transport failures.
type ErrorClass string

const (
	// ErrorClassTimeout represents a per-request deadline or socket timeout.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassConnection represents dial failures, resets and connections
	// closed before a response was read.
	ErrorClassConnection ErrorClass = "connection"

	// ErrorClassCanceled represents a caller-cancelled context.
	ErrorClassCanceled ErrorClass = "canceled"

	// ErrorClassProtocol represents everything else (malformed URL or response).
	ErrorClassProtocol ErrorClass = "protocol"
)

// Error is a transport-level failure: no HTTP status was obtained.
type Error struct {
	URL   string
	Class ErrorClass
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %v", e.Class, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// ClassOf returns the class of a transport error, or "" if err is not one.
func ClassOf(err error) ErrorClass {
	var te *Error
	if errors.As(err, &te) {
		return te.Class
	}
	return ""
}

// classifyError categorizes a failed round trip.
func classifyError(err error) ErrorClass {
	switch {
	case errors.Is(err, context.Canceled):
		return ErrorClassCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorClassTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrorClassConnection
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return ErrorClassConnection
	}

	return ErrorClassProtocol
}
