package contestdojo

import (
	"fmt"
	"net/http"
)

// ErrorClass is a coarse category for a failed directory call.
type ErrorClass string

const (
	ClassClientError ErrorClass = "4xx"
	ClassServerError ErrorClass = "5xx"
	ClassUnexpected  ErrorClass = "unexpected_status"
	ClassTimeout     ErrorClass = "timeout"
	ClassCanceled    ErrorClass = "canceled"
	ClassTransport   ErrorClass = "transport"
)

func classForStatus(code int) ErrorClass {
	switch {
	case code >= 400 && code < 500:
		return ClassClientError
	case code >= 500:
		return ClassServerError
	default:
		return ClassUnexpected
	}
}

// RemoteError is a failed directory call: either a non-2xx response or a
// request that never produced one. StatusCode is 0 in the latter case.
type RemoteError struct {
	Op         string
	StatusCode int
	Class      ErrorClass
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		msg := fmt.Sprintf("contestdojo %s: HTTP %d %s (%s)", e.Op, e.StatusCode, http.StatusText(e.StatusCode), e.Class)
		if e.Body != "" {
			msg += ": " + e.Body
		}
		return msg
	}
	return fmt.Sprintf("contestdojo %s [%s]: %v", e.Op, e.Class, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// DecodeError is a response body that does not match the student schema.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("contestdojo %s: decode response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
