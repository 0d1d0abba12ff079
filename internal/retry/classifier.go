package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/aws/smithy-go"
)

// ErrorType represents the classification of an error.
type ErrorType int

const (
	// ErrorTypeUnknown represents errors that cannot be definitively classified.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeTransient represents temporary errors that may succeed on retry.
	ErrorTypeTransient
	// ErrorTypePermanent represents errors that will not succeed even with retries.
	ErrorTypePermanent
)

func (e ErrorType) String() string {
	switch e {
	case ErrorTypeTransient:
		return "Transient"
	case ErrorTypePermanent:
		return "Permanent"
	default:
		return "Unknown"
	}
}

// StatusError is a non-2xx answer from a collaborator's HTTP API.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Service, e.StatusCode, body)
}

// permanentError marks a failure no retry can fix, such as a missing
// credential or a rejected address.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so ClassifyError never retries it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// S3 error codes worth another attempt.
var transientS3Codes = map[string]bool{
	"SlowDown":            true,
	"Throttling":          true,
	"ThrottlingException": true,
	"RequestTimeout":      true,
	"InternalError":       true,
	"ServiceUnavailable":  true,
}

// classifier inspects err and reports a verdict when it recognizes it.
type classifier func(err error) (ErrorType, bool)

var classifiers = []classifier{
	func(err error) (ErrorType, bool) {
		var p *permanentError
		return ErrorTypePermanent, errors.As(err, &p)
	},
	func(err error) (ErrorType, bool) {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return ErrorTypeTransient, true
		case errors.Is(err, context.Canceled):
			return ErrorTypePermanent, true
		}
		return ErrorTypeUnknown, false
	},
	func(err error) (ErrorType, bool) {
		var se *StatusError
		if !errors.As(err, &se) {
			return ErrorTypeUnknown, false
		}
		return classifyHTTPStatus(se.StatusCode), true
	},
	func(err error) (ErrorType, bool) {
		var apiErr smithy.APIError
		if !errors.As(err, &apiErr) {
			return ErrorTypeUnknown, false
		}
		if transientS3Codes[apiErr.ErrorCode()] || apiErr.ErrorFault() == smithy.FaultServer {
			return ErrorTypeTransient, true
		}
		return ErrorTypePermanent, true
	},
	func(err error) (ErrorType, bool) {
		var errno syscall.Errno
		if !errors.As(err, &errno) {
			return ErrorTypeUnknown, false
		}
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT, syscall.ENETUNREACH:
			return ErrorTypeTransient, true
		}
		return ErrorTypePermanent, true
	},
	func(err error) (ErrorType, bool) {
		var netErr net.Error
		return ErrorTypeTransient, errors.As(err, &netErr)
	},
}

var (
	transientPatterns = []string{"timeout", "connection reset", "connection refused", "temporarily unavailable", "too many requests"}
	permanentPatterns = []string{"invalid", "not found", "unauthorized", "forbidden", "missing", "not configured"}
)

// ClassifyError decides whether a collaborator failure is worth retrying.
// Typed errors win over message text; anything unrecognized is retried and
// left to the policy to bound.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}
	for _, c := range classifiers {
		if t, ok := c(err); ok {
			return t
		}
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return ErrorTypeTransient
		}
	}
	for _, p := range permanentPatterns {
		if strings.Contains(msg, p) {
			return ErrorTypePermanent
		}
	}
	return ErrorTypeTransient
}

// classifyHTTPStatus treats throttling, request timeouts and server errors
// as transient.
func classifyHTTPStatus(code int) ErrorType {
	if code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500 {
		return ErrorTypeTransient
	}
	return ErrorTypePermanent
}

// IsRetryable returns true if the error is classified as transient.
func IsRetryable(err error) bool {
	return ClassifyError(err) == ErrorTypeTransient
}
