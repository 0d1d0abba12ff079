package generator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind is the closed set of generator failure classes.
type Kind int

const (
	// KindUpstream covers provider outages, refusals and anything unclassified.
	KindUpstream Kind = iota
	// KindAuth means credentials are missing or were rejected.
	KindAuth
	// KindTimeout means the call exceeded its deadline.
	KindTimeout
	// KindMalformed means the model answered with output that does not parse.
	KindMalformed
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindTimeout:
		return "timeout"
	case KindMalformed:
		return "malformed_output"
	default:
		return "upstream"
	}
}

// Error is the only error type a Generator returns.
type Error struct {
	Kind     Kind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	if e.Provider == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, provider string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// KindOf extracts the failure class from any error chain. Errors that did not
// come from a generator are upstream failures.
func KindOf(err error) Kind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUpstream
}

// ErrMissingAPIKey is returned before any network call when no key is configured.
var ErrMissingAPIKey = errors.New("Missing API key")

func missingKey(provider, envVar string) *Error {
	return newError(KindAuth, provider, fmt.Errorf("%w: Set %s environment variable", ErrMissingAPIKey, envVar))
}

// classify maps a transport error from an SDK onto a Kind. SDKs surface
// status codes inconsistently, so this is the one place that inspects text.
func classify(provider string, err error) *Error {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, provider, fmt.Errorf("request timed out: %w", err))
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(KindTimeout, provider, fmt.Errorf("request timed out: %w", err))
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{"401", "403", "unauthorized", "invalid x-api-key", "api key", "permission denied", "authentication"} {
		if strings.Contains(msg, p) {
			return newError(KindAuth, provider, err)
		}
	}
	for _, p := range []string{"timed out", "timeout", "deadline exceeded"} {
		if strings.Contains(msg, p) {
			return newError(KindTimeout, provider, err)
		}
	}
	return newError(KindUpstream, provider, err)
}
