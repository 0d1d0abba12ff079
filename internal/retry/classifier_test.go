package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"syscall"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil", nil, ErrorTypePermanent},
		{"deadline", fmt.Errorf("crm: %w", context.DeadlineExceeded), ErrorTypeTransient},
		{"canceled", context.Canceled, ErrorTypePermanent},
		{"marked permanent", Permanent(errors.New("connection timeout")), ErrorTypePermanent},
		{"wrapped permanent", fmt.Errorf("mail: %w", Permanent(context.DeadlineExceeded)), ErrorTypePermanent},
		{"econnrefused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), ErrorTypeTransient},
		{"econnreset", fmt.Errorf("read: %w", syscall.ECONNRESET), ErrorTypeTransient},
		{"eacces", fmt.Errorf("open: %w", syscall.EACCES), ErrorTypePermanent},
		{"s3 slow down", &smithy.GenericAPIError{Code: "SlowDown", Fault: smithy.FaultClient}, ErrorTypeTransient},
		{"s3 server fault", &smithy.GenericAPIError{Code: "Weird", Fault: smithy.FaultServer}, ErrorTypeTransient},
		{"s3 no such bucket", fmt.Errorf("put: %w", &smithy.GenericAPIError{Code: "NoSuchBucket", Fault: smithy.FaultClient}), ErrorTypePermanent},
		{"s3 access denied", &smithy.GenericAPIError{Code: "AccessDenied", Fault: smithy.FaultClient}, ErrorTypePermanent},
		{"timeout text", errors.New("read tcp: i/o timeout"), ErrorTypeTransient},
		{"throttled text", errors.New("429 Too Many Requests"), ErrorTypeTransient},
		{"not configured text", errors.New("mailer not configured"), ErrorTypePermanent},
		{"invalid text", errors.New("invalid email address"), ErrorTypePermanent},
		{"unknown", errors.New("something odd happened"), ErrorTypeTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err))
		})
	}
}

func TestClassifyStatusError(t *testing.T) {
	tests := []struct {
		code int
		want ErrorType
	}{
		{http.StatusTooManyRequests, ErrorTypeTransient},
		{http.StatusRequestTimeout, ErrorTypeTransient},
		{http.StatusInternalServerError, ErrorTypeTransient},
		{http.StatusBadGateway, ErrorTypeTransient},
		{http.StatusServiceUnavailable, ErrorTypeTransient},
		{http.StatusBadRequest, ErrorTypePermanent},
		{http.StatusUnauthorized, ErrorTypePermanent},
		{http.StatusNotFound, ErrorTypePermanent},
		{http.StatusUnprocessableEntity, ErrorTypePermanent},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			// The body text must not override the status code.
			err := fmt.Errorf("send: %w", &StatusError{Service: "mail", StatusCode: tt.code, Body: "invalid timeout"})
			assert.Equal(t, tt.want, ClassifyError(err))
		})
	}
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{Service: "crm", StatusCode: 500, Body: strings.Repeat("x", 300)}
	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "crm returned HTTP 500: "))
	assert.True(t, strings.HasSuffix(msg, "..."))
	assert.Less(t, len(msg), 260)
}

func TestPermanentNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&StatusError{Service: "crm", StatusCode: 503}))
	assert.False(t, IsRetryable(&StatusError{Service: "crm", StatusCode: 400}))
	assert.False(t, IsRetryable(Permanent(errors.New("boom"))))
	assert.Equal(t, "Transient", ErrorTypeTransient.String())
	assert.Equal(t, "Unknown", ErrorTypeUnknown.String())
}
