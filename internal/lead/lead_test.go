package lead

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validLead() Lead {
	return Lead{LeadType: TypeMain, Email: "jane@example.com", FirstName: "Jane", LastName: "Doe"}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Lead)
		field   string
		message string
	}{
		{"valid", func(*Lead) {}, "", ""},
		{"missing email", func(l *Lead) { l.Email = "" }, "email", `Required field "email" is missing or empty`},
		{"missing lead type", func(l *Lead) { l.LeadType = "" }, "leadType", `Required field "leadType" is missing or empty`},
		{"unknown lead type", func(l *Lead) { l.LeadType = "vip" }, "leadType", `Invalid leadType: "vip". Must be one of: main, standard, simple`},
		{"malformed email", func(l *Lead) { l.Email = "not-an-email" }, "email", `Invalid email address: "not-an-email"`},
		{"standard funnel", func(l *Lead) { l.LeadType = TypeStandard }, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := validLead()
			tt.mutate(&l)
			err := Validate(l)
			if tt.message == "" {
				require.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, tt.message, verr.Message)
		})
	}
}

func TestNormalizeFillsTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := Normalize(Lead{LeadType: " simple ", Email: " a@b.co "}, now)

	assert.Equal(t, TypeSimple, l.LeadType)
	assert.Equal(t, "a@b.co", l.Email)
	assert.Equal(t, now, l.Timestamp)

	stamped := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, stamped, Normalize(Lead{Timestamp: stamped}, now).Timestamp)
}

func TestUnmarshalRevenueAlias(t *testing.T) {
	var l Lead
	require.NoError(t, json.Unmarshal([]byte(`{"leadType":"main","email":"x@y.io","revenue":"$1M to $3M"}`), &l))
	assert.Equal(t, "$1M to $3M", l.RevenueRange)

	require.NoError(t, json.Unmarshal([]byte(`{"revenueRange":"Under $100k","revenue":"ignored"}`), &l))
	assert.Equal(t, "Under $100k", l.RevenueRange)
}

func TestFullNameAndRouting(t *testing.T) {
	assert.Equal(t, "Jane Doe", validLead().FullName())
	assert.Equal(t, "Doe", Lead{LastName: "Doe"}.FullName())
	assert.False(t, validLead().Streamlined())
	assert.True(t, Lead{LeadType: TypeSimple}.Streamlined())
}
