package lead

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ValidationError describes why an inbound lead was rejected. Message is
// safe to return to the caller.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

var (
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Mirrors the address check used by the mail sender.
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// Normalize trims identity fields and fills a missing timestamp.
func Normalize(l Lead, now time.Time) Lead {
	l.Email = strings.TrimSpace(l.Email)
	l.FirstName = strings.TrimSpace(l.FirstName)
	l.LastName = strings.TrimSpace(l.LastName)
	l.Phone = strings.TrimSpace(l.Phone)
	l.LeadType = Type(strings.TrimSpace(string(l.LeadType)))
	if l.Timestamp.IsZero() {
		l.Timestamp = now.UTC()
	}
	return l
}

// Validate rejects leads that must never reach the generator.
func Validate(l Lead) error {
	err := validate.Struct(l)
	if err == nil {
		if !emailPattern.MatchString(l.Email) {
			return invalid("email", "Invalid email address: %q", l.Email)
		}
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return invalid("", "Invalid lead: %v", err)
	}

	fe := verrs[0]
	field := jsonName(fe.Field())
	switch fe.Tag() {
	case "required":
		return invalid(field, "Required field %q is missing or empty", field)
	case "oneof":
		return invalid(field, "Invalid %s: \"%v\". Must be one of: %s", field, fe.Value(), typeList())
	case "email":
		return invalid(field, "Invalid email address: \"%v\"", fe.Value())
	default:
		return invalid(field, "Field %q failed %s validation", field, fe.Tag())
	}
}

func jsonName(field string) string {
	switch field {
	case "LeadType":
		return "leadType"
	case "Email":
		return "email"
	default:
		return strings.ToLower(field[:1]) + field[1:]
	}
}

func typeList() string {
	names := make([]string, len(Types))
	for i, t := range Types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
