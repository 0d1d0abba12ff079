// Package crm syncs funnel leads into Close.
package crm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"timefreedom/internal/retry"
)

// Service is the breaker and metrics label for Close calls.
const Service = "crm"

const DefaultBaseURL = "https://api.close.com/api/v1"

// Close custom fields and status written on lead creation.
const (
	fieldSource        = "custom.cf_gU07dqgKBcSNC5ZUf40ywU2sVzTOKpt25chQa7lqFA3"
	statusContacted    = "stat_15lY7bOIOUruTl5a5JwSfpxg9R6Jisp0RKMDd4G2XfQ"
	sourceLeadMagnet   = "Lead Magnet"
	fieldEmployeeCount = "Employee Count"
	fieldAnnualRevenue = "Annual Revenue"
	fieldPainPoints    = "Primary Pain Points"
	fieldReportURL     = "BBYT Report"
	contactTypeOffice  = "office"
	defaultCallTimeout = 15 * time.Second
)

// ErrNotConfigured is returned by every call when no API key was given.
var ErrNotConfigured = errors.New("Close CRM API key not configured")

// Client talks to the Close REST API with basic auth.
type Client struct {
	http   *resty.Client
	apiKey string
}

// New builds a client. An empty baseURL uses DefaultBaseURL.
func New(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(defaultCallTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetBasicAuth(apiKey, "")
	return &Client{http: rc, apiKey: apiKey}
}

// Configured reports whether the client has credentials.
func (c *Client) Configured() bool { return c.apiKey != "" }

// NewLead is the minimum needed to open a lead.
type NewLead struct {
	FirstName string
	LastName  string
	Email     string
}

// LeadUpdate carries optional fields; nil or empty values are left alone.
type LeadUpdate struct {
	Email      string
	Phone      string
	Employees  *int
	Revenue    string
	PainPoints string
	ReportURL  string
}

type contact struct {
	Name   string         `json:"name,omitempty"`
	Emails []contactValue `json:"emails,omitempty"`
	Phones []contactValue `json:"phones,omitempty"`
}

type contactValue struct {
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	Type  string `json:"type"`
}

type leadRef struct {
	ID string `json:"id"`
}

// CreateLead opens a lead with source and status, then attaches the contact.
// A failed contact attach does not fail the call since the lead exists.
func (c *Client) CreateLead(ctx context.Context, in NewLead) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if in.FirstName == "" || in.LastName == "" || in.Email == "" {
		return "", fmt.Errorf("first name, last name, and email are required")
	}

	name := strings.TrimSpace(in.FirstName + " " + in.LastName)
	var created leadRef
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"name":      name,
			"status_id": statusContacted,
			fieldSource: sourceLeadMagnet,
		}).
		SetResult(&created).
		Post("/lead/")
	if err := check(resp, err); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("close returned no lead id")
	}

	resp, err = c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"contacts": []contact{{
				Name:   name,
				Emails: []contactValue{{Email: in.Email, Type: contactTypeOffice}},
			}},
		}).
		Put("/lead/" + created.ID + "/")
	if err := check(resp, err); err != nil {
		return created.ID, &PartialError{LeadID: created.ID, Err: err}
	}

	return created.ID, nil
}

// PartialError means the lead was created but a follow-up write failed.
type PartialError struct {
	LeadID string
	Err    error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("lead %s created but contact update failed: %v", e.LeadID, e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

// UpdateLead writes the non-empty fields of u onto leadID.
func (c *Client) UpdateLead(ctx context.Context, leadID string, u LeadUpdate) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if leadID == "" {
		return fmt.Errorf("lead id is required")
	}

	body := updatePayload(u)
	if len(body) == 0 {
		return nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Put("/lead/" + leadID + "/")
	return check(resp, err)
}

func updatePayload(u LeadUpdate) map[string]any {
	body := map[string]any{}

	if u.Email != "" || u.Phone != "" {
		var ct contact
		if u.Email != "" {
			ct.Emails = []contactValue{{Email: u.Email, Type: contactTypeOffice}}
		}
		if u.Phone != "" {
			ct.Phones = []contactValue{{Phone: u.Phone, Type: contactTypeOffice}}
		}
		body["contacts"] = []contact{ct}
	}

	custom := map[string]any{}
	if u.Employees != nil {
		custom[fieldEmployeeCount] = *u.Employees
	}
	if u.Revenue != "" {
		custom[fieldAnnualRevenue] = u.Revenue
	}
	if u.PainPoints != "" {
		custom[fieldPainPoints] = u.PainPoints
	}
	if u.ReportURL != "" {
		custom[fieldReportURL] = u.ReportURL
	}
	if len(custom) > 0 {
		body["custom"] = custom
	}

	return body
}

// FindByEmail returns the first lead whose contact has email, or "" if none.
func (c *Client) FindByEmail(ctx context.Context, email string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	var page struct {
		Data []leadRef `json:"data"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"query":   fmt.Sprintf("email:%q", email),
			"_fields": "id",
			"_limit":  "1",
		}).
		SetResult(&page).
		Get("/lead/")
	if err := check(resp, err); err != nil {
		return "", err
	}
	if len(page.Data) == 0 {
		return "", nil
	}
	return page.Data[0].ID, nil
}

// AddNote attaches a note activity to leadID.
func (c *Client) AddNote(ctx context.Context, leadID, note string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"lead_id": leadID, "note": note}).
		Post("/activity/note/")
	return check(resp, err)
}

// check turns transport failures and non-2xx answers into errors the retry
// classifier understands.
func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("close request failed: %w", err)
	}
	if resp.IsError() || resp.StatusCode() >= http.StatusMultipleChoices {
		return &retry.StatusError{Service: Service, StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}
