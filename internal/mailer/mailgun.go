// Package mailer sends the finished report through Mailgun.
package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"timefreedom/internal/retry"
)

// Service is the breaker and metrics label for Mailgun calls.
const Service = "mail"

const (
	DefaultBaseURL = "https://api.mailgun.net/v3"
	DefaultSubject = "Your Time Freedom Report is Ready"
	senderName     = "Ryan from Assistant Launch"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var (
	ErrNotConfigured = errors.New("Mailgun is not configured")
	ErrInvalidEmail  = errors.New("Invalid email address")
)

// Config holds Mailgun account settings.
type Config struct {
	APIKey  string
	Domain  string
	From    string
	BaseURL string
}

// Validate reports the first missing setting.
func (c Config) Validate() error {
	switch {
	case c.APIKey == "":
		return fmt.Errorf("%w: MAILGUN_API_KEY is not configured", ErrNotConfigured)
	case c.Domain == "":
		return fmt.Errorf("%w: MAILGUN_DOMAIN is not configured", ErrNotConfigured)
	case c.From == "":
		return fmt.Errorf("%w: MAILGUN_FROM_EMAIL is not configured", ErrNotConfigured)
	}
	return nil
}

// Message is one outbound report email. PDFBase64 is optional; an
// undecodable attachment is dropped rather than failing the send.
type Message struct {
	To        string
	FirstName string
	LastName  string
	Subject   string
	HTML      string
	Text      string
	PDFBase64 string
}

// SendResult is Mailgun's acknowledgement.
type SendResult struct {
	MessageID string
	Status    string
	Duration  time.Duration
}

// Client posts messages to the Mailgun HTTP API.
type Client struct {
	cfg  Config
	http *resty.Client
	now  func() time.Time
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(30*time.Second).
		SetHeader("Accept", "application/json").
		SetBasicAuth("api", cfg.APIKey)
	return &Client{cfg: cfg, http: rc, now: time.Now}
}

// ValidEmail reports whether addr looks deliverable.
func ValidEmail(addr string) bool {
	return addr != "" && emailPattern.MatchString(addr)
}

// AttachmentName is the file name recipients see for the report PDF.
func AttachmentName(firstName, lastName string) string {
	if firstName == "" {
		firstName = "User"
	}
	if lastName == "" {
		lastName = "Report"
	}
	return fmt.Sprintf("Time_Freedom_Report_%s_%s.pdf", firstName, lastName)
}

// Send delivers m, rendering default bodies when none are given.
func (c *Client) Send(ctx context.Context, m Message) (*SendResult, error) {
	if err := c.cfg.Validate(); err != nil {
		return nil, retry.Permanent(err)
	}
	if !ValidEmail(m.To) {
		return nil, retry.Permanent(ErrInvalidEmail)
	}

	if m.HTML == "" || m.Text == "" {
		data := ReportData{FirstName: m.FirstName}
		if m.HTML == "" {
			html, err := RenderHTML(data, c.now())
			if err != nil {
				return nil, err
			}
			m.HTML = html
		}
		if m.Text == "" {
			text, err := RenderText(data, c.now())
			if err != nil {
				return nil, err
			}
			m.Text = text
		}
	}
	if m.Subject == "" {
		name := m.FirstName
		if name == "" {
			name = "Hi"
		}
		m.Subject = name + ", " + DefaultSubject
	}

	req := c.http.R().
		SetContext(ctx).
		SetMultipartFormData(map[string]string{
			"from":    fmt.Sprintf("%s <%s>", senderName, c.cfg.From),
			"to":      m.To,
			"subject": m.Subject,
			"text":    m.Text,
			"html":    m.HTML,
		})

	if m.PDFBase64 != "" {
		if pdf, err := base64.StdEncoding.DecodeString(m.PDFBase64); err == nil {
			req.SetFileReader("attachment", AttachmentName(m.FirstName, m.LastName), bytes.NewReader(pdf))
		}
	}

	var ack struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	req.SetResult(&ack)

	start := c.now()
	resp, err := req.Post("/" + c.cfg.Domain + "/messages")
	elapsed := c.now().Sub(start)
	if err != nil {
		return nil, fmt.Errorf("failed to send email via Mailgun: %w (duration: %dms)", err, elapsed.Milliseconds())
	}
	if resp.IsError() || resp.StatusCode() >= http.StatusMultipleChoices {
		return nil, &retry.StatusError{Service: Service, StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	return &SendResult{MessageID: ack.ID, Status: ack.Message, Duration: elapsed}, nil
}
