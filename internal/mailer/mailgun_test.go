package mailer

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timefreedom/internal/retry"
)

type captured struct {
	path       string
	user, pass string
	fields     map[string]string
	fileName   string
	fileBytes  []byte
}

func fakeMailgun(t *testing.T, status int, body string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{fields: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.path = r.URL.Path
		c.user, c.pass, _ = r.BasicAuth()
		if err := r.ParseMultipartForm(10 << 20); err == nil {
			for k, v := range r.MultipartForm.Value {
				c.fields[k] = v[0]
			}
			if files := r.MultipartForm.File["attachment"]; len(files) > 0 {
				c.fileName = files[0].Filename
				f, _ := files[0].Open()
				c.fileBytes, _ = io.ReadAll(f)
				f.Close()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func testConfig(baseURL string) Config {
	return Config{APIKey: "key-1", Domain: "mg.example.com", From: "ryan@example.com", BaseURL: baseURL}
}

func TestSend_PostsMultipartWithAttachment(t *testing.T) {
	srv, got := fakeMailgun(t, http.StatusOK, `{"id":"<20260301.1@mg.example.com>","message":"Queued. Thank you."}`)

	pdf := []byte("%PDF-1.3 fake")
	res, err := New(testConfig(srv.URL)).Send(context.Background(), Message{
		To:        "dana@example.com",
		FirstName: "Dana",
		LastName:  "Reyes",
		PDFBase64: base64.StdEncoding.EncodeToString(pdf),
	})
	require.NoError(t, err)

	assert.Equal(t, "<20260301.1@mg.example.com>", res.MessageID)
	assert.Equal(t, "Queued. Thank you.", res.Status)

	assert.Equal(t, "/mg.example.com/messages", got.path)
	assert.Equal(t, "api", got.user)
	assert.Equal(t, "key-1", got.pass)
	assert.Equal(t, "dana@example.com", got.fields["to"])
	assert.Equal(t, "Ryan from Assistant Launch <ryan@example.com>", got.fields["from"])
	assert.Equal(t, "Dana, Your Time Freedom Report is Ready", got.fields["subject"])
	assert.Contains(t, got.fields["html"], "Hi Dana,")
	assert.Contains(t, got.fields["text"], "Hi Dana,")
	assert.Equal(t, "Time_Freedom_Report_Dana_Reyes.pdf", got.fileName)
	assert.Equal(t, pdf, got.fileBytes)
}

func TestSend_BadAttachmentIsDropped(t *testing.T) {
	srv, got := fakeMailgun(t, http.StatusOK, `{"id":"m1"}`)

	_, err := New(testConfig(srv.URL)).Send(context.Background(), Message{
		To:        "dana@example.com",
		PDFBase64: "%%% not base64",
	})
	require.NoError(t, err)
	assert.Empty(t, got.fileName)
	assert.Equal(t, "Hi, Your Time Freedom Report is Ready", got.fields["subject"])
}

func TestSend_RejectsBeforeCalling(t *testing.T) {
	srv, got := fakeMailgun(t, http.StatusOK, `{}`)

	_, err := New(testConfig(srv.URL)).Send(context.Background(), Message{To: "not-an-email"})
	assert.ErrorIs(t, err, ErrInvalidEmail)

	cfg := testConfig(srv.URL)
	cfg.Domain = ""
	_, err = New(cfg).Send(context.Background(), Message{To: "dana@example.com"})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Contains(t, err.Error(), "MAILGUN_DOMAIN")

	assert.Empty(t, got.path)
}

func TestSend_ProviderErrorCarriesStatus(t *testing.T) {
	srv, _ := fakeMailgun(t, http.StatusTooManyRequests, `{"message":"slow down"}`)

	_, err := New(testConfig(srv.URL)).Send(context.Background(), Message{To: "dana@example.com"})
	require.Error(t, err)

	var status *retry.StatusError
	require.True(t, errors.As(err, &status))
	assert.Equal(t, http.StatusTooManyRequests, status.StatusCode)
	assert.True(t, retry.IsRetryable(err))
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("a@b.co"))
	assert.False(t, ValidEmail(""))
	assert.False(t, ValidEmail("a b@c.d"))
	assert.False(t, ValidEmail("a@b"))
}

func TestAttachmentName_Defaults(t *testing.T) {
	assert.Equal(t, "Time_Freedom_Report_User_Report.pdf", AttachmentName("", ""))
}

func TestConfigValidate_Order(t *testing.T) {
	err := Config{}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAILGUN_API_KEY")

	assert.NoError(t, testConfig("").Validate())
}
