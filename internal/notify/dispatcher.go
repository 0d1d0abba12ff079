// Package notify delivers a finished report to the side channels: CRM sync,
// PDF upload and the report email. Nothing here can fail a pipeline run.
package notify

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"timefreedom/internal/blob"
	"timefreedom/internal/crm"
	"timefreedom/internal/lead"
	"timefreedom/internal/logger"
	"timefreedom/internal/mailer"
	"timefreedom/internal/metrics"
	"timefreedom/internal/pdf"
	"timefreedom/internal/report"
	"timefreedom/internal/retry"
	"timefreedom/internal/roi"
)

const component = "notify"

// Side-channel outcome labels.
const (
	StatusSuccess  = "success"
	StatusFailure  = "failure"
	StatusSkipped  = "skipped"
	StatusRejected = "circuit_open"
)

// ErrSaturated is returned by Dispatch when too many deliveries are in flight.
var ErrSaturated = errors.New("notify: too many deliveries in flight")

// CRM is the subset of the Close client the dispatcher uses.
type CRM interface {
	FindByEmail(ctx context.Context, email string) (string, error)
	CreateLead(ctx context.Context, in crm.NewLead) (string, error)
	UpdateLead(ctx context.Context, leadID string, u crm.LeadUpdate) error
	AddNote(ctx context.Context, leadID, note string) error
}

// Mailer sends the report email.
type Mailer interface {
	Send(ctx context.Context, m mailer.Message) (*mailer.SendResult, error)
}

// Uploader stores the rendered PDF and returns a URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, filename string) (string, error)
}

// Job is one finished run to deliver.
type Job struct {
	CorrelationID string
	Lead          lead.Lead
	Result        report.Result
	Hours         *roi.TaskHours // nil uses pdf.DefaultTaskHours
}

// Delivery summarizes what a job reached.
type Delivery struct {
	LeadID    string
	ReportURL string
	MessageID string
}

// Options tunes the dispatcher.
type Options struct {
	Timeout     time.Duration
	MaxInFlight int64
	Policy      *retry.RetryPolicy
	Breakers    *retry.PerServiceBreakers
	Stats       *retry.Stats
}

// Dispatcher runs deliveries in the background. Any collaborator may be nil,
// which skips that channel.
type Dispatcher struct {
	crm      CRM
	mail     Mailer
	blob     Uploader
	opts     Options
	log      *slog.Logger
	inflight *semaphore.Weighted
	wg       sync.WaitGroup
	now      func() time.Time
}

func NewDispatcher(c CRM, m Mailer, u Uploader, opts Options, log *slog.Logger) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 32
	}
	if opts.Policy == nil {
		opts.Policy = retry.DefaultPolicy()
	}
	if opts.Breakers == nil {
		opts.Breakers = retry.NewPerServiceBreakers()
	}
	if opts.Stats == nil {
		opts.Stats = retry.NewStats()
	}
	return &Dispatcher{
		crm:      c,
		mail:     m,
		blob:     u,
		opts:     opts,
		log:      logger.Component(log, component),
		inflight: semaphore.NewWeighted(opts.MaxInFlight),
		now:      time.Now,
	}
}

// Dispatch starts job in the background and returns immediately. The
// delivery is detached from ctx cancellation and bounded by Options.Timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) error {
	if !d.inflight.TryAcquire(1) {
		d.log.WarnContext(ctx, "delivery dropped", slog.String("correlation_id", job.CorrelationID))
		return ErrSaturated
	}

	d.wg.Add(1)
	bg := context.WithoutCancel(ctx)
	go func() {
		defer d.wg.Done()
		defer d.inflight.Release(1)
		if _, err := d.Deliver(bg, job); err != nil {
			d.log.WarnContext(bg, "delivery incomplete",
				slog.String("correlation_id", job.CorrelationID),
				slog.Any("error", err),
			)
		}
	}()
	return nil
}

// Wait blocks until every dispatched job has finished.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Stats returns the per-service call counters.
func (d *Dispatcher) Stats() *retry.Stats { return d.opts.Stats }

// Deliver runs a job synchronously: the PDF is rendered once, then the
// upload-and-CRM branch and the email branch run concurrently. Errors from
// each branch are joined; one failing branch never cancels the other.
func (d *Dispatcher) Deliver(ctx context.Context, job Job) (*Delivery, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	hours := pdf.DefaultTaskHours
	if job.Hours != nil {
		hours = *job.Hours
	}
	calc := roi.Calculate(hours, job.Lead.RevenueRange)

	doc, renderErr := pdf.Render(pdf.Input{Lead: job.Lead, Result: job.Result, ROI: &calc, Date: d.now()})
	if renderErr != nil {
		metrics.RecordSideChannel("pdf", StatusFailure)
	}

	var (
		out  Delivery
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	fail := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}
	fail(renderErr)

	g.Go(func() error {
		if doc != nil {
			url, err := d.upload(ctx, job, doc)
			fail(err)
			out.ReportURL = url
		}
		leadID, err := d.syncCRM(ctx, job, out.ReportURL)
		fail(err)
		out.LeadID = leadID
		return nil
	})

	g.Go(func() error {
		id, err := d.email(ctx, job, doc, &calc)
		fail(err)
		out.MessageID = id
		return nil
	})

	_ = g.Wait()

	logger.LogEvent(ctx, d.log, job.CorrelationID, component, "delivery_finished", map[string]any{
		"lead_id":    out.LeadID,
		"report_url": out.ReportURL,
		"message_id": out.MessageID,
		"errors":     len(errs),
	})
	return &out, errors.Join(errs...)
}

func (d *Dispatcher) upload(ctx context.Context, job Job, doc *pdf.Document) (string, error) {
	if d.blob == nil {
		metrics.RecordSideChannel(blob.Service, StatusSkipped)
		return "", nil
	}
	name := blob.SafeFilename(job.Lead.FirstName, job.Lead.LastName, d.now())
	var url string
	err := d.call(ctx, blob.Service, func(ctx context.Context) error {
		var err error
		url, err = d.blob.Upload(ctx, doc.Bytes, name)
		return err
	})
	return url, err
}

func (d *Dispatcher) syncCRM(ctx context.Context, job Job, reportURL string) (string, error) {
	if d.crm == nil {
		metrics.RecordSideChannel(crm.Service, StatusSkipped)
		return "", nil
	}

	var leadID string
	err := d.call(ctx, crm.Service, func(ctx context.Context) error {
		id, err := d.crm.FindByEmail(ctx, job.Lead.Email)
		if err != nil {
			return err
		}
		if id == "" {
			id, err = d.crm.CreateLead(ctx, crm.NewLead{
				FirstName: job.Lead.FirstName,
				LastName:  job.Lead.LastName,
				Email:     job.Lead.Email,
			})
			var partial *crm.PartialError
			if err != nil && !errors.As(err, &partial) {
				return err
			}
		}
		leadID = id

		if err := d.crm.UpdateLead(ctx, id, crm.LeadUpdate{
			Phone:      job.Lead.Phone,
			Employees:  employees(job.Lead.EmployeeCount),
			Revenue:    job.Lead.RevenueRange,
			PainPoints: job.Lead.PainPoints,
			ReportURL:  reportURL,
		}); err != nil {
			return err
		}
		return d.crm.AddNote(ctx, id, reportNote(job))
	})
	return leadID, err
}

func (d *Dispatcher) email(ctx context.Context, job Job, doc *pdf.Document, calc *roi.Calculation) (string, error) {
	if d.mail == nil {
		metrics.RecordSideChannel(mailer.Service, StatusSkipped)
		return "", nil
	}

	data := mailer.ReportData{FirstName: job.Lead.FirstName, ROI: calc}
	html, err := mailer.RenderHTML(data, d.now())
	if err != nil {
		return "", err
	}
	text, err := mailer.RenderText(data, d.now())
	if err != nil {
		return "", err
	}
	msg := mailer.Message{
		To:        job.Lead.Email,
		FirstName: job.Lead.FirstName,
		LastName:  job.Lead.LastName,
		HTML:      html,
		Text:      text,
	}
	if doc != nil {
		msg.PDFBase64 = base64.StdEncoding.EncodeToString(doc.Bytes)
	}

	var id string
	err = d.call(ctx, mailer.Service, func(ctx context.Context) error {
		res, err := d.mail.Send(ctx, msg)
		if err != nil {
			return err
		}
		id = res.MessageID
		return nil
	})
	return id, err
}

// call guards fn with the service's breaker and retries transient failures.
func (d *Dispatcher) call(ctx context.Context, service string, fn func(context.Context) error) error {
	breaker := d.opts.Breakers.GetBreaker(service)
	defer func() { metrics.SetBreakerState(service, int(breaker.GetState())) }()

	if !breaker.ShouldAllow() {
		d.opts.Stats.RecordBreakerRejection(service)
		metrics.RecordSideChannel(service, StatusRejected)
		return fmt.Errorf("%s: circuit open", service)
	}

	err := retry.Do(ctx, d.opts.Policy, func(ctx context.Context) error {
		d.opts.Stats.RecordAttempt(service)
		return fn(ctx)
	})
	if err != nil {
		breaker.RecordFailure()
		d.opts.Stats.RecordFailure(service, retry.ClassifyError(err))
		metrics.RecordSideChannel(service, StatusFailure)
		return fmt.Errorf("%s: %w", service, err)
	}
	breaker.RecordSuccess()
	d.opts.Stats.RecordSuccess(service)
	metrics.RecordSideChannel(service, StatusSuccess)
	return nil
}

// employees reads a plain head count; ranges such as "10-50" are left unset.
func employees(raw string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

func reportNote(job Job) string {
	total, ea, pct := report.Counts(job.Result)
	var b strings.Builder
	fmt.Fprintf(&b, "Time Freedom report generated (%s).\n", job.CorrelationID)
	fmt.Fprintf(&b, "%d tasks, %d delegable to an EA (%d%%).", total, ea, pct)
	if job.Lead.TimeBottleneck != "" {
		fmt.Fprintf(&b, "\nBiggest time bottleneck: %s", job.Lead.TimeBottleneck)
	}
	return b.String()
}
