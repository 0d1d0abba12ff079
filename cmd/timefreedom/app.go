package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"timefreedom/internal/blob"
	"timefreedom/internal/config"
	"timefreedom/internal/crm"
	"timefreedom/internal/generator"
	"timefreedom/internal/lead"
	"timefreedom/internal/logger"
	"timefreedom/internal/mailer"
	"timefreedom/internal/metrics"
	"timefreedom/internal/notify"
	"timefreedom/internal/pipeline"
	"timefreedom/internal/report"
	"timefreedom/internal/retry"
	"timefreedom/internal/storage"
)

// app is the wired process: every long-lived dependency and how to release it.
type app struct {
	cfg          *config.Config
	log          *slog.Logger
	store        *storage.SQLiteStorage
	orchestrator *pipeline.Orchestrator
	dispatcher   *notify.Dispatcher
	uploader     *blob.Uploader
	closers      []func() error
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, closeLog, err := logger.Open(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, closers: []func() error{closeLog}}

	if err := metrics.InitTracing(ctx, metrics.TracingConfig{
		ServiceName:  "timefreedom",
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		Insecure:     cfg.Tracing.Insecure,
	}); err != nil {
		log.Warn("tracing disabled", slog.Any("error", err))
	} else {
		a.closers = append(a.closers, metrics.ShutdownTracing)
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.Database.Path)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open run archive: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	rules := report.Rules{MinEAPercent: cfg.Report.MinEAPercent, TasksPerBucket: cfg.Report.TasksPerBucket}
	a.orchestrator = pipeline.NewOrchestrator(newGenerator(ctx, cfg), rules, log).
		WithArchiver(pipeline.NewStoreArchiver(store))

	a.dispatcher = a.newDispatcher(ctx)
	return a, nil
}

func newGenerator(ctx context.Context, cfg *config.Config) generator.Generator {
	temperature := cfg.Generator.Temperature
	opts := generator.Options{
		Model:       cfg.Generator.Model,
		APIKey:      cfg.Generator.APIKey,
		Temperature: &temperature,
		MaxTokens:   cfg.Generator.MaxTokens,
	}
	var gen generator.Generator
	switch cfg.Generator.Provider {
	case generator.ProviderGemini:
		gen = generator.NewGemini(ctx, opts)
	default:
		gen = generator.NewAnthropic(opts)
	}

	b := cfg.Generator.Breaker
	cb := retry.NewCircuitBreakerWithConfig(b.FailureThreshold, b.MinRequests, time.Duration(b.OpenTimeoutSeconds)*time.Second)
	cb.OnStateChange(func(from, to retry.CircuitState) {
		metrics.SetBreakerState("generator", int(to))
	})
	return generator.WithBreaker(generator.WithTimeout(gen, cfg.GeneratorTimeout()), cb)
}

func (a *app) newDispatcher(ctx context.Context) *notify.Dispatcher {
	cfg := a.cfg
	var (
		c notify.CRM
		m notify.Mailer
		u notify.Uploader
	)
	if cfg.CRMEnabled() {
		c = crm.New(cfg.CRM.APIKey, cfg.CRM.BaseURL)
	}
	if cfg.MailEnabled() {
		m = mailer.New(mailer.Config{
			APIKey:  cfg.Mail.APIKey,
			Domain:  cfg.Mail.Domain,
			From:    cfg.Mail.From,
			BaseURL: cfg.Mail.BaseURL,
		})
	}
	if cfg.BlobEnabled() {
		up, err := blob.NewS3Uploader(ctx, blob.Config{
			Bucket:   cfg.Blob.Bucket,
			Region:   cfg.Blob.Region,
			Endpoint: cfg.Blob.Endpoint,
			Prefix:   cfg.Blob.Prefix,
		})
		if err != nil {
			a.log.Warn("pdf upload disabled", slog.Any("error", err))
		} else {
			a.uploader = up
			u = up
		}
	}

	a.log.Info("side channels configured",
		slog.Bool("crm", c != nil),
		slog.Bool("mail", m != nil),
		slog.Bool("blob", u != nil),
	)

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = cfg.Notify.MaxRetries
	return notify.NewDispatcher(c, m, u, notify.Options{
		Timeout:  cfg.NotifyTimeout(),
		Policy:   policy,
		Breakers: retry.NewPerServiceBreakers(),
	}, a.log)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.log != nil {
			a.log.Warn("close failed", slog.Any("error", err))
		}
	}
	a.closers = nil
}

func notifyJob(out *pipeline.Outcome, l lead.Lead) notify.Job {
	return notify.Job{CorrelationID: out.CorrelationID, Lead: l, Result: out.Result}
}
