// Package server exposes the report pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"timefreedom/internal/lead"
	"timefreedom/internal/logger"
	"timefreedom/internal/metrics"
	"timefreedom/internal/notify"
	"timefreedom/internal/pipeline"
	"timefreedom/internal/storage"
)

// CorrelationHeader carries the run's correlation id on every generate response.
const CorrelationHeader = "X-Correlation-ID"

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, correlationID string, l lead.Lead) (*pipeline.Outcome, error)
}

// Notifier receives successful runs for background delivery.
type Notifier interface {
	Dispatch(ctx context.Context, job notify.Job) error
}

// Uploader stores a rendered PDF and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, filename string) (string, error)
}

// RunStore reads archived runs.
type RunStore interface {
	LoadRun(ctx context.Context, correlationID string) (*storage.RunRecord, error)
}

// Config holds the HTTP settings.
type Config struct {
	Port           int
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

// Server wires the pipeline and its collaborators to HTTP routes. Notifier,
// Uploader and RunStore are optional.
type Server struct {
	cfg      Config
	runner   Runner
	notifier Notifier
	uploader Uploader
	runs     RunStore
	log      *slog.Logger
	limiter  *RateLimiter
	now      func() time.Time
}

// Option configures optional collaborators.
type Option func(*Server)

func WithNotifier(n Notifier) Option { return func(s *Server) { s.notifier = n } }
func WithUploader(u Uploader) Option { return func(s *Server) { s.uploader = u } }
func WithRunStore(r RunStore) Option { return func(s *Server) { s.runs = r } }

func New(cfg Config, runner Runner, log *slog.Logger, opts ...Option) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 120 * time.Second
	}
	s := &Server{
		cfg:     cfg,
		runner:  runner,
		log:     logger.Component(log, "server"),
		limiter: NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.GetMetricsHandler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Post("/generate-tasks", s.handleGenerateTasks)
		r.Post("/roi", s.handleROI)
		r.Post("/generate-pdf", s.handleGeneratePDF)
		r.Get("/runs/{correlationId}", s.handleGetRun)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for up to 10 seconds.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", slog.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := s.now()
		next.ServeHTTP(ww, r)
		s.log.InfoContext(r.Context(), "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("duration", s.now().Sub(start)),
		)
	})
}
