package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"timefreedom/internal/generator"
	"timefreedom/internal/lead"
	"timefreedom/internal/notify"
	"timefreedom/internal/pdf"
	"timefreedom/internal/pipeline"
	"timefreedom/internal/report"
	"timefreedom/internal/roi"
	"timefreedom/internal/storage"
)

const maxBodyBytes = 1 << 20

// Caller-visible message for every non-auth generation failure.
const genericFailure = "Failed to generate tasks"

type success struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type failure struct {
	Success       bool   `json:"success"`
	Error         string `json:"error"`
	CorrelationID string `json:"correlationId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("Invalid request body: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleGenerateTasks(w http.ResponseWriter, r *http.Request) {
	correlationID := r.Header.Get(CorrelationHeader)
	if correlationID == "" {
		correlationID = pipeline.NewCorrelationID()
	}
	w.Header().Set(CorrelationHeader, correlationID)

	var l lead.Lead
	if err := decode(w, r, &l); err != nil {
		writeJSON(w, http.StatusBadRequest, failure{Error: err.Error(), CorrelationID: correlationID})
		return
	}
	l = lead.Normalize(l, s.now())
	if err := lead.Validate(l); err != nil {
		writeJSON(w, http.StatusBadRequest, failure{Error: err.Error(), CorrelationID: correlationID})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	out, err := s.runner.Run(ctx, correlationID, l)
	if err != nil {
		status, msg := generationFailure(err)
		s.log.ErrorContext(ctx, "generation failed",
			slog.String("correlation_id", correlationID),
			slog.String("kind", generator.KindOf(err).String()),
			slog.Any("error", err),
		)
		writeJSON(w, status, failure{Error: msg, CorrelationID: correlationID})
		return
	}

	if s.notifier != nil {
		job := notify.Job{CorrelationID: correlationID, Lead: l, Result: out.Result}
		if err := s.notifier.Dispatch(r.Context(), job); err != nil {
			s.log.WarnContext(ctx, "side channels skipped",
				slog.String("correlation_id", correlationID),
				slog.Any("error", err),
			)
		}
	}

	writeJSON(w, http.StatusOK, success{Success: true, Data: out.Result})
}

// generationFailure maps a failed run onto a status and caller-safe message.
func generationFailure(err error) (int, string) {
	if generator.KindOf(err) != generator.KindAuth {
		return http.StatusInternalServerError, genericFailure
	}
	detail := err.Error()
	var gerr *generator.Error
	if errors.As(err, &gerr) && gerr.Err != nil {
		detail = gerr.Err.Error()
	}
	return http.StatusUnauthorized, "Authentication failed: " + detail
}

type roiRequest struct {
	TaskHours    roi.TaskHours `json:"taskHours"`
	RevenueRange string        `json:"revenueRange"`
}

func (s *Server) handleROI(w http.ResponseWriter, r *http.Request) {
	var req roiRequest
	if err := decode(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, failure{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, success{Success: true, Data: roi.Calculate(req.TaskHours, req.RevenueRange)})
}

type pdfRequest struct {
	Lead      lead.Lead      `json:"lead"`
	Result    report.Result  `json:"result"`
	TaskHours *roi.TaskHours `json:"taskHours,omitempty"`
}

type pdfResponse struct {
	Success  bool   `json:"success"`
	PDF      string `json:"pdf"`
	Filename string `json:"filename"`
	URL      string `json:"url,omitempty"`
}

func (s *Server) handleGeneratePDF(w http.ResponseWriter, r *http.Request) {
	var req pdfRequest
	if err := decode(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, failure{Error: err.Error()})
		return
	}

	in := pdf.Input{Lead: req.Lead, Result: report.Recount(req.Result), Date: s.now()}
	if req.TaskHours != nil {
		calc := roi.Calculate(*req.TaskHours, req.Lead.RevenueRange)
		in.ROI = &calc
	}
	doc, err := pdf.Render(in)
	if err != nil {
		s.log.ErrorContext(r.Context(), "pdf render failed", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, failure{Error: "Failed to generate PDF"})
		return
	}

	resp := pdfResponse{
		Success:  true,
		PDF:      base64.StdEncoding.EncodeToString(doc.Bytes),
		Filename: doc.Filename,
	}
	if s.uploader != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		url, err := s.uploader.Upload(ctx, doc.Bytes, doc.Filename)
		cancel()
		if err != nil {
			s.log.WarnContext(r.Context(), "pdf upload failed", slog.Any("error", err))
		} else {
			resp.URL = url
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type runView struct {
	CorrelationID    string          `json:"correlationId"`
	LeadEmail        string          `json:"leadEmail"`
	LeadType         string          `json:"leadType"`
	Provider         string          `json:"provider"`
	State            string          `json:"state"`
	ErrorKind        string          `json:"errorKind,omitempty"`
	ErrorMessage     string          `json:"errorMessage,omitempty"`
	Repaired         bool            `json:"repaired"`
	CoreTasksAdded   int             `json:"coreTasksAdded"`
	ValidationErrors []string        `json:"validationErrors"`
	Report           json.RawMessage `json:"report,omitempty"`
	StartedAt        time.Time       `json:"startedAt"`
	FinishedAt       *time.Time      `json:"finishedAt,omitempty"`
}

func viewOf(rec *storage.RunRecord) runView {
	v := runView{
		CorrelationID:    rec.CorrelationID,
		LeadEmail:        rec.LeadEmail,
		LeadType:         rec.LeadType,
		Provider:         rec.Provider,
		State:            rec.State,
		ErrorKind:        rec.ErrorKind,
		ErrorMessage:     rec.ErrorMessage,
		Repaired:         rec.Repaired,
		CoreTasksAdded:   rec.CoreTasksAdded,
		ValidationErrors: rec.ValidationErrors,
		StartedAt:        rec.StartedAt,
	}
	if v.ValidationErrors == nil {
		v.ValidationErrors = []string{}
	}
	if len(rec.Report) > 0 {
		v.Report = rec.Report
	}
	if rec.Finished() {
		t := rec.FinishedAt
		v.FinishedAt = &t
	}
	return v
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusNotFound, failure{Error: "Run archive is disabled"})
		return
	}
	id := chi.URLParam(r, "correlationId")
	rec, err := s.runs.LoadRun(r.Context(), id)
	switch {
	case errors.Is(err, storage.ErrRunNotFound):
		writeJSON(w, http.StatusNotFound, failure{Error: "Run not found", CorrelationID: id})
	case err != nil:
		s.log.ErrorContext(r.Context(), "load run failed", slog.String("correlation_id", id), slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, failure{Error: "Failed to load run", CorrelationID: id})
	default:
		writeJSON(w, http.StatusOK, success{Success: true, Data: viewOf(rec)})
	}
}
