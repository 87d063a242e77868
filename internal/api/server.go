// Package api exposes job submission and status over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/valpere/gameloc/internal"
	"github.com/valpere/gameloc/internal/orchestrator"
	"github.com/valpere/gameloc/internal/store"
	"github.com/valpere/gameloc/internal/tabular"
	"github.com/valpere/gameloc/internal/tagprotect"
)

const defaultListLimit = 50

// JobService is the part of the orchestrator the API needs.
type JobService interface {
	Submit(ctx context.Context, req orchestrator.Request) (*orchestrator.Handle, error)
	Get(ctx context.Context, id string) (*internal.BatchJob, error)
	List(ctx context.Context, limit int) ([]internal.BatchJob, error)
}

type Server struct {
	jobs    JobService
	log     zerolog.Logger
	dataDir string
}

type Option func(*Server)

// WithDataDir confines file_path and output_path to dir. Without it file
// submissions are refused.
func WithDataDir(dir string) Option {
	return func(s *Server) { s.dataDir = dir }
}

func NewServer(jobs JobService, log zerolog.Logger, opts ...Option) *Server {
	s := &Server{jobs: jobs, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/jobs", s.handleSubmit)
		r.Get("/jobs", s.handleList)
		r.Get("/jobs/{id}", s.handleGet)
		r.Get("/patterns", s.handlePatterns)
		r.Post("/patterns/validate", s.handleValidatePatterns)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

// SubmitRequest is the body of POST /api/v1/jobs. Either Lines or FilePath
// must be set; with FilePath the lines come from SourceColumn of a CSV sheet
// and the translations are written back into OutputColumn of a copy.
// FilePath and OutputPath are relative to the server data directory.
type SubmitRequest struct {
	Lines          []string             `json:"lines,omitempty"`
	FilePath       string               `json:"file_path,omitempty"`
	SourceColumn   string               `json:"source_column,omitempty"`
	OutputColumn   string               `json:"output_column,omitempty"`
	OutputPath     string               `json:"output_path,omitempty"`
	SourceLang     string               `json:"source_lang"`
	TargetLang     string               `json:"target_lang"`
	Model          string               `json:"model,omitempty"`
	ChunkSize      int                  `json:"chunk_size,omitempty"`
	CustomPatterns []tagprotect.Pattern `json:"custom_patterns,omitempty"`
}

type SubmitResponse struct {
	JobID   string             `json:"job_id"`
	Status  internal.JobStatus `json:"status"`
	Message string             `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
	JobID string `json:"job_id,omitempty"`
}

// filePaths resolves the sheet and its output inside the data directory.
func (s *Server) filePaths(file, output string) (string, string, error) {
	if s.dataDir == "" {
		return "", "", errors.New("file submissions are disabled: no data directory configured")
	}
	src, err := tabular.Resolve(s.dataDir, file)
	if err != nil {
		return "", "", fmt.Errorf("file_path: %w", err)
	}
	out := tabular.OutputPath(src)
	if output != "" {
		if out, err = tabular.Resolve(s.dataDir, output); err != nil {
			return "", "", fmt.Errorf("output_path: %w", err)
		}
	}
	if out == src {
		return "", "", errors.New("output_path must differ from file_path")
	}
	return src, out, nil
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}

	req := orchestrator.Request{
		Lines:          body.Lines,
		SourceLang:     body.SourceLang,
		TargetLang:     body.TargetLang,
		Model:          body.Model,
		ChunkSize:      body.ChunkSize,
		CustomPatterns: body.CustomPatterns,
	}
	if body.FilePath != "" {
		if len(body.Lines) > 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "lines and file_path are mutually exclusive"})
			return
		}
		src, out, err := s.filePaths(body.FilePath, body.OutputPath)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		lines, err := tabular.ReadColumn(src, body.SourceColumn)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		req.Lines = lines
		req.Output = &tabular.Writer{Source: src, OutputColumn: body.OutputColumn, Output: out}
	}

	h, err := s.jobs.Submit(r.Context(), req)
	switch {
	case errors.Is(err, internal.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	case err != nil && h != nil:
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), JobID: h.ID()})
		return
	case err != nil:
		s.log.Error().Err(err).Msg("job submission failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, SubmitResponse{
		JobID:   h.ID(),
		Status:  internal.StatusProcessing,
		Message: "Translation job submitted.",
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if r.URL.Query().Get("translations") == "false" {
		job.Translations = nil
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	jobs, err := s.jobs.List(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if jobs == nil {
		jobs = []internal.BatchJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": jobs})
}

// PatternInfo describes one built-in tag pattern.
type PatternInfo struct {
	tagprotect.Pattern
	Description string `json:"description"`
}

func (s *Server) handlePatterns(w http.ResponseWriter, _ *http.Request) {
	defaults := tagprotect.DefaultPatterns()
	items := make([]PatternInfo, len(defaults))
	for i, p := range defaults {
		items[i] = PatternInfo{Pattern: p, Description: tagprotect.Describe(p.Name)}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleValidatePatterns(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Patterns []tagprotect.Pattern `json:"patterns"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	invalid := tagprotect.ValidatePatterns(body.Patterns)
	if invalid == nil {
		invalid = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": len(invalid) == 0, "invalid": invalid})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
