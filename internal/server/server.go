// Package server exposes the spiral analysis over HTTP: synchronous
// analyze and preview endpoints plus background jobs with SSE progress.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwbudde/goldenspiral/internal/analysis"
	"github.com/cwbudde/goldenspiral/internal/report"
	"github.com/cwbudde/goldenspiral/internal/store"
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	store      store.Store
	defaults   analysis.Options
	addr       string
	server     *http.Server

	// ctx outlives requests and is cancelled on Shutdown so running jobs stop.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a new HTTP server. resultStore may be nil, in which
// case finished jobs live only in memory.
func NewServer(addr string, resultStore store.Store, defaults analysis.Options) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		jobManager: NewJobManager(),
		store:      resultStore,
		defaults:   defaults,
		addr:       addr,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/analyze", s.handleAnalyze)
	mux.HandleFunc("/api/v1/preview", s.handlePreview)
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)
	mux.HandleFunc("/api/v1/results", s.handleResults)
	mux.HandleFunc("/api/v1/results/", s.handleResultWithID)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	s.cancel()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// handleAnalyze handles POST /api/v1/analyze (multipart: file, k, b_weight)
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	up, err := parseUpload(r, s.defaults.BWeight)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	opts := s.defaults
	opts.K = up.K
	opts.BWeight = up.BWeight

	rep, err := analysis.Analyze(up.Image, opts)
	if err != nil {
		slog.Warn("Analysis failed", "error", err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	var buf bytes.Buffer
	if err := rep.Overlay().WritePNG(&buf); err != nil {
		http.Error(w, fmt.Sprintf("Failed to render overlay: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"score":        rep.Rating,
		"b_value":      rep.B,
		"golden_b":     rep.GoldenB,
		"k":            rep.K,
		"objects":      len(rep.Objects),
		"image_base64": pngDataURI(buf.Bytes()),
	})
}

// handlePreview handles POST /api/v1/preview (multipart: file, k) and
// returns the clustering drawn over the image as PNG.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	up, err := parseUpload(r, s.defaults.BWeight)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	res, err := analysis.Preview(up.Image, up.K, s.defaults)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	var buf bytes.Buffer
	if err := res.Overlay().WritePNG(&buf); err != nil {
		http.Error(w, fmt.Sprintf("Failed to render preview: %v", err), http.StatusInternalServerError)
		return
	}
	writeBytes(w, "image/png", buf.Bytes())
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]
	if len(parts) == 1 || parts[1] == "status" {
		s.handleGetJobStatus(w, r, jobID)
		return
	}

	switch parts[1] {
	case "stream":
		s.handleJobStream(w, r, jobID)
	case "trace.html":
		s.handleGetTrace(w, r, jobID)
	case store.ArtifactOverlay, store.ArtifactElbow, store.ArtifactElbowChart:
		s.handleGetArtifact(w, r, jobID, parts[1])
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	config := DefaultJobConfig()
	config.BWeight = s.defaults.BWeight
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	if _, err := analysisOptions(config, s.defaults); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	job := s.jobManager.CreateJob(config)
	go runJob(s.ctx, s.jobManager, s.store, s.defaults, job.ID)

	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	gps := float64(0)
	if elapsed.Seconds() > 0 {
		gps = float64(job.Generation) / elapsed.Seconds()
	}

	response := map[string]any{
		"id":                   job.ID,
		"state":                job.State,
		"config":               job.Config,
		"generation":           job.Generation,
		"bestScore":            job.BestScore,
		"objects":              job.Objects,
		"k":                    job.K,
		"rating":               job.Rating,
		"b":                    job.B,
		"elapsed":              elapsed.Seconds(),
		"generationsPerSecond": gps,
		"startTime":            job.StartTime,
		"endTime":              job.EndTime,
		"error":                job.Error,
	}
	if job.report != nil {
		response["params"] = job.report.Fit.Params
		response["centers"] = job.report.Centers
	}

	writeJSON(w, http.StatusOK, response)
}

// handleGetArtifact serves a rendered image or chart of a finished job,
// rendering from memory when the job is still known and falling back to
// the store otherwise.
func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request, jobID, name string) {
	contentType := "image/png"
	if strings.HasSuffix(name, ".html") {
		contentType = "text/html; charset=utf-8"
	}

	if job, exists := s.jobManager.GetJob(jobID); exists {
		if job.report == nil {
			http.Error(w, "No results yet", http.StatusNotFound)
			return
		}
		artifacts, err := renderArtifacts(job.report)
		data, ok := artifacts[name]
		if !ok {
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			http.Error(w, "Artifact not available", http.StatusNotFound)
			return
		}
		writeBytes(w, contentType, data)
		return
	}

	if s.store == nil {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	data, err := s.store.LoadArtifact(jobID, name)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeBytes(w, contentType, data)
}

// handleGetTrace handles GET /api/v1/jobs/:id/trace.html: the convergence
// chart of a running or finished job.
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request, jobID string) {
	var history []float64
	if job, exists := s.jobManager.GetJob(jobID); exists {
		history = job.history
		if job.report != nil {
			history = job.report.Fit.History
		}
	} else if ts, ok := s.store.(tracedStore); ok {
		entries, err := store.ReadTrace(ts.BaseDir(), jobID)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		history = store.Scores(entries)
	} else {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	if err := report.ConvergenceChart(&buf, "Spiral search "+jobID, history); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeBytes(w, "text/html; charset=utf-8", buf.Bytes())
}

// handleResults handles GET /api/v1/results
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusOK, []store.RecordInfo{})
		return
	}

	infos, err := s.store.ListRecords()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleResultWithID handles GET and DELETE /api/v1/results/:id
func (s *Server) handleResultWithID(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimPrefix(r.URL.Path, "/api/v1/results/")
	if jobID == "" || strings.Contains(jobID, "/") {
		http.Error(w, "Result ID required", http.StatusBadRequest)
		return
	}
	if s.store == nil {
		http.Error(w, "Result not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		record, err := s.store.LoadRecord(jobID)
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, record)
	case http.MethodDelete:
		if err := s.store.DeleteRecord(jobID); err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// IsServerClosed reports whether err only signals a graceful shutdown.
func IsServerClosed(err error) bool {
	return errors.Is(err, http.ErrServerClosed)
}
