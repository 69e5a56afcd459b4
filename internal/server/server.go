package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ajroetker/go-highway/hwy/contrib/workerpool"

	"github.com/cwbudde/nlmdenoise/internal/imageio"
	"github.com/cwbudde/nlmdenoise/internal/nlm"
	"github.com/cwbudde/nlmdenoise/internal/store"
)

// Server is the HTTP job server
type Server struct {
	jobManager *JobManager
	store      store.Store
	pool       *workerpool.Pool
	addr       string
	server     *http.Server

	// baseCtx is cancelled on shutdown and parents every job context
	baseCtx    context.Context
	cancelJobs context.CancelFunc
	jobs       sync.WaitGroup
}

// NewServer creates a server. resultStore may be nil to keep results in memory only.
// workers sizes the pool shared by all jobs (<= 0 uses GOMAXPROCS).
func NewServer(addr string, resultStore store.Store, workers int) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		jobManager: NewJobManager(),
		store:      resultStore,
		pool:       workerpool.New(workers),
		addr:       addr,
		baseCtx:    ctx,
		cancelJobs: cancel,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start serves HTTP until Shutdown is called
func (s *Server) Start() error {
	slog.Info("Starting HTTP server", "addr", s.addr, "workers", s.pool.NumWorkers())
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, cancels running jobs and waits for
// them to finish before releasing the worker pool
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")

	err := s.server.Shutdown(ctx)

	if running := s.jobManager.GetRunningJobs(); len(running) > 0 {
		slog.Info("Cancelling running jobs", "count", len(running))
	}
	s.cancelJobs()
	s.jobs.Wait()
	s.pool.Close()
	return err
}

// StartJob registers a job and runs it in the background
func (s *Server) StartJob(config JobConfig) *Job {
	job := s.jobManager.CreateJob(config)

	ctx, cancel := context.WithCancel(s.baseCtx)
	s.jobManager.UpdateJob(job.ID, func(j *Job) {
		j.cancel = cancel
	})

	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		defer cancel()
		if err := runJob(ctx, s.jobManager, s.store, s.pool, job.ID); err != nil {
			slog.Debug("Job ended with error", "job_id", job.ID, "error", err)
		}
	}()

	return job
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

// handleJobsWithID routes /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}
	if len(parts) > 2 {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	jobID := parts[0]
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	if action == "cancel" {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleCancelJob(w, r, jobID)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch action {
	case "", "status":
		s.handleGetJobStatus(w, r, jobID)
	case "result.png":
		s.handleGetResultImage(w, r, jobID)
	case "preview.png":
		s.handleGetPreview(w, r, jobID)
	case "noise.png":
		s.handleGetNoiseImage(w, r, jobID)
	case "stream":
		s.handleJobStream(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var config JobConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	if config.InputPath == "" {
		http.Error(w, "inputPath is required", http.StatusBadRequest)
		return
	}
	if _, err := imageio.FormatFromPath(config.InputPath); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	applyDefaults(&config)

	params := config.Params()
	if config.AutoFilter {
		// Replaced once the noise is measured
		params.FilterParam = 1
	}
	if err := params.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := s.StartJob(config)
	writeJSON(w, http.StatusCreated, job)
}

// applyDefaults fills zero fields with the CLI defaults.
// Explicit zero radii cannot be expressed; use the CLI for those.
func applyDefaults(config *JobConfig) {
	defaults := nlm.DefaultParams()
	if config.SampleRadius <= 0 {
		config.SampleRadius = defaults.SampleRadius
	}
	if config.SearchRadius <= 0 {
		config.SearchRadius = defaults.SearchRadius
	}
	if config.FilterParam == 0 && !config.AutoFilter {
		config.FilterParam = defaults.FilterParam
	}
	if config.Border == "" {
		config.Border = string(defaults.Border)
	}
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// jobStatus is the status payload of one job
type jobStatus struct {
	*Job
	Progress float64 `json:"progress"`
	Elapsed  float64 `json:"elapsed"`
}

// handleGetJobStatus handles GET /api/v1/jobs/:id[/status].
// Jobs from earlier server runs are answered from the store.
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists && s.store != nil {
		result, err := s.store.LoadResult(jobID)
		if err == nil {
			job, exists = jobFromResult(result), true
		} else if !errors.Is(err, store.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, jobStatus{
		Job:      job,
		Progress: job.Progress(),
		Elapsed:  job.Elapsed().Seconds(),
	})
}

// jobFromResult rebuilds the status view of a job persisted by an earlier run
func jobFromResult(r *store.Result) *Job {
	end := r.Timestamp
	return &Job{
		ID:             r.JobID,
		State:          JobState(r.State),
		Config:         r.Config,
		Width:          r.Width,
		Height:         r.Height,
		RowsDone:       r.RowsDone,
		FilterParam:    r.FilterParam,
		EstimatedNoise: r.EstimatedNoise,
		Backend:        r.Backend,
		StartTime:      end.Add(-r.Elapsed),
		EndTime:        &end,
		Error:          r.Error,
	}
}

// handleCancelJob handles POST /api/v1/jobs/:id/cancel
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	cancelled, err := s.jobManager.CancelJob(jobID)
	if err != nil {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if !cancelled {
		http.Error(w, "Job already finished", http.StatusConflict)
		return
	}

	slog.Info("Cancellation requested", "job_id", jobID)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": jobID, "status": "cancelling"})
}

// loadOutput returns the output of a finished job from memory or the store
func (s *Server) loadOutput(jobID string) (*nlm.Image, int, error) {
	if job, exists := s.jobManager.GetJob(jobID); exists {
		_, output, _ := s.jobManager.Images(jobID)
		if job.State != StateCompleted || output == nil {
			return nil, http.StatusNotFound, fmt.Errorf("no result yet")
		}
		return output, http.StatusOK, nil
	}

	if s.store != nil {
		output, err := s.store.LoadOutput(jobID)
		if err == nil {
			return output, http.StatusOK, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, http.StatusInternalServerError, err
		}
	}
	return nil, http.StatusNotFound, fmt.Errorf("job not found")
}

// handleGetResultImage handles GET /api/v1/jobs/:id/result.png
func (s *Server) handleGetResultImage(w http.ResponseWriter, r *http.Request, jobID string) {
	output, status, err := s.loadOutput(jobID)
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}
	writePNG(w, imageio.ToNRGBA(output))
}

// handleGetPreview handles GET /api/v1/jobs/:id/preview.png?width=N
func (s *Server) handleGetPreview(w http.ResponseWriter, r *http.Request, jobID string) {
	width, ok := parsePreviewWidth(r)
	if !ok {
		http.Error(w, "width must be a positive integer", http.StatusBadRequest)
		return
	}

	output, status, err := s.loadOutput(jobID)
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}
	writePNG(w, previewImage(output, width))
}

// handleGetNoiseImage handles GET /api/v1/jobs/:id/noise.png
func (s *Server) handleGetNoiseImage(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	input, output, _ := s.jobManager.Images(jobID)
	if job.State != StateCompleted || input == nil || output == nil {
		http.Error(w, "No result yet", http.StatusNotFound)
		return
	}

	diff, err := methodNoiseImage(input, output)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writePNG(w, diff)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
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
