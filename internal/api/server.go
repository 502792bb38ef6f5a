// Package api exposes the HTTP control plane for the task distribution and
// crawl service.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bluewave-labs/rockscraper-backend/internal/crawl"
	"github.com/bluewave-labs/rockscraper-backend/internal/distributor"
	"github.com/bluewave-labs/rockscraper-backend/internal/metrics"
	"github.com/bluewave-labs/rockscraper-backend/internal/process"
	"github.com/bluewave-labs/rockscraper-backend/internal/scraper"
)

// Server wires HTTP handlers to the process and crawl manager.
type Server struct {
	router       chi.Router
	process      *process.Process
	crawler      *crawl.Manager
	contentStore scraper.ContentStore
	logger       *zap.Logger

	// The crawl manager is single-flight; concurrent crawl requests
	// serialize here.
	crawlMu sync.Mutex
}

// NewServer constructs a Server with middleware and routes. The crawl manager
// and content store are optional; their routes answer 503 when absent.
func NewServer(
	proc *process.Process,
	crawler *crawl.Manager,
	contentStore scraper.ContentStore,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		process:      proc,
		crawler:      crawler,
		contentStore: contentStore,
		logger:       logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(recoverMiddleware(logger))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.createTask)
			r.Get("/pending", s.listPendingTasks)
			r.Get("/{task_id}", s.getTask)
		})
		r.Route("/workers", func(r chi.Router) {
			r.Post("/", s.registerWorker)
			r.Get("/available", s.listAvailableWorkers)
			r.Post("/{worker_id}/heartbeat", s.workerHeartbeat)
		})
		r.Post("/results", s.recordResult)
		r.Get("/metrics", s.processMetrics)
		r.Put("/strategy", s.changeStrategy)
		r.Route("/state", func(r chi.Router) {
			r.Post("/save", s.saveState)
			r.Post("/load", s.loadState)
		})
		r.Route("/crawl", func(r chi.Router) {
			r.Post("/", s.crawlURL)
			r.Post("/deep", s.crawlWithDepth)
		})
		r.Route("/content", func(r chi.Router) {
			r.Get("/search", s.searchContent)
			r.Get("/stats", s.contentStats)
			r.Get("/{task_id}", s.getContentByTask)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

type createTaskRequest struct {
	URL        string         `json:"url"`
	Priority   int            `json:"priority"`
	TimeoutMS  int64          `json:"timeout_ms"`
	Data       map[string]any `json:"data"`
	MaxRetries int            `json:"max_retries"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url required")
		return
	}
	task, err := s.process.CreateTask(
		req.URL,
		req.Priority,
		time.Duration(req.TimeoutMS)*time.Millisecond,
		req.Data,
		req.MaxRetries,
	)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusCreated, taskToJSON(task))
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "task_id")
	task, ok := s.process.Distributor().Task(taskID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	payload := map[string]any{"task": taskToJSON(task)}
	if res, ok := s.process.Result(taskID); ok {
		payload["result"] = resultToJSON(res)
	}
	writeJSON(s.logger, w, http.StatusOK, payload)
}

func (s *Server) listPendingTasks(w http.ResponseWriter, _ *http.Request) {
	pending := s.process.PendingTasks()
	out := make([]taskJSON, 0, len(pending))
	for _, t := range pending {
		out = append(out, taskToJSON(t))
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"tasks": out})
}

type registerWorkerRequest struct {
	Name         string   `json:"name"`
	IPAddress    string   `json:"ip_address"`
	Capabilities []string `json:"capabilities"`
	MaxLoad      int      `json:"max_load"`
}

func (s *Server) registerWorker(w http.ResponseWriter, r *http.Request) {
	var req registerWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name required")
		return
	}
	worker, err := s.process.CreateWorker(req.Name, req.IPAddress, req.Capabilities, req.MaxLoad)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusCreated, workerToJSON(worker))
}

func (s *Server) listAvailableWorkers(w http.ResponseWriter, _ *http.Request) {
	available := s.process.AvailableWorkers()
	out := make([]workerJSON, 0, len(available))
	for _, wk := range available {
		out = append(out, workerToJSON(wk))
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"workers": out})
}

func (s *Server) workerHeartbeat(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "worker_id")
	if !s.process.UpdateWorkerHeartbeat(workerID) {
		s.writeError(w, http.StatusNotFound, "worker not found")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"worker_id": workerID, "status": "ok"})
}

type recordResultRequest struct {
	TaskID          string         `json:"task_id"`
	WorkerID        string         `json:"worker_id"`
	Success         bool           `json:"success"`
	Data            map[string]any `json:"data"`
	Error           string         `json:"error"`
	ExecutionTimeMS int64          `json:"execution_time_ms"`
}

func (s *Server) recordResult(w http.ResponseWriter, r *http.Request) {
	var req recordResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.TaskID == "" || req.WorkerID == "" {
		s.writeError(w, http.StatusBadRequest, "task_id and worker_id required")
		return
	}
	var res scraper.TaskResult
	if req.Success {
		res = scraper.NewSuccessResult(req.TaskID, req.WorkerID, req.ExecutionTimeMS, req.Data)
	} else {
		res = scraper.NewFailureResult(req.TaskID, req.WorkerID, req.ExecutionTimeMS, req.Error)
	}
	s.process.RecordTaskResult(res)
	writeJSON(s.logger, w, http.StatusAccepted, map[string]string{"task_id": req.TaskID})
}

func (s *Server) processMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, s.process.GenerateMetrics())
}

type changeStrategyRequest struct {
	Strategy string `json:"strategy"`
}

func (s *Server) changeStrategy(w http.ResponseWriter, r *http.Request) {
	var req changeStrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	strategy, err := distributor.ParseStrategy(req.Strategy)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.process.ChangeDistributionStrategy(strategy)
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"strategy": req.Strategy})
}

type statePathRequest struct {
	Path string `json:"path"`
}

func (s *Server) saveState(w http.ResponseWriter, r *http.Request) {
	var req statePathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		s.writeError(w, http.StatusBadRequest, "path required")
		return
	}
	if err := s.process.SaveStateFile(req.Path); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"path": req.Path})
}

func (s *Server) loadState(w http.ResponseWriter, r *http.Request) {
	var req statePathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		s.writeError(w, http.StatusBadRequest, "path required")
		return
	}
	if err := s.process.LoadStateFile(req.Path); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"path": req.Path})
}

type crawlRequest struct {
	URL    string         `json:"url"`
	Params map[string]any `json:"params"`
}

func (s *Server) crawlURL(w http.ResponseWriter, r *http.Request) {
	if s.crawler == nil {
		s.writeError(w, http.StatusServiceUnavailable, "crawling is not configured")
		return
	}
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url required")
		return
	}

	s.crawlMu.Lock()
	page := s.crawler.Crawl(r.Context(), req.URL, req.Params)
	s.crawlMu.Unlock()

	status := http.StatusOK
	if !page.Success {
		status = http.StatusBadGateway
	}
	writeJSON(s.logger, w, status, page)
}

type crawlDepthRequest struct {
	StartURL string `json:"start_url"`
	MaxDepth *int   `json:"max_depth"`
}

func (s *Server) crawlWithDepth(w http.ResponseWriter, r *http.Request) {
	if s.crawler == nil {
		s.writeError(w, http.StatusServiceUnavailable, "crawling is not configured")
		return
	}
	var req crawlDepthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StartURL == "" {
		s.writeError(w, http.StatusBadRequest, "start_url required")
		return
	}
	maxDepth := -1
	if req.MaxDepth != nil {
		maxDepth = *req.MaxDepth
	}

	s.crawlMu.Lock()
	result := s.crawler.CrawlWithDepth(r.Context(), req.StartURL, maxDepth)
	s.crawlMu.Unlock()

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	writeJSON(s.logger, w, status, result)
}

func (s *Server) searchContent(w http.ResponseWriter, r *http.Request) {
	if s.contentStore == nil {
		s.writeError(w, http.StatusServiceUnavailable, "content store is not configured")
		return
	}
	keyword := r.URL.Query().Get("q")
	if keyword == "" {
		s.writeError(w, http.StatusBadRequest, "q required")
		return
	}
	limit := intQuery(r, "limit", 10)
	offset := intQuery(r, "offset", 0)

	records, err := s.contentStore.SearchContent(r.Context(), keyword, limit, offset)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"results": records})
}

func (s *Server) contentStats(w http.ResponseWriter, r *http.Request) {
	if s.contentStore == nil {
		s.writeError(w, http.StatusServiceUnavailable, "content store is not configured")
		return
	}
	stats, err := s.contentStore.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, stats)
}

func (s *Server) getContentByTask(w http.ResponseWriter, r *http.Request) {
	if s.contentStore == nil {
		s.writeError(w, http.StatusServiceUnavailable, "content store is not configured")
		return
	}
	taskID := chi.URLParam(r, "task_id")
	rec, err := s.contentStore.GetContentByTask(r.Context(), taskID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "content not found")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, rec)
}

func intQuery(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(s.logger, w, status, map[string]string{"error": msg})
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}
