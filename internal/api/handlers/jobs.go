package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/gridflow/internal/ingest"
	"github.com/wonny/gridflow/internal/orchestrator"
	"github.com/wonny/gridflow/pkg/logger"
)

const jobResultLimit = 50

// JobsHandler triggers collection jobs and serves their results.
type JobsHandler struct {
	orch   *orchestrator.Orchestrator
	logger *logger.Logger

	mu      sync.RWMutex
	results map[string]*orchestrator.Result
	order   []string // job ids, oldest first
	running map[string]bool
}

// NewJobsHandler creates a jobs handler.
func NewJobsHandler(orch *orchestrator.Orchestrator, log *logger.Logger) *JobsHandler {
	return &JobsHandler{
		orch:    orch,
		logger:  log,
		results: make(map[string]*orchestrator.Result),
		running: make(map[string]bool),
	}
}

// CollectRequest describes a collection trigger.
type CollectRequest struct {
	Source   string `json:"source"`
	DataType string `json:"data_type"`
	From     string `json:"from"` // YYYY-MM-DD
	To       string `json:"to"`   // YYYY-MM-DD, defaults to From
}

// Trigger starts a collection job asynchronously.
// POST /api/jobs
func (h *JobsHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req CollectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	collector, ok := h.orch.Collector(req.Source)
	if !ok {
		respondError(w, http.StatusBadRequest, "Unknown source: "+req.Source)
		return
	}
	if !contains(collector.DataTypes(), req.DataType) {
		respondError(w, http.StatusBadRequest, "Unknown data type for source: "+req.DataType)
		return
	}

	from, err := time.Parse("2006-01-02", req.From)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid 'from' date format (expected YYYY-MM-DD)")
		return
	}
	to := from
	if req.To != "" {
		to, err = time.Parse("2006-01-02", req.To)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid 'to' date format (expected YYYY-MM-DD)")
			return
		}
	}

	dateRange, err := ingest.NewDateRange(from, to)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := orchestrator.NewJob(req.Source, req.DataType, dateRange)

	h.mu.Lock()
	h.running[job.ID] = true
	h.mu.Unlock()

	h.logger.WithFields(map[string]interface{}{
		"job_id":    job.ID,
		"source":    req.Source,
		"data_type": req.DataType,
	}).Info("Collection triggered via API")

	go func() {
		result := h.orch.Run(context.Background(), job)
		h.record(result)
	}()

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": "accepted",
	})
}

// List returns recent job results, newest first.
// GET /api/jobs
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	results := make([]*orchestrator.Result, 0, len(h.order))
	for i := len(h.order) - 1; i >= 0; i-- {
		results = append(results, h.results[h.order[i]])
	}
	h.mu.RUnlock()

	respondJSON(w, http.StatusOK, results)
}

// Get returns one job's result, or its running state.
// GET /api/jobs/{id}
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	h.mu.RLock()
	result, done := h.results[id]
	running := h.running[id]
	h.mu.RUnlock()

	switch {
	case done:
		respondJSON(w, http.StatusOK, result)
	case running:
		respondJSON(w, http.StatusOK, map[string]string{
			"job_id": id,
			"status": "running",
		})
	default:
		respondError(w, http.StatusNotFound, "Job not found: "+id)
	}
}

// record stores a finished result, evicting the oldest past the limit.
func (h *JobsHandler) record(result *orchestrator.Result) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.running, result.JobID)
	h.results[result.JobID] = result
	h.order = append(h.order, result.JobID)

	for len(h.order) > jobResultLimit {
		delete(h.results, h.order[0])
		h.order = h.order[1:]
	}
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
