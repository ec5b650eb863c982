package handlers

import (
	"net/http"
	"strconv"

	"github.com/wonny/gridflow/internal/store"
	"github.com/wonny/gridflow/internal/validate"
	"github.com/wonny/gridflow/pkg/logger"
)

// PartitionsHandler serves partition listings from the store.
type PartitionsHandler struct {
	store  *store.Store
	logger *logger.Logger
}

// NewPartitionsHandler creates a partitions handler.
func NewPartitionsHandler(st *store.Store, log *logger.Logger) *PartitionsHandler {
	return &PartitionsHandler{store: st, logger: log}
}

// List returns every partition with its versions and latest manifest.
// GET /api/partitions
func (h *PartitionsHandler) List(w http.ResponseWriter, r *http.Request) {
	infos, err := h.store.List(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Partition listing failed")
		respondError(w, http.StatusInternalServerError, "Failed to list partitions")
		return
	}

	respondJSON(w, http.StatusOK, infos)
}

// ReportsHandler serves archived quality reports. Nil repository means the
// archive database is not configured.
type ReportsHandler struct {
	repo   *validate.Repository
	rules  *validate.Registry
	logger *logger.Logger
}

// NewReportsHandler creates a reports handler.
func NewReportsHandler(repo *validate.Repository, rules *validate.Registry, log *logger.Logger) *ReportsHandler {
	return &ReportsHandler{repo: repo, rules: rules, logger: log}
}

// Latest returns recent quality reports for a dataset.
// GET /api/reports?source=pjm&data_type=rt_hrl_lmps&limit=10
func (h *ReportsHandler) Latest(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		respondError(w, http.StatusServiceUnavailable, "Report archive is not configured")
		return
	}

	source := r.URL.Query().Get("source")
	dataType := r.URL.Query().Get("data_type")
	if source == "" || dataType == "" {
		respondError(w, http.StatusBadRequest, "Missing 'source' or 'data_type' query parameter")
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "Invalid 'limit' query parameter")
			return
		}
		limit = parsed
	}

	reports, err := h.repo.Latest(r.Context(), source, dataType, limit)
	if err != nil {
		h.logger.WithError(err).Error("Report lookup failed")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve reports")
		return
	}

	respondJSON(w, http.StatusOK, reports)
}

// Rules returns the loaded rule set keys.
// GET /api/rules
func (h *ReportsHandler) Rules(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"rule_sets": h.rules.Keys(),
	})
}
