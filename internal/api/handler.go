package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/explorer/internal/domain"
	"github.com/opensource-finance/explorer/internal/service"
)

// Handler contains HTTP handlers for the explorer API.
type Handler struct {
	svc     *service.Service
	version string
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service, version string) *Handler {
	return &Handler{
		svc:     svc,
		version: version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if err := h.svc.Ping(r.Context()); err != nil {
		slog.Warn("health check failed", "error", err)
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// Settings returns the runtime UI settings.
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Settings())
}

// Summary returns the dataset summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.DatasetSummary(r.Context())
	if err != nil {
		writeServiceError(w, "failed to build dataset summary", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListGroups returns the groups matching the query filters.
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	filters, err := parseGroupFilters(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.svc.ListGroups(r.Context(), filters)
	if err != nil {
		writeServiceError(w, "failed to list groups", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetGroup returns one group with its filtered transactions and snapshots.
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "id")
	if groupID == "" {
		writeError(w, http.StatusBadRequest, "group id is required")
		return
	}

	filters, err := parseTransactionFilters(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	detail, err := h.svc.GroupDetail(r.Context(), groupID, filters)
	if err != nil {
		writeServiceError(w, "failed to load group", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// Network returns the counterparty graph of the matching groups.
func (h *Handler) Network(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters, err := parseGroupFilters(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	highlight, err := boolParam(q, "highlight_reported", h.svc.Settings().DefaultHighlightReported)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	graph, err := h.svc.Network(r.Context(), filters, highlight)
	if err != nil {
		writeServiceError(w, "failed to build network", err)
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

// ListReports returns the report ledger.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.svc.ListReports(r.Context())
	if err != nil {
		writeServiceError(w, "failed to list reports", err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

// CreateReport appends a report to the ledger.
func (h *Handler) CreateReport(w http.ResponseWriter, r *http.Request) {
	var req domain.ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.GroupID == "" {
		writeError(w, http.StatusBadRequest, "group_id is required")
		return
	}

	created, err := h.svc.SubmitReport(r.Context(), req)
	if err != nil {
		writeServiceError(w, "failed to submit report", err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}

// ListSnapshots returns the first snapshots of the dataset.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query(), "limit", DefaultSnapshotLimit, 1, MaxSnapshotLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.svc.ListSnapshots(r.Context(), limit)
	if err != nil {
		writeServiceError(w, "failed to list snapshots", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Refresh drops every cached dataset.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Refresh(r.Context(), domain.TriggerManual); err != nil {
		writeServiceError(w, "failed to refresh caches", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps service errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error(msg, "error", err)
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
