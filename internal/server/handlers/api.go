package handlers

import (
	"net/http"
	"strconv"
	"time"

	"git.home.luguber.info/inful/ordserve/internal/history"
	"git.home.luguber.info/inful/ordserve/internal/server/responses"
	"git.home.luguber.info/inful/ordserve/internal/status"
)

// APIHandlers serves the operational endpoints outside the ORD surface.
type APIHandlers struct {
	Status  *status.Provider
	History *history.Store
	Version string
}

// HandleStatus serves GET /api/v1/status.
func (h *APIHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		responses.WriteError(w, http.StatusMethodNotAllowed,
			responses.CodeValidation, "method not allowed", r.Method)
		return
	}
	responses.WriteJSON(w, http.StatusOK, h.Status.Snapshot())
}

// HandleUpdates serves GET /api/v1/updates: the most recent update runs.
func (h *APIHandlers) HandleUpdates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		responses.WriteError(w, http.StatusMethodNotAllowed,
			responses.CodeValidation, "method not allowed", r.Method)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			responses.WriteError(w, http.StatusBadRequest,
				responses.CodeValidation, "limit must be an integer between 1 and 1000", "limit")
			return
		}
		limit = n
	}

	records := []history.Record{}
	if h.History != nil {
		recs, err := h.History.Recent(r.Context(), limit)
		if err != nil {
			responses.WriteError(w, http.StatusInternalServerError,
				responses.CodeInternal, "failed to read update history", "")
			return
		}
		if recs != nil {
			records = recs
		}
	}
	responses.WriteJSON(w, http.StatusOK, map[string]any{"updates": records})
}

// HandleHealth serves GET /healthz. Liveness only: it answers regardless of
// update state.
func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	responses.WriteJSON(w, http.StatusOK, responses.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   h.Version,
	})
}
