package restapi

import (
	"net/http"
	"strconv"

	"github.com/metrosign/metrosign/internal/history"
	"github.com/metrosign/metrosign/internal/logging"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// HistoryEntry is the data of /api/history.json.
type HistoryEntry struct {
	Cycles []history.Entry `json:"cycles"`
}

func (api *RestAPI) historyHandler(w http.ResponseWriter, r *http.Request) {
	if api.History == nil {
		api.sendError(w, r, http.StatusServiceUnavailable, "history is not enabled")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			api.sendError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	cycles, err := api.History.Recent(r.Context(), limit)
	if err != nil {
		logging.LogError(api.logger(r), "failed to load history", err)
		api.sendError(w, r, http.StatusInternalServerError, "failed to load history")
		return
	}

	api.sendResponse(w, r, http.StatusOK, HistoryEntry{Cycles: cycles})
}
