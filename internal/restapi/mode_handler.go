package restapi

import (
	"log/slog"
	"net/http"

	"github.com/metrosign/metrosign/internal/logging"
)

// ModeEntry is the data of POST /api/mode.
type ModeEntry struct {
	Current string `json:"current"`
	Queued  bool   `json:"queued"`
}

// modeHandler queues a switch to the next mode, the same as a button press.
// The switch happens after any refresh in flight; a second request while one
// is pending is accepted but not queued.
func (api *RestAPI) modeHandler(w http.ResponseWriter, r *http.Request) {
	if api.RequestHasInvalidAPIKey(r) {
		api.sendUnauthorized(w, r)
		return
	}
	if api.Sign == nil {
		api.sendError(w, r, http.StatusServiceUnavailable, "sign not initialized")
		return
	}

	queued := api.Sign.RequestSwitch()
	logging.LogOperation(api.logger(r), "mode_switch_requested",
		slog.Bool("queued", queued),
		slog.String("request_id", GetRequestID(r.Context())))

	api.sendResponse(w, r, http.StatusAccepted, ModeEntry{
		Current: api.Sign.Mode().Name,
		Queued:  queued,
	})
}
