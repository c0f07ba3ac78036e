package restapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/metrosign/metrosign/internal/logging"
)

// Response is the envelope of every JSON API response.
type Response struct {
	Code        int    `json:"code"`
	CurrentTime int64  `json:"currentTime"`
	Text        string `json:"text"`
	Data        any    `json:"data,omitempty"`
}

func (api *RestAPI) newResponse(code int, text string, data any) Response {
	return Response{
		Code:        code,
		CurrentTime: api.Clock.NowUnixMilli(),
		Text:        text,
		Data:        data,
	}
}

func (api *RestAPI) sendResponse(w http.ResponseWriter, r *http.Request, code int, data any) {
	api.writeJSON(w, r, code, api.newResponse(code, http.StatusText(code), data))
}

func (api *RestAPI) sendError(w http.ResponseWriter, r *http.Request, code int, message string) {
	api.writeJSON(w, r, code, api.newResponse(code, message, nil))
}

func (api *RestAPI) sendUnauthorized(w http.ResponseWriter, r *http.Request) {
	api.sendError(w, r, http.StatusUnauthorized, "permission denied")
}

func (api *RestAPI) writeJSON(w http.ResponseWriter, r *http.Request, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.LogError(api.logger(r), "failed to encode response", err,
			slog.String("path", r.URL.Path))
	}
}

func (api *RestAPI) logger(r *http.Request) *slog.Logger {
	if api.Logger != nil {
		return api.Logger
	}
	return logging.FromContext(r.Context())
}
