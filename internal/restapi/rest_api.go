// Package restapi serves the sign's status API: health, the board as it is
// currently drawn, refresh history, mode switching and Prometheus metrics.
package restapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/metrosign/metrosign/internal/app"
	"github.com/metrosign/metrosign/internal/clock"
)

// RestAPI wires the handlers to the shared application.
type RestAPI struct {
	*app.Application
	rateLimiter *RateLimitMiddleware
}

// NewRestAPI builds the API. Call Shutdown to stop the rate limiter's
// cleanup goroutine.
func NewRestAPI(application *app.Application) *RestAPI {
	c := application.Clock
	if c == nil {
		c = clock.RealClock{}
		application.Clock = c
	}
	return &RestAPI{
		Application: application,
		rateLimiter: NewRateLimitMiddleware(application.Config.RateLimit, time.Second, nil, c),
	}
}

// SetRoutes registers every endpoint on mux. Rate limiting applies to the
// API routes; health and metrics stay reachable for probes and scrapers.
func (api *RestAPI) SetRoutes(mux *http.ServeMux) {
	limited := api.rateLimiter.Handler()

	mux.HandleFunc("GET /healthz", api.healthHandler)
	boardCache := UntilNextRefresh(api.nextRefresh, api.Clock)
	mux.Handle("GET /api/board.json", limited(CacheControlMiddleware(boardCache, http.HandlerFunc(api.boardHandler))))
	mux.Handle("GET /api/history.json", limited(CacheControlMiddleware(NoStore, http.HandlerFunc(api.historyHandler))))
	mux.Handle("POST /api/mode", limited(http.HandlerFunc(api.modeHandler)))

	if api.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(api.Metrics.Registry, promhttp.HandlerOpts{}))
	}
}

// Handler wraps mux with the middleware every request passes through.
func (api *RestAPI) Handler(mux *http.ServeMux) http.Handler {
	var h http.Handler = mux
	h = MetricsHandler(api.Metrics)(h)
	h = NewRequestLoggingMiddleware(api.Logger)(h)
	h = RequestIDMiddleware(h)
	return h
}

func (api *RestAPI) Shutdown() {
	if api.rateLimiter != nil {
		api.rateLimiter.Stop()
	}
}

// nextRefresh is when the board is next redrawn, or zero before the first
// refresh.
func (api *RestAPI) nextRefresh() time.Time {
	if api.Sign == nil {
		return time.Time{}
	}
	st := api.Sign.Status()
	if !st.Refreshed {
		return time.Time{}
	}
	return st.RefreshedAt.Add(api.SignConfig.RefreshInterval)
}
