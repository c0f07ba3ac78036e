// Package metrics provides Prometheus metrics for the metrosign application.
package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Fetch attempt outcomes used as the "outcome" label.
const (
	OutcomeSuccess   = "success"
	OutcomeRetryable = "retryable"
	OutcomeFatal     = "fatal"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	// Prediction pipeline metrics
	FetchAttemptsTotal    *prometheus.CounterVec
	APIUnavailableTotal   *prometheus.CounterVec
	FetchDuration         *prometheus.HistogramVec
	RefreshTotal          *prometheus.CounterVec
	VisibleSlots          prometheus.Gauge
	ModeSwitchesTotal     prometheus.Counter
	LastSuccessfulRefresh prometheus.Gauge

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// History database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBConnectionsIdle  prometheus.Gauge
	DBWaitSecondsTotal prometheus.Counter

	// logger for error reporting
	logger *slog.Logger

	// collectorStarted prevents spawning multiple collector goroutines
	collectorStarted atomic.Bool

	// cancel stops the DB stats collector goroutine
	cancel context.CancelFunc

	// wg tracks the DB stats collector goroutine for graceful shutdown
	wg sync.WaitGroup
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for error reporting.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	fetchAttemptsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrosign_fetch_attempts_total",
			Help: "Prediction API fetch attempts by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	apiUnavailableTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrosign_api_unavailable_total",
			Help: "Fetches that exhausted their retry budget",
		},
		[]string{"endpoint"},
	)

	fetchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metrosign_fetch_duration_seconds",
			Help:    "Duration of a complete fetch call including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	refreshTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrosign_refresh_total",
			Help: "Board refresh cycles by mode and whether data was observed",
		},
		[]string{"mode", "observed"},
	)

	visibleSlots := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "metrosign_visible_slots",
		Help: "Number of display rows currently visible",
	})

	modeSwitchesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "metrosign_mode_switches_total",
		Help: "Number of mode transitions",
	})

	lastSuccessfulRefresh := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "metrosign_last_successful_refresh_timestamp_seconds",
		Help: "Unix time of the last refresh that observed prediction data",
	})

	httpRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrosign_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metrosign_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	dbConnectionsOpen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "metrosign_db_connections_open",
		Help: "Number of open history database connections",
	})

	dbConnectionsInUse := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "metrosign_db_connections_in_use",
		Help: "Number of history database connections currently in use",
	})

	dbConnectionsIdle := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "metrosign_db_connections_idle",
		Help: "Number of idle history database connections",
	})

	dbWaitSecondsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "metrosign_db_wait_seconds_total",
		Help: "Total time blocked waiting for a history database connection",
	})

	// Register all metrics with the custom registry
	registry.MustRegister(
		fetchAttemptsTotal,
		apiUnavailableTotal,
		fetchDuration,
		refreshTotal,
		visibleSlots,
		modeSwitchesTotal,
		lastSuccessfulRefresh,
		httpRequestsTotal,
		httpRequestDuration,
		dbConnectionsOpen,
		dbConnectionsInUse,
		dbConnectionsIdle,
		dbWaitSecondsTotal,
	)

	return &Metrics{
		Registry:              registry,
		FetchAttemptsTotal:    fetchAttemptsTotal,
		APIUnavailableTotal:   apiUnavailableTotal,
		FetchDuration:         fetchDuration,
		RefreshTotal:          refreshTotal,
		VisibleSlots:          visibleSlots,
		ModeSwitchesTotal:     modeSwitchesTotal,
		LastSuccessfulRefresh: lastSuccessfulRefresh,
		HTTPRequestsTotal:     httpRequestsTotal,
		HTTPRequestDuration:   httpRequestDuration,
		DBConnectionsOpen:     dbConnectionsOpen,
		DBConnectionsInUse:    dbConnectionsInUse,
		DBConnectionsIdle:     dbConnectionsIdle,
		DBWaitSecondsTotal:    dbWaitSecondsTotal,
		logger:                logger,
	}
}

// ObserveAttempt counts one fetch attempt. Safe on a nil receiver.
func (m *Metrics) ObserveAttempt(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.FetchAttemptsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// ObserveFetch records the duration of a fetch call and whether it gave up.
// Safe on a nil receiver.
func (m *Metrics) ObserveFetch(endpoint string, d time.Duration, unavailable bool) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(endpoint).Observe(d.Seconds())
	if unavailable {
		m.APIUnavailableTotal.WithLabelValues(endpoint).Inc()
	}
}

// ObserveRefresh records a board refresh. Safe on a nil receiver.
func (m *Metrics) ObserveRefresh(mode string, observed bool, visible int, at time.Time) {
	if m == nil {
		return
	}
	label := "false"
	if observed {
		label = "true"
		m.LastSuccessfulRefresh.Set(float64(at.Unix()))
	}
	m.RefreshTotal.WithLabelValues(mode, label).Inc()
	m.VisibleSlots.Set(float64(visible))
}

// ObserveModeSwitch counts a mode transition. Safe on a nil receiver.
func (m *Metrics) ObserveModeSwitch() {
	if m == nil {
		return
	}
	m.ModeSwitchesTotal.Inc()
}

// StartDBStatsCollector starts a goroutine that periodically collects database
// connection pool statistics and updates the corresponding metrics.
// The interval specifies how often to collect stats.
// This method is idempotent - calling it multiple times has no effect after the first call.
// Call Shutdown() to stop the collector.
func (m *Metrics) StartDBStatsCollector(db *sql.DB, interval time.Duration) {
	if db == nil {
		return
	}

	// Prevent spawning multiple collectors
	if !m.collectorStarted.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	var lastWaitDuration time.Duration

	// Add to WaitGroup BEFORE exposing cancel to avoid race with Shutdown
	m.wg.Add(1)
	m.cancel = cancel

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				if m.logger != nil {
					m.logger.Error("panic in DB stats collector", "error", r)
				}
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats := db.Stats()
				m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
				m.DBConnectionsInUse.Set(float64(stats.InUse))
				m.DBConnectionsIdle.Set(float64(stats.Idle))

				waitDelta := stats.WaitDuration - lastWaitDuration
				if waitDelta > 0 {
					m.DBWaitSecondsTotal.Add(waitDelta.Seconds())
				}
				lastWaitDuration = stats.WaitDuration

			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the DB stats collector goroutine and waits for it to exit.
// This method is safe to call multiple times.
func (m *Metrics) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
