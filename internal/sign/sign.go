// Package sign runs the prediction sign: it owns the list of modes, fetches
// predictions for the current one on a fixed interval and hands the result
// to the board. A mode switch is requested through a single-slot channel and
// acted on between refreshes, never during one.
package sign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/metrosign/metrosign/internal/board"
	"github.com/metrosign/metrosign/internal/clock"
	"github.com/metrosign/metrosign/internal/history"
	"github.com/metrosign/metrosign/internal/logging"
	"github.com/metrosign/metrosign/internal/metrics"
	"github.com/metrosign/metrosign/internal/predictions"
)

// DefaultRefreshInterval is the pause between refreshes.
const DefaultRefreshInterval = 5 * time.Second

// Mode is one prediction source the sign can show.
type Mode struct {
	Name     string
	Endpoint predictions.Endpoint
	// Filter is matched against the endpoint's group field; "*" keeps all.
	Filter string
}

// Fetcher is the prediction source used by the sign.
type Fetcher interface {
	Fetch(ctx context.Context, ep predictions.Endpoint, filter string) ([]predictions.Record, error)
}

// Recorder persists refresh cycles.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// Status describes the most recent refresh.
type Status struct {
	Mode        string    `json:"mode"`
	Refreshed   bool      `json:"refreshed"`
	Observed    bool      `json:"observed"`
	Records     int       `json:"records"`
	Visible     int       `json:"visible"`
	Error       string    `json:"error,omitempty"`
	RefreshedAt time.Time `json:"refreshedAt"`
}

// Sign drives a board from a fetcher.
type Sign struct {
	fetcher  Fetcher
	board    *board.Board
	modes    []Mode
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	recorder Recorder

	switches chan struct{}

	mu      sync.RWMutex
	current int
	status  Status
}

// Option configures a Sign.
type Option func(*Sign)

func WithInterval(d time.Duration) Option {
	return func(s *Sign) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Sign) {
		s.clock = c
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sign) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sign) {
		s.metrics = m
	}
}

// WithRecorder stores every refresh cycle in r.
func WithRecorder(r Recorder) Option {
	return func(s *Sign) {
		s.recorder = r
	}
}

// New returns a sign starting on modes[0].
func New(fetcher Fetcher, b *board.Board, modes []Mode, opts ...Option) (*Sign, error) {
	if fetcher == nil || b == nil {
		return nil, errors.New("sign: fetcher and board are required")
	}
	if len(modes) == 0 {
		return nil, errors.New("sign: at least one mode is required")
	}
	s := &Sign{
		fetcher:  fetcher,
		board:    b,
		modes:    modes,
		interval: DefaultRefreshInterval,
		clock:    clock.RealClock{},
		logger:   slog.Default(),
		switches: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "sign"))
	s.status.Mode = modes[0].Name
	return s, nil
}

// Modes returns the configured modes in cycle order.
func (s *Sign) Modes() []Mode {
	return s.modes
}

// Mode returns the current mode.
func (s *Sign) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modes[s.current]
}

// Status returns the outcome of the latest refresh.
func (s *Sign) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// RequestSwitch asks the run loop to move to the next mode. It never blocks
// and reports false when a switch is already pending.
func (s *Sign) RequestSwitch() bool {
	select {
	case s.switches <- struct{}{}:
		return true
	default:
		return false
	}
}

// SwitchMode advances to the next mode, wrapping around.
func (s *Sign) SwitchMode() Mode {
	s.mu.Lock()
	s.current = (s.current + 1) % len(s.modes)
	mode := s.modes[s.current]
	s.status = Status{Mode: mode.Name}
	s.mu.Unlock()

	s.metrics.ObserveModeSwitch()
	logging.LogOperation(s.logger, "mode_switched", slog.String("mode", mode.Name))
	return mode
}

// Refresh fetches the current mode and draws it. An unavailable API is not an
// error here: the board is cleared and Refresh reports false. Cancellation is
// returned without touching the board; any other failure clears the board and
// is returned.
func (s *Sign) Refresh(ctx context.Context) (bool, error) {
	mode := s.Mode()
	start := s.clock.Now()

	records, err := s.fetcher.Fetch(logging.WithLogger(ctx, s.logger), mode.Endpoint, mode.Filter)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		if errors.Is(err, predictions.ErrAPIUnavailable) {
			s.logger.Warn("prediction API is unavailable, trying again later", slog.String("mode", mode.Name))
			err = nil
		} else {
			err = fmt.Errorf("refresh %s: %w", mode.Name, err)
		}
		records = nil
	}

	observed := s.board.Refresh(records)
	visible := s.board.Visible(len(records))
	now := s.clock.Now()

	status := Status{
		Mode:        mode.Name,
		Refreshed:   true,
		Observed:    observed,
		Records:     len(records),
		Visible:     visible,
		RefreshedAt: now,
	}
	if !observed {
		status.Visible = 0
		status.Error = predictions.ErrAPIUnavailable.Error()
		if err != nil {
			status.Error = err.Error()
		}
	}
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()

	s.metrics.ObserveRefresh(mode.Name, observed, status.Visible, now)
	s.record(ctx, status, now.Sub(start))
	return observed, err
}

func (s *Sign) record(ctx context.Context, st Status, d time.Duration) {
	if s.recorder == nil {
		return
	}
	err := s.recorder.Record(ctx, history.Entry{
		Mode:        st.Mode,
		Observed:    st.Observed,
		Records:     st.Records,
		Visible:     st.Visible,
		DurationMs:  d.Milliseconds(),
		Error:       st.Error,
		RefreshedAt: st.RefreshedAt,
	})
	if err != nil {
		logging.LogError(s.logger, "failed to record refresh", err)
	}
}

// Run shows the loading screen, then refreshes every interval until ctx is
// done. Presses on the presses channel and RequestSwitch calls both advance
// the mode and refresh at once. presses may be nil.
func (s *Sign) Run(ctx context.Context, presses <-chan struct{}) error {
	logging.LogOperation(s.logger, "sign_started",
		slog.String("mode", s.Mode().Name),
		slog.Duration("refresh_interval", s.interval))
	s.board.Loading()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logging.LogError(s.logger, "refresh failed", err)
		}

		select {
		case <-ctx.Done():
			logging.LogOperation(s.logger, "sign_stopped")
			return nil
		case <-ticker.C:
		case <-presses:
			s.SwitchMode()
			ticker.Reset(s.interval)
		case <-s.switches:
			s.SwitchMode()
			ticker.Reset(s.interval)
		}
	}
}
