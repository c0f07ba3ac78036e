package app

import (
	"log/slog"

	"github.com/metrosign/metrosign/internal/appconf"
	"github.com/metrosign/metrosign/internal/clock"
	"github.com/metrosign/metrosign/internal/display"
	"github.com/metrosign/metrosign/internal/history"
	"github.com/metrosign/metrosign/internal/metrics"
	"github.com/metrosign/metrosign/internal/sign"
)

// Board exposes the slot contents currently on the display.
type Board interface {
	Snapshot() []display.SlotState
}

// Application holds the dependencies shared by the run loop, the HTTP
// handlers and the debug pages. History may be nil when no store is
// configured.
type Application struct {
	Config     appconf.Config
	SignConfig appconf.SignConfig
	Logger     *slog.Logger
	Clock      clock.Clock
	Metrics    *metrics.Metrics
	Sign       *sign.Sign
	Board      Board
	History    *history.Store
}
