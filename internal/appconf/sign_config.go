package appconf

import (
	"time"

	"github.com/metrosign/metrosign/internal/board"
	"github.com/metrosign/metrosign/internal/colors"
	"github.com/metrosign/metrosign/internal/predictions"
)

// Mode names accepted in the modes list.
const (
	ModeTrains   = "trains"
	ModeBus      = "bus"
	ModeRealtime = "realtime"
)

// SignConfig is the resolved configuration of the sign itself, with every
// default applied and every colour parsed.
type SignConfig struct {
	Modes           []string
	RefreshInterval time.Duration
	RetryBackoff    time.Duration
	// APIRateLimit caps outbound requests per second; zero disables it.
	APIRateLimit float64

	Layout       board.Layout
	HeadingText  string
	HeadingColor colors.Color

	Train      predictions.EndpointConfig
	TrainGroup string
	Override   predictions.Override

	Bus          predictions.EndpointConfig
	BusDirection string
	BusColor     colors.Color

	Realtime RealtimeConfig

	ButtonPath     string
	ButtonDebounce time.Duration
	ButtonPoll     time.Duration

	HistoryPath string
}

// RealtimeConfig selects one stop from a GTFS-Realtime TripUpdates feed.
type RealtimeConfig struct {
	Endpoint predictions.EndpointConfig
	StopID   string
	// Route filters on route id; "*" keeps every route.
	Route     string
	Headsigns map[string]string
	Color     colors.Color
}
