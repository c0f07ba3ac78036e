// Package button turns a noisy, pulled-up push button into single press
// events. A press is a falling edge: the line idles high and reads low while
// the button is held.
package button

import (
	"time"

	"github.com/metrosign/metrosign/internal/clock"
)

// DefaultInterval is how long a level must hold before it counts.
const DefaultInterval = 20 * time.Millisecond

// Edge is a debounced level transition.
type Edge int

const (
	NoEdge Edge = iota
	Fell
	Rose
)

func (e Edge) String() string {
	switch e {
	case Fell:
		return "fell"
	case Rose:
		return "rose"
	default:
		return "none"
	}
}

// Debouncer accepts a new level only after it has been sampled unchanged for
// the whole interval.
type Debouncer struct {
	clock    clock.Clock
	interval time.Duration

	stable    bool
	candidate bool
	since     time.Time
}

// NewDebouncer starts with the line at initial. Pull-up inputs should pass
// true.
func NewDebouncer(c clock.Clock, interval time.Duration, initial bool) *Debouncer {
	if c == nil {
		c = clock.RealClock{}
	}
	return &Debouncer{
		clock:     c,
		interval:  interval,
		stable:    initial,
		candidate: initial,
		since:     c.Now(),
	}
}

// Update feeds one sample and reports the edge it completes, if any.
func (d *Debouncer) Update(level bool) Edge {
	now := d.clock.Now()
	if level != d.candidate {
		d.candidate = level
		d.since = now
	}
	if d.candidate == d.stable || now.Sub(d.since) < d.interval {
		return NoEdge
	}
	d.stable = d.candidate
	if d.stable {
		return Rose
	}
	return Fell
}

// Level returns the debounced level.
func (d *Debouncer) Level() bool {
	return d.stable
}
