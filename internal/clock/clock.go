// Package clock abstracts the wall clock so countdowns, debouncing and
// history timestamps can be driven deterministically in tests.
package clock

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// NowEnvVar pins the sign's clock to a start time, which is how recorded
// GTFS-Realtime feeds are replayed with sensible countdowns.
const NowEnvVar = "METROSIGN_NOW"

type Clock interface {
	Now() time.Time
	NowUnixMilli() int64
}

// RealClock reads the system time.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// MockClock only moves when told to. It is safe for concurrent use.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *MockClock) NowUnixMilli() int64 {
	return m.Now().UnixMilli()
}

func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance moves the clock by d, which may be negative.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// ShiftedClock runs at real speed from a chosen start instant.
type ShiftedClock struct {
	offset time.Duration
	base   Clock
}

// NewShiftedClock returns a clock whose Now is start when called
// immediately. base supplies the passage of time; nil means RealClock.
func NewShiftedClock(start time.Time, base Clock) *ShiftedClock {
	if base == nil {
		base = RealClock{}
	}
	return &ShiftedClock{offset: start.Sub(base.Now()), base: base}
}

func (s *ShiftedClock) Now() time.Time {
	return s.base.Now().Add(s.offset)
}

func (s *ShiftedClock) NowUnixMilli() int64 {
	return s.Now().UnixMilli()
}

// FromEnvironment returns RealClock unless envVar holds an RFC 3339 time, in
// which case the clock starts there. A malformed value is an error rather
// than a silent fallback so a replay never runs against the wrong time.
func FromEnvironment(envVar string) (Clock, error) {
	raw := strings.TrimSpace(os.Getenv(envVar))
	if raw == "" {
		return RealClock{}, nil
	}
	start, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: expected RFC3339 like 2006-01-02T15:04:05Z07:00", envVar, raw)
	}
	return NewShiftedClock(start, nil), nil
}
