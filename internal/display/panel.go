// Package display provides the display backends a board draws on. Backends
// only hold or print row text; glyph rendering belongs to the hardware.
package display

import (
	"sync"

	"github.com/metrosign/metrosign/internal/board"
	"github.com/metrosign/metrosign/internal/colors"
)

// SlotState is a copy of one slot's contents.
type SlotState struct {
	Visible     bool         `json:"visible"`
	LineColor   colors.Color `json:"lineColor"`
	Destination string       `json:"destination"`
	Arrival     string       `json:"arrival"`
	TextColor   colors.Color `json:"textColor"`
}

// Panel is an in-memory display. Rows are written by the board's goroutine
// and read through Snapshot by anything else.
type Panel struct {
	mu      sync.RWMutex
	slots   []SlotState
	rows    []board.Row
	renders int
}

// NewPanel returns a panel with n hidden slots.
func NewPanel(n int) *Panel {
	p := &Panel{slots: make([]SlotState, n)}
	p.rows = make([]board.Row, n)
	for i := range p.rows {
		p.rows[i] = &slot{panel: p, index: i}
	}
	return p
}

// Rows returns the same row handles on every call.
func (p *Panel) Rows() []board.Row {
	return p.rows
}

// Render counts frames; an in-memory panel has nothing to flush.
func (p *Panel) Render() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.renders++
	return nil
}

// Renders reports how many frames have been rendered.
func (p *Panel) Renders() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.renders
}

// Snapshot copies the current slot states.
func (p *Panel) Snapshot() []SlotState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]SlotState, len(p.slots))
	copy(out, p.slots)
	return out
}

func (p *Panel) update(i int, fn func(*SlotState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.slots[i])
}

type slot struct {
	panel *Panel
	index int
}

func (s *slot) Show() {
	s.panel.update(s.index, func(st *SlotState) { st.Visible = true })
}

func (s *slot) Hide() {
	s.panel.update(s.index, func(st *SlotState) { st.Visible = false })
}

func (s *slot) SetLineColor(c colors.Color) {
	s.panel.update(s.index, func(st *SlotState) { st.LineColor = c })
}

func (s *slot) SetDestination(text string) {
	s.panel.update(s.index, func(st *SlotState) { st.Destination = text })
}

func (s *slot) SetArrival(text string) {
	s.panel.update(s.index, func(st *SlotState) { st.Arrival = text })
}

func (s *slot) SetTextColor(c colors.Color) {
	s.panel.update(s.index, func(st *SlotState) { st.TextColor = c })
}
