// Package board reconciles a variable-length, possibly absent list of
// prediction records against the fixed number of rows a display offers.
package board

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/metrosign/metrosign/internal/colors"
	"github.com/metrosign/metrosign/internal/logging"
	"github.com/metrosign/metrosign/internal/predictions"
)

// EightCar is the car count that switches a row to Layout.EightCarColor.
const EightCar = "8"

// ErrSlotMismatch is returned by New when the display does not offer exactly
// Layout.NumSlots rows.
var ErrSlotMismatch = errors.New("display slot count mismatch")

// Row is one display slot. Implementations hold their own state; hiding a
// row must not clear its fields.
type Row interface {
	Show()
	Hide()
	SetLineColor(c colors.Color)
	SetDestination(text string)
	SetArrival(text string)
	SetTextColor(c colors.Color)
}

// Display owns a fixed, ordered list of rows.
type Display interface {
	Rows() []Row
	Render() error
}

// Layout is the read-only display configuration.
type Layout struct {
	NumSlots            int
	DestinationMaxChars int
	ArrivalWidth        int
	TextColor           colors.Color
	EightCarColor       colors.Color

	LoadingDestination string
	LoadingArrival     string
	LoadingColor       colors.Color
}

// DefaultLayout matches a 64 pixel wide matrix with a 5x7 font.
func DefaultLayout() Layout {
	return Layout{
		NumSlots:            3,
		DestinationMaxChars: 8,
		ArrivalWidth:        3,
		TextColor:           0xFF7500,
		EightCarColor:       0xFFFFFF,
		LoadingDestination:  "Loading",
		LoadingArrival:      "---",
		LoadingColor:        0xFF00FF,
	}
}

// Board is the slot display controller. It is not safe for concurrent use;
// the sign's run loop is its only caller.
type Board struct {
	layout  Layout
	display Display
	rows    []Row
	logger  *slog.Logger
}

// New binds a board to display. The rows are taken once and reused for the
// lifetime of the board.
func New(display Display, layout Layout, logger *slog.Logger) (*Board, error) {
	if display == nil {
		return nil, errors.New("board: display is required")
	}
	if layout.NumSlots < 1 {
		return nil, fmt.Errorf("board: layout needs at least one slot, got %d", layout.NumSlots)
	}
	rows := display.Rows()
	if len(rows) != layout.NumSlots {
		return nil, fmt.Errorf("%w: display has %d rows, layout needs %d", ErrSlotMismatch, len(rows), layout.NumSlots)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Board{
		layout:  layout,
		display: display,
		rows:    rows,
		logger:  logger.With(slog.String("component", "board")),
	}, nil
}

// Layout returns the layout the board was built with.
func (b *Board) Layout() Layout {
	return b.layout
}

// Refresh draws records. A nil slice means no data could be fetched: every
// row is hidden and Refresh reports false. Any non-nil slice, even an empty
// one, reports true. Rows beyond len(records) are hidden with their previous
// contents left in place.
func (b *Board) Refresh(records []predictions.Record) bool {
	if records == nil {
		b.logger.Debug("no data received, clearing display")
		for _, row := range b.rows {
			row.Hide()
		}
		b.render()
		return false
	}

	for i, row := range b.rows {
		if i >= len(records) {
			row.Hide()
			continue
		}
		b.draw(row, records[i])
	}
	b.render()

	b.logger.Debug("board updated",
		slog.Int("records", len(records)),
		slog.Int("visible", b.Visible(len(records))))
	return true
}

// Visible returns how many rows n records occupy.
func (b *Board) Visible(n int) int {
	return min(n, len(b.rows))
}

// Loading shows the start-up placeholder in every row.
func (b *Board) Loading() {
	for _, row := range b.rows {
		row.SetLineColor(b.layout.LoadingColor)
		row.SetDestination(Truncate(b.layout.LoadingDestination, b.layout.DestinationMaxChars))
		row.SetArrival(PadArrival(b.layout.LoadingArrival, b.layout.ArrivalWidth))
		row.SetTextColor(b.layout.TextColor)
		row.Show()
	}
	b.render()
}

func (b *Board) draw(row Row, rec predictions.Record) {
	row.SetLineColor(rec.LineColor)
	row.SetDestination(Truncate(rec.Destination, b.layout.DestinationMaxChars))
	row.SetArrival(PadArrival(rec.Arrival, b.layout.ArrivalWidth))
	if rec.Car == EightCar {
		row.SetTextColor(b.layout.EightCarColor)
	} else {
		row.SetTextColor(b.layout.TextColor)
	}
	row.Show()
}

func (b *Board) render() {
	if err := b.display.Render(); err != nil {
		logging.LogError(b.logger, "failed to render display", err)
	}
}

// Truncate cuts s to at most n runes. n <= 0 disables truncation.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// PadArrival right-justifies s to width runes with leading spaces. Longer
// strings are returned unchanged.
func PadArrival(s string, width int) string {
	pad := width - utf8.RuneCountInString(s)
	if pad <= 0 {
		return s
	}
	return strings.Repeat(" ", pad) + s
}
