package display

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/metrosign/metrosign/internal/colors"
)

// Heading is the fixed first line of the sign.
type Heading struct {
	Text  string
	Color colors.Color
}

// DefaultHeading is the column header used on the matrix sign.
func DefaultHeading() Heading {
	return Heading{Text: "LN DEST   MIN", Color: colors.Red}
}

// lineMarker stands in for the coloured line bar drawn on the matrix.
const lineMarker = "██"

// Terminal prints the panel to a writer after every render, one line per
// slot below the heading. Hidden slots print as blank lines so the frame
// height never changes.
type Terminal struct {
	*Panel

	out              io.Writer
	heading          Heading
	destinationWidth int

	writeMu sync.Mutex
}

// NewTerminal returns a terminal display with n slots. destinationWidth pads
// the destination column so arrivals line up.
func NewTerminal(out io.Writer, n int, heading Heading, destinationWidth int) *Terminal {
	return &Terminal{
		Panel:            NewPanel(n),
		out:              out,
		heading:          heading,
		destinationWidth: destinationWidth,
	}
}

// Render writes the current frame.
func (t *Terminal) Render() error {
	if err := t.Panel.Render(); err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := io.WriteString(t.out, t.Frame()+"\n"); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Frame returns the heading and every slot joined into one block.
func (t *Terminal) Frame() string {
	lines := []string{
		colorStyle(t.heading.Color).Render(t.heading.Text),
	}
	for _, st := range t.Snapshot() {
		lines = append(lines, t.slotLine(st))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (t *Terminal) slotLine(st SlotState) string {
	width := t.destinationWidth
	if width < 1 {
		width = lipgloss.Width(st.Destination)
	}
	if !st.Visible {
		// Keep the frame rectangular.
		return strings.Repeat(" ", lipgloss.Width(lineMarker)+1+width+1+lipgloss.Width(st.Arrival))
	}
	text := colorStyle(st.TextColor)
	return lipgloss.JoinHorizontal(lipgloss.Top,
		colorStyle(st.LineColor).Render(lineMarker),
		" ",
		text.Width(width).Render(st.Destination),
		" ",
		text.Render(st.Arrival),
	)
}

func colorStyle(c colors.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(c.Hex()))
}
