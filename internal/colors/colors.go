// Package colors maps transit line codes to display colours.
package colors

import (
	"fmt"
	"strconv"
	"strings"
)

// Color is a 24-bit 0xRRGGBB display colour.
type Color uint32

// Well known colours used by the sign.
const (
	Red       Color = 0xFF0000
	Orange    Color = 0xFF5500
	Yellow    Color = 0xFFFF00
	Green     Color = 0x00FF00
	Blue      Color = 0x0000FF
	Silver    Color = 0xC0C0C0
	Gray      Color = 0xAAAAAA
	LightBlue Color = 0xADD8E6
)

// DefaultMetroColor is used for rail lines missing from the line table.
const DefaultMetroColor = Gray

// DefaultBusColor is the colour of every bus route.
const DefaultBusColor = LightBlue

// Hex renders c as "#rrggbb".
func (c Color) Hex() string {
	return fmt.Sprintf("#%06x", uint32(c)&0xFFFFFF)
}

func (c Color) String() string {
	return c.Hex()
}

// ParseColor accepts "#rrggbb", "0xrrggbb" and bare "rrggbb".
func ParseColor(s string) (Color, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimPrefix(trimmed, "#")
	if len(trimmed) > 2 && (trimmed[:2] == "0x" || trimmed[:2] == "0X") {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != 6 {
		return 0, fmt.Errorf("invalid color %q: expected 6 hex digits", s)
	}
	v, err := strconv.ParseUint(trimmed, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return Color(v), nil
}

// MetroLineColors returns the WMATA rail line table. The map is a fresh copy.
func MetroLineColors() map[string]Color {
	return map[string]Color{
		"RD": Red,
		"OR": Orange,
		"YL": Yellow,
		"GR": Green,
		"BL": Blue,
		"SV": Silver,
	}
}

// Resolver resolves the colour of a prediction row. It is safe for
// concurrent use once built; nothing mutates it after NewResolver returns.
type Resolver struct {
	table        map[string]Color
	defaultColor Color

	overrideText  string
	overrideColor Color
	hasOverride   bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithOverride binds a special destination text to a colour. A row whose
// destination equals text gets color regardless of its line code.
func WithOverride(text string, color Color) Option {
	return func(r *Resolver) {
		if text == "" {
			return
		}
		r.overrideText = text
		r.overrideColor = color
		r.hasOverride = true
	}
}

// NewResolver copies table, so later changes by the caller have no effect.
func NewResolver(table map[string]Color, defaultColor Color, opts ...Option) *Resolver {
	r := &Resolver{
		table:        make(map[string]Color, len(table)),
		defaultColor: defaultColor,
	}
	for code, c := range table {
		r.table[code] = c
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lookup returns the colour bound to a line code, if any.
func (r *Resolver) Lookup(line string) (Color, bool) {
	c, ok := r.table[line]
	return c, ok
}

// Default returns the fallback colour.
func (r *Resolver) Default() Color {
	return r.defaultColor
}

// Resolve never fails: unknown line codes yield the default colour.
func (r *Resolver) Resolve(line, destination string) Color {
	if r.hasOverride && destination == r.overrideText {
		return r.overrideColor
	}
	if c, ok := r.table[line]; ok {
		return c
	}
	return r.defaultColor
}
