package model

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Color is a label from the fixed display palette.
type Color string

const (
	ColorIndigo Color = "indigo"
	ColorPurple Color = "purple"
	ColorBlue   Color = "blue"
	ColorGreen  Color = "green"
	ColorRed    Color = "red"
	ColorAmber  Color = "amber"
	ColorPink   Color = "pink"
	ColorSlate  Color = "slate"
)

// DefaultColor is used when a record carries no usable colour.
const DefaultColor = ColorIndigo

var palette = []struct {
	color Color
	hex   string
}{
	{ColorIndigo, "#6366f1"},
	{ColorPurple, "#a855f7"},
	{ColorBlue, "#3b82f6"},
	{ColorGreen, "#22c55e"},
	{ColorRed, "#ef4444"},
	{ColorAmber, "#f59e0b"},
	{ColorPink, "#ec4899"},
	{ColorSlate, "#64748b"},
}

// Palette lists the selectable colours in display order.
func Palette() []Color {
	out := make([]Color, len(palette))
	for i, p := range palette {
		out[i] = p.color
	}
	return out
}

func (c Color) Valid() bool {
	return c.Hex() != ""
}

// Hex returns the swatch colour, or "" for labels outside the palette.
func (c Color) Hex() string {
	for _, p := range palette {
		if p.color == c {
			return p.hex
		}
	}
	return ""
}

// Label is the human-readable name ("Amber").
func (c Color) Label() string {
	return cases.Title(language.English).String(string(c))
}

// ResolveColor picks the effective display colour: the unified field
// first, then the legacy admin and user fields, then DefaultColor.
func ResolveColor(e Event) Color {
	for _, c := range []Color{e.Color, e.AdminColor, e.UserColor} {
		if c.Valid() {
			return c
		}
	}
	return DefaultColor
}
