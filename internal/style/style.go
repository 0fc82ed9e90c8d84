// Package style holds the drawing constants for the weekly view: geometry,
// font sizes, truncation limits, and the color tables that map priorities
// and calendar categories to fills. A Sheet is built once and passed by
// value into the layout engine and the renderer; nothing mutates it after
// construction.
package style

import (
	"image/color"

	"taskcal/internal/model"
)

// Palette colors. They sit close to the panel's seven inks so the packer
// quantizes them without surprises. Gray leans dark: a mid gray would
// quantize to paper white and erase completed boxes on the panel.
var (
	Black  = color.RGBA{A: 255}
	White  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Gray   = color.RGBA{R: 90, G: 90, B: 90, A: 255}
	Blue   = color.RGBA{B: 255, A: 255}
	Orange = color.RGBA{R: 255, G: 165, A: 255}
	Red    = color.RGBA{R: 255, A: 255}
	Green  = color.RGBA{G: 128, A: 255}
	Purple = color.RGBA{R: 128, B: 128, A: 255}
	Yellow = color.RGBA{R: 255, G: 255, A: 255}
)

// Sheet is the complete style table for one rendering pass.
type Sheet struct {
	// Geometry, in pixels.
	HeaderHeight int // header band at the top of every column
	BoxHeight    int // one stacking unit
	BoxGap       int // vertical gap between stacked boxes, also the top inset
	BoxInset     int // horizontal inset of a box inside its column
	TextPadX     int
	TextPadY     int

	// Font sizes, in points at 72 DPI.
	HeaderPts float64
	AllDayPts float64
	TimedPts  float64

	// Title truncation limits, in runes.
	AllDayTitleMax int
	TimedTitleMax  int

	// Timed box sizing. A box grows one BoxHeight per SlotMinutes of
	// duration up to MaxUnits, except that durations of LongEventMin
	// minutes or more fall back to a single unit.
	SlotMinutes  int
	MaxUnits     int
	LongEventMin int

	// Fill tables.
	PriorityFill  map[model.Priority]color.RGBA
	CategoryFill  map[string]color.RGBA
	EventFallback color.RGBA // unknown event category
	CompletedFill color.RGBA // completed tasks, overrides priority

	// Chrome colors.
	Background color.RGBA
	HeaderFill color.RGBA
	TodayFill  color.RGBA
	GridLine   color.RGBA
	BoxOutline color.RGBA
	BoxText    color.RGBA
	HeaderText color.RGBA
	StampText  color.RGBA
}

// Default returns the canonical sheet.
func Default() Sheet {
	return Sheet{
		HeaderHeight: 60,
		BoxHeight:    30,
		BoxGap:       5,
		BoxInset:     2,
		TextPadX:     5,
		TextPadY:     2,

		HeaderPts: 20,
		AllDayPts: 16,
		TimedPts:  14,

		AllDayTitleMax: 25,
		TimedTitleMax:  20,

		SlotMinutes:  30,
		MaxUnits:     6,
		LongEventMin: 180,

		PriorityFill: map[model.Priority]color.RGBA{
			model.PriorityNone:   Black,
			model.PriorityLow:    Blue,
			model.PriorityMedium: Orange,
			model.PriorityHigh:   Red,
		},
		CategoryFill: map[string]color.RGBA{
			"primary":          Red,
			"other_google":     Blue,
			"events_available": Purple,
			"holidays":         Green,
			"birthdays":        Orange,
			"partiful":         Green,
			"work":             Yellow,
		},
		EventFallback: Blue,
		CompletedFill: Gray,

		Background: White,
		HeaderFill: color.RGBA{R: 247, G: 247, B: 247, A: 255},
		TodayFill:  Yellow,
		GridLine:   color.RGBA{R: 204, G: 204, B: 204, A: 255},
		BoxOutline: Black,
		BoxText:    White,
		HeaderText: Black,
		StampText:  Black,
	}
}
