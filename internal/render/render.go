// Package render rasterizes laid-out draw boxes into the weekly calendar
// image. It owns the fonts, the header band, the grid, and the final text
// fitting; it performs no I/O and keeps no state between calls.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"taskcal/internal/layout"
	"taskcal/internal/style"
)

// ErrRenderFailure marks errors that abort a whole render pass. A partial
// image is never returned.
var ErrRenderFailure = errors.New("render: render failure")

const (
	headerNameY = 5  // weekday name inside the header band
	headerNumY  = 30 // day-of-month inside the header band
	stampInsetX = 30 // render timestamp inset from the right edge
	stampInsetY = 25 // render timestamp inset from the bottom edge
)

// Renderer draws weekly images against one style sheet. Build it once; the
// parsed font faces are reused across passes.
type Renderer struct {
	sheet  style.Sheet
	header font.Face
	allDay font.Face
	timed  font.Face
}

// New parses the embedded fonts at the sheet's sizes. Font failures are
// render failures; there is no fallback face.
func New(sheet style.Sheet) (*Renderer, error) {
	bold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("%w: parse bold font: %v", ErrRenderFailure, err)
	}
	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("%w: parse regular font: %v", ErrRenderFailure, err)
	}

	r := &Renderer{sheet: sheet}
	r.header, err = opentype.NewFace(bold, &opentype.FaceOptions{Size: sheet.HeaderPts, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("%w: header face: %v", ErrRenderFailure, err)
	}
	r.allDay, err = opentype.NewFace(regular, &opentype.FaceOptions{Size: sheet.AllDayPts, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("%w: all-day face: %v", ErrRenderFailure, err)
	}
	r.timed, err = opentype.NewFace(regular, &opentype.FaceOptions{Size: sheet.TimedPts, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("%w: timed face: %v", ErrRenderFailure, err)
	}
	return r, nil
}

// Render paints boxes for the week starting at weekStart onto a fresh
// width x height canvas. now drives the today highlight and the corner
// timestamp; a zero now disables both, which keeps output reproducible.
func (r *Renderer) Render(boxes []layout.DrawBox, weekStart time.Time, width, height int, now time.Time) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid canvas %dx%d", ErrRenderFailure, width, height)
	}
	if !now.IsZero() {
		now = now.In(weekStart.Location())
	}

	s := r.sheet
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fillRect(img, 0, 0, width, height, s.Background)

	cols := layout.Columns(width)

	for day, col := range cols {
		date := weekStart.AddDate(0, 0, day)
		fill := s.HeaderFill
		if !now.IsZero() && sameDate(date, now) {
			fill = s.TodayFill
		}
		fillRect(img, col.X, 0, col.W, s.HeaderHeight, fill)
		rectOutline(img, col.X, 0, col.W, s.HeaderHeight, s.BoxOutline)
		r.text(img, col.X+s.TextPadX, headerNameY, date.Format("Mon"), r.header, s.HeaderText)
		r.text(img, col.X+s.TextPadX, headerNumY, date.Format("2"), r.header, s.HeaderText)
	}

	// Six interior column separators plus the header/body divider.
	for i := 1; i < 7; i++ {
		vline(img, cols[i].X, s.HeaderHeight, height-1, s.GridLine)
	}
	hline(img, 0, width-1, s.HeaderHeight, s.GridLine)

	for _, b := range boxes {
		if b.Day < 0 || b.Day > 6 {
			continue
		}
		col := cols[b.Day]
		x := col.X + s.BoxInset
		w := col.W - 2*s.BoxInset
		y := s.HeaderHeight + b.Y
		fillRect(img, x, y, w, b.Height, b.Fill)
		rectOutline(img, x, y, w, b.Height, s.BoxOutline)

		face := r.timed
		if b.AllDay {
			face = r.allDay
		}
		if txt := fitString(face, b.Text, w-2*s.TextPadX); txt != "" {
			r.text(img, x+s.TextPadX, y+s.TextPadY, txt, face, s.BoxText)
		}
	}

	if !now.IsZero() {
		stamp := now.Format("Jan 02 03:04 PM")
		w := font.MeasureString(r.timed, stamp).Ceil()
		r.text(img, width-w-stampInsetX, height-stampInsetY, stamp, r.timed, s.StampText)
	}

	return img, nil
}

// text draws s with its glyph top at (x, y).
func (r *Renderer) text(img *image.RGBA, x, y int, s string, face font.Face, c color.RGBA) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(s)
}

// fitString returns s when it fits maxWidth pixels, otherwise the longest
// prefix that fits with an ellipsis appended, otherwise the empty string.
func fitString(face font.Face, s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if font.MeasureString(face, s).Ceil() <= maxWidth {
		return s
	}
	r := []rune(s)
	for n := len(r) - 1; n > 0; n-- {
		cand := string(r[:n]) + "…"
		if font.MeasureString(face, cand).Ceil() <= maxWidth {
			return cand
		}
	}
	return ""
}

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func fillRect(img *image.RGBA, x, y, w, h int, c color.RGBA) {
	draw.Draw(img, image.Rect(x, y, x+w, y+h), image.NewUniform(c), image.Point{}, draw.Src)
}

func rectOutline(img *image.RGBA, x, y, w, h int, c color.RGBA) {
	hline(img, x, x+w-1, y, c)
	hline(img, x, x+w-1, y+h-1, c)
	vline(img, x, y, y+h-1, c)
	vline(img, x+w-1, y, y+h-1, c)
}

func hline(img *image.RGBA, x0, x1, y int, c color.RGBA) {
	for x := x0; x <= x1; x++ {
		img.SetRGBA(x, y, c)
	}
}

func vline(img *image.RGBA, x, y0, y1 int, c color.RGBA) {
	for y := y0; y <= y1; y++ {
		img.SetRGBA(x, y, c)
	}
}
