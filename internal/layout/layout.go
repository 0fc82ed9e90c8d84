// Package layout turns one week of calendar items into absolutely
// positioned draw boxes. It is pure arithmetic: no clocks, no I/O, and the
// same inputs always produce the same boxes.
package layout

import (
	"errors"
	"image/color"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"taskcal/internal/log"
	"taskcal/internal/model"
	"taskcal/internal/style"
)

// ErrOutOfWeekRange classifies boxes whose date misses the active week.
// The engine drops them and keeps going; the error only ever shows up in
// debug logs.
var ErrOutOfWeekRange = errors.New("layout: item outside active week")

// Column is the horizontal extent of one day column.
type Column struct {
	X int
	W int
}

// Columns splits width into the seven day columns, Sunday first. The last
// column absorbs the integer division remainder so the grid spans the full
// canvas.
func Columns(width int) [7]Column {
	colW := width / 7
	var cols [7]Column
	for i := range cols {
		cols[i] = Column{X: i * colW, W: colW}
	}
	cols[6].W = width - 6*colW
	return cols
}

// DrawBox is one rectangle for the renderer: which column, where in the
// column, how tall, what fill, and the final text.
type DrawBox struct {
	Day    int // 0 = Sunday .. 6 = Saturday
	Y      int // offset below the header band
	Height int
	Fill   color.RGBA
	Text   string
	AllDay bool
}

// Engine computes weekly layouts against one style sheet.
type Engine struct {
	sheet style.Sheet
	log   *logrus.Entry
}

// NewEngine returns an engine using the given sheet. A nil entry falls back
// to a discarding logger.
func NewEngine(sheet style.Sheet, logger *logrus.Entry) *Engine {
	if logger == nil {
		logger = log.Discard()
	}
	return &Engine{sheet: sheet, log: logger}
}

// Compute lays items out for the week starting at weekStart (Sunday
// midnight, display timezone). Within a column, all-day items stack first
// in input order, then timed items by ascending start. Boxes may extend
// past height; the engine never clips or reflows, the renderer's canvas
// does the clipping.
func (e *Engine) Compute(weekStart time.Time, items []model.Item, width, height int) []DrawBox {
	var grid [7][]model.Item
	for _, it := range items {
		for _, d := range it.DaySpan {
			day := dayIndex(weekStart, d)
			if day < 0 {
				e.log.WithError(ErrOutOfWeekRange).
					WithFields(logrus.Fields{"title": it.Title, "date": d.Format("2006-01-02")}).
					Debug("dropping box")
				continue
			}
			grid[day] = append(grid[day], it)
		}
	}

	boxes := make([]DrawBox, 0, len(items))
	for day := range grid {
		var allDay, timed []model.Item
		for _, it := range grid[day] {
			if it.AllDay {
				allDay = append(allDay, it)
			} else {
				timed = append(timed, it)
			}
		}
		sort.SliceStable(timed, func(i, j int) bool {
			return timed[i].Start.Before(timed[j].Start)
		})

		y := e.sheet.BoxGap
		for _, it := range allDay {
			boxes = append(boxes, DrawBox{
				Day:    day,
				Y:      y,
				Height: e.sheet.BoxHeight,
				Fill:   e.fill(it),
				Text:   Truncate(it.Title, e.sheet.AllDayTitleMax),
				AllDay: true,
			})
			y += e.sheet.BoxHeight + e.sheet.BoxGap
		}
		for _, it := range timed {
			h := e.boxHeight(it)
			boxes = append(boxes, DrawBox{
				Day:    day,
				Y:      y,
				Height: h,
				Fill:   e.fill(it),
				Text:   it.Start.Format("3:04 PM") + " " + Truncate(it.Title, e.sheet.TimedTitleMax),
			})
			y += h + e.sheet.BoxGap
		}
	}
	return boxes
}

// dayIndex returns the 0..6 column for date d in the week starting at
// weekStart, or -1 when the date falls outside. Walking by calendar days
// keeps the math right across DST shifts.
func dayIndex(weekStart, d time.Time) int {
	cur := weekStart
	for i := 0; i < 7; i++ {
		if cur.Year() == d.Year() && cur.YearDay() == d.YearDay() {
			return i
		}
		cur = cur.AddDate(0, 0, 1)
	}
	return -1
}

// boxHeight sizes a timed box: one unit per slot of duration, capped at
// MaxUnits, except that long blocks (LongEventMin and up) collapse back to
// a single unit so an 8-hour focus block does not bury the column.
func (e *Engine) boxHeight(it model.Item) int {
	unit := e.sheet.BoxHeight
	mins := int(it.Duration().Minutes())
	if mins <= 0 || mins >= e.sheet.LongEventMin {
		return unit
	}
	blocks := (mins + e.sheet.SlotMinutes - 1) / e.sheet.SlotMinutes
	if blocks < 1 {
		blocks = 1
	}
	if blocks > e.sheet.MaxUnits {
		blocks = e.sheet.MaxUnits
	}
	return unit * blocks
}

// fill resolves the box color. Completed wins over priority for tasks;
// unknown event categories fall back to the sheet's default event fill.
func (e *Engine) fill(it model.Item) color.RGBA {
	if it.Source == model.SourceTask {
		if it.Completed {
			return e.sheet.CompletedFill
		}
		if c, ok := e.sheet.PriorityFill[it.Priority]; ok {
			return c
		}
		return style.Black
	}
	if c, ok := e.sheet.CategoryFill[it.Category]; ok {
		return c
	}
	return e.sheet.EventFallback
}

// Truncate shortens s to max runes, appending an ellipsis when it cuts.
// Applying it again with the same limit changes nothing.
func Truncate(s string, max int) string {
	if max < 0 {
		max = 0
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
