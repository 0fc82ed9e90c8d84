// Package weekview glues normalization, layout, and rendering into the one
// call the daemon makes per refresh: provider records in, finished weekly
// image out.
package weekview

import (
	"image"
	"time"

	"github.com/sirupsen/logrus"

	"taskcal/internal/layout"
	"taskcal/internal/model"
	"taskcal/internal/normalize"
	"taskcal/internal/render"
	"taskcal/internal/style"
)

// Generator produces weekly calendar images for one display timezone and
// style sheet.
type Generator struct {
	loc  *time.Location
	norm *normalize.Normalizer
	eng  *layout.Engine
	ren  *render.Renderer
}

// New builds a generator. A nil location falls back to UTC. Font problems
// surface here, before the first pass.
func New(loc *time.Location, sheet style.Sheet, logger *logrus.Entry) (*Generator, error) {
	if loc == nil {
		loc = time.UTC
	}
	ren, err := render.New(sheet)
	if err != nil {
		return nil, err
	}
	return &Generator{
		loc:  loc,
		norm: normalize.New(loc, logger),
		eng:  layout.NewEngine(sheet, logger),
		ren:  ren,
	}, nil
}

// WeekStart returns the Sunday midnight opening the week that contains
// now, in loc.
func WeekStart(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	d := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	return d.AddDate(0, 0, -int(d.Weekday()))
}

// Items normalizes recs against the week starting at weekStart. Malformed
// and out-of-week records are dropped per the normalizer's rules.
func (g *Generator) Items(recs []normalize.Record, weekStart time.Time) []model.Item {
	return g.norm.Normalize(recs, weekStart)
}

// Image lays out and renders already normalized items.
func (g *Generator) Image(items []model.Item, weekStart time.Time, width, height int, now time.Time) (*image.RGBA, error) {
	boxes := g.eng.Compute(weekStart, items, width, height)
	return g.ren.Render(boxes, weekStart, width, height, now)
}

// Generate is Items followed by Image.
func (g *Generator) Generate(recs []normalize.Record, weekStart time.Time, width, height int, now time.Time) (*image.RGBA, error) {
	return g.Image(g.Items(recs, weekStart), weekStart, width, height, now)
}
