// Package normalize turns raw provider rows into validated calendar items
// scoped to one display week. It owns timestamp parsing, timezone
// conversion, all-day detection, and day-span expansion, so a single bad
// row can be skipped instead of failing a whole feed.
package normalize

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"taskcal/internal/log"
	"taskcal/internal/model"
)

// Record is one raw row exactly as a provider handed it over. Timestamps
// stay provider-formatted strings until the normalizer parses them.
type Record struct {
	Source model.Source
	Title  string

	// Start and End are provider timestamps. For tasks, Start is the start
	// date and End the due date; either may be empty.
	Start string
	End   string

	// AllDay is the provider's explicit flag. Date-only timestamps also
	// mark a record all-day.
	AllDay bool

	// Calendar is the calendar identity for events; it becomes the item's
	// category.
	Calendar string

	// Priority is the provider's numeric priority code for tasks, 0 to 3.
	Priority int
	// Completed is the provider's done flag for tasks.
	Completed bool
}

// ErrMalformedRecord marks rows the normalizer refused. Such rows are
// logged and skipped; they never abort a pass.
var ErrMalformedRecord = errors.New("normalize: malformed record")

// errOutsideWeek marks rows that parse fine but miss the active week
// entirely. They drop without a warning.
var errOutsideWeek = errors.New("normalize: record outside active week")

// Timestamp layouts accepted from providers, tried in order. Zoneless
// layouts are interpreted in the display timezone.
var stampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05",
}

const dateOnlyLayout = "2006-01-02"

// Normalizer converts provider records into items in one display timezone.
type Normalizer struct {
	loc *time.Location
	log *logrus.Entry
}

// New returns a normalizer for the given display location. A nil location
// falls back to UTC, a nil entry to a discarding logger.
func New(loc *time.Location, logger *logrus.Entry) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Normalizer{loc: loc, log: logger}
}

// Normalize converts recs into items for the week starting at weekStart
// (Sunday midnight in the display timezone). Malformed rows are skipped
// with a warning; rows wholly outside the week drop quietly. Output order
// follows input order.
func (n *Normalizer) Normalize(recs []Record, weekStart time.Time) []model.Item {
	weekStart = weekStart.In(n.loc)
	items := make([]model.Item, 0, len(recs))
	for _, rec := range recs {
		it, err := n.one(rec, weekStart)
		if err != nil {
			if errors.Is(err, errOutsideWeek) {
				n.log.WithFields(logrus.Fields{"source": rec.Source, "title": rec.Title}).
					Debug("record outside active week")
				continue
			}
			n.log.WithError(err).WithFields(logrus.Fields{"source": rec.Source, "title": rec.Title}).
				Warn("skipping malformed record")
			continue
		}
		items = append(items, it)
	}
	return items
}

func (n *Normalizer) one(rec Record, weekStart time.Time) (model.Item, error) {
	var zero model.Item

	if !rec.Source.IsValid() {
		return zero, fmt.Errorf("%w: unknown source %q", ErrMalformedRecord, rec.Source)
	}

	it := model.Item{
		Source:   rec.Source,
		Title:    rec.Title,
		Priority: model.PriorityNone,
	}

	switch rec.Source {
	case model.SourceTask:
		p, ok := priorityFromCode(rec.Priority)
		if !ok {
			return zero, fmt.Errorf("%w: priority code %d", ErrMalformedRecord, rec.Priority)
		}
		it.Priority = p
		it.Completed = rec.Completed
	case model.SourceEvent:
		it.Category = rec.Calendar
	}

	// Tasks without a start date fall back to the due date.
	startStr := rec.Start
	endStr := rec.End
	if rec.Source == model.SourceTask && startStr == "" {
		startStr = endStr
	}
	if startStr == "" {
		return zero, fmt.Errorf("%w: no usable start timestamp", ErrMalformedRecord)
	}

	start, dateOnly, err := n.parseStamp(startStr)
	if err != nil {
		return zero, fmt.Errorf("%w: start %q: %v", ErrMalformedRecord, startStr, err)
	}
	it.Start = start
	it.AllDay = rec.AllDay || dateOnly

	if endStr != "" && endStr != startStr {
		end, _, err := n.parseStamp(endStr)
		if err != nil {
			return zero, fmt.Errorf("%w: end %q: %v", ErrMalformedRecord, endStr, err)
		}
		it.End = end
	}

	span, err := n.daySpan(it.Start, it.End, weekStart)
	if err != nil {
		return zero, err
	}
	it.DaySpan = span

	if err := it.Validate(); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return it, nil
}

// parseStamp parses one provider timestamp into the display timezone and
// reports whether it was date-only.
func (n *Normalizer) parseStamp(s string) (time.Time, bool, error) {
	if t, err := time.ParseInLocation(dateOnlyLayout, s, n.loc); err == nil {
		return t, true, nil
	}
	for _, layout := range stampLayouts {
		if t, err := time.ParseInLocation(layout, s, n.loc); err == nil {
			return t.In(n.loc), false, nil
		}
	}
	return time.Time{}, false, errors.New("unrecognized timestamp")
}

// daySpan expands [start, end] into the dates the item occupies, clipped
// to the week starting at weekStart. An end on a midnight after start is
// exclusive: a feed's one-day all-day entry ends on the next midnight and
// must span exactly one date.
func (n *Normalizer) daySpan(start, end, weekStart time.Time) ([]time.Time, error) {
	first := midnight(start)
	last := first
	if !end.IsZero() && end.After(start) {
		e := end
		if isMidnight(e) {
			e = e.AddDate(0, 0, -1)
		}
		if d := midnight(e); d.After(last) {
			last = d
		}
	}

	lo, hi := first, last
	if lo.Before(weekStart) {
		lo = weekStart
	}
	weekLast := weekStart.AddDate(0, 0, 6)
	if hi.After(weekLast) {
		hi = weekLast
	}
	if lo.After(hi) {
		return nil, errOutsideWeek
	}

	span := make([]time.Time, 0, 7)
	for d := lo; !d.After(hi); d = d.AddDate(0, 0, 1) {
		span = append(span, d)
	}
	return span, nil
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

func priorityFromCode(code int) (model.Priority, bool) {
	switch code {
	case 0:
		return model.PriorityNone, true
	case 1:
		return model.PriorityLow, true
	case 2:
		return model.PriorityMedium, true
	case 3:
		return model.PriorityHigh, true
	}
	return "", false
}
