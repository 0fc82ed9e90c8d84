package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/sirupsen/logrus"

	"taskcal/internal/log"
	"taskcal/internal/model"
	"taskcal/internal/normalize"
)

const defaultMaxPerEvent = 1000

// Occurrence is one concrete instance of an event after recurrence
// expansion, in the display timezone.
type Occurrence struct {
	SourceID   string
	SourceName string
	UID        string
	Summary    string
	AllDay     bool
	Start      time.Time
	End        time.Time
}

// ExpandOptions bounds recurrence expansion.
type ExpandOptions struct {
	// Location is the display timezone occurrences convert into. Nil means
	// UTC.
	Location *time.Location
	// From and To are the inclusive window, typically the active week.
	From time.Time
	To   time.Time
	// MaxPerEvent caps runaway rules. Zero means defaultMaxPerEvent.
	MaxPerEvent int
	// Log is optional.
	Log *logrus.Entry
}

func (o *ExpandOptions) fill() error {
	if o.To.Before(o.From) {
		return errors.New("ics: expansion window ends before it starts")
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.MaxPerEvent <= 0 {
		o.MaxPerEvent = defaultMaxPerEvent
	}
	if o.Log == nil {
		o.Log = log.Discard()
	}
	return nil
}

// Expand turns parsed events into concrete occurrences inside the window.
// It handles plain events, RRULE recurrence, EXDATE removals, and
// RECURRENCE-ID overrides. All-day occurrences span [midnight, next
// midnight) in the event's own zone before display conversion.
func Expand(events []Event, opt ExpandOptions) ([]Occurrence, error) {
	if err := opt.fill(); err != nil {
		return nil, err
	}

	// Overrides replace individual instances of the base event that shares
	// their UID.
	base := make([]Event, 0, len(events))
	overrides := make(map[string][]Event)
	for _, ev := range events {
		if ev.RecurrenceID != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		base = append(base, ev)
	}

	occs := make([]Occurrence, 0, len(base))
	for _, ev := range base {
		if ev.RRule == "" {
			if occ, ok := expandPlain(ev, overrides[ev.UID], opt); ok {
				occs = append(occs, occ)
			}
			continue
		}
		occs = append(occs, expandRecurring(ev, overrides[ev.UID], opt)...)
	}
	return occs, nil
}

func expandPlain(ev Event, overrides []Event, opt ExpandOptions) (Occurrence, bool) {
	// Events without DTEND are instantaneous for the window check.
	effEnd := ev.End
	if effEnd.IsZero() {
		effEnd = ev.Start
	}
	if !rangesOverlap(ev.Start, effEnd, opt.From, opt.To) {
		return Occurrence{}, false
	}
	start, end := ev.Start, ev.End
	if o, ok := overrideFor(overrides, start); ok {
		ev, start, end = o, o.Start, o.End
	}
	return makeOccurrence(ev, start, end, opt.Location), true
}

func expandRecurring(ev Event, overrides []Event, opt ExpandOptions) []Occurrence {
	rule, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		opt.Log.WithError(err).WithFields(logrus.Fields{"uid": ev.UID, "rrule": ev.RRule}).
			Warn("skipping unparseable rrule")
		return nil
	}
	rule.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	from := opt.From.In(ev.Start.Location())
	to := opt.To.In(ev.Start.Location())
	starts := set.Between(from, to, true)
	if len(starts) > opt.MaxPerEvent {
		starts = starts[:opt.MaxPerEvent]
		opt.Log.WithFields(logrus.Fields{"uid": ev.UID, "cap": opt.MaxPerEvent}).
			Warn("recurrence expansion truncated")
	}

	var dur time.Duration
	if ev.End.After(ev.Start) {
		dur = ev.End.Sub(ev.Start)
	}
	out := make([]Occurrence, 0, len(starts))
	for _, start := range starts {
		var end time.Time
		if ev.AllDay {
			start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
			end = start.Add(24 * time.Hour)
		} else {
			end = start.Add(dur)
		}
		inst := ev
		if o, ok := overrideFor(overrides, start); ok {
			inst, start, end = o, o.Start, o.End
		}
		out = append(out, makeOccurrence(inst, start, end, opt.Location))
	}
	return out
}

// overrideFor matches an override whose RECURRENCE-ID equals the instance
// start.
func overrideFor(overrides []Event, start time.Time) (Event, bool) {
	for _, o := range overrides {
		if o.RecurrenceID != nil && o.RecurrenceID.In(start.Location()).Equal(start) {
			return o, true
		}
	}
	return Event{}, false
}

func makeOccurrence(ev Event, start, end time.Time, loc *time.Location) Occurrence {
	return Occurrence{
		SourceID:   ev.Source.ID,
		SourceName: ev.Source.Name,
		UID:        ev.UID,
		Summary:    ev.Summary,
		AllDay:     ev.AllDay,
		Start:      start.In(loc),
		End:        end.In(loc),
	}
}

func rangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}

// Records converts occurrences into normalizer rows. The source name rides
// along as the calendar identity, which is what the palette keys on.
func Records(occs []Occurrence) []normalize.Record {
	recs := make([]normalize.Record, 0, len(occs))
	for _, occ := range occs {
		end := ""
		if !occ.End.IsZero() && occ.End.After(occ.Start) {
			end = occ.End.Format(time.RFC3339Nano)
		}
		recs = append(recs, normalize.Record{
			Source:   model.SourceEvent,
			Title:    occ.Summary,
			Start:    occ.Start.Format(time.RFC3339Nano),
			End:      end,
			AllDay:   occ.AllDay,
			Calendar: occ.SourceName,
		})
	}
	return recs
}
