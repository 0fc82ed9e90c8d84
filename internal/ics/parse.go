package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/sirupsen/logrus"
)

// Event is one VEVENT before recurrence expansion.
type Event struct {
	Source Source

	UID     string
	Summary string

	Start  time.Time
	End    time.Time
	AllDay bool

	// RRule is the raw RRULE value; expansion happens in expand.go.
	RRule   string
	ExDates []time.Time

	// RecurrenceID is set when this VEVENT overrides one instance of a
	// recurring event.
	RecurrenceID *time.Time
}

// Parse reads one ICS payload into events. Individual VEVENTs that fail to
// parse are skipped so one broken entry cannot take down the feed.
func (f *Fetcher) Parse(src Source, body []byte) ([]Event, error) {
	if len(body) == 0 {
		return nil, errors.New("ics: empty body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(src, ve)
		if err != nil {
			f.log.WithError(err).WithField("id", src.ID).Warn("skipping unparseable vevent")
			continue
		}
		events = append(events, ev)
	}
	f.log.WithFields(logrus.Fields{"id": src.ID, "events": len(events)}).Debug("ics parsed")
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (Event, error) {
	out := Event{Source: src}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}

	// The library resolves TZID/VTIMEZONE when building these.
	start, _ := ve.GetStartAt()
	end, _ := ve.GetEndAt()
	out.Start = start
	out.End = end

	// All-day when DTSTART carries VALUE=DATE or has no time component.
	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			out.AllDay = true
		}
		if !strings.Contains(p.Value, "T") {
			out.AllDay = true
		}
		// Some library versions refuse date-only values in GetStartAt.
		if out.AllDay && out.Start.IsZero() {
			if t, err := parseCalTime(p.Value); err == nil {
				out.Start = t
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil {
		if out.AllDay && out.End.IsZero() {
			if t, err := parseCalTime(p.Value); err == nil {
				out.End = t
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = p.Value
	}

	// EXDATE may repeat and each value may hold a comma list.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseCalTime(part); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseCalTime(p.Value); err == nil {
			out.RecurrenceID = &t
		}
	}

	return out, nil
}

// parseCalTime covers the basic ICS date and date-time forms for values
// (EXDATE, RECURRENCE-ID) where full parameter context is not available.
// Floating times resolve in the system zone, matching how the calendar
// library resolves floating DTSTART values.
func parseCalTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, time.Local)
	default:
		return time.ParseInLocation("20060102", v, time.Local)
	}
}
