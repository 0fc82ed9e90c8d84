package ics

import (
	"strings"
	"testing"
	"time"

	"taskcal/internal/model"
)

func icsBody(lines ...string) []byte {
	all := append([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//taskcal//test//EN",
	}, lines...)
	all = append(all, "END:VCALENDAR")
	return []byte(strings.Join(all, "\r\n") + "\r\n")
}

func testFetcher(t *testing.T) *Fetcher {
	t.Helper()
	return NewFetcher(t.TempDir(), nil)
}

var testSrc = Source{ID: "cal1", Name: "primary", URL: "https://example.com/cal.ics"}

func TestParseTimedEvent(t *testing.T) {
	body := icsBody(
		"BEGIN:VEVENT",
		"UID:ev-1",
		"DTSTART:20240602T093000Z",
		"DTEND:20240602T100000Z",
		"SUMMARY:Standup",
		"END:VEVENT",
	)
	events, err := testFetcher(t).Parse(testSrc, body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.UID != "ev-1" || ev.Summary != "Standup" || ev.AllDay {
		t.Fatalf("unexpected event: %+v", ev)
	}
	want := time.Date(2024, time.June, 2, 9, 30, 0, 0, time.UTC)
	if !ev.Start.Equal(want) {
		t.Fatalf("start = %v, want %v", ev.Start, want)
	}
	if !ev.End.Equal(want.Add(30 * time.Minute)) {
		t.Fatalf("end = %v", ev.End)
	}
	if ev.Source.Name != "primary" {
		t.Fatalf("source not carried: %+v", ev.Source)
	}
}

func TestParseAllDayEvent(t *testing.T) {
	body := icsBody(
		"BEGIN:VEVENT",
		"UID:ev-2",
		"DTSTART;VALUE=DATE:20240603",
		"DTEND;VALUE=DATE:20240604",
		"SUMMARY:Festival",
		"END:VEVENT",
	)
	events, err := testFetcher(t).Parse(testSrc, body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if !ev.AllDay {
		t.Fatal("VALUE=DATE should mark the event all-day")
	}
	if ev.Start.IsZero() {
		t.Fatal("all-day start should parse")
	}
	if ev.Start.Day() != 3 {
		t.Fatalf("start day = %d, want 3", ev.Start.Day())
	}
}

func TestParseSkipsEventWithoutUID(t *testing.T) {
	body := icsBody(
		"BEGIN:VEVENT",
		"DTSTART:20240602T093000Z",
		"SUMMARY:No identity",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:ok",
		"DTSTART:20240602T110000Z",
		"SUMMARY:Fine",
		"END:VEVENT",
	)
	events, err := testFetcher(t).Parse(testSrc, body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(events) != 1 || events[0].UID != "ok" {
		t.Fatalf("broken vevent should be skipped: %+v", events)
	}
}

func TestParseRecurrenceFields(t *testing.T) {
	body := icsBody(
		"BEGIN:VEVENT",
		"UID:ev-3",
		"DTSTART:20240602T093000Z",
		"DTEND:20240602T100000Z",
		"SUMMARY:Standup",
		"RRULE:FREQ=WEEKLY;COUNT=5",
		"EXDATE:20240609T093000Z",
		"END:VEVENT",
	)
	events, err := testFetcher(t).Parse(testSrc, body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ev := events[0]
	if ev.RRule != "FREQ=WEEKLY;COUNT=5" {
		t.Fatalf("rrule = %q", ev.RRule)
	}
	if len(ev.ExDates) != 1 || !ev.ExDates[0].Equal(time.Date(2024, time.June, 9, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("exdates = %v", ev.ExDates)
	}
}

func weeklyStandup() Event {
	start := time.Date(2024, time.June, 2, 9, 30, 0, 0, time.UTC)
	return Event{
		Source:  testSrc,
		UID:     "standup",
		Summary: "Standup",
		Start:   start,
		End:     start.Add(30 * time.Minute),
		RRule:   "FREQ=WEEKLY;COUNT=10",
	}
}

func window(fromDay, toDay int) ExpandOptions {
	return ExpandOptions{
		Location: time.UTC,
		From:     time.Date(2024, time.June, fromDay, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2024, time.June, toDay, 0, 0, 0, 0, time.UTC),
	}
}

func TestExpandWeeklyRecurrence(t *testing.T) {
	occs, err := Expand([]Event{weeklyStandup()}, window(2, 17))
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 3 {
		t.Fatalf("got %d occurrences, want 3", len(occs))
	}
	second := occs[1]
	if second.Start.Day() != 9 || second.Start.Hour() != 9 || second.Start.Minute() != 30 {
		t.Fatalf("second occurrence at %v", second.Start)
	}
	if !second.End.Equal(second.Start.Add(30 * time.Minute)) {
		t.Fatal("duration not preserved across instances")
	}
}

func TestExpandExdateRemovesInstance(t *testing.T) {
	ev := weeklyStandup()
	ev.ExDates = []time.Time{time.Date(2024, time.June, 9, 9, 30, 0, 0, time.UTC)}
	occs, err := Expand([]Event{ev}, window(2, 17))
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 2 {
		t.Fatalf("got %d occurrences, want 2", len(occs))
	}
	for _, occ := range occs {
		if occ.Start.Day() == 9 {
			t.Fatalf("excluded instance survived: %v", occ.Start)
		}
	}
}

func TestExpandOverrideReplacesInstance(t *testing.T) {
	rid := time.Date(2024, time.June, 9, 9, 30, 0, 0, time.UTC)
	moved := time.Date(2024, time.June, 9, 14, 0, 0, 0, time.UTC)
	override := Event{
		Source:       testSrc,
		UID:          "standup",
		Summary:      "Standup (moved)",
		Start:        moved,
		End:          moved.Add(30 * time.Minute),
		RecurrenceID: &rid,
	}
	occs, err := Expand([]Event{weeklyStandup(), override}, window(2, 17))
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 3 {
		t.Fatalf("got %d occurrences, want 3", len(occs))
	}
	var found bool
	for _, occ := range occs {
		if occ.Summary == "Standup (moved)" {
			found = true
			if !occ.Start.Equal(moved) {
				t.Fatalf("override start = %v", occ.Start)
			}
		}
	}
	if !found {
		t.Fatal("override did not replace its instance")
	}
}

func TestExpandAllDayDaily(t *testing.T) {
	ev := Event{
		Source:  testSrc,
		UID:     "chores",
		Summary: "Chores",
		Start:   time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC),
		AllDay:  true,
		RRule:   "FREQ=DAILY;COUNT=3",
	}
	occs, err := Expand([]Event{ev}, window(2, 9))
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 3 {
		t.Fatalf("got %d occurrences, want 3", len(occs))
	}
	for i, occ := range occs {
		if occ.Start.Day() != 3+i {
			t.Fatalf("occ[%d] on day %d", i, occ.Start.Day())
		}
		if !occ.End.Equal(occ.Start.Add(24 * time.Hour)) {
			t.Fatalf("all-day occurrence should end next midnight: %v..%v", occ.Start, occ.End)
		}
	}
}

func TestExpandPlainEventWindow(t *testing.T) {
	start := time.Date(2024, time.June, 5, 13, 0, 0, 0, time.UTC)
	ev := Event{Source: testSrc, UID: "once", Summary: "Dentist", Start: start, End: start.Add(time.Hour)}

	occs, err := Expand([]Event{ev}, window(2, 9))
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 1 {
		t.Fatalf("got %d occurrences, want 1", len(occs))
	}

	occs, err = Expand([]Event{ev}, window(16, 23))
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(occs) != 0 {
		t.Fatalf("event outside window should not expand, got %d", len(occs))
	}
}

func TestExpandBadWindow(t *testing.T) {
	if _, err := Expand(nil, window(9, 2)); err == nil {
		t.Fatal("inverted window should error")
	}
}

func TestRecordsFromOccurrences(t *testing.T) {
	start := time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)
	occs := []Occurrence{
		{SourceName: "work", Summary: "1:1", Start: start, End: start.Add(time.Hour)},
		{SourceName: "holidays", Summary: "Day off", Start: start, AllDay: true},
	}
	recs := Records(occs)
	if len(recs) != 2 {
		t.Fatalf("got %d records", len(recs))
	}
	if recs[0].Source != model.SourceEvent || recs[0].Calendar != "work" {
		t.Fatalf("unexpected record: %+v", recs[0])
	}
	if recs[0].Start != "2024-06-03T09:00:00Z" {
		t.Fatalf("start string = %q", recs[0].Start)
	}
	if recs[1].End != "" {
		t.Fatalf("zero end should stay empty, got %q", recs[1].End)
	}
	if !recs[1].AllDay {
		t.Fatal("all-day flag dropped")
	}
}
