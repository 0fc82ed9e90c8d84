package model

import (
	"errors"
	"fmt"
	"time"
)

// Source identifies which provider family an item came from.
type Source string

const (
	// SourceEvent marks items fetched from a calendar feed.
	SourceEvent Source = "event"
	// SourceTask marks items fetched from a task provider.
	SourceTask Source = "task"
)

// IsValid reports whether s is a known source.
func (s Source) IsValid() bool {
	switch s {
	case SourceEvent, SourceTask:
		return true
	}
	return false
}

func (s Source) String() string { return string(s) }

// Priority is the urgency level of a task. Events always carry
// PriorityNone.
type Priority string

const (
	PriorityNone   Priority = "none"
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityNone, PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

func (p Priority) String() string { return string(p) }

var (
	ErrInvalidSource   = errors.New("model: invalid item source")
	ErrInvalidPriority = errors.New("model: invalid task priority")
	ErrEmptyDaySpan    = errors.New("model: item has empty day span")
	ErrSourceFields    = errors.New("model: field not allowed for source")
)

// Item is one normalized calendar entry, event or task, with all times in
// the display timezone. The normalizer is the only producer; downstream
// stages treat items as read-only values.
type Item struct {
	Source Source
	Title  string

	AllDay bool

	// Start / End in the display timezone. End may be zero when the
	// provider gave no end or due timestamp.
	Start time.Time
	End   time.Time

	// DaySpan lists every date (midnight, display timezone) the item
	// occupies inside the active week, ascending. Always at least one
	// entry.
	DaySpan []time.Time

	// Priority is meaningful for tasks only; events hold PriorityNone.
	Priority Priority
	// Category is meaningful for events only; it is the calendar identity
	// the event came from (e.g. "primary", "holidays", "work").
	Category string
	// Completed is meaningful for tasks only.
	Completed bool
}

// Validate checks the invariants the normalizer must uphold before an item
// leaves it.
func (it Item) Validate() error {
	if !it.Source.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidSource, it.Source)
	}
	if !it.Priority.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, it.Priority)
	}
	if len(it.DaySpan) == 0 {
		return ErrEmptyDaySpan
	}
	switch it.Source {
	case SourceEvent:
		if it.Priority != PriorityNone {
			return fmt.Errorf("%w: event with priority %q", ErrSourceFields, it.Priority)
		}
		if it.Completed {
			return fmt.Errorf("%w: event marked completed", ErrSourceFields)
		}
	case SourceTask:
		if it.Category != "" {
			return fmt.Errorf("%w: task with category %q", ErrSourceFields, it.Category)
		}
	}
	return nil
}

// Duration returns End minus Start, or zero when the end is absent or not
// after the start.
func (it Item) Duration() time.Duration {
	if it.End.IsZero() || !it.End.After(it.Start) {
		return 0
	}
	return it.End.Sub(it.Start)
}

// MultiDay reports whether the item occupies more than one date.
func (it Item) MultiDay() bool { return len(it.DaySpan) > 1 }
