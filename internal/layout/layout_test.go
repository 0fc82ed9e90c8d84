package layout

import (
	"testing"
	"time"

	"taskcal/internal/model"
	"taskcal/internal/style"
)

var week = time.Date(2024, time.June, 2, 0, 0, 0, 0, time.UTC) // a Sunday

func date(d int) time.Time {
	return time.Date(2024, time.June, d, 0, 0, 0, 0, time.UTC)
}

func at(d, h, m int) time.Time {
	return time.Date(2024, time.June, d, h, m, 0, 0, time.UTC)
}

func timedItem(title string, start, end time.Time) model.Item {
	return model.Item{
		Source:   model.SourceEvent,
		Title:    title,
		Start:    start,
		End:      end,
		DaySpan:  []time.Time{date(start.Day())},
		Priority: model.PriorityNone,
		Category: "primary",
	}
}

func allDayTask(title string, days ...int) model.Item {
	span := make([]time.Time, len(days))
	for i, d := range days {
		span[i] = date(d)
	}
	return model.Item{
		Source:   model.SourceTask,
		Title:    title,
		AllDay:   true,
		Start:    span[0],
		DaySpan:  span,
		Priority: model.PriorityNone,
	}
}

func newEngine() *Engine { return NewEngine(style.Default(), nil) }

func TestColumnsRemainder(t *testing.T) {
	cols := Columns(1200)
	total := 0
	for i, c := range cols {
		if i < 6 && c.W != 171 {
			t.Fatalf("column %d width %d, want 171", i, c.W)
		}
		if c.X != i*171 {
			t.Fatalf("column %d x %d, want %d", i, c.X, i*171)
		}
		total += c.W
	}
	if cols[6].W != 174 {
		t.Fatalf("last column width %d, want 174", cols[6].W)
	}
	if total != 1200 {
		t.Fatalf("columns cover %d px, want 1200", total)
	}
}

func TestSingleDayItemOneBox(t *testing.T) {
	e := newEngine()
	boxes := e.Compute(week, []model.Item{allDayTask("Buy milk", 4)}, 1200, 800)
	if len(boxes) != 1 {
		t.Fatalf("got %d boxes, want 1", len(boxes))
	}
	if boxes[0].Day != 2 {
		t.Fatalf("June 4 should land in column 2, got %d", boxes[0].Day)
	}
}

func TestMultiDayItemOneBoxPerDate(t *testing.T) {
	e := newEngine()
	boxes := e.Compute(week, []model.Item{allDayTask("Offsite", 3, 4, 5)}, 1200, 800)
	if len(boxes) != 3 {
		t.Fatalf("got %d boxes, want 3", len(boxes))
	}
	for i, b := range boxes {
		if b.Day != 1+i {
			t.Fatalf("box %d in column %d, want %d", i, b.Day, 1+i)
		}
		if b.Y != 5 {
			t.Fatalf("box %d at y %d, want 5", i, b.Y)
		}
	}
}

func TestMultiDayStacksPerColumn(t *testing.T) {
	e := newEngine()
	items := []model.Item{
		allDayTask("Monday only", 3),
		allDayTask("Offsite", 3, 4),
	}
	boxes := e.Compute(week, items, 1200, 800)
	if len(boxes) != 3 {
		t.Fatalf("got %d boxes, want 3", len(boxes))
	}
	// Monday stacks both, in input order; Tuesday has the offsite at the
	// top of its own column.
	byDay := map[int][]DrawBox{}
	for _, b := range boxes {
		byDay[b.Day] = append(byDay[b.Day], b)
	}
	mon := byDay[1]
	if len(mon) != 2 || mon[0].Text != "Monday only" || mon[0].Y != 5 || mon[1].Y != 40 {
		t.Fatalf("unexpected Monday stack: %+v", mon)
	}
	tue := byDay[2]
	if len(tue) != 1 || tue[0].Y != 5 {
		t.Fatalf("offsite should top Tuesday's column: %+v", tue)
	}
}

func TestTimedHeights(t *testing.T) {
	e := newEngine()
	cases := []struct {
		mins int
		want int // units
	}{
		{15, 1},
		{30, 1},
		{31, 2},
		{60, 2},
		{90, 3},
		{150, 5},
		{179, 6},
		{180, 1},
		{240, 1},
	}
	for _, tc := range cases {
		it := timedItem("x", at(4, 9, 0), at(4, 9, 0).Add(time.Duration(tc.mins)*time.Minute))
		boxes := e.Compute(week, []model.Item{it}, 1200, 800)
		if len(boxes) != 1 {
			t.Fatalf("%d mins: got %d boxes", tc.mins, len(boxes))
		}
		if got := boxes[0].Height; got != tc.want*30 {
			t.Fatalf("%d mins: height %d, want %d units", tc.mins, got, tc.want)
		}
	}
}

func TestHeightMonotonicBelowCollapse(t *testing.T) {
	e := newEngine()
	prev := 0
	for mins := 1; mins < 180; mins++ {
		it := timedItem("x", at(4, 8, 0), at(4, 8, 0).Add(time.Duration(mins)*time.Minute))
		h := e.Compute(week, []model.Item{it}, 1200, 800)[0].Height
		if h < prev {
			t.Fatalf("height shrank at %d mins: %d < %d", mins, h, prev)
		}
		prev = h
	}
}

func TestZeroDurationMinimumHeight(t *testing.T) {
	e := newEngine()
	it := timedItem("x", at(4, 9, 0), time.Time{})
	it.End = time.Time{}
	boxes := e.Compute(week, []model.Item{it}, 1200, 800)
	if boxes[0].Height != 30 {
		t.Fatalf("absent end should give one unit, got %d", boxes[0].Height)
	}
}

func TestColumnOrdering(t *testing.T) {
	e := newEngine()
	items := []model.Item{
		timedItem("late", at(4, 15, 0), at(4, 15, 30)),
		allDayTask("chore A", 4),
		timedItem("early", at(4, 9, 30), at(4, 10, 0)),
		allDayTask("chore B", 4),
	}
	boxes := e.Compute(week, items, 1200, 800)
	if len(boxes) != 4 {
		t.Fatalf("got %d boxes, want 4", len(boxes))
	}
	wantOrder := []string{"chore A", "chore B", "9:30 AM early", "3:00 PM late"}
	for i, want := range wantOrder {
		if boxes[i].Text != want {
			t.Fatalf("boxes[%d].Text = %q, want %q", i, boxes[i].Text, want)
		}
	}
	if !boxes[0].AllDay || boxes[2].AllDay {
		t.Fatal("all-day flags misplaced")
	}
	// Stacking is cumulative from the top inset.
	ys := []int{5, 40, 75, 110}
	for i, want := range ys {
		if boxes[i].Y != want {
			t.Fatalf("boxes[%d].Y = %d, want %d", i, boxes[i].Y, want)
		}
	}
}

func TestStableTieOrder(t *testing.T) {
	e := newEngine()
	items := []model.Item{
		timedItem("first", at(4, 9, 0), at(4, 9, 30)),
		timedItem("second", at(4, 9, 0), at(4, 9, 30)),
	}
	boxes := e.Compute(week, items, 1200, 800)
	if boxes[0].Text != "9:00 AM first" || boxes[1].Text != "9:00 AM second" {
		t.Fatalf("tie order not stable: %q, %q", boxes[0].Text, boxes[1].Text)
	}
}

func TestSundayScenario(t *testing.T) {
	e := newEngine()
	items := []model.Item{
		allDayTask("Buy milk", 2),
		timedItem("Standup", at(2, 9, 30), at(2, 10, 0)),
	}
	boxes := e.Compute(week, items, 1200, 800)
	if len(boxes) != 2 {
		t.Fatalf("got %d boxes, want 2", len(boxes))
	}
	milk, standup := boxes[0], boxes[1]
	if milk.Day != 0 || standup.Day != 0 {
		t.Fatalf("both belong in Sunday's column: %+v", boxes)
	}
	if milk.Text != "Buy milk" || !milk.AllDay {
		t.Fatalf("unexpected all-day box: %+v", milk)
	}
	if standup.Text != "9:30 AM Standup" {
		t.Fatalf("timed text = %q", standup.Text)
	}
	if standup.Y <= milk.Y {
		t.Fatal("timed box should stack below the all-day box")
	}
}

func TestFillResolution(t *testing.T) {
	e := newEngine()
	s := style.Default()

	task := allDayTask("t", 4)
	task.Priority = model.PriorityHigh
	ev := timedItem("e", at(4, 9, 0), at(4, 9, 30))
	ev.Category = "holidays"
	unknown := timedItem("u", at(4, 10, 0), at(4, 10, 30))
	unknown.Category = "someone-elses-feed"

	boxes := e.Compute(week, []model.Item{task, ev, unknown}, 1200, 800)
	if boxes[0].Fill != style.Red {
		t.Fatalf("high priority fill = %v, want red", boxes[0].Fill)
	}
	if boxes[1].Fill != style.Green {
		t.Fatalf("holidays fill = %v, want green", boxes[1].Fill)
	}
	if boxes[2].Fill != s.EventFallback {
		t.Fatalf("unknown category fill = %v, want fallback", boxes[2].Fill)
	}
}

func TestCompletedBeatsPriority(t *testing.T) {
	e := newEngine()
	task := allDayTask("done", 4)
	task.Priority = model.PriorityHigh
	task.Completed = true
	boxes := e.Compute(week, []model.Item{task}, 1200, 800)
	if boxes[0].Fill != style.Gray {
		t.Fatalf("completed task fill = %v, want gray", boxes[0].Fill)
	}
}

func TestOutOfWeekDateDropped(t *testing.T) {
	e := newEngine()
	it := allDayTask("stray", 4)
	it.DaySpan = append(it.DaySpan, date(25)) // defensive: span leaked past the week
	boxes := e.Compute(week, []model.Item{it}, 1200, 800)
	if len(boxes) != 1 || boxes[0].Day != 2 {
		t.Fatalf("stray date should drop, got %+v", boxes)
	}
}

func TestTruncate(t *testing.T) {
	long := "abcdefghijklmnopqrstuvwxyz1234" // 30 runes
	got := Truncate(long, 25)
	if got != "abcdefghijklmnopqrstuvwxy…" {
		t.Fatalf("got %q", got)
	}
	if Truncate(got, 25) != got {
		t.Fatal("truncation should be idempotent")
	}
	exact := "abcdefghijklmnopqrstuvwxy" // 25 runes
	if Truncate(exact, 25) != exact {
		t.Fatal("string at the limit should pass through")
	}
	if Truncate("short", 25) != "short" {
		t.Fatal("short string should pass through")
	}
	if Truncate("héllo wörld és more text hére", 25) != "héllo wörld és more text …" {
		t.Fatalf("rune-aware cut failed: %q", Truncate("héllo wörld és more text hére", 25))
	}
}

func TestTruncateInLayoutText(t *testing.T) {
	e := newEngine()
	long := allDayTask("abcdefghijklmnopqrstuvwxyz1234", 4)
	timed := timedItem("abcdefghijklmnopqrstuvwxyz", at(4, 9, 30), at(4, 10, 0))
	boxes := e.Compute(week, []model.Item{long, timed}, 1200, 800)
	if boxes[0].Text != "abcdefghijklmnopqrstuvwxy…" {
		t.Fatalf("all-day text = %q", boxes[0].Text)
	}
	if boxes[1].Text != "9:30 AM abcdefghijklmnopqrst…" {
		t.Fatalf("timed text = %q", boxes[1].Text)
	}
}
