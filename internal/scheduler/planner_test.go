package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/friendsincode/munin_post/internal/calendar"
	"github.com/friendsincode/munin_post/internal/slots"
)

func newTestPlanner(t *testing.T) *Planner {
	t.Helper()
	return NewPlanner(calendar.New(), slots.Default())
}

// monday returns Monday 2026-08-24 at midnight Eastern.
func monday(t *testing.T, p *Planner) time.Time {
	t.Helper()
	return time.Date(2026, time.August, 24, 0, 0, 0, 0, p.Plan().Location())
}

// bookDay occupies every slot of the given date.
func bookDay(t *testing.T, p *Planner, committed *slots.Committed, day time.Time) {
	t.Helper()
	for idx := 0; idx < p.Plan().Capacity(); idx++ {
		at, err := p.Plan().At(day, idx)
		if err != nil {
			t.Fatalf("At(%s, %d): %v", day.Format("2006-01-02"), idx, err)
		}
		committed.Add(at)
	}
}

// Four messages from one source on an empty calendar land on four
// consecutive business days, each at the first declared slot (09:00),
// because every message opens a fresh date.
func TestScheduleMessagesConsecutiveDays(t *testing.T) {
	p := newTestPlanner(t)
	start := monday(t, p)

	got, err := p.ScheduleMessages(4, p.Plan().NewCommitted(), start)
	if err != nil {
		t.Fatalf("ScheduleMessages: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("len(got) = %d, want 4", len(got))
	}

	want := []string{
		"2026-08-24 09:00",
		"2026-08-25 09:00",
		"2026-08-26 09:00",
		"2026-08-27 09:00",
	}
	for i, w := range want {
		if g := got[i].Format("2006-01-02 15:04"); g != w {
			t.Errorf("got[%d] = %s, want %s", i, g, w)
		}
	}
}

// Two sources targeting the same start date interleave through the
// declared slot order: the second source's messages take 13:00 on the
// dates whose 09:00 the first source already holds.
func TestScheduleMessagesInterleavesSources(t *testing.T) {
	p := newTestPlanner(t)
	start := monday(t, p)
	committed := p.Plan().NewCommitted()

	a, err := p.ScheduleMessages(2, committed, start)
	if err != nil {
		t.Fatalf("schedule source A: %v", err)
	}
	for _, at := range a {
		committed.Add(at)
	}

	b, err := p.ScheduleMessages(2, committed, start)
	if err != nil {
		t.Fatalf("schedule source B: %v", err)
	}

	wantA := []string{"2026-08-24 09:00", "2026-08-25 09:00"}
	wantB := []string{"2026-08-24 13:00", "2026-08-25 13:00"}
	for i := range wantA {
		if g := a[i].Format("2006-01-02 15:04"); g != wantA[i] {
			t.Errorf("a[%d] = %s, want %s", i, g, wantA[i])
		}
		if g := b[i].Format("2006-01-02 15:04"); g != wantB[i] {
			t.Errorf("b[%d] = %s, want %s", i, g, wantB[i])
		}
	}

	// No two assignments across both runs share an instant.
	seen := make(map[time.Time]bool)
	for _, at := range append(append([]time.Time{}, a...), b...) {
		if seen[at] {
			t.Errorf("instant %s double-booked", at)
		}
		seen[at] = true
	}
}

// Messages of one batch never share a civil date, and never share an
// instant, whatever the committed backdrop.
func TestScheduleMessagesOnePerSourcePerDay(t *testing.T) {
	p := newTestPlanner(t)
	start := monday(t, p)
	committed := p.Plan().NewCommitted()

	// Partially book the first week so allocation has to work around it.
	mon := start
	nine, _ := p.Plan().At(mon, 0)
	thirteen, _ := p.Plan().At(mon.AddDate(0, 0, 1), 1)
	committed.Add(nine)
	committed.Add(thirteen)

	got, err := p.ScheduleMessages(5, committed, start)
	if err != nil {
		t.Fatalf("ScheduleMessages: %v", err)
	}

	dates := make(map[string]bool)
	instants := make(map[time.Time]bool)
	for _, at := range got {
		d := at.Format("2006-01-02")
		if dates[d] {
			t.Errorf("date %s used twice within one batch", d)
		}
		dates[d] = true
		if instants[at] {
			t.Errorf("instant %s assigned twice", at)
		}
		instants[at] = true
	}
}

// A fully booked day is skipped entirely.
func TestScheduleMessagesSkipsFullDay(t *testing.T) {
	p := newTestPlanner(t)
	start := monday(t, p)
	committed := p.Plan().NewCommitted()
	bookDay(t, p, committed, start)

	got, err := p.ScheduleMessages(1, committed, start)
	if err != nil {
		t.Fatalf("ScheduleMessages: %v", err)
	}
	if g := got[0].Format("2006-01-02 15:04"); g != "2026-08-25 09:00" {
		t.Errorf("got[0] = %s, want 2026-08-25 09:00", g)
	}
}

// Weekends and holidays never receive assignments. Saturday 2026-09-05
// rolls through Labor Day (Monday 2026-09-07) to Tuesday.
func TestScheduleMessagesRollsPastWeekendAndHoliday(t *testing.T) {
	p := newTestPlanner(t)
	start := time.Date(2026, time.September, 5, 0, 0, 0, 0, p.Plan().Location())

	got, err := p.ScheduleMessages(1, p.Plan().NewCommitted(), start)
	if err != nil {
		t.Fatalf("ScheduleMessages: %v", err)
	}
	if g := got[0].Format("2006-01-02 15:04"); g != "2026-09-08 09:00" {
		t.Errorf("got[0] = %s, want 2026-09-08 09:00", g)
	}
}

func TestScheduleMessagesCountEdges(t *testing.T) {
	p := newTestPlanner(t)

	got, err := p.ScheduleMessages(0, p.Plan().NewCommitted(), monday(t, p))
	if err != nil {
		t.Fatalf("ScheduleMessages(0): %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ScheduleMessages(0) returned %d assignments", len(got))
	}

	if _, err := p.ScheduleMessages(-1, p.Plan().NewCommitted(), monday(t, p)); err == nil {
		t.Error("ScheduleMessages(-1) returned no error")
	}
}

// The default start is tomorrow in the plan timezone.
func TestScheduleMessagesDefaultStart(t *testing.T) {
	p := newTestPlanner(t)
	loc := p.Plan().Location()
	p.now = func() time.Time {
		return time.Date(2026, time.August, 21, 16, 0, 0, 0, loc) // Friday afternoon
	}

	got, err := p.ScheduleMessages(1, p.Plan().NewCommitted(), time.Time{})
	if err != nil {
		t.Fatalf("ScheduleMessages: %v", err)
	}
	// Tomorrow is Saturday; the first assignment rolls to Monday.
	if g := got[0].Format("2006-01-02 15:04"); g != "2026-08-24 09:00" {
		t.Errorf("got[0] = %s, want 2026-08-24 09:00", g)
	}
}

// Seven fully booked upcoming business days defer a batch with a
// seven-day horizon.
func TestCanScheduleWithinDaysFullWeek(t *testing.T) {
	p := newTestPlanner(t)
	cal := calendar.New()
	start := monday(t, p)
	committed := p.Plan().NewCommitted()
	for day, booked := start, 0; booked < 7; day = day.AddDate(0, 0, 1) {
		if !cal.IsBusinessDay(day) {
			continue
		}
		bookDay(t, p, committed, day)
		booked++
	}

	ok, err := p.CanScheduleWithinDays(1, committed, 7, start)
	if err != nil {
		t.Fatalf("CanScheduleWithinDays: %v", err)
	}
	if ok {
		t.Error("CanScheduleWithinDays = true with every business day in the horizon booked")
	}
}

func TestCanScheduleWithinDaysFindsLaterDay(t *testing.T) {
	p := newTestPlanner(t)
	start := monday(t, p)
	committed := p.Plan().NewCommitted()
	bookDay(t, p, committed, start)
	bookDay(t, p, committed, start.AddDate(0, 0, 1))

	ok, err := p.CanScheduleWithinDays(3, committed, 7, start)
	if err != nil {
		t.Fatalf("CanScheduleWithinDays: %v", err)
	}
	if !ok {
		t.Error("CanScheduleWithinDays = false with Wednesday open")
	}
}

// The horizon gates only the first message: a long batch passes as long
// as its first assignment fits, even though later messages will land
// beyond the horizon.
func TestCanScheduleWithinDaysGatesFirstMessageOnly(t *testing.T) {
	p := newTestPlanner(t)

	ok, err := p.CanScheduleWithinDays(10, p.Plan().NewCommitted(), 3, monday(t, p))
	if err != nil {
		t.Fatalf("CanScheduleWithinDays: %v", err)
	}
	if !ok {
		t.Error("CanScheduleWithinDays = false for a batch whose first message fits")
	}
}

// A free day exactly at start+maxDays is outside the horizon.
func TestCanScheduleWithinDaysCutoffExclusive(t *testing.T) {
	p := newTestPlanner(t)
	start := monday(t, p)
	committed := p.Plan().NewCommitted()
	// Book Monday through Friday; the next business day is Monday the
	// 31st, exactly seven days out.
	for i := 0; i < 5; i++ {
		bookDay(t, p, committed, start.AddDate(0, 0, i))
	}

	ok, err := p.CanScheduleWithinDays(1, committed, 7, start)
	if err != nil {
		t.Fatalf("CanScheduleWithinDays: %v", err)
	}
	if ok {
		t.Error("CanScheduleWithinDays = true for a day exactly at the cutoff")
	}
}

func TestCanScheduleWithinDaysRejectsBadHorizon(t *testing.T) {
	p := newTestPlanner(t)
	if _, err := p.CanScheduleWithinDays(1, p.Plan().NewCommitted(), 0, monday(t, p)); err == nil {
		t.Error("CanScheduleWithinDays(horizon 0) returned no error")
	}
}

type exhaustedCalendar struct{}

func (exhaustedCalendar) NextBusinessDay(time.Time) (time.Time, error) {
	return time.Time{}, calendar.ErrExhausted
}

// A calendar that never yields a business day surfaces ErrExhausted
// instead of looping.
func TestScheduleMessagesCalendarExhausted(t *testing.T) {
	p := NewPlanner(exhaustedCalendar{}, slots.Default())

	_, err := p.ScheduleMessages(1, p.Plan().NewCommitted(), time.Date(2026, time.August, 24, 0, 0, 0, 0, p.Plan().Location()))
	if !errors.Is(err, calendar.ErrExhausted) {
		t.Fatalf("ScheduleMessages error = %v, want ErrExhausted", err)
	}

	ok, err := p.CanScheduleWithinDays(1, p.Plan().NewCommitted(), 7, time.Date(2026, time.August, 24, 0, 0, 0, 0, p.Plan().Location()))
	if ok || !errors.Is(err, calendar.ErrExhausted) {
		t.Fatalf("CanScheduleWithinDays = (%v, %v), want (false, ErrExhausted)", ok, err)
	}
}

// Day-hop retries over a saturated calendar are bounded.
func TestScheduleMessagesDayHopLimit(t *testing.T) {
	p := newTestPlanner(t)
	p.dayHopLimit = 3
	start := monday(t, p)
	committed := p.Plan().NewCommitted()
	for i := 0; i < 14; i++ {
		bookDay(t, p, committed, start.AddDate(0, 0, i))
	}

	_, err := p.ScheduleMessages(1, committed, start)
	if !errors.Is(err, calendar.ErrExhausted) {
		t.Fatalf("ScheduleMessages error = %v, want ErrExhausted", err)
	}
}

func TestIsTimeToPost(t *testing.T) {
	at := time.Date(2026, time.August, 24, 13, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before", at.Add(-time.Minute), false},
		{"exact", at, true},
		{"after", at.Add(time.Minute), true},
	}
	for _, tc := range cases {
		if got := IsTimeToPost(at, tc.now); got != tc.want {
			t.Errorf("%s: IsTimeToPost = %v, want %v", tc.name, got, tc.want)
		}
	}
}

// Across the fall-back transition the wall clock repeats an hour; the
// due check compares instants, so a message scheduled at 01:30 EDT is
// due at 01:00 EST even though the local clock reads earlier.
func TestIsTimeToPostAcrossDSTFallBack(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}

	scheduled := time.Date(2026, time.November, 1, 5, 30, 0, 0, time.UTC) // 01:30 EDT
	now := time.Date(2026, time.November, 1, 6, 0, 0, 0, time.UTC)        // 01:00 EST

	nowWall := now.In(loc).Hour()*60 + now.In(loc).Minute()
	scheduledWall := scheduled.In(loc).Hour()*60 + scheduled.In(loc).Minute()
	if nowWall >= scheduledWall {
		t.Fatalf("fixture broken: wall clock %s should read before %s", now.In(loc), scheduled.In(loc))
	}
	if !IsTimeToPost(scheduled, now) {
		t.Error("IsTimeToPost = false across fall-back, want true")
	}
}
