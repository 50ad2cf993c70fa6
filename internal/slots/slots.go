/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package slots allocates fixed daily posting slots. A plan carries an
// ordered list of time-of-day values and a civil timezone; allocation
// fills the list in declared order, which is deliberately not
// chronological.
package slots

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTimezone is the civil zone posting schedules are planned in.
const DefaultTimezone = "America/New_York"

// DefaultTimes is the declared slot order: the second allocation of a
// day lands at 13:00 and the third at 11:00.
var DefaultTimes = []TimeOfDay{
	{Hour: 9, Minute: 0},
	{Hour: 13, Minute: 0},
	{Hour: 11, Minute: 0},
	{Hour: 15, Minute: 0},
}

// TimeOfDay is a clock time within a posting day.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	tod := TimeOfDay{Hour: hour, Minute: minute}
	if err := tod.validate(); err != nil {
		return TimeOfDay{}, err
	}
	return tod, nil
}

func (t TimeOfDay) validate() error {
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("time of day %02d:%02d out of range", t.Hour, t.Minute)
	}
	return nil
}

// Plan holds the declared-order slot list and the plan timezone.
// Per-day capacity equals the number of slot times.
type Plan struct {
	times []TimeOfDay
	loc   *time.Location
}

// NewPlan validates the slot list and builds a plan. The declared order
// is preserved exactly.
func NewPlan(times []TimeOfDay, loc *time.Location) (*Plan, error) {
	if len(times) == 0 {
		return nil, fmt.Errorf("slot plan requires at least one time of day")
	}
	if loc == nil {
		return nil, fmt.Errorf("slot plan requires a timezone")
	}
	seen := make(map[TimeOfDay]struct{}, len(times))
	for _, t := range times {
		if err := t.validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[t]; dup {
			return nil, fmt.Errorf("duplicate slot time %s", t)
		}
		seen[t] = struct{}{}
	}
	copied := make([]TimeOfDay, len(times))
	copy(copied, times)
	return &Plan{times: copied, loc: loc}, nil
}

// Default returns the reference plan: 09:00, 13:00, 11:00, 15:00 in
// America/New_York.
func Default() *Plan {
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		// The IANA database always carries America/New_York; a broken
		// zoneinfo install is not recoverable here.
		panic(fmt.Sprintf("slots: load %s: %v", DefaultTimezone, err))
	}
	p, err := NewPlan(DefaultTimes, loc)
	if err != nil {
		panic(fmt.Sprintf("slots: default plan: %v", err))
	}
	return p
}

// Capacity is the maximum number of occupied slots per day.
func (p *Plan) Capacity() int { return len(p.times) }

// Times returns the declared-order slot list.
func (p *Plan) Times() []TimeOfDay {
	out := make([]TimeOfDay, len(p.times))
	copy(out, p.times)
	return out
}

// Location returns the plan timezone.
func (p *Plan) Location() *time.Location { return p.loc }

// At combines d's civil date with the slot at idx, localized to the
// plan timezone. The zone offset is resolved per date, so instants stay
// correct across daylight-saving transitions.
func (p *Plan) At(d time.Time, idx int) (time.Time, error) {
	if idx < 0 || idx >= len(p.times) {
		return time.Time{}, fmt.Errorf("slot index %d out of range [0,%d)", idx, len(p.times))
	}
	y, m, day := d.Date()
	t := p.times[idx]
	return time.Date(y, m, day, t.Hour, t.Minute, 0, 0, p.loc), nil
}

// FindSlot returns the first declared-order index whose (date, time)
// pair is absent from committed. ok is false when every slot of the day
// is occupied. The civil date is taken from d in d's own location;
// callers work in the plan timezone.
func (p *Plan) FindSlot(d time.Time, committed *Committed) (int, bool) {
	y, m, day := d.Date()
	for idx, t := range p.times {
		if committed == nil || !committed.contains(slotKey{y, m, day, t.Hour, t.Minute}) {
			return idx, true
		}
	}
	return 0, false
}

type slotKey struct {
	year   int
	month  time.Month
	day    int
	hour   int
	minute int
}

// Committed is the occupied (date, time-of-day) set, keyed in the plan
// timezone so persisted UTC instants collide correctly with planned
// local slots.
type Committed struct {
	keys map[slotKey]struct{}
	loc  *time.Location
}

// NewCommitted builds the occupied set from already-scheduled instants.
func (p *Plan) NewCommitted(instants ...time.Time) *Committed {
	c := &Committed{
		keys: make(map[slotKey]struct{}, len(instants)),
		loc:  p.loc,
	}
	for _, at := range instants {
		c.Add(at)
	}
	return c
}

// Add marks one instant's slot as occupied.
func (c *Committed) Add(at time.Time) {
	local := at.In(c.loc)
	y, m, d := local.Date()
	c.keys[slotKey{y, m, d, local.Hour(), local.Minute()}] = struct{}{}
}

// Clone copies the set so in-run assignments can accumulate without
// mutating the caller's view.
func (c *Committed) Clone() *Committed {
	out := &Committed{
		keys: make(map[slotKey]struct{}, len(c.keys)),
		loc:  c.loc,
	}
	for k := range c.keys {
		out.keys[k] = struct{}{}
	}
	return out
}

// Len reports the number of occupied slots.
func (c *Committed) Len() int { return len(c.keys) }

func (c *Committed) contains(k slotKey) bool {
	_, ok := c.keys[k]
	return ok
}
