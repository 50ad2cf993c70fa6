/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler assigns posting slots to message batches and
// selects the single next due message. All date arithmetic runs in the
// slot plan's civil timezone; all due comparisons are absolute instants.
package scheduler

import (
	"fmt"
	"time"

	"github.com/friendsincode/munin_post/internal/calendar"
	"github.com/friendsincode/munin_post/internal/slots"
)

// BusinessCalendar yields business days for schedule planning.
// calendar.Calendar is the production implementation.
type BusinessCalendar interface {
	NextBusinessDay(d time.Time) (time.Time, error)
}

// Planner assigns slots to batches of sibling messages. It is pure
// computation over the committed-slot set; persistence is the caller's
// job.
type Planner struct {
	cal  BusinessCalendar
	plan *slots.Plan
	// dayHopLimit bounds the full-day retry walk per message so a
	// pathologically booked calendar surfaces an error instead of
	// spinning.
	dayHopLimit int
	now         func() time.Time
}

// NewPlanner builds a planner over a business calendar and a slot plan.
func NewPlanner(cal BusinessCalendar, plan *slots.Plan) *Planner {
	return &Planner{
		cal:         cal,
		plan:        plan,
		dayHopLimit: calendar.DefaultMaxScan,
		now:         time.Now,
	}
}

// Plan exposes the slot plan the planner allocates from.
func (p *Planner) Plan() *slots.Plan { return p.plan }

// ScheduleMessages assigns one timestamp per message, in ordinal order.
// Messages of the same batch never share a calendar date: after every
// assignment the cursor advances to the next business day. A full day
// advances the cursor and retries. Returns exactly count timestamps or
// an error with nothing assigned; partial batches are never produced.
func (p *Planner) ScheduleMessages(count int, committed *slots.Committed, start time.Time) ([]time.Time, error) {
	if count < 0 {
		return nil, fmt.Errorf("schedule: negative message count %d", count)
	}
	if count == 0 {
		return nil, nil
	}

	cur, err := p.cal.NextBusinessDay(p.startDate(start))
	if err != nil {
		return nil, fmt.Errorf("schedule: find first business day: %w", err)
	}

	inRun := p.cloneCommitted(committed)
	out := make([]time.Time, 0, count)

	for i := 0; i < count; i++ {
		at, landed, err := p.placeOn(cur, inRun)
		if err != nil {
			return nil, fmt.Errorf("schedule message %d: %w", i, err)
		}
		out = append(out, at)
		inRun.Add(at)

		// One message per source per day: always move past the date
		// just used, even when it still has free slots.
		cur, err = p.cal.NextBusinessDay(landed.AddDate(0, 0, 1))
		if err != nil {
			return nil, fmt.Errorf("schedule: advance past %s: %w", landed.Format("2006-01-02"), err)
		}
	}

	return out, nil
}

// placeOn finds the first date at or after cur with a free slot and
// returns the slot instant together with the date it landed on.
func (p *Planner) placeOn(cur time.Time, committed *slots.Committed) (time.Time, time.Time, error) {
	for hops := 0; hops <= p.dayHopLimit; hops++ {
		idx, ok := p.plan.FindSlot(cur, committed)
		if ok {
			at, err := p.plan.At(cur, idx)
			if err != nil {
				return time.Time{}, time.Time{}, err
			}
			return at, cur, nil
		}
		next, err := p.cal.NextBusinessDay(cur.AddDate(0, 0, 1))
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		cur = next
	}
	return time.Time{}, time.Time{}, fmt.Errorf("no free slot within %d days: %w", p.dayHopLimit, calendar.ErrExhausted)
}

// CanScheduleWithinDays reports whether a prospective batch can start
// within maxDays: the gate applies to the first message's placement
// only; later messages of an accepted batch may land beyond the
// horizon. The committed set is not mutated. A false result is a
// deferral signal, not an error; errors surface only a broken calendar.
func (p *Planner) CanScheduleWithinDays(count int, committed *slots.Committed, maxDays int, start time.Time) (bool, error) {
	if maxDays <= 0 {
		return false, fmt.Errorf("schedule: horizon must be positive, got %d", maxDays)
	}
	if count <= 0 {
		return true, nil
	}

	first := p.startDate(start)
	cutoff := first.AddDate(0, 0, maxDays)

	cur, err := p.cal.NextBusinessDay(first)
	if err != nil {
		return false, fmt.Errorf("schedule: find first business day: %w", err)
	}
	if committed == nil {
		committed = p.plan.NewCommitted()
	}

	for cur.Before(cutoff) {
		if _, ok := p.plan.FindSlot(cur, committed); ok {
			return true, nil
		}
		next, err := p.cal.NextBusinessDay(cur.AddDate(0, 0, 1))
		if err != nil {
			return false, fmt.Errorf("schedule: advance past %s: %w", cur.Format("2006-01-02"), err)
		}
		cur = next
	}
	return false, nil
}

// startDate normalizes the requested start to midnight in the plan
// timezone, defaulting to tomorrow.
func (p *Planner) startDate(start time.Time) time.Time {
	loc := p.plan.Location()
	if start.IsZero() {
		start = p.now().In(loc).AddDate(0, 0, 1)
	}
	local := start.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func (p *Planner) cloneCommitted(committed *slots.Committed) *slots.Committed {
	if committed == nil {
		return p.plan.NewCommitted()
	}
	return committed.Clone()
}

// IsTimeToPost reports whether a scheduled instant is due: now at or
// after scheduledAt, compared as absolute instants so the answer stays
// correct across a daylight-saving transition between scheduling and
// publishing.
func IsTimeToPost(scheduledAt, now time.Time) bool {
	return !now.Before(scheduledAt)
}
