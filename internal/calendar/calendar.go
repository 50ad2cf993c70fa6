/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package calendar answers business-day questions against the fixed US
// federal holiday calendar used for posting schedules.
package calendar

import (
	"errors"
	"sync"
	"time"
)

// DefaultMaxScan bounds forward scans over calendar days.
const DefaultMaxScan = 366

// ErrExhausted reports that a forward scan hit its day bound without
// finding a business day.
var ErrExhausted = errors.New("calendar: business day scan exhausted")

// Holiday names one of the fixed federal holidays the calendar observes.
type Holiday string

const (
	NewYearsDay     Holiday = "new_years_day"
	MLKDay          Holiday = "mlk_day"
	PresidentsDay   Holiday = "presidents_day"
	MemorialDay     Holiday = "memorial_day"
	IndependenceDay Holiday = "independence_day"
	LaborDay        Holiday = "labor_day"
	ColumbusDay     Holiday = "columbus_day"
	VeteransDay     Holiday = "veterans_day"
	Thanksgiving    Holiday = "thanksgiving"
	Christmas       Holiday = "christmas"
)

// Calendar implements the business-day predicate: Monday through Friday,
// excluding the ten fixed federal holidays with their observed-date
// shifts (Saturday holidays observed the Friday before, Sunday holidays
// the Monday after). Holiday dates are computed per year by rule, so the
// calendar is valid for any year.
type Calendar struct {
	maxScan int

	mu    sync.RWMutex
	years map[int]map[int]Holiday
}

// New returns a calendar with the default scan bound.
func New() *Calendar {
	return NewWithScanLimit(DefaultMaxScan)
}

// NewWithScanLimit returns a calendar whose forward scans consider at
// most maxScan days beyond the starting date.
func NewWithScanLimit(maxScan int) *Calendar {
	if maxScan < 1 {
		maxScan = DefaultMaxScan
	}
	return &Calendar{
		maxScan: maxScan,
		years:   make(map[int]map[int]Holiday),
	}
}

// IsBusinessDay reports whether d's civil date falls Monday through
// Friday and is not an observed holiday. Only the date portion of d is
// considered, in d's own location.
func (c *Calendar) IsBusinessDay(d time.Time) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.HolidayOn(d)
	return !holiday
}

// HolidayOn returns the observed holiday on d's civil date, if any.
func (c *Calendar) HolidayOn(d time.Time) (Holiday, bool) {
	y, m, day := d.Date()
	h, ok := c.holidaysFor(y)[monthDayKey(m, day)]
	return h, ok
}

// NextBusinessDay returns the earliest business day on or after d,
// preserving d's clock time and location. The scan considers at most
// the configured number of days and returns ErrExhausted past that,
// rather than looping forever on a degenerate calendar.
func (c *Calendar) NextBusinessDay(d time.Time) (time.Time, error) {
	cur := d
	for i := 0; i <= c.maxScan; i++ {
		if c.IsBusinessDay(cur) {
			return cur, nil
		}
		cur = cur.AddDate(0, 0, 1)
	}
	return time.Time{}, ErrExhausted
}

func (c *Calendar) holidaysFor(year int) map[int]Holiday {
	c.mu.RLock()
	set, ok := c.years[year]
	c.mu.RUnlock()
	if ok {
		return set
	}

	set = computeHolidays(year)
	c.mu.Lock()
	c.years[year] = set
	c.mu.Unlock()
	return set
}

func monthDayKey(m time.Month, day int) int {
	return int(m)*100 + day
}

// computeHolidays builds the observed holiday dates falling within the
// given year. A New Year's Day that shifts to December 31 belongs to the
// preceding year's set, so each year also checks the following year's
// January 1.
func computeHolidays(year int) map[int]Holiday {
	set := make(map[int]Holiday, 10)

	add := func(d time.Time, h Holiday) {
		if d.Year() != year {
			return
		}
		_, m, day := d.Date()
		set[monthDayKey(m, day)] = h
	}

	add(observed(civil(year, time.January, 1)), NewYearsDay)
	add(nthWeekday(year, time.January, time.Monday, 3), MLKDay)
	add(nthWeekday(year, time.February, time.Monday, 3), PresidentsDay)
	add(lastWeekday(year, time.May, time.Monday), MemorialDay)
	add(observed(civil(year, time.July, 4)), IndependenceDay)
	add(nthWeekday(year, time.September, time.Monday, 1), LaborDay)
	add(nthWeekday(year, time.October, time.Monday, 2), ColumbusDay)
	add(observed(civil(year, time.November, 11)), VeteransDay)
	add(nthWeekday(year, time.November, time.Thursday, 4), Thanksgiving)
	add(observed(civil(year, time.December, 25)), Christmas)

	// New Year's Day of the following year observed on Dec 31 of this one.
	add(observed(civil(year+1, time.January, 1)), NewYearsDay)

	return set
}

// observed applies the federal observation shift: Saturday holidays move
// to the preceding Friday, Sunday holidays to the following Monday.
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

// nthWeekday returns the nth occurrence of the weekday in the month.
func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	d := civil(year, month, 1)
	offset := (int(weekday) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset+(n-1)*7)
}

// lastWeekday returns the final occurrence of the weekday in the month.
func lastWeekday(year int, month time.Month, weekday time.Weekday) time.Time {
	d := civil(year, month+1, 1).AddDate(0, 0, -1)
	offset := (int(d.Weekday()) - int(weekday) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

func civil(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
