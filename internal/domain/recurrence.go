package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

type RecurrenceFrequency string

const (
	RecurrenceFrequencyWeekly   RecurrenceFrequency = "weekly"
	RecurrenceFrequencyBiweekly RecurrenceFrequency = "biweekly"
	RecurrenceFrequencyMonthly  RecurrenceFrequency = "monthly"
)

var ErrInvalidRecurrenceRule = errors.New("invalid recurrence rule")

// SeriesRule describes a finite recurring plan. It exists only for the
// duration of expansion; occurrences are persisted as plain appointments.
type SeriesRule struct {
	Frequency     RecurrenceFrequency
	DaysOfWeek    []int // 0-6, Sunday = 0; weekly and biweekly only
	DayOfMonth    int   // monthly only
	TotalSessions int
}

func (r SeriesRule) Validate() error {
	if r.TotalSessions < 1 {
		return fmt.Errorf("%w: total_sessions must be at least 1", ErrInvalidRecurrenceRule)
	}
	switch r.Frequency {
	case RecurrenceFrequencyWeekly, RecurrenceFrequencyBiweekly:
		if len(r.DaysOfWeek) == 0 {
			return fmt.Errorf("%w: at least one day of week is required", ErrInvalidRecurrenceRule)
		}
		for _, d := range r.DaysOfWeek {
			if d < 0 || d > 6 {
				return fmt.Errorf("%w: day of week %d out of range", ErrInvalidRecurrenceRule, d)
			}
		}
	case RecurrenceFrequencyMonthly:
		if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
			return fmt.Errorf("%w: day_of_month must be between 1 and 31", ErrInvalidRecurrenceRule)
		}
	default:
		return fmt.Errorf("%w: unsupported frequency %q", ErrInvalidRecurrenceRule, r.Frequency)
	}
	return nil
}

// ExpandOccurrences generates the ordered start times of a series. The
// time of day is fixed to the anchor's for every occurrence, and no
// occurrence precedes the anchor.
//
// Weekly and biweekly pass over the sorted day set within the anchor's week
// (days already past are skipped), then step 1 or 2 weeks per pass. Monthly
// falls on DayOfMonth of consecutive months from the anchor month, clamped
// to the last day of short months.
func ExpandOccurrences(rule SeriesRule, anchor time.Time) ([]time.Time, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	switch rule.Frequency {
	case RecurrenceFrequencyWeekly:
		return expandWeekly(rule, anchor, 1), nil
	case RecurrenceFrequencyBiweekly:
		return expandWeekly(rule, anchor, 2), nil
	default:
		return expandMonthly(rule, anchor), nil
	}
}

func expandWeekly(rule SeriesRule, anchor time.Time, weekInterval int) []time.Time {
	days := make([]int, 0, len(rule.DaysOfWeek))
	seen := make(map[int]struct{}, len(rule.DaysOfWeek))
	for _, d := range rule.DaysOfWeek {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	sort.Ints(days)

	loc := anchor.Location()
	weekStart := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, loc).
		AddDate(0, 0, -int(anchor.Weekday()))

	out := make([]time.Time, 0, rule.TotalSessions)
	for week := 0; len(out) < rule.TotalSessions; week++ {
		base := weekStart.AddDate(0, 0, week*weekInterval*7)
		for _, d := range days {
			day := base.AddDate(0, 0, d)
			occ := time.Date(day.Year(), day.Month(), day.Day(), anchor.Hour(), anchor.Minute(), 0, 0, loc)
			if occ.Before(anchor) {
				continue
			}
			out = append(out, occ)
			if len(out) == rule.TotalSessions {
				break
			}
		}
	}
	return out
}

func expandMonthly(rule SeriesRule, anchor time.Time) []time.Time {
	loc := anchor.Location()
	out := make([]time.Time, 0, rule.TotalSessions)
	for month := 0; len(out) < rule.TotalSessions; month++ {
		y, m := anchor.Year(), anchor.Month()+time.Month(month)
		day := rule.DayOfMonth
		if last := daysInMonth(y, m, loc); day > last {
			day = last
		}
		occ := time.Date(y, m, day, anchor.Hour(), anchor.Minute(), 0, 0, loc)
		if occ.Before(anchor) {
			// The anchor month's slot already passed; the series starts
			// the following month.
			continue
		}
		out = append(out, occ)
	}
	return out
}

func daysInMonth(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
