package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Schedule maps weekday names ("Monday".."Sunday") to unordered lists of
// "HH:MM" trigger times. There is no ordering invariant in the stored form;
// consumers sort on demand.
type Schedule map[string][]string

// ParseHHMM parses a 24-hour "HH:MM" time-of-day string.
func ParseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// SlotsPerWeek counts valid trigger times across the whole week. Used to
// estimate how many clips an account consumes weekly.
func (s Schedule) SlotsPerWeek() int {
	n := 0
	for _, times := range s {
		for _, t := range times {
			if _, _, err := ParseHHMM(t); err == nil {
				n++
			}
		}
	}
	return n
}

// Due reports whether now's minute matches one of today's trigger times.
// Seconds are irrelevant: the whole minute is the slot.
func Due(s Schedule, now time.Time) bool {
	now = now.Truncate(time.Minute)
	hhmm := now.Format("15:04")
	for _, raw := range s[now.Weekday().String()] {
		if h, m, err := ParseHHMM(raw); err == nil && fmt.Sprintf("%02d:%02d", h, m) == hhmm {
			return true
		}
	}
	return false
}

// NextTrigger computes the next trigger instant at or after now.
//
// The scan is deliberately limited to today and tomorrow: schedules whose only
// remaining slots are two or more days out yield no trigger until the clock
// gets within a day of them. Full 7-day lookahead would change firing
// semantics, so it is intentionally not done here.
//
// Malformed time entries are skipped, never fatal. The second return value is
// false when no trigger exists within the lookahead window.
func NextTrigger(s Schedule, now time.Time) (time.Time, bool) {
	now = now.Truncate(time.Minute)

	if at, ok := firstAtOrAfter(s[now.Weekday().String()], now, now); ok {
		return at, true
	}

	tomorrow := now.AddDate(0, 0, 1)
	if at, ok := earliest(s[tomorrow.Weekday().String()], tomorrow); ok {
		return at, true
	}

	return time.Time{}, false
}

// firstAtOrAfter returns the earliest valid entry on day that is >= cutoff.
func firstAtOrAfter(times []string, day, cutoff time.Time) (time.Time, bool) {
	sorted := append([]string(nil), times...)
	sort.Strings(sorted)
	for _, raw := range sorted {
		h, m, err := ParseHHMM(raw)
		if err != nil {
			continue
		}
		at := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
		if !at.Before(cutoff) {
			return at, true
		}
	}
	return time.Time{}, false
}

// earliest returns the earliest valid entry on day, regardless of time of day.
func earliest(times []string, day time.Time) (time.Time, bool) {
	best := time.Time{}
	for _, raw := range times {
		h, m, err := ParseHHMM(raw)
		if err != nil {
			continue
		}
		at := time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
		if best.IsZero() || at.Before(best) {
			best = at
		}
	}
	return best, !best.IsZero()
}
