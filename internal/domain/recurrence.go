package domain

import "time"

// DateOf returns the calendar date of instant t as observed in loc, normalized
// to midnight UTC. All date-granularity comparisons in the service go through
// this normalization so instants in different zones land on comparable dates.
func DateOf(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// daysBetween returns the whole-day distance from date a to date b, both
// normalized calendar dates. Computed on UTC midnights so DST shifts in the
// habit's zone cannot skew the count.
func daysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua) / (24 * time.Hour))
}

// NextOccurrenceAfter computes the next due instant strictly after ref for the
// habit's recurrence rule, in the habit's timezone. It returns nil for any
// non-active habit. The function is pure: the reference instant is always
// supplied by the caller.
//
// CUSTOM is the only kind whose result depends on anchoring rather than on ref
// alone: it re-anchors from the last persisted due instant (falling back to
// the creation instant) so repeated recomputation never drifts the rule's
// phase.
func NextOccurrenceAfter(h Habit, ref time.Time) (*time.Time, error) {
	if h.Status != HabitStatusActive {
		return nil, nil
	}
	loc, err := h.location()
	if err != nil {
		return nil, err
	}
	hour, minute, ok := parseClock(h.Frequency.Time)
	if !ok {
		return nil, &ValidationError{Violations: []string{"time must match 24-hour HH:mm"}}
	}

	local := ref.In(loc)

	switch h.Frequency.Kind {
	case FrequencyDaily:
		candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
		if !candidate.After(ref) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		utc := candidate.UTC()
		return &utc, nil

	case FrequencyWeekly:
		days := h.Frequency.Normalize().DaysOfWeek
		// Offset 0 covers today when the due time has not passed; offsets 1-7
		// cover the rest of this week and the wrap to next week.
		for offset := 0; offset <= 7; offset++ {
			day := local.AddDate(0, 0, offset)
			if !containsDay(days, int(day.Weekday())) {
				continue
			}
			candidate := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
			if candidate.After(ref) {
				utc := candidate.UTC()
				return &utc, nil
			}
		}
		return nil, nil // unreachable for a validated weekly rule

	case FrequencyCustom:
		anchor := h.CreatedAt
		if h.NextDueAt != nil {
			anchor = *h.NextDueAt
		}
		anchorLocal := anchor.In(loc)
		candidate := time.Date(anchorLocal.Year(), anchorLocal.Month(), anchorLocal.Day(), hour, minute, 0, 0, loc)
		step := h.Frequency.intervalDays()
		for !candidate.After(ref) {
			candidate = candidate.AddDate(0, 0, step)
		}
		utc := candidate.UTC()
		return &utc, nil
	}

	return nil, &ValidationError{Violations: []string{"unknown frequency kind"}}
}

// IsScheduledOn reports whether the given calendar date is in scope for the
// habit's rule. The date argument must be a normalized calendar date as
// produced by DateOf. Non-active habits are never in scope.
//
// CUSTOM anchors on the habit's creation date here, not on the due instant:
// the in-scope check is date-granular by design, because the due instant can
// fall anywhere within an in-scope day.
func IsScheduledOn(h Habit, date time.Time) (bool, error) {
	if h.Status != HabitStatusActive {
		return false, nil
	}

	switch h.Frequency.Kind {
	case FrequencyDaily:
		return true, nil

	case FrequencyWeekly:
		weekday := int(time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC).Weekday())
		return containsDay(h.Frequency.DaysOfWeek, weekday), nil

	case FrequencyCustom:
		loc, err := h.location()
		if err != nil {
			return false, err
		}
		anchor := DateOf(h.CreatedAt, loc)
		diff := daysBetween(anchor, date)
		if diff < 0 {
			return false, nil
		}
		return diff%h.Frequency.intervalDays() == 0, nil
	}

	return false, &ValidationError{Violations: []string{"unknown frequency kind"}}
}

func containsDay(days []int, day int) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
