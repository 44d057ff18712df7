package domain

import (
	"sort"
	"time"
)

const dateKeyLayout = "2006-01-02"

// CalculateStreaks derives streak statistics for a habit from its completion
// set. Undone completions are ignored. The summary is always recomputed from
// the live records, so there is no cached state to go stale.
func CalculateStreaks(h Habit, completions []Completion, now time.Time) (StreakSummary, error) {
	loc, err := h.location()
	if err != nil {
		return StreakSummary{}, err
	}

	live := make([]Completion, 0, len(completions))
	done := make(map[string]struct{}, len(completions))
	for _, c := range completions {
		if c.Undone() {
			continue
		}
		live = append(live, c)
		done[c.ScheduledFor.Format(dateKeyLayout)] = struct{}{}
	}

	summary := StreakSummary{TotalCompletions: len(live)}
	if len(live) == 0 {
		return summary, nil
	}

	current, err := currentStreak(h, done, now, loc)
	if err != nil {
		return StreakSummary{}, err
	}
	summary.CurrentStreak = current

	longest, err := longestStreak(h, live)
	if err != nil {
		return StreakSummary{}, err
	}
	summary.LongestStreak = longest

	return summary, nil
}

// currentStreak walks backward day by day from today, requiring a completion
// on every in-scope day. Today itself is skipped while still incomplete so an
// open day does not break the streak. The walk is bounded by the habit's
// creation date.
func currentStreak(h Habit, done map[string]struct{}, now time.Time, loc *time.Location) (int, error) {
	today := DateOf(now, loc)
	created := DateOf(h.CreatedAt, loc)

	start := today
	scheduledToday, err := IsScheduledOn(h, today)
	if err != nil {
		return 0, err
	}
	if _, completedToday := done[today.Format(dateKeyLayout)]; scheduledToday && !completedToday {
		start = today.AddDate(0, 0, -1)
	}

	streak := 0
	for day := start; !day.Before(created); day = day.AddDate(0, 0, -1) {
		scheduled, err := IsScheduledOn(h, day)
		if err != nil {
			return 0, err
		}
		if !scheduled {
			continue
		}
		if _, ok := done[day.Format(dateKeyLayout)]; !ok {
			break
		}
		streak++
	}
	return streak, nil
}

// longestStreak walks the completions in ascending scheduled order, extending
// a run whenever a completion lands exactly on the next in-scope date after
// the previous one and resetting on any gap. Completions on out-of-scope days
// (possible after a rule change) never extend a run.
func longestStreak(h Habit, live []Completion) (int, error) {
	dates := make([]time.Time, 0, len(live))
	for _, c := range live {
		scheduled, err := IsScheduledOn(h, c.ScheduledFor)
		if err != nil {
			return 0, err
		}
		if scheduled {
			dates = append(dates, c.ScheduledFor)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	longest, run := 0, 0
	var prev time.Time
	for i, date := range dates {
		if i == 0 {
			run = 1
		} else {
			expected, err := nextScheduledDate(h, prev)
			if err != nil {
				return 0, err
			}
			if !expected.IsZero() && sameDate(date, expected) {
				run++
			} else {
				run = 1
			}
		}
		if run > longest {
			longest = run
		}
		prev = date
	}
	return longest, nil
}

// nextScheduledDate finds the first in-scope date strictly after the given
// one. The lookahead is a week for daily/weekly rules and one interval for
// custom rules, whose next in-scope day can legitimately be further out.
func nextScheduledDate(h Habit, after time.Time) (time.Time, error) {
	bound := 7
	if h.Frequency.Kind == FrequencyCustom {
		bound = h.Frequency.intervalDays()
	}
	for i := 1; i <= bound; i++ {
		day := after.AddDate(0, 0, i)
		scheduled, err := IsScheduledOn(h, day)
		if err != nil {
			return time.Time{}, err
		}
		if scheduled {
			return day, nil
		}
	}
	return time.Time{}, nil
}

func sameDate(a, b time.Time) bool {
	return a.Format(dateKeyLayout) == b.Format(dateKeyLayout)
}
