package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// FrequencyKind discriminates the recurrence rule variants.
type FrequencyKind string

const (
	FrequencyDaily  FrequencyKind = "daily"
	FrequencyWeekly FrequencyKind = "weekly"
	FrequencyCustom FrequencyKind = "custom"
)

// IntervalUnit is the step unit for custom frequencies.
type IntervalUnit string

const (
	IntervalDays  IntervalUnit = "days"
	IntervalWeeks IntervalUnit = "weeks"
)

const (
	intervalCountMin = 1
	intervalCountMax = 365
)

// Frequency is the kind-discriminated recurrence rule. Only the fields that
// belong to Kind may be set; Validate rejects extras rather than ignoring
// them.
type Frequency struct {
	Kind FrequencyKind `json:"kind"`
	// Time is the 24-hour HH:mm due time, shared by all kinds.
	Time string `json:"time"`
	// DaysOfWeek applies to weekly only; values 0-6 with 0=Sunday.
	DaysOfWeek []int `json:"days_of_week,omitempty"`
	// IntervalCount and IntervalUnit apply to custom only.
	IntervalCount int          `json:"interval_count,omitempty"`
	IntervalUnit  IntervalUnit `json:"interval_unit,omitempty"`
}

// Validate checks the rule for well-formedness and internal consistency,
// returning a *ValidationError listing every violated rule. It is pure: no
// storage, no clock.
func (f Frequency) Validate() error {
	var violations []string

	if _, _, ok := parseClock(f.Time); !ok {
		violations = append(violations, "time must match 24-hour HH:mm")
	}

	switch f.Kind {
	case FrequencyDaily:
		if len(f.DaysOfWeek) > 0 {
			violations = append(violations, "days_of_week is not allowed for daily frequency")
		}
		if f.IntervalCount != 0 || f.IntervalUnit != "" {
			violations = append(violations, "interval parameters are not allowed for daily frequency")
		}
	case FrequencyWeekly:
		if len(f.DaysOfWeek) == 0 {
			violations = append(violations, "days_of_week must contain at least one day")
		}
		seen := make(map[int]struct{}, len(f.DaysOfWeek))
		for _, day := range f.DaysOfWeek {
			if day < 0 || day > 6 {
				violations = append(violations, fmt.Sprintf("days_of_week value %d is out of range 0-6", day))
				continue
			}
			if _, dup := seen[day]; dup {
				violations = append(violations, fmt.Sprintf("days_of_week value %d is duplicated", day))
			}
			seen[day] = struct{}{}
		}
		if f.IntervalCount != 0 || f.IntervalUnit != "" {
			violations = append(violations, "interval parameters are not allowed for weekly frequency")
		}
	case FrequencyCustom:
		if f.IntervalCount < intervalCountMin || f.IntervalCount > intervalCountMax {
			violations = append(violations, fmt.Sprintf("interval_count must be between %d and %d", intervalCountMin, intervalCountMax))
		}
		if f.IntervalUnit != IntervalDays && f.IntervalUnit != IntervalWeeks {
			violations = append(violations, "interval_unit must be days or weeks")
		}
		if len(f.DaysOfWeek) > 0 {
			violations = append(violations, "days_of_week is not allowed for custom frequency")
		}
	default:
		violations = append(violations, fmt.Sprintf("unknown frequency kind %q", string(f.Kind)))
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// Normalize returns a copy with DaysOfWeek sorted ascending. The recurrence
// engine relies on the sorted order for its forward scan.
func (f Frequency) Normalize() Frequency {
	if len(f.DaysOfWeek) == 0 {
		return f
	}
	days := make([]int, len(f.DaysOfWeek))
	copy(days, f.DaysOfWeek)
	sort.Ints(days)
	f.DaysOfWeek = days
	return f
}

// Equal reports whether two rules are identical, including parameter order
// after normalization.
func (f Frequency) Equal(other Frequency) bool {
	a, b := f.Normalize(), other.Normalize()
	if a.Kind != b.Kind || a.Time != b.Time || a.IntervalCount != b.IntervalCount || a.IntervalUnit != b.IntervalUnit {
		return false
	}
	if len(a.DaysOfWeek) != len(b.DaysOfWeek) {
		return false
	}
	for i := range a.DaysOfWeek {
		if a.DaysOfWeek[i] != b.DaysOfWeek[i] {
			return false
		}
	}
	return true
}

// intervalDays returns the custom rule's step expressed in days.
func (f Frequency) intervalDays() int {
	if f.IntervalUnit == IntervalWeeks {
		return f.IntervalCount * 7
	}
	return f.IntervalCount
}

// parseClock parses a strict 24-hour HH:mm string.
func parseClock(value string) (hour, minute int, ok bool) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, false
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}
