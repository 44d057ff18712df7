// Package domain holds the habit model, the recurrence engine, and the
// completion/streak tracking logic for the habit service.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	// ErrHabitNotFound is returned when a habit does not exist, is soft-deleted,
	// or is owned by a different user. The three cases are indistinguishable on
	// purpose so callers cannot discover other users' habits.
	ErrHabitNotFound = errors.New("habit not found")
	// ErrCompletionNotFound mirrors ErrHabitNotFound for completion records.
	ErrCompletionNotFound = errors.New("completion not found")
	// ErrInvalidInput marks malformed input: bad frequency parameters,
	// out-of-range fields, or a future-dated completion.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidState marks operations that are illegal for the record's current
	// state, such as completing a paused habit or undoing an expired completion.
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict marks write races: a duplicate completion for the same date or
	// a stale habit version.
	ErrConflict = errors.New("conflict")
)

// ValidationError aggregates every violated rule from a single validation pass
// rather than stopping at the first.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Violations, "; "))
}

// Unwrap ties ValidationError into the ErrInvalidInput taxonomy.
func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// HabitStatus represents the activation state of a habit.
type HabitStatus string

const (
	HabitStatusActive   HabitStatus = "active"
	HabitStatusPaused   HabitStatus = "paused"
	HabitStatusArchived HabitStatus = "archived"
)

// validStatus reports whether s is one of the known habit statuses.
func validStatus(s HabitStatus) bool {
	switch s {
	case HabitStatusActive, HabitStatusPaused, HabitStatusArchived:
		return true
	}
	return false
}

// Habit is the recurring intention owned by exactly one user. NextDueAt is a
// materialized view of the recurrence engine: every write path that changes
// its inputs (frequency, status) recomputes and persists it in the same
// transaction.
type Habit struct {
	ID              string
	UserID          string
	Name            string
	Description     string
	Frequency       Frequency
	DurationMinutes *int
	Status          HabitStatus
	Timezone        string
	NextDueAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
	Version         int64
}

// Completion records one non-repeatable done-mark for a (habit, calendar date)
// pair. Undo soft-voids the row via UndoneAt; rows are never hard-deleted.
type Completion struct {
	ID           string
	HabitID      string
	UserID       string
	ScheduledFor time.Time // calendar date, stored at midnight UTC
	CompletedAt  time.Time
	Notes        string
	UndoneAt     *time.Time
}

// Undone reports whether the completion has been soft-voided.
func (c Completion) Undone() bool { return c.UndoneAt != nil }

// StreakSummary is derived from the live completion set at read time and never
// persisted.
type StreakSummary struct {
	CurrentStreak    int
	LongestStreak    int
	TotalCompletions int
}

const (
	nameMaxLen        = 100
	descriptionMaxLen = 500
	notesMaxLen       = 1000
	durationMin       = 5
	durationMax       = 480
)

// Per-field checks are shared between the create and update paths so limits
// and messages stay single-sourced. Lengths count runes, not bytes.
func nameViolations(name string) []string {
	if strings.TrimSpace(name) == "" || utf8.RuneCountInString(name) > nameMaxLen {
		return []string{fmt.Sprintf("name must be 1-%d non-whitespace characters", nameMaxLen)}
	}
	return nil
}

func descriptionViolations(description string) []string {
	if utf8.RuneCountInString(description) > descriptionMaxLen {
		return []string{fmt.Sprintf("description must be at most %d characters", descriptionMaxLen)}
	}
	return nil
}

func durationViolations(durationMinutes *int) []string {
	if durationMinutes != nil && (*durationMinutes < durationMin || *durationMinutes > durationMax) {
		return []string{fmt.Sprintf("duration_minutes must be between %d and %d", durationMin, durationMax)}
	}
	return nil
}

func timezoneViolations(timezone string) []string {
	if _, err := time.LoadLocation(timezone); err != nil || timezone == "" {
		return []string{"timezone must be a valid IANA identifier"}
	}
	return nil
}

func notesViolations(notes string) []string {
	if utf8.RuneCountInString(notes) > notesMaxLen {
		return []string{fmt.Sprintf("notes must be at most %d characters", notesMaxLen)}
	}
	return nil
}

// validateProfile collects violations for the non-frequency habit fields.
func validateProfile(name, description string, durationMinutes *int, timezone string) []string {
	var violations []string
	violations = append(violations, nameViolations(name)...)
	violations = append(violations, descriptionViolations(description)...)
	violations = append(violations, durationViolations(durationMinutes)...)
	violations = append(violations, timezoneViolations(timezone)...)
	return violations
}

// location resolves the habit's IANA timezone. Validation at create/update
// guarantees this succeeds for persisted habits.
func (h Habit) location() (*time.Location, error) {
	loc, err := time.LoadLocation(h.Timezone)
	if err != nil {
		return nil, fmt.Errorf("habit %s: %w", h.ID, err)
	}
	return loc, nil
}
