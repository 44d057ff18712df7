// Package events defines the payloads published for habit state transitions.
// Delivery is fire-and-forget: subscribers observe facts, the core never
// depends on the outcome.
package events

import "time"

// Event kinds published by the habit service.
const (
	KindHabitCreated     = "habit.created"
	KindHabitUpdated     = "habit.updated"
	KindHabitDeleted     = "habit.deleted"
	KindHabitCompleted   = "habit.completed"
	KindHabitUncompleted = "habit.uncompleted"
)

// FrequencySnapshot captures a recurrence rule as it appeared at event time.
type FrequencySnapshot struct {
	Kind          string `json:"kind"`
	Time          string `json:"time"`
	DaysOfWeek    []int  `json:"days_of_week,omitempty"`
	IntervalCount int    `json:"interval_count,omitempty"`
	IntervalUnit  string `json:"interval_unit,omitempty"`
}

// HabitCreated is emitted when a habit is accepted.
type HabitCreated struct {
	HabitID   string            `json:"habit_id"`
	UserID    string            `json:"user_id"`
	Name      string            `json:"name"`
	Frequency FrequencySnapshot `json:"frequency"`
	Timezone  string            `json:"timezone"`
	NextDueAt *time.Time        `json:"next_due_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// HabitUpdated is emitted for any habit mutation, including pause and resume.
// It carries the before/after frequency so downstream consumers can detect
// rule changes without re-reading the row.
type HabitUpdated struct {
	HabitID         string            `json:"habit_id"`
	UserID          string            `json:"user_id"`
	Status          string            `json:"status"`
	FrequencyBefore FrequencySnapshot `json:"frequency_before"`
	FrequencyAfter  FrequencySnapshot `json:"frequency_after"`
	NextDueAt       *time.Time        `json:"next_due_at,omitempty"`
	OccurredAt      time.Time         `json:"occurred_at"`
}

// HabitDeleted is emitted when a habit is soft-deleted.
type HabitDeleted struct {
	HabitID    string    `json:"habit_id"`
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// HabitCompleted is emitted when a completion is accepted for a scheduled date.
type HabitCompleted struct {
	HabitID      string     `json:"habit_id"`
	CompletionID string     `json:"completion_id"`
	UserID       string     `json:"user_id"`
	ScheduledFor string     `json:"scheduled_for"`
	CompletedAt  time.Time  `json:"completed_at"`
	NextDueAt    *time.Time `json:"next_due_at,omitempty"`
}

// HabitUncompleted is emitted when a completion is undone within the undo
// window. Derived views keyed on the completion set are stale after this.
type HabitUncompleted struct {
	HabitID      string    `json:"habit_id"`
	CompletionID string    `json:"completion_id"`
	UserID       string    `json:"user_id"`
	ScheduledFor string    `json:"scheduled_for"`
	UndoneAt     time.Time `json:"undone_at"`
}
