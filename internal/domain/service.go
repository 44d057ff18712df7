package domain

import (
	"context"
	"time"

	"github.com/google/uuid"

	"example.com/habits/internal/events"
)

// DefaultUndoWindow is how long a completion stays reversible.
const DefaultUndoWindow = 24 * time.Hour

// HabitSort selects the ordering for habit lists.
type HabitSort string

const (
	SortByNextDue HabitSort = "next_due" // ascending, nulls last
	SortByName    HabitSort = "name"
	SortByStatus  HabitSort = "status"
)

// HabitFilter narrows and orders habit list queries.
type HabitFilter struct {
	Status *HabitStatus
	Kind   *FrequencyKind
	Search string
	SortBy HabitSort
	Limit  int
	Offset int
}

// HabitPatch is a field-level partial update. Nil pointers leave the column
// untouched; SetNextDue distinguishes clearing next_due_at from leaving it
// alone.
type HabitPatch struct {
	Name            string
	SetName         bool
	Description     string
	SetDescription  bool
	DurationMinutes *int
	SetDuration     bool
	Frequency       *Frequency
	Status          *HabitStatus
	NextDueAt       *time.Time
	SetNextDue      bool
	UpdatedAt       time.Time
}

// Empty reports whether the patch changes nothing beyond the timestamp.
func (p HabitPatch) Empty() bool {
	return !p.SetName && !p.SetDescription && !p.SetDuration &&
		p.Frequency == nil && p.Status == nil && !p.SetNextDue
}

// Cursor is the keyset pagination token for completion history queries.
type Cursor struct {
	ScheduledFor time.Time
	ID           string
}

// Event pairs an event kind with its payload. Mutating repository calls take
// the event describing the write so implementations can record it atomically
// with the mutation; delivery to consumers happens asynchronously and never
// feeds back into the mutation's outcome.
type Event struct {
	Kind    string
	Payload any
}

// Repository captures the storage operations the service depends on. Every
// read used by a mutation is scoped to the owning user in the lookup
// predicate itself, so absent and not-owned rows are indistinguishable.
// Mutating methods persist the given event in the same transaction as the
// write: the mutation and its event row commit or fail together.
type Repository interface {
	CreateHabit(ctx context.Context, habit Habit, event Event) error
	GetHabit(ctx context.Context, userID, habitID string) (*Habit, error)
	// UpdateHabit applies the patch iff the stored version matches
	// expectedVersion, bumping version. It returns ErrHabitNotFound or
	// ErrConflict accordingly.
	UpdateHabit(ctx context.Context, userID, habitID string, expectedVersion int64, patch HabitPatch, event Event) (*Habit, error)
	SoftDeleteHabit(ctx context.Context, userID, habitID string, at time.Time, event Event) error
	ListHabits(ctx context.Context, userID string, filter HabitFilter) ([]Habit, error)
	ListActiveHabits(ctx context.Context, userID string) ([]Habit, error)

	// CreateCompletion inserts the completion and persists the recomputed
	// next_due_at on the habit in one transaction. A live duplicate for the
	// same (habit, date) surfaces as ErrConflict via the storage uniqueness
	// constraint, never as a check-then-insert race.
	CreateCompletion(ctx context.Context, completion Completion, nextDueAt *time.Time, event Event) error
	GetCompletion(ctx context.Context, userID, completionID string) (*Completion, error)
	// MarkCompletionUndone sets undone_at guarded by undone_at IS NULL and
	// reports whether a row was voided. The event is recorded only when a row
	// was actually voided.
	MarkCompletionUndone(ctx context.Context, userID, completionID string, at time.Time, event Event) (bool, error)
	ListCompletions(ctx context.Context, userID, habitID string, cursor *Cursor, limit int) ([]Completion, *Cursor, error)
	ListCompletionsBetween(ctx context.Context, userID string, from, to time.Time) ([]Completion, error)
}

// Service implements the habit lifecycle and completion tracking workflows.
type Service struct {
	repo       Repository
	undoWindow time.Duration
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock injects the time source. All "now"/"today" decisions go through
// it so tests can freeze time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithUndoWindow overrides the completion undo window.
func WithUndoWindow(window time.Duration) Option {
	return func(s *Service) { s.undoWindow = window }
}

// NewService constructs a Service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		undoWindow: DefaultUndoWindow,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateHabitInput carries the payload for habit creation.
type CreateHabitInput struct {
	UserID          string
	Name            string
	Description     string
	Frequency       Frequency
	DurationMinutes *int
	Timezone        string
}

// CreateHabit validates the input, persists the habit as active with its
// first due instant already computed, and emits a created event. The habit
// row and its next_due_at commit together.
func (s *Service) CreateHabit(ctx context.Context, input CreateHabitInput) (*Habit, error) {
	violations := validateProfile(input.Name, input.Description, input.DurationMinutes, input.Timezone)
	if err := input.Frequency.Validate(); err != nil {
		if verr, ok := err.(*ValidationError); ok {
			violations = append(violations, verr.Violations...)
		} else {
			return nil, err
		}
	}
	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	now := s.now()
	habit := Habit{
		ID:              uuid.NewString(),
		UserID:          input.UserID,
		Name:            input.Name,
		Description:     input.Description,
		Frequency:       input.Frequency.Normalize(),
		DurationMinutes: input.DurationMinutes,
		Status:          HabitStatusActive,
		Timezone:        input.Timezone,
		CreatedAt:       now,
		UpdatedAt:       now,
		Version:         1,
	}

	nextDue, err := NextOccurrenceAfter(habit, now)
	if err != nil {
		return nil, err
	}
	habit.NextDueAt = nextDue

	event := Event{Kind: events.KindHabitCreated, Payload: events.HabitCreated{
		HabitID:   habit.ID,
		UserID:    habit.UserID,
		Name:      habit.Name,
		Frequency: snapshotFrequency(habit.Frequency),
		Timezone:  habit.Timezone,
		NextDueAt: habit.NextDueAt,
		CreatedAt: habit.CreatedAt,
	}}
	if err := s.repo.CreateHabit(ctx, habit, event); err != nil {
		return nil, err
	}
	return &habit, nil
}

// UpdateHabitInput carries a partial habit mutation. Nil fields are left
// unchanged.
type UpdateHabitInput struct {
	UserID          string
	HabitID         string
	Name            *string
	Description     *string
	DurationMinutes *int
	ClearDuration   bool
	Frequency       *Frequency
	Status          *HabitStatus
}

// UpdateHabit applies any subset of name/description/duration/frequency/status
// changes. A frequency or status change recomputes next_due_at when the
// resulting status is active, and clears it otherwise, in the same write.
func (s *Service) UpdateHabit(ctx context.Context, input UpdateHabitInput) (*Habit, error) {
	habit, err := s.getOwnedHabit(ctx, input.UserID, input.HabitID)
	if err != nil {
		return nil, err
	}

	var violations []string
	if input.Name != nil {
		violations = append(violations, nameViolations(*input.Name)...)
	}
	if input.Description != nil {
		violations = append(violations, descriptionViolations(*input.Description)...)
	}
	violations = append(violations, durationViolations(input.DurationMinutes)...)
	if input.Frequency != nil {
		if err := input.Frequency.Validate(); err != nil {
			if verr, ok := err.(*ValidationError); ok {
				violations = append(violations, verr.Violations...)
			} else {
				return nil, err
			}
		}
	}
	if input.Status != nil && !validStatus(*input.Status) {
		violations = append(violations, "status must be active, paused, or archived")
	}
	if len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	if input.Status != nil && habit.Status == HabitStatusArchived && *input.Status != HabitStatusArchived {
		// Archived is terminal; an archived habit is never reactivated.
		return nil, ErrInvalidState
	}

	before := snapshotFrequency(habit.Frequency)
	now := s.now()
	patch := HabitPatch{UpdatedAt: now}

	if input.Name != nil {
		patch.Name = *input.Name
		patch.SetName = true
	}
	if input.Description != nil {
		patch.Description = *input.Description
		patch.SetDescription = true
	}
	if input.DurationMinutes != nil {
		patch.DurationMinutes = input.DurationMinutes
		patch.SetDuration = true
	} else if input.ClearDuration {
		patch.SetDuration = true
	}

	projected := *habit
	frequencyChanged := false
	if input.Frequency != nil && !habit.Frequency.Equal(*input.Frequency) {
		normalized := input.Frequency.Normalize()
		patch.Frequency = &normalized
		projected.Frequency = normalized
		frequencyChanged = true
	}
	statusChanged := false
	if input.Status != nil && *input.Status != habit.Status {
		patch.Status = input.Status
		projected.Status = *input.Status
		statusChanged = true
	}

	if frequencyChanged || statusChanged {
		if projected.Status == HabitStatusActive {
			nextDue, err := NextOccurrenceAfter(projected, now)
			if err != nil {
				return nil, err
			}
			patch.NextDueAt = nextDue
		}
		patch.SetNextDue = true
	}

	if patch.Empty() {
		// Nothing would change; skip the write and emit no event.
		return habit, nil
	}

	nextDue := habit.NextDueAt
	if patch.SetNextDue {
		nextDue = patch.NextDueAt
	}
	event := Event{Kind: events.KindHabitUpdated, Payload: events.HabitUpdated{
		HabitID:         habit.ID,
		UserID:          habit.UserID,
		Status:          string(projected.Status),
		FrequencyBefore: before,
		FrequencyAfter:  snapshotFrequency(projected.Frequency),
		NextDueAt:       nextDue,
		OccurredAt:      now,
	}}
	return s.repo.UpdateHabit(ctx, input.UserID, input.HabitID, habit.Version, patch, event)
}

// PauseHabit sets the habit to paused and clears next_due_at. Pausing an
// already-paused habit is a no-op that performs no write; pausing an archived
// habit fails.
func (s *Service) PauseHabit(ctx context.Context, userID, habitID string) (*Habit, error) {
	return s.transition(ctx, userID, habitID, HabitStatusPaused)
}

// ResumeHabit sets the habit back to active and recomputes next_due_at.
// Resuming an already-active habit is a no-op; resuming an archived habit
// fails.
func (s *Service) ResumeHabit(ctx context.Context, userID, habitID string) (*Habit, error) {
	return s.transition(ctx, userID, habitID, HabitStatusActive)
}

func (s *Service) transition(ctx context.Context, userID, habitID string, target HabitStatus) (*Habit, error) {
	habit, err := s.getOwnedHabit(ctx, userID, habitID)
	if err != nil {
		return nil, err
	}
	if habit.Status == target {
		return habit, nil
	}
	if habit.Status == HabitStatusArchived {
		return nil, ErrInvalidState
	}

	before := snapshotFrequency(habit.Frequency)
	now := s.now()
	patch := HabitPatch{Status: &target, SetNextDue: true, UpdatedAt: now}
	if target == HabitStatusActive {
		projected := *habit
		projected.Status = HabitStatusActive
		nextDue, err := NextOccurrenceAfter(projected, now)
		if err != nil {
			return nil, err
		}
		patch.NextDueAt = nextDue
	}

	event := Event{Kind: events.KindHabitUpdated, Payload: events.HabitUpdated{
		HabitID:         habit.ID,
		UserID:          habit.UserID,
		Status:          string(target),
		FrequencyBefore: before,
		FrequencyAfter:  before,
		NextDueAt:       patch.NextDueAt,
		OccurredAt:      now,
	}}
	return s.repo.UpdateHabit(ctx, userID, habitID, habit.Version, patch, event)
}

// DeleteHabit soft-deletes the habit. Every subsequent lookup treats the row
// as absent.
func (s *Service) DeleteHabit(ctx context.Context, userID, habitID string) error {
	habit, err := s.getOwnedHabit(ctx, userID, habitID)
	if err != nil {
		return err
	}

	now := s.now()
	event := Event{Kind: events.KindHabitDeleted, Payload: events.HabitDeleted{
		HabitID:    habit.ID,
		UserID:     habit.UserID,
		OccurredAt: now,
	}}
	return s.repo.SoftDeleteHabit(ctx, userID, habitID, now, event)
}

// GetHabit fetches a habit together with its streak summary, recomputed from
// the live completion set.
func (s *Service) GetHabit(ctx context.Context, userID, habitID string) (*Habit, *StreakSummary, error) {
	habit, err := s.getOwnedHabit(ctx, userID, habitID)
	if err != nil {
		return nil, nil, err
	}

	completions, _, err := s.repo.ListCompletions(ctx, userID, habitID, nil, 0)
	if err != nil {
		return nil, nil, err
	}

	summary, err := CalculateStreaks(*habit, completions, s.now())
	if err != nil {
		return nil, nil, err
	}
	return habit, &summary, nil
}

// ListHabits returns the user's habits filtered, sorted, and paginated.
func (s *Service) ListHabits(ctx context.Context, userID string, filter HabitFilter) ([]Habit, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	if filter.SortBy == "" {
		filter.SortBy = SortByNextDue
	}
	return s.repo.ListHabits(ctx, userID, filter)
}

// MarkCompleteInput carries the payload for recording a completion.
type MarkCompleteInput struct {
	UserID       string
	HabitID      string
	ScheduledFor time.Time // calendar date
	Notes        string
}

// MarkComplete records a completion for a scheduled date. Future dates are
// rejected, duplicates surface as ErrConflict through the storage uniqueness
// constraint, and the habit's next_due_at is recomputed in the same
// transaction as the insert.
func (s *Service) MarkComplete(ctx context.Context, input MarkCompleteInput) (*Completion, error) {
	habit, err := s.getOwnedHabit(ctx, input.UserID, input.HabitID)
	if err != nil {
		return nil, err
	}
	if habit.Status != HabitStatusActive {
		return nil, ErrInvalidState
	}
	if violations := notesViolations(input.Notes); len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}

	loc, err := habit.location()
	if err != nil {
		return nil, err
	}
	now := s.now()
	today := DateOf(now, loc)
	scheduledFor := time.Date(input.ScheduledFor.Year(), input.ScheduledFor.Month(), input.ScheduledFor.Day(), 0, 0, 0, 0, time.UTC)
	if scheduledFor.After(today) {
		return nil, &ValidationError{Violations: []string{"scheduled_for cannot be in the future"}}
	}

	completion := Completion{
		ID:           uuid.NewString(),
		HabitID:      habit.ID,
		UserID:       habit.UserID,
		ScheduledFor: scheduledFor,
		CompletedAt:  now,
		Notes:        input.Notes,
	}

	nextDue, err := NextOccurrenceAfter(*habit, now)
	if err != nil {
		return nil, err
	}

	event := Event{Kind: events.KindHabitCompleted, Payload: events.HabitCompleted{
		HabitID:      habit.ID,
		CompletionID: completion.ID,
		UserID:       habit.UserID,
		ScheduledFor: scheduledFor.Format(dateKeyLayout),
		CompletedAt:  completion.CompletedAt,
		NextDueAt:    nextDue,
	}}
	if err := s.repo.CreateCompletion(ctx, completion, nextDue, event); err != nil {
		return nil, err
	}
	return &completion, nil
}

// UndoCompletion soft-voids a completion recorded within the undo window. The
// record is kept for the audit trail; streaks derive from live completions so
// no separate recomputation write is needed.
func (s *Service) UndoCompletion(ctx context.Context, userID, completionID string) (*Completion, error) {
	completion, err := s.repo.GetCompletion(ctx, userID, completionID)
	if err != nil {
		return nil, err
	}
	if completion == nil {
		return nil, ErrCompletionNotFound
	}
	if completion.Undone() {
		return nil, ErrInvalidState
	}

	now := s.now()
	if now.Sub(completion.CompletedAt) > s.undoWindow {
		return nil, ErrInvalidState
	}

	event := Event{Kind: events.KindHabitUncompleted, Payload: events.HabitUncompleted{
		HabitID:      completion.HabitID,
		CompletionID: completion.ID,
		UserID:       completion.UserID,
		ScheduledFor: completion.ScheduledFor.Format(dateKeyLayout),
		UndoneAt:     now,
	}}
	voided, err := s.repo.MarkCompletionUndone(ctx, userID, completionID, now, event)
	if err != nil {
		return nil, err
	}
	if !voided {
		// Lost a race against a concurrent undo.
		return nil, ErrInvalidState
	}

	completion.UndoneAt = &now
	return completion, nil
}

// ListCompletions returns the habit's live completion history, newest first.
func (s *Service) ListCompletions(ctx context.Context, userID, habitID string, cursor *Cursor, limit int) ([]Completion, *Cursor, error) {
	if _, err := s.getOwnedHabit(ctx, userID, habitID); err != nil {
		return nil, nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListCompletions(ctx, userID, habitID, cursor, limit)
}

// ScheduleState classifies a habit on today's schedule.
type ScheduleState string

const (
	ScheduleCompleted ScheduleState = "completed"
	ScheduleOverdue   ScheduleState = "overdue"
	SchedulePending   ScheduleState = "pending"
)

// ScheduleEntry pairs a habit with its classification for today.
type ScheduleEntry struct {
	Habit Habit
	State ScheduleState
}

// TodaySchedule summarises the user's in-scope habits for today.
type TodaySchedule struct {
	Completed int
	Overdue   int
	Pending   int
	Entries   []ScheduleEntry
}

// TodaySchedule classifies every active habit scheduled for today as
// completed, overdue, or pending. "Today" is evaluated per habit in its own
// timezone.
func (s *Service) TodaySchedule(ctx context.Context, userID string) (*TodaySchedule, error) {
	habits, err := s.repo.ListActiveHabits(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	// One day of slack on both sides covers habits whose local date differs
	// from UTC's.
	from := DateOf(now, time.UTC).AddDate(0, 0, -1)
	to := DateOf(now, time.UTC).AddDate(0, 0, 1)
	completions, err := s.repo.ListCompletionsBetween(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	completed := make(map[string]struct{}, len(completions))
	for _, c := range completions {
		if c.Undone() {
			continue
		}
		completed[c.HabitID+"|"+c.ScheduledFor.Format(dateKeyLayout)] = struct{}{}
	}

	schedule := &TodaySchedule{}
	for _, habit := range habits {
		loc, err := habit.location()
		if err != nil {
			return nil, err
		}
		today := DateOf(now, loc)
		scheduled, err := IsScheduledOn(habit, today)
		if err != nil {
			return nil, err
		}
		if !scheduled {
			continue
		}

		var state ScheduleState
		switch {
		case hasKey(completed, habit.ID+"|"+today.Format(dateKeyLayout)):
			state = ScheduleCompleted
			schedule.Completed++
		case habit.NextDueAt != nil && habit.NextDueAt.Before(now):
			state = ScheduleOverdue
			schedule.Overdue++
		default:
			state = SchedulePending
			schedule.Pending++
		}
		schedule.Entries = append(schedule.Entries, ScheduleEntry{Habit: habit, State: state})
	}
	return schedule, nil
}

// getOwnedHabit is the single read path used by mutating operations:
// ownership is enforced in the lookup predicate, never as a separate check.
func (s *Service) getOwnedHabit(ctx context.Context, userID, habitID string) (*Habit, error) {
	habit, err := s.repo.GetHabit(ctx, userID, habitID)
	if err != nil {
		return nil, err
	}
	if habit == nil {
		return nil, ErrHabitNotFound
	}
	return habit, nil
}

func hasKey(m map[string]struct{}, key string) bool {
	_, ok := m[key]
	return ok
}

func snapshotFrequency(f Frequency) events.FrequencySnapshot {
	return events.FrequencySnapshot{
		Kind:          string(f.Kind),
		Time:          f.Time,
		DaysOfWeek:    f.DaysOfWeek,
		IntervalCount: f.IntervalCount,
		IntervalUnit:  string(f.IntervalUnit),
	}
}
