package domain

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type stubRepo struct {
	habits      map[string]*Habit
	completions map[string]*Completion
	events      []Event

	updateCalls     int
	createCompCalls int
	createCompErr   error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		habits:      make(map[string]*Habit),
		completions: make(map[string]*Completion),
	}
}

func (r *stubRepo) eventKinds() []string {
	kinds := make([]string, 0, len(r.events))
	for _, event := range r.events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}

func (r *stubRepo) CreateHabit(_ context.Context, habit Habit, event Event) error {
	r.habits[habit.ID] = &habit
	r.events = append(r.events, event)
	return nil
}

func (r *stubRepo) GetHabit(_ context.Context, userID, habitID string) (*Habit, error) {
	habit, ok := r.habits[habitID]
	if !ok || habit.UserID != userID || habit.DeletedAt != nil {
		return nil, nil
	}
	copied := *habit
	return &copied, nil
}

func (r *stubRepo) UpdateHabit(_ context.Context, userID, habitID string, expectedVersion int64, patch HabitPatch, event Event) (*Habit, error) {
	r.updateCalls++
	habit, ok := r.habits[habitID]
	if !ok || habit.UserID != userID || habit.DeletedAt != nil {
		return nil, ErrHabitNotFound
	}
	if habit.Version != expectedVersion {
		return nil, ErrConflict
	}
	if patch.SetName {
		habit.Name = patch.Name
	}
	if patch.SetDescription {
		habit.Description = patch.Description
	}
	if patch.SetDuration {
		habit.DurationMinutes = patch.DurationMinutes
	}
	if patch.Frequency != nil {
		habit.Frequency = *patch.Frequency
	}
	if patch.Status != nil {
		habit.Status = *patch.Status
	}
	if patch.SetNextDue {
		habit.NextDueAt = patch.NextDueAt
	}
	habit.UpdatedAt = patch.UpdatedAt
	habit.Version++
	r.events = append(r.events, event)
	copied := *habit
	return &copied, nil
}

func (r *stubRepo) SoftDeleteHabit(_ context.Context, userID, habitID string, at time.Time, event Event) error {
	habit, ok := r.habits[habitID]
	if !ok || habit.UserID != userID {
		return ErrHabitNotFound
	}
	habit.DeletedAt = &at
	r.events = append(r.events, event)
	return nil
}

func (r *stubRepo) ListHabits(_ context.Context, userID string, _ HabitFilter) ([]Habit, error) {
	return r.listForUser(userID, false), nil
}

func (r *stubRepo) ListActiveHabits(_ context.Context, userID string) ([]Habit, error) {
	return r.listForUser(userID, true), nil
}

func (r *stubRepo) listForUser(userID string, activeOnly bool) []Habit {
	var out []Habit
	for _, habit := range r.habits {
		if habit.UserID != userID || habit.DeletedAt != nil {
			continue
		}
		if activeOnly && habit.Status != HabitStatusActive {
			continue
		}
		out = append(out, *habit)
	}
	return out
}

func (r *stubRepo) CreateCompletion(_ context.Context, completion Completion, nextDueAt *time.Time, event Event) error {
	r.createCompCalls++
	if r.createCompErr != nil {
		return r.createCompErr
	}
	for _, existing := range r.completions {
		if existing.HabitID == completion.HabitID &&
			existing.ScheduledFor.Equal(completion.ScheduledFor) &&
			!existing.Undone() {
			return ErrConflict
		}
	}
	copied := completion
	r.completions[completion.ID] = &copied
	if habit, ok := r.habits[completion.HabitID]; ok {
		habit.NextDueAt = nextDueAt
		habit.Version++
	}
	r.events = append(r.events, event)
	return nil
}

func (r *stubRepo) GetCompletion(_ context.Context, userID, completionID string) (*Completion, error) {
	completion, ok := r.completions[completionID]
	if !ok || completion.UserID != userID {
		return nil, nil
	}
	copied := *completion
	return &copied, nil
}

func (r *stubRepo) MarkCompletionUndone(_ context.Context, userID, completionID string, at time.Time, event Event) (bool, error) {
	completion, ok := r.completions[completionID]
	if !ok || completion.UserID != userID || completion.Undone() {
		return false, nil
	}
	completion.UndoneAt = &at
	r.events = append(r.events, event)
	return true, nil
}

func (r *stubRepo) ListCompletions(_ context.Context, userID, habitID string, _ *Cursor, _ int) ([]Completion, *Cursor, error) {
	var out []Completion
	for _, completion := range r.completions {
		if completion.UserID == userID && completion.HabitID == habitID {
			out = append(out, *completion)
		}
	}
	return out, nil, nil
}

func (r *stubRepo) ListCompletionsBetween(_ context.Context, userID string, from, to time.Time) ([]Completion, error) {
	var out []Completion
	for _, completion := range r.completions {
		if completion.UserID != userID {
			continue
		}
		if completion.ScheduledFor.Before(from) || completion.ScheduledFor.After(to) {
			continue
		}
		out = append(out, *completion)
	}
	return out, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestService(repo Repository, now time.Time) *Service {
	return NewService(repo, WithClock(fixedClock(now)))
}

func TestCreateHabitComputesFirstDue(t *testing.T) {
	repo := newStubRepo()
	now := time.Date(2025, time.March, 10, 6, 0, 0, 0, time.UTC)
	service := newTestService(repo, now)

	habit, err := service.CreateHabit(context.Background(), CreateHabitInput{
		UserID:    "user-1",
		Name:      "Morning run",
		Frequency: Frequency{Kind: FrequencyDaily, Time: "07:00"},
		Timezone:  "UTC",
	})
	if err != nil {
		t.Fatal(err)
	}
	if habit.Status != HabitStatusActive {
		t.Fatalf("new habit must be active, got %s", habit.Status)
	}
	want := time.Date(2025, time.March, 10, 7, 0, 0, 0, time.UTC)
	if habit.NextDueAt == nil || !habit.NextDueAt.Equal(want) {
		t.Fatalf("expected next due %v, got %v", want, habit.NextDueAt)
	}
	if len(repo.events) != 1 || repo.events[0].Kind != "habit.created" {
		t.Fatalf("expected habit.created event, got %v", repo.eventKinds())
	}
}

func TestCreateHabitAggregatesViolations(t *testing.T) {
	repo := newStubRepo()
	service := newTestService(repo, time.Now())

	_, err := service.CreateHabit(context.Background(), CreateHabitInput{
		UserID:    "user-1",
		Name:      "   ",
		Frequency: Frequency{Kind: FrequencyWeekly, Time: "7:00"},
		Timezone:  "Mars/Olympus",
	})
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	// Empty name, bad timezone, bad time format, missing days_of_week.
	if len(verr.Violations) != 4 {
		t.Fatalf("expected 4 violations, got %d: %v", len(verr.Violations), verr.Violations)
	}
	if len(repo.habits) != 0 {
		t.Fatal("invalid habit must not be persisted")
	}
}

func TestNameLengthCountsRunes(t *testing.T) {
	repo := newStubRepo()
	now := time.Date(2025, time.March, 10, 6, 0, 0, 0, time.UTC)
	service := newTestService(repo, now)

	// 100 runes but 300 bytes; must pass the limit.
	name := strings.Repeat("習", 100)
	habit, err := service.CreateHabit(context.Background(), CreateHabitInput{
		UserID:    "user-1",
		Name:      name,
		Frequency: Frequency{Kind: FrequencyDaily, Time: "07:00"},
		Timezone:  "UTC",
	})
	if err != nil {
		t.Fatalf("100-rune multibyte name must be accepted, got %v", err)
	}
	if habit.Name != name {
		t.Fatal("name must be stored unmodified")
	}

	_, err = service.CreateHabit(context.Background(), CreateHabitInput{
		UserID:    "user-1",
		Name:      strings.Repeat("習", 101),
		Frequency: Frequency{Kind: FrequencyDaily, Time: "07:00"},
		Timezone:  "UTC",
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("101-rune name must be rejected, got %v", err)
	}
}

func TestUpdateHabitValidationMatchesCreate(t *testing.T) {
	repo := newStubRepo()
	now := time.Date(2025, time.March, 10, 6, 0, 0, 0, time.UTC)
	service := newTestService(repo, now)

	h := activeHabit(Frequency{Kind: FrequencyDaily, Time: "07:00"}, "UTC", now.AddDate(0, 0, -5))
	repo.habits[h.ID] = &h

	// 60 runes, 180 bytes: update must count runes like create does.
	name := strings.Repeat("水", 60)
	got, err := service.UpdateHabit(context.Background(), UpdateHabitInput{
		UserID:  "user-1",
		HabitID: h.ID,
		Name:    &name,
	})
	if err != nil {
		t.Fatalf("60-rune multibyte name must be accepted, got %v", err)
	}
	if got.Name != name {
		t.Fatalf("expected updated name, got %q", got.Name)
	}

	tooLong := strings.Repeat("水", 101)
	_, err = service.UpdateHabit(context.Background(), UpdateHabitInput{
		UserID:  "user-1",
		HabitID: h.ID,
		Name:    &tooLong,
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}

	_, createErr := service.CreateHabit(context.Background(), CreateHabitInput{
		UserID:    "user-1",
		Name:      tooLong,
		Frequency: Frequency{Kind: FrequencyDaily, Time: "07:00"},
		Timezone:  "UTC",
	})
	var createVerr *ValidationError
	if !errors.As(createErr, &createVerr) {
		t.Fatalf("expected *ValidationError, got %v", createErr)
	}
	if verr.Violations[0] != createVerr.Violations[0] {
		t.Fatalf("update and create must report the same violation, got %q vs %q",
			verr.Violations[0], createVerr.Violations[0])
	}
}

func TestUpdateHabitWithNoChangesSkipsWrite(t *testing.T) {
	repo := newStubRepo()
	now := time.Date(2025, time.March, 10, 6, 0, 0, 0, time.UTC)
	service := newTestService(repo, now)

	h := activeHabit(Frequency{Kind: FrequencyDaily, Time: "07:00"}, "UTC", now.AddDate(0, 0, -5))
	repo.habits[h.ID] = &h

	got, err := service.UpdateHabit(context.Background(), UpdateHabitInput{
		UserID:  "user-1",
		HabitID: h.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != h.Version {
		t.Fatalf("no-op update must not bump version, got %d", got.Version)
	}
	if repo.updateCalls != 0 {
		t.Fatalf("no-op update must not write, got %d update calls", repo.updateCalls)
	}
	if len(repo.events) != 0 {
		t.Fatalf("no-op update must not record events, got %v", repo.eventKinds())
	}

	// Re-submitting the current frequency and status is equally a no-op.
	freq := h.Frequency
	status := h.Status
	if _, err := service.UpdateHabit(context.Background(), UpdateHabitInput{
		UserID:    "user-1",
		HabitID:   h.ID,
		Frequency: &freq,
		Status:    &status,
	}); err != nil {
		t.Fatal(err)
	}
	if repo.updateCalls != 0 {
		t.Fatalf("same-value update must not write, got %d update calls", repo.updateCalls)
	}
}

func TestPauseHabitIsIdempotent(t *testing.T) {
	repo := newStubRepo()
	now := time.Date(2025, time.March, 10, 6, 0, 0, 0, time.UTC)
	service := newTestService(repo, now)

	h := activeHabit(Frequency{Kind: FrequencyDaily, Time: "07:00"}, "UTC", now.AddDate(0, 0, -5))
	h.Status = HabitStatusPaused
	repo.habits[h.ID] = &h

	got, err := service.PauseHabit(context.Background(), "user-1", h.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != HabitStatusPaused {
		t.Fatalf("expected paused, got %s", got.Status)
	}
	if repo.updateCalls != 0 {
		t.Fatalf("idempotent pause must not write, got %d update calls", repo.updateCalls)
	}
	if len(repo.events) != 0 {
		t.Fatalf("idempotent pause must not record events, got %v", repo.eventKinds())
	}
}

func TestResumeRecomputesNextDue(t *testing.T) {
	repo := newStubRepo()
	now := time.Date(2025, time.March, 10, 6, 0, 0, 0, time.UTC)
	service := newTestService(repo, now)

	h := activeHabit(Frequency{Kind: FrequencyDaily, Time: "07:00"}, "UTC", now.AddDate(0, 0, -5))
	h.Status = HabitStatusPaused
	h.NextDueAt = nil
	repo.habits[h.ID] = &h

	got, err := service.ResumeHabit(context.Background(), "user-1", h.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2025, time.March, 10, 7, 0, 0, 0, time.UTC)
	if got.NextDueAt == nil || !got.NextDueAt.Equal(want) {
		t.Fatalf("expected next due %v, got %v", want, got.NextDueAt)
	}
}

func TestArchivedHabitIsTerminal(t *testing.T) {
	repo := newStubRepo()
	now := time.Date(2025, time.March, 10, 6, 0, 0, 0, time.UTC)
	service := newTestService(repo, now)

	h := activeHabit(Frequency{Kind: FrequencyDaily, Time: "07:00"}, "UTC", now.AddDate(0, 0, -5))
	h.Status = HabitStatusArchived
	h.NextDueAt = nil
	repo.habits[h.ID] = &h

	if _, err := service.ResumeHabit(context.Background(), "user-1", h.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	status := HabitStatusActive
	_, err := service.UpdateHabit(context.Background(), UpdateHabitInput{
		UserID:  "user-1",
		HabitID: h.ID,
		Status:  &status,
	})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestUpdateHabitFrequencyRecomputesDue(t *testing.T) {
	repo := newStubRepo()
	now := time.Date(2025, time.March, 10, 6, 0, 0, 0, time.UTC) // Monday
	service := newTestService(repo, now)

	h := activeHabit(Frequency{Kind: FrequencyDaily, Time: "07:00"}, "UTC", now.AddDate(0, 0, -5))
	repo.habits[h.ID] = &h

	weekly := Frequency{Kind: FrequencyWeekly, Time: "18:00", DaysOfWeek: []int{3}}
	got, err := service.UpdateHabit(context.Background(), UpdateHabitInput{
		UserID:    "user-1",
		HabitID:   h.ID,
		Frequency: &weekly,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2025, time.March, 12, 18, 0, 0, 0, time.UTC) // Wednesday
	if got.NextDueAt == nil || !got.NextDueAt.Equal(want) {
		t.Fatalf("expected next due %v, got %v", want, got.NextDueAt)
	}
	if len(repo.events) != 1 || repo.events[0].Kind != "habit.updated" {
		t.Fatalf("expected habit.updated event, got %v", repo.eventKinds())
	}
}

func TestMarkCompleteRejectsFutureDate(t *testing.T) {
	repo := newStubRepo()
	now := time.Date(2025, time.March, 10, 6, 0, 0, 0, time.UTC)
	service := newTestService(repo, now)

	h := activeHabit(Frequency{Kind: FrequencyDaily, Time: "07:00"}, "UTC", now.AddDate(0, 0, -5))
	repo.habits[h.ID] = &h

	_, err := service.MarkComplete(context.Background(), MarkCompleteInput{
		UserID:       "user-1",
		HabitID:      h.ID,
		ScheduledFor: time.Date(2025, time.March, 11, 0, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if repo.createCompCalls != 0 {
		t.Fatal("future-dated completion must not reach storage")
	}
}

func TestMarkCompleteRejectsPausedHabit(t *testing.T) {
	repo := newStubRepo()
	now := time.Date(2025, time.March, 10, 6, 0, 0, 0, time.UTC)
	service := newTestService(repo, now)

	h := activeHabit(Frequency{Kind: FrequencyDaily, Time: "07:00"}, "UTC", now.AddDate(0, 0, -5))
	h.Status = HabitStatusPaused
	repo.habits[h.ID] = &h

	_, err := service.MarkComplete(context.Background(), MarkCompleteInput{
		UserID:       "user-1",
		HabitID:      h.ID,
		ScheduledFor: now,
	})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestMarkCompleteNotesCountRunes(t *testing.T) {
	repo := newStubRepo()
	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	service := newTestService(repo, now)

	h := activeHabit(Frequency{Kind: FrequencyDaily, Time: "07:00"}, "UTC", now.AddDate(0, 0, -5))
	repo.habits[h.ID] = &h

	// 1000 runes, 3000 bytes.
	if _, err := service.MarkComplete(context.Background(), MarkCompleteInput{
		UserID:       "user-1",
		HabitID:      h.ID,
		ScheduledFor: now,
		Notes:        strings.Repeat("走", 1000),
	}); err != nil {
		t.Fatalf("1000-rune multibyte notes must be accepted, got %v", err)
	}

	_, err := service.MarkComplete(context.Background(), MarkCompleteInput{
		UserID:       "user-1",
		HabitID:      h.ID,
		ScheduledFor: now.AddDate(0, 0, -1),
		Notes:        strings.Repeat("走", 1001),
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("1001-rune notes must be rejected, got %v", err)
	}
}

func TestMarkCompleteDuplicateSurfacesConflict(t *testing.T) {
	repo := newStubRepo()
	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	service := newTestService(repo, now)

	h := activeHabit(Frequency{Kind: FrequencyDaily, Time: "07:00"}, "UTC", now.AddDate(0, 0, -5))
	repo.habits[h.ID] = &h

	input := MarkCompleteInput{UserID: "user-1", HabitID: h.ID, ScheduledFor: now}
	if _, err := service.MarkComplete(context.Background(), input); err != nil {
		t.Fatal(err)
	}
	if _, err := service.MarkComplete(context.Background(), input); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUndoThenRecomplete(t *testing.T) {
	repo := newStubRepo()
	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	service := newTestService(repo, now)

	h := activeHabit(Frequency{Kind: FrequencyDaily, Time: "07:00"}, "UTC", now.AddDate(0, 0, -5))
	repo.habits[h.ID] = &h

	input := MarkCompleteInput{UserID: "user-1", HabitID: h.ID, ScheduledFor: now}
	completion, err := service.MarkComplete(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}

	undone, err := service.UndoCompletion(context.Background(), "user-1", completion.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !undone.Undone() {
		t.Fatal("expected completion to be voided")
	}

	// The voided row no longer blocks a fresh completion for the same day.
	if _, err := service.MarkComplete(context.Background(), input); err != nil {
		t.Fatalf("re-completion after undo should succeed, got %v", err)
	}

	kinds := repo.eventKinds()
	want := []string{"habit.completed", "habit.uncompleted", "habit.completed"}
	if len(kinds) != len(want) {
		t.Fatalf("expected events %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, kinds)
		}
	}
}

func TestUndoOutsideWindowFails(t *testing.T) {
	repo := newStubRepo()
	completedAt := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	completion := Completion{
		ID:           "comp-1",
		HabitID:      "habit-1",
		UserID:       "user-1",
		ScheduledFor: time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
		CompletedAt:  completedAt,
	}
	repo.completions[completion.ID] = &completion

	service := newTestService(repo, completedAt.Add(25*time.Hour))
	_, err := service.UndoCompletion(context.Background(), "user-1", completion.ID)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestUndoAlreadyUndoneFails(t *testing.T) {
	repo := newStubRepo()
	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	undoneAt := now.Add(-time.Hour)
	completion := Completion{
		ID:           "comp-1",
		HabitID:      "habit-1",
		UserID:       "user-1",
		ScheduledFor: time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
		CompletedAt:  now.Add(-2 * time.Hour),
		UndoneAt:     &undoneAt,
	}
	repo.completions[completion.ID] = &completion

	service := newTestService(repo, now)
	_, err := service.UndoCompletion(context.Background(), "user-1", completion.ID)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestUndoForeignCompletionIsNotFound(t *testing.T) {
	repo := newStubRepo()
	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	completion := Completion{
		ID:           "comp-1",
		HabitID:      "habit-1",
		UserID:       "user-2",
		ScheduledFor: time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
		CompletedAt:  now.Add(-time.Hour),
	}
	repo.completions[completion.ID] = &completion

	service := newTestService(repo, now)
	_, err := service.UndoCompletion(context.Background(), "user-1", completion.ID)
	if !errors.Is(err, ErrCompletionNotFound) {
		t.Fatalf("expected ErrCompletionNotFound, got %v", err)
	}
}

func TestGetHabitUnknownIsNotFound(t *testing.T) {
	service := newTestService(newStubRepo(), time.Now())
	_, _, err := service.GetHabit(context.Background(), "user-1", "missing")
	if !errors.Is(err, ErrHabitNotFound) {
		t.Fatalf("expected ErrHabitNotFound, got %v", err)
	}
}

func TestGetHabitOtherUsersIsNotFound(t *testing.T) {
	repo := newStubRepo()
	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	h := activeHabit(Frequency{Kind: FrequencyDaily, Time: "07:00"}, "UTC", now.AddDate(0, 0, -5))
	repo.habits[h.ID] = &h

	service := newTestService(repo, now)
	_, _, err := service.GetHabit(context.Background(), "user-2", h.ID)
	if !errors.Is(err, ErrHabitNotFound) {
		t.Fatalf("foreign habit must look absent, got %v", err)
	}
}

func TestTodayScheduleClassifiesHabits(t *testing.T) {
	repo := newStubRepo()
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC) // Monday noon
	service := newTestService(repo, now)

	completedHabit := activeHabit(Frequency{Kind: FrequencyDaily, Time: "07:00"}, "UTC", now.AddDate(0, 0, -5))
	completedHabit.ID = "habit-done"
	due := time.Date(2025, time.March, 11, 7, 0, 0, 0, time.UTC)
	completedHabit.NextDueAt = &due
	repo.habits[completedHabit.ID] = &completedHabit
	repo.completions["comp-1"] = &Completion{
		ID:           "comp-1",
		HabitID:      completedHabit.ID,
		UserID:       "user-1",
		ScheduledFor: time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
		CompletedAt:  now.Add(-time.Hour),
	}

	overdueHabit := activeHabit(Frequency{Kind: FrequencyDaily, Time: "07:00"}, "UTC", now.AddDate(0, 0, -5))
	overdueHabit.ID = "habit-overdue"
	past := time.Date(2025, time.March, 10, 7, 0, 0, 0, time.UTC)
	overdueHabit.NextDueAt = &past
	repo.habits[overdueHabit.ID] = &overdueHabit

	pendingHabit := activeHabit(Frequency{Kind: FrequencyDaily, Time: "20:00"}, "UTC", now.AddDate(0, 0, -5))
	pendingHabit.ID = "habit-pending"
	evening := time.Date(2025, time.March, 10, 20, 0, 0, 0, time.UTC)
	pendingHabit.NextDueAt = &evening
	repo.habits[pendingHabit.ID] = &pendingHabit

	// Weekly habit not scheduled on Mondays; must not appear at all.
	offHabit := activeHabit(Frequency{Kind: FrequencyWeekly, Time: "08:00", DaysOfWeek: []int{2}}, "UTC", now.AddDate(0, 0, -5))
	offHabit.ID = "habit-off"
	repo.habits[offHabit.ID] = &offHabit

	schedule, err := service.TodaySchedule(context.Background(), "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if schedule.Completed != 1 || schedule.Overdue != 1 || schedule.Pending != 1 {
		t.Fatalf("unexpected counts %+v", schedule)
	}
	if len(schedule.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(schedule.Entries))
	}
	states := make(map[string]ScheduleState, len(schedule.Entries))
	for _, entry := range schedule.Entries {
		states[entry.Habit.ID] = entry.State
	}
	if states["habit-done"] != ScheduleCompleted {
		t.Fatalf("expected habit-done completed, got %s", states["habit-done"])
	}
	if states["habit-overdue"] != ScheduleOverdue {
		t.Fatalf("expected habit-overdue overdue, got %s", states["habit-overdue"])
	}
	if states["habit-pending"] != SchedulePending {
		t.Fatalf("expected habit-pending pending, got %s", states["habit-pending"])
	}
}

func TestDeleteHabitHidesIt(t *testing.T) {
	repo := newStubRepo()
	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	service := newTestService(repo, now)

	h := activeHabit(Frequency{Kind: FrequencyDaily, Time: "07:00"}, "UTC", now.AddDate(0, 0, -5))
	repo.habits[h.ID] = &h

	if err := service.DeleteHabit(context.Background(), "user-1", h.ID); err != nil {
		t.Fatal(err)
	}
	if _, _, err := service.GetHabit(context.Background(), "user-1", h.ID); !errors.Is(err, ErrHabitNotFound) {
		t.Fatalf("deleted habit must look absent, got %v", err)
	}
	if len(repo.events) != 1 || repo.events[0].Kind != "habit.deleted" {
		t.Fatalf("expected habit.deleted event, got %v", repo.eventKinds())
	}
}
