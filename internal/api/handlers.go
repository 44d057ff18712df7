// Package api exposes HTTP handlers for the habit service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/habits/internal/auth"
	"example.com/habits/internal/domain"
	"example.com/habits/internal/persistence"
)

const scheduledForLayout = "2006-01-02"

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/habits", h.habits)
	mux.HandleFunc("/v1/habits/", h.habitSubroute)
	mux.HandleFunc("/v1/completions/", h.completionSubroute)
	mux.HandleFunc("/v1/schedule/today", h.todaySchedule)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) habits(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createHabit(w, r)
	case http.MethodGet:
		h.listHabits(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) habitSubroute(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/habits/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing habit id")
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			h.getHabit(w, r, id)
		case http.MethodPatch:
			h.updateHabit(w, r, id)
		case http.MethodDelete:
			h.deleteHabit(w, r, id)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		}
		return
	}

	switch parts[1] {
	case "pause":
		h.transitionHabit(w, r, id, h.service.PauseHabit)
	case "resume":
		h.transitionHabit(w, r, id, h.service.ResumeHabit)
	case "completions":
		switch r.Method {
		case http.MethodPost:
			h.markComplete(w, r, id)
		case http.MethodGet:
			h.listCompletions(w, r, id)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		}
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
	}
}

func (h *Handler) completionSubroute(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/completions/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] != "undo" {
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	h.undoCompletion(w, r, parts[0])
}

func (h *Handler) createHabit(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeHabitsWrite)
	if !ok {
		return
	}

	var req CreateHabitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	habit, err := h.service.CreateHabit(r.Context(), domain.CreateHabitInput{
		UserID:          claims.Subject,
		Name:            req.Name,
		Description:     req.Description,
		Frequency:       req.Frequency,
		DurationMinutes: req.DurationMinutes,
		Timezone:        req.Timezone,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toHabitView(*habit, nil))
}

func (h *Handler) getHabit(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeHabitsRead, auth.ScopeHabitsWrite)
	if !ok {
		return
	}

	habit, summary, err := h.service.GetHabit(r.Context(), claims.Subject, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toHabitView(*habit, summary))
}

func (h *Handler) updateHabit(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeHabitsWrite)
	if !ok {
		return
	}

	var req UpdateHabitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	input := domain.UpdateHabitInput{
		UserID:          claims.Subject,
		HabitID:         id,
		Name:            req.Name,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		ClearDuration:   req.ClearDuration,
		Frequency:       req.Frequency,
	}
	if req.Status != nil {
		status := domain.HabitStatus(*req.Status)
		input.Status = &status
	}

	habit, err := h.service.UpdateHabit(r.Context(), input)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toHabitView(*habit, nil))
}

func (h *Handler) deleteHabit(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := requireScope(w, r, auth.ScopeHabitsWrite)
	if !ok {
		return
	}

	if err := h.service.DeleteHabit(r.Context(), claims.Subject, id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) transitionHabit(w http.ResponseWriter, r *http.Request, id string, op func(ctx context.Context, userID, habitID string) (*domain.Habit, error)) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeHabitsWrite)
	if !ok {
		return
	}

	habit, err := op(r.Context(), claims.Subject, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toHabitView(*habit, nil))
}

func (h *Handler) listHabits(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeHabitsRead, auth.ScopeHabitsWrite)
	if !ok {
		return
	}

	filter := domain.HabitFilter{
		Search: r.URL.Query().Get("q"),
		SortBy: domain.HabitSort(r.URL.Query().Get("sort")),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.HabitStatus(raw)
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("kind"); raw != "" {
		kind := domain.FrequencyKind(raw)
		filter.Kind = &kind
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			filter.Limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			filter.Offset = parsed
		}
	}

	habits, err := h.service.ListHabits(r.Context(), claims.Subject, filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]HabitView, 0, len(habits))
	for _, habit := range habits {
		items = append(items, toHabitView(habit, nil))
	}
	writeJSON(w, http.StatusOK, ListHabitsResponse{Items: items})
}

func (h *Handler) markComplete(w http.ResponseWriter, r *http.Request, habitID string) {
	claims, ok := requireScope(w, r, auth.ScopeHabitsWrite)
	if !ok {
		return
	}

	var req MarkCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	scheduledFor, err := time.Parse(scheduledForLayout, req.ScheduledFor)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "scheduled_for must be a YYYY-MM-DD date")
		return
	}

	completion, err := h.service.MarkComplete(r.Context(), domain.MarkCompleteInput{
		UserID:       claims.Subject,
		HabitID:      habitID,
		ScheduledFor: scheduledFor,
		Notes:        req.Notes,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCompletionView(*completion))
}

func (h *Handler) listCompletions(w http.ResponseWriter, r *http.Request, habitID string) {
	claims, ok := requireScope(w, r, auth.ScopeHabitsRead, auth.ScopeHabitsWrite)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	completions, next, err := h.service.ListCompletions(r.Context(), claims.Subject, habitID, cursor, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	items := make([]CompletionView, 0, len(completions))
	for _, c := range completions {
		items = append(items, toCompletionView(c))
	}
	writeJSON(w, http.StatusOK, ListCompletionsResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) undoCompletion(w http.ResponseWriter, r *http.Request, completionID string) {
	claims, ok := requireScope(w, r, auth.ScopeHabitsWrite)
	if !ok {
		return
	}

	completion, err := h.service.UndoCompletion(r.Context(), claims.Subject, completionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompletionView(*completion))
}

func (h *Handler) todaySchedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeHabitsRead, auth.ScopeHabitsWrite)
	if !ok {
		return
	}

	schedule, err := h.service.TodaySchedule(r.Context(), claims.Subject)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := ScheduleResponse{
		Completed: schedule.Completed,
		Overdue:   schedule.Overdue,
		Pending:   schedule.Pending,
		Entries:   make([]ScheduleEntryView, 0, len(schedule.Entries)),
	}
	for _, entry := range schedule.Entries {
		resp.Entries = append(resp.Entries, ScheduleEntryView{
			Habit: toHabitView(entry.Habit, nil),
			State: string(entry.State),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "insufficient scope")
	return nil, false
}

// CreateHabitRequest is the payload for POST /v1/habits.
type CreateHabitRequest struct {
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	Frequency       domain.Frequency `json:"frequency"`
	DurationMinutes *int             `json:"duration_minutes,omitempty"`
	Timezone        string           `json:"timezone"`
}

// UpdateHabitRequest is the payload for PATCH /v1/habits/{id}. Absent fields
// are left unchanged.
type UpdateHabitRequest struct {
	Name            *string           `json:"name,omitempty"`
	Description     *string           `json:"description,omitempty"`
	DurationMinutes *int              `json:"duration_minutes,omitempty"`
	ClearDuration   bool              `json:"clear_duration,omitempty"`
	Frequency       *domain.Frequency `json:"frequency,omitempty"`
	Status          *string           `json:"status,omitempty"`
}

// MarkCompleteRequest is the payload for POST /v1/habits/{id}/completions.
type MarkCompleteRequest struct {
	ScheduledFor string `json:"scheduled_for"`
	Notes        string `json:"notes,omitempty"`
}

// StreakView reports derived adherence statistics.
type StreakView struct {
	CurrentStreak    int `json:"current_streak"`
	LongestStreak    int `json:"longest_streak"`
	TotalCompletions int `json:"total_completions"`
}

// HabitView exposes full details about a habit.
type HabitView struct {
	HabitID         string           `json:"habit_id"`
	Name            string           `json:"name"`
	Description     string           `json:"description,omitempty"`
	Frequency       domain.Frequency `json:"frequency"`
	DurationMinutes *int             `json:"duration_minutes,omitempty"`
	Status          string           `json:"status"`
	Timezone        string           `json:"timezone"`
	NextDueAt       *time.Time       `json:"next_due_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Version         int64            `json:"version"`
	Streak          *StreakView      `json:"streak,omitempty"`
}

// CompletionView exposes a completion record.
type CompletionView struct {
	CompletionID string     `json:"completion_id"`
	HabitID      string     `json:"habit_id"`
	ScheduledFor string     `json:"scheduled_for"`
	CompletedAt  time.Time  `json:"completed_at"`
	Notes        string     `json:"notes,omitempty"`
	UndoneAt     *time.Time `json:"undone_at,omitempty"`
}

// ListHabitsResponse packages habit list results.
type ListHabitsResponse struct {
	Items []HabitView `json:"items"`
}

// ListCompletionsResponse packages completion history results.
type ListCompletionsResponse struct {
	Items      []CompletionView `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// ScheduleEntryView pairs a habit with its classification for today.
type ScheduleEntryView struct {
	Habit HabitView `json:"habit"`
	State string    `json:"state"`
}

// ScheduleResponse summarises today's schedule.
type ScheduleResponse struct {
	Completed int                 `json:"completed"`
	Overdue   int                 `json:"overdue"`
	Pending   int                 `json:"pending"`
	Entries   []ScheduleEntryView `json:"entries"`
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrHabitNotFound), errors.Is(err, domain.ErrCompletionNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusUnprocessableEntity, "invalid_state", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toHabitView(habit domain.Habit, summary *domain.StreakSummary) HabitView {
	view := HabitView{
		HabitID:         habit.ID,
		Name:            habit.Name,
		Description:     habit.Description,
		Frequency:       habit.Frequency,
		DurationMinutes: habit.DurationMinutes,
		Status:          string(habit.Status),
		Timezone:        habit.Timezone,
		NextDueAt:       habit.NextDueAt,
		CreatedAt:       habit.CreatedAt,
		UpdatedAt:       habit.UpdatedAt,
		Version:         habit.Version,
	}
	if summary != nil {
		view.Streak = &StreakView{
			CurrentStreak:    summary.CurrentStreak,
			LongestStreak:    summary.LongestStreak,
			TotalCompletions: summary.TotalCompletions,
		}
	}
	return view
}

func toCompletionView(c domain.Completion) CompletionView {
	return CompletionView{
		CompletionID: c.ID,
		HabitID:      c.HabitID,
		ScheduledFor: c.ScheduledFor.Format(scheduledForLayout),
		CompletedAt:  c.CompletedAt,
		Notes:        c.Notes,
		UndoneAt:     c.UndoneAt,
	}
}
