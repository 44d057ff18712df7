// Package postgres implements the habit repository on pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/habits/internal/domain"
	"example.com/habits/internal/observability"
)

const uniqueViolation = "23505"

const habitColumns = `habit_id, user_id, name, description, frequency, duration_minutes, status, timezone, next_due_at, created_at, updated_at, version`

// Repository provides Postgres-backed persistence for habits and completions.
// Every query is scoped to the owning user and excludes soft-deleted habits,
// so a row that exists but belongs to someone else is indistinguishable from
// an absent one.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateHabit persists a new habit row and its created event in one
// transaction.
func (r *Repository) CreateHabit(ctx context.Context, habit domain.Habit, event domain.Event) error {
	frequency, err := json.Marshal(habit.Frequency)
	if err != nil {
		return err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `INSERT INTO habits (habit_id, user_id, name, description, frequency_kind, frequency, duration_minutes, status, timezone, next_due_at, created_at, updated_at, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	_, err = tx.Exec(ctx, stmt,
		habit.ID,
		habit.UserID,
		habit.Name,
		habit.Description,
		string(habit.Frequency.Kind),
		frequency,
		habit.DurationMinutes,
		string(habit.Status),
		habit.Timezone,
		habit.NextDueAt,
		habit.CreatedAt,
		habit.UpdatedAt,
		habit.Version,
	)
	if err != nil {
		return err
	}
	if err = enqueueEvent(ctx, tx, event); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordHabitMutated(habit.UpdatedAt)
	return nil
}

// GetHabit fetches a habit by id scoped to its owner, excluding soft-deleted
// rows. It returns nil when no visible row matches.
func (r *Repository) GetHabit(ctx context.Context, userID, habitID string) (*domain.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits WHERE habit_id=$1 AND user_id=$2 AND deleted_at IS NULL`

	habit, err := scanHabit(r.pool.QueryRow(ctx, query, habitID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return habit, nil
}

// UpdateHabit applies a field-level partial update guarded by the optimistic
// version counter. Zero rows affected means either the row vanished
// (ErrHabitNotFound) or the version went stale (ErrConflict).
func (r *Repository) UpdateHabit(ctx context.Context, userID, habitID string, expectedVersion int64, patch domain.HabitPatch, event domain.Event) (*domain.Habit, error) {
	sets := []string{"updated_at = $3", "version = version + 1"}
	args := []interface{}{habitID, userID, patch.UpdatedAt}

	next := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.SetName {
		sets = append(sets, "name = "+next(patch.Name))
	}
	if patch.SetDescription {
		sets = append(sets, "description = "+next(patch.Description))
	}
	if patch.SetDuration {
		sets = append(sets, "duration_minutes = "+next(patch.DurationMinutes))
	}
	if patch.Frequency != nil {
		frequency, err := json.Marshal(*patch.Frequency)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "frequency_kind = "+next(string(patch.Frequency.Kind)))
		sets = append(sets, "frequency = "+next(frequency))
	}
	if patch.Status != nil {
		sets = append(sets, "status = "+next(string(*patch.Status)))
	}
	if patch.SetNextDue {
		sets = append(sets, "next_due_at = "+next(patch.NextDueAt))
	}

	stmt := fmt.Sprintf(
		`UPDATE habits SET %s WHERE habit_id=$1 AND user_id=$2 AND deleted_at IS NULL AND version = %d`,
		strings.Join(sets, ", "), expectedVersion,
	)

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		tx.Rollback(ctx)
		existing, lookupErr := r.GetHabit(ctx, userID, habitID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing == nil {
			return nil, domain.ErrHabitNotFound
		}
		return nil, domain.ErrConflict
	}
	if err = enqueueEvent(ctx, tx, event); err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}

	observability.RecordHabitMutated(patch.UpdatedAt)
	return r.GetHabit(ctx, userID, habitID)
}

// SoftDeleteHabit marks the habit deleted. The row is retained; all reads
// exclude it from then on.
func (r *Repository) SoftDeleteHabit(ctx context.Context, userID, habitID string, at time.Time, event domain.Event) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `UPDATE habits SET deleted_at=$3, updated_at=$3, version = version + 1
        WHERE habit_id=$1 AND user_id=$2 AND deleted_at IS NULL`

	tag, err := tx.Exec(ctx, stmt, habitID, userID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = domain.ErrHabitNotFound
		return err
	}
	if err = enqueueEvent(ctx, tx, event); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordHabitMutated(at)
	return nil
}

// ListHabits returns the user's habits filtered and ordered per the filter.
func (r *Repository) ListHabits(ctx context.Context, userID string, filter domain.HabitFilter) ([]domain.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits WHERE user_id=$1 AND deleted_at IS NULL`
	args := []interface{}{userID}

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Kind != nil {
		args = append(args, string(*filter.Kind))
		query += fmt.Sprintf(" AND frequency_kind = $%d", len(args))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		query += fmt.Sprintf(" AND (name ILIKE $%d OR description ILIKE $%d)", len(args), len(args))
	}

	switch filter.SortBy {
	case domain.SortByName:
		query += " ORDER BY lower(name) ASC, habit_id ASC"
	case domain.SortByStatus:
		query += " ORDER BY status ASC, lower(name) ASC"
	default:
		query += " ORDER BY next_due_at ASC NULLS LAST, lower(name) ASC"
	}

	args = append(args, filter.Limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	return r.queryHabits(ctx, query, args...)
}

// ListActiveHabits returns every active, non-deleted habit for the user. The
// today-schedule view classifies from this set.
func (r *Repository) ListActiveHabits(ctx context.Context, userID string) ([]domain.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits
        WHERE user_id=$1 AND deleted_at IS NULL AND status=$2
        ORDER BY next_due_at ASC NULLS LAST`
	return r.queryHabits(ctx, query, userID, string(domain.HabitStatusActive))
}

// CreateCompletion inserts the completion and persists the recomputed
// next_due_at on the habit in a single transaction. The partial unique index
// on (habit_id, scheduled_for) WHERE undone_at IS NULL turns a concurrent
// duplicate into ErrConflict instead of a silent second row.
func (r *Repository) CreateCompletion(ctx context.Context, completion domain.Completion, nextDueAt *time.Time, event domain.Event) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const insert = `INSERT INTO completions (completion_id, habit_id, user_id, scheduled_for, completed_at, notes)
        VALUES ($1,$2,$3,$4,$5,$6)`

	_, err = tx.Exec(ctx, insert,
		completion.ID,
		completion.HabitID,
		completion.UserID,
		completion.ScheduledFor,
		completion.CompletedAt,
		completion.Notes,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			err = fmt.Errorf("completion for %s on %s: %w",
				completion.HabitID, completion.ScheduledFor.Format("2006-01-02"), domain.ErrConflict)
		}
		return err
	}

	const updateHabit = `UPDATE habits SET next_due_at=$3, updated_at=$4, version = version + 1
        WHERE habit_id=$1 AND user_id=$2 AND deleted_at IS NULL`
	if _, err = tx.Exec(ctx, updateHabit, completion.HabitID, completion.UserID, nextDueAt, completion.CompletedAt); err != nil {
		return err
	}

	if err = enqueueEvent(ctx, tx, event); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordHabitMutated(completion.CompletedAt)
	observability.RecordCompletion("complete")
	return nil
}

// GetCompletion fetches a completion by id scoped to its owner, including
// undone rows so callers can distinguish already-undone from absent.
func (r *Repository) GetCompletion(ctx context.Context, userID, completionID string) (*domain.Completion, error) {
	const query = `SELECT completion_id, habit_id, user_id, scheduled_for, completed_at, notes, undone_at
        FROM completions WHERE completion_id=$1 AND user_id=$2`

	row := r.pool.QueryRow(ctx, query, completionID, userID)
	var c domain.Completion
	if err := row.Scan(&c.ID, &c.HabitID, &c.UserID, &c.ScheduledFor, &c.CompletedAt, &c.Notes, &c.UndoneAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// MarkCompletionUndone soft-voids the completion. The undone_at IS NULL guard
// makes concurrent undos race-safe: only one caller sees a row voided, and
// only that caller's event row is written.
func (r *Repository) MarkCompletionUndone(ctx context.Context, userID, completionID string, at time.Time, event domain.Event) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `UPDATE completions SET undone_at=$3
        WHERE completion_id=$1 AND user_id=$2 AND undone_at IS NULL`

	tag, err := tx.Exec(ctx, stmt, completionID, userID, at)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		tx.Rollback(ctx)
		return false, nil
	}
	if err = enqueueEvent(ctx, tx, event); err != nil {
		return false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	observability.RecordCompletion("undo")
	return true, nil
}

// ListCompletions returns a habit's live completions newest first with keyset
// pagination. A non-positive limit disables paging, which the streak
// calculator uses to read the full history.
func (r *Repository) ListCompletions(ctx context.Context, userID, habitID string, cursor *domain.Cursor, limit int) ([]domain.Completion, *domain.Cursor, error) {
	query := `SELECT completion_id, habit_id, user_id, scheduled_for, completed_at, notes, undone_at
        FROM completions WHERE user_id=$1 AND habit_id=$2 AND undone_at IS NULL`
	args := []interface{}{userID, habitID}

	if cursor != nil {
		args = append(args, cursor.ScheduledFor, cursor.ID)
		query += fmt.Sprintf(" AND (scheduled_for, completion_id) < ($%d, $%d)", len(args)-1, len(args))
	}
	query += " ORDER BY scheduled_for DESC, completion_id DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var results []domain.Completion
	for rows.Next() {
		var c domain.Completion
		if err := rows.Scan(&c.ID, &c.HabitID, &c.UserID, &c.ScheduledFor, &c.CompletedAt, &c.Notes, &c.UndoneAt); err != nil {
			return nil, nil, err
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{ScheduledFor: last.ScheduledFor, ID: last.ID}
	}
	return results, nextCursor, nil
}

// ListCompletionsBetween returns the user's live completions whose scheduled
// date falls in [from, to].
func (r *Repository) ListCompletionsBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.Completion, error) {
	const query = `SELECT completion_id, habit_id, user_id, scheduled_for, completed_at, notes, undone_at
        FROM completions
        WHERE user_id=$1 AND undone_at IS NULL AND scheduled_for BETWEEN $2 AND $3
        ORDER BY scheduled_for ASC`

	rows, err := r.pool.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Completion
	for rows.Next() {
		var c domain.Completion
		if err := rows.Scan(&c.ID, &c.HabitID, &c.UserID, &c.ScheduledFor, &c.CompletedAt, &c.Notes, &c.UndoneAt); err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func (r *Repository) queryHabits(ctx context.Context, query string, args ...interface{}) ([]domain.Habit, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Habit
	for rows.Next() {
		habit, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *habit)
	}
	return results, rows.Err()
}

func scanHabit(row pgx.Row) (*domain.Habit, error) {
	var habit domain.Habit
	var frequency []byte
	if err := row.Scan(
		&habit.ID,
		&habit.UserID,
		&habit.Name,
		&habit.Description,
		&frequency,
		&habit.DurationMinutes,
		&habit.Status,
		&habit.Timezone,
		&habit.NextDueAt,
		&habit.CreatedAt,
		&habit.UpdatedAt,
		&habit.Version,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(frequency, &habit.Frequency); err != nil {
		return nil, err
	}
	return &habit, nil
}
