package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"example.com/habits/internal/domain"
	"example.com/habits/internal/events"
)

// eventRoute describes how a recorded event maps onto Kafka delivery.
type eventRoute struct {
	Topic         string
	SchemaSubject string
}

var eventRoutes = map[string]eventRoute{
	events.KindHabitCreated:     {Topic: "habit_events", SchemaSubject: "habit_events-value"},
	events.KindHabitUpdated:     {Topic: "habit_events", SchemaSubject: "habit_events-value"},
	events.KindHabitDeleted:     {Topic: "habit_events", SchemaSubject: "habit_events-value"},
	events.KindHabitCompleted:   {Topic: "habit_completion_events", SchemaSubject: "habit_completion_events-value"},
	events.KindHabitUncompleted: {Topic: "habit_completion_events", SchemaSubject: "habit_completion_events-value"},
}

// enqueueEvent appends the event to the outbox inside the caller's
// transaction, so the event row commits or rolls back together with the
// mutation it describes. The dispatcher delivers outbox rows to Kafka off the
// request path.
func enqueueEvent(ctx context.Context, tx pgx.Tx, event domain.Event) error {
	route, ok := eventRoutes[event.Kind]
	if !ok {
		return fmt.Errorf("enqueue event: unknown kind %q", event.Kind)
	}

	aggregateType, aggregateID, partitionKey := routeKeys(event.Payload)
	body, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("enqueue event: marshal %s: %w", event.Kind, err)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`

	if _, err := tx.Exec(ctx, stmt, aggregateType, aggregateID, event.Kind, route.Topic, route.SchemaSubject, partitionKey, body); err != nil {
		return fmt.Errorf("enqueue event: %s: %w", event.Kind, err)
	}
	return nil
}

// routeKeys extracts aggregate identity and the Kafka partition key. Habit
// lifecycle events partition by user so one user's habit stream stays
// ordered; completion events partition by habit.
func routeKeys(payload any) (aggregateType, aggregateID, partitionKey string) {
	switch p := payload.(type) {
	case events.HabitCreated:
		return "habit", p.HabitID, p.UserID
	case events.HabitUpdated:
		return "habit", p.HabitID, p.UserID
	case events.HabitDeleted:
		return "habit", p.HabitID, p.UserID
	case events.HabitCompleted:
		return "completion", p.CompletionID, p.HabitID
	case events.HabitUncompleted:
		return "completion", p.CompletionID, p.HabitID
	}
	return "unknown", "", ""
}
