package outbox

// JSON schemas registered with the Schema Registry for each habit event type.
// The habit_events topic carries lifecycle transitions; completion events
// ride their own topic so consumers tracking adherence need not filter the
// lifecycle stream.

const habitLifecycleSchema = `{
  "type": "object",
  "title": "HabitLifecycleEvent",
  "properties": {
    "habit_id": {"type": "string"},
    "user_id": {"type": "string"},
    "name": {"type": "string"},
    "status": {"type": "string"},
    "timezone": {"type": "string"},
    "frequency": {"type": "object"},
    "frequency_before": {"type": "object"},
    "frequency_after": {"type": "object"},
    "next_due_at": {"type": "string", "format": "date-time"},
    "created_at": {"type": "string", "format": "date-time"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["habit_id", "user_id"],
  "additionalProperties": false
}`

const habitCompletionSchema = `{
  "type": "object",
  "title": "HabitCompletionEvent",
  "properties": {
    "habit_id": {"type": "string"},
    "completion_id": {"type": "string"},
    "user_id": {"type": "string"},
    "scheduled_for": {"type": "string", "format": "date"},
    "completed_at": {"type": "string", "format": "date-time"},
    "undone_at": {"type": "string", "format": "date-time"},
    "next_due_at": {"type": "string", "format": "date-time"}
  },
  "required": ["habit_id", "completion_id", "user_id", "scheduled_for"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	"habit.created":     {Schema: habitLifecycleSchema},
	"habit.updated":     {Schema: habitLifecycleSchema},
	"habit.deleted":     {Schema: habitLifecycleSchema},
	"habit.completed":   {Schema: habitCompletionSchema},
	"habit.uncompleted": {Schema: habitCompletionSchema},
}
