package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	habitMutatedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "habit_service",
		Subsystem: "persistence",
		Name:      "last_habit_mutated_timestamp_seconds",
		Help:      "Unix timestamp of the most recent habit or completion write to Postgres.",
	})
	completionsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "habit_service",
		Subsystem: "completions",
		Name:      "recorded_total",
		Help:      "Count of completion mutations accepted, labeled by action.",
	}, []string{"action"})
)

func init() {
	prometheus.MustRegister(habitMutatedGauge, completionsCounter)
}

// RecordHabitMutated updates the persistence watermark gauge.
func RecordHabitMutated(ts time.Time) {
	if ts.IsZero() {
		return
	}
	habitMutatedGauge.Set(float64(ts.Unix()))
}

// RecordCompletion counts an accepted completion mutation ("complete" or "undo").
func RecordCompletion(action string) {
	completionsCounter.WithLabelValues(action).Inc()
}
