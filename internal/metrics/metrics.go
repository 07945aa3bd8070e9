// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsCreated counts issued session tokens.
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hexor_sessions_created_total",
		Help: "Total number of sessions issued",
	})

	// SessionValidations counts token checks by outcome ("valid", "invalid", "error").
	SessionValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexor_session_validations_total",
			Help: "Total number of session token validations",
		},
		[]string{"outcome"},
	)

	SessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hexor_sessions_swept_total",
		Help: "Total number of expired sessions removed by the sweep",
	})

	// SweepRuns counts sweep cycles by outcome ("ok", "skipped", "error").
	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexor_session_sweep_runs_total",
			Help: "Total number of session sweep cycles",
		},
		[]string{"outcome"},
	)

	// LoginAttempts counts logins by outcome ("success", "invalid", "inactive", "error").
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexor_login_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"outcome"},
	)

	Backups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexor_backups_total",
			Help: "Total number of backup exports",
		},
		[]string{"outcome"},
	)

	// Restores is labelled with the final state of the restore attempt.
	Restores = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexor_restores_total",
			Help: "Total number of restore attempts by final state",
		},
		[]string{"state"},
	)

	RestoreDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hexor_restore_duration_seconds",
		Help:    "Duration of restore attempts in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	DeferredTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hexor_deferred_tasks_total",
			Help: "Total number of deferred cleanup tasks by name and outcome",
		},
		[]string{"task", "outcome"},
	)
)

func RecordLogin(outcome string) {
	LoginAttempts.WithLabelValues(outcome).Inc()
}

func RecordValidation(outcome string) {
	SessionValidations.WithLabelValues(outcome).Inc()
}

func RecordSweep(outcome string, removed int64) {
	SweepRuns.WithLabelValues(outcome).Inc()
	if removed > 0 {
		SessionsSwept.Add(float64(removed))
	}
}

func RecordBackup(outcome string) {
	Backups.WithLabelValues(outcome).Inc()
}

func RecordRestore(state string, d time.Duration) {
	Restores.WithLabelValues(state).Inc()
	RestoreDuration.Observe(d.Seconds())
}

func RecordDeferred(task, outcome string) {
	DeferredTasks.WithLabelValues(task, outcome).Inc()
}
