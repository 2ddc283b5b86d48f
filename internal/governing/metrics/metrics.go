package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollTicksTotal tracks poll loop iterations by result (ok, idle, error)
	PollTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_poll_ticks_total",
			Help: "Total number of poll loop ticks",
		},
		[]string{"result"},
	)

	// CursorBlock tracks the last block whose logs were fully dispatched
	CursorBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "governor_cursor_block",
			Help: "Last block whose logs were fully dispatched",
		},
	)

	// ChainHeadBlock tracks the latest block height reported by the ledger
	ChainHeadBlock = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "governor_chain_head_block",
			Help: "Latest block height reported by the ledger",
		},
	)

	// EventsDispatchedTotal tracks decoded events handed to the dispatcher
	EventsDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_events_dispatched_total",
			Help: "Total number of decoded events dispatched",
		},
		[]string{"kind"},
	)

	// DispatchErrorsTotal tracks callbacks that failed
	DispatchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_dispatch_errors_total",
			Help: "Total number of lifecycle callbacks that failed",
		},
		[]string{"kind"},
	)

	// ClaimsTotal tracks claim attempts by result (acquired, contended, error)
	// and claims lost mid-task (lost)
	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_claims_total",
			Help: "Total number of game claim attempts",
		},
		[]string{"result"},
	)

	// TasksRunning tracks lifecycle tasks currently in flight
	TasksRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "governor_tasks_running",
			Help: "Lifecycle tasks currently in flight",
		},
	)

	// TasksFinishedTotal tracks finished lifecycle tasks by result
	TasksFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_tasks_finished_total",
			Help: "Total number of finished lifecycle tasks",
		},
		[]string{"result"},
	)

	// SubmitAttemptsTotal tracks ledger submit attempts
	SubmitAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "governor_submit_attempts_total",
			Help: "Total number of ledger submit attempts",
		},
		[]string{"call", "result"},
	)

	// GamesRecoveredTotal tracks tasks launched by the recovery scanner
	GamesRecoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "governor_games_recovered_total",
			Help: "Total number of lifecycle tasks launched by recovery",
		},
	)
)
