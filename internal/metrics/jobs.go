package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		jobsSubmitted,
		jobsFinished,
		jobsActive,
		jobDuration,
		pollTicks,
	)
}

var (
	jobsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gameloc_jobs_submitted_total",
			Help: "Batch jobs accepted by a provider.",
		},
		[]string{"provider"},
	)

	jobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gameloc_jobs_finished_total",
			Help: "Batch jobs that reached a terminal status.",
		},
		[]string{"status"},
	)

	jobsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gameloc_jobs_active",
			Help: "Jobs currently owned by a running lifecycle goroutine.",
		},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gameloc_job_duration_seconds",
			Help:    "Wall time from submission to terminal status.",
			Buckets: []float64{10, 30, 60, 300, 600, 1800, 3600, 5400},
		},
		[]string{"status"},
	)

	pollTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gameloc_poll_ticks_total",
			Help: "Status poll attempts by outcome (ok/transient/terminal).",
		},
		[]string{"outcome"},
	)
)

// Poll tick outcomes.
const (
	PollOK        = "ok"
	PollTransient = "transient"
	PollTerminal  = "terminal"
)

func JobSubmitted(provider string) {
	jobsSubmitted.WithLabelValues(norm(provider)).Inc()
}

func JobStarted() {
	jobsActive.Inc()
}

// JobFinished records the terminal status of a job started at start.
func JobFinished(status string, start time.Time) {
	jobsActive.Dec()
	jobsFinished.WithLabelValues(norm(status)).Inc()
	jobDuration.WithLabelValues(norm(status)).Observe(time.Since(start).Seconds())
}

func PollTick(outcome string) {
	pollTicks.WithLabelValues(outcome).Inc()
}
