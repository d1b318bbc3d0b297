// Package metrics exposes the dispatcher's Prometheus collectors. They
// are registered at package init via promauto the way the teacher repo
// registers its queue/worker/HTTP metrics, so any process that imports
// this package and serves promhttp.Handler() gets pool observability for
// free.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerpool_work_submitted_total",
			Help: "Total number of work items submitted to the pool",
		},
		[]string{"group"},
	)

	WorkCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerpool_work_completed_total",
			Help: "Total number of work items that reached a terminal state",
		},
		[]string{"status"},
	)

	WorkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "powerpool_work_duration_seconds",
			Help:    "Work execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"status"},
	)

	WorkQueueLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "powerpool_work_queue_latency_seconds",
			Help:    "Time a work item spent waiting before execution started",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		},
		[]string{"priority"},
	)

	WorkRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "powerpool_work_retries_total",
			Help: "Total number of work retries dispatched",
		},
	)

	IdleWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "powerpool_idle_workers",
			Help: "Current number of idle workers",
		},
	)

	RunningWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "powerpool_running_workers",
			Help: "Current number of workers executing a work item",
		},
	)

	AliveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "powerpool_alive_workers",
			Help: "Current number of live worker goroutines",
		},
	)

	WaitingWork = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "powerpool_waiting_work",
			Help: "Current number of work items waiting to run",
		},
	)

	PoolState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "powerpool_state",
			Help: "Current pool state: 0=NotRunning 1=Running 2=IdleChecked",
		},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "powerpool_websocket_connections",
			Help: "Current number of monitor WebSocket connections",
		},
	)

	WebSocketMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "powerpool_websocket_messages_total",
			Help: "Total number of monitor WebSocket messages sent",
		},
		[]string{"event_type"},
	)
)

// RecordWorkSubmission increments the submission counter for group.
func RecordWorkSubmission(group string) {
	WorkSubmitted.WithLabelValues(group).Inc()
}

// RecordWorkCompletion increments the completion counter and duration
// histogram for the given terminal status.
func RecordWorkCompletion(status string, durationSeconds float64) {
	WorkCompleted.WithLabelValues(status).Inc()
	WorkDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordQueueLatency records the time a work item spent waiting.
func RecordQueueLatency(priority string, seconds float64) {
	WorkQueueLatency.WithLabelValues(priority).Observe(seconds)
}

// RecordRetry increments the retry counter.
func RecordRetry() {
	WorkRetries.Inc()
}

// SetWorkerCounts updates the worker gauges.
func SetWorkerCounts(idle, running, alive int) {
	IdleWorkers.Set(float64(idle))
	RunningWorkers.Set(float64(running))
	AliveWorkers.Set(float64(alive))
}

// SetWaitingWork updates the waiting-work gauge.
func SetWaitingWork(n int) {
	WaitingWork.Set(float64(n))
}

// SetPoolState updates the pool state gauge.
func SetPoolState(state int) {
	PoolState.Set(float64(state))
}

// SetWebSocketConnections sets the WebSocket connections gauge.
func SetWebSocketConnections(count float64) {
	WebSocketConnections.Set(count)
}

// RecordWebSocketMessage records a WebSocket message sent to a client.
func RecordWebSocketMessage(eventType string) {
	WebSocketMessages.WithLabelValues(eventType).Inc()
}
