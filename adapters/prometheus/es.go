package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/esgo/core/es"
	"github.com/codewandler/esgo/core/metrics"
)

// ESMetrics implements es.ESMetrics using Prometheus.
type ESMetrics struct {
	commandDuration      *prometheus.HistogramVec
	commandsTotal        *prometheus.CounterVec
	projectDuration      *prometheus.HistogramVec
	storeLoadDuration    *prometheus.HistogramVec
	storeAppendDuration  *prometheus.HistogramVec
	eventsAppended       *prometheus.CounterVec
	concurrencyConflicts *prometheus.CounterVec
	commandRetries       *prometheus.CounterVec
	snapshotLoadDuration *prometheus.HistogramVec
	snapshotSaveDuration *prometheus.HistogramVec
	projectionEvents     *prometheus.CounterVec
}

// NewESMetrics creates the metrics and registers them with reg.
func NewESMetrics(reg prometheus.Registerer) *ESMetrics {
	histogram := func(name, help string, labels ...string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "es",
			Name:      name,
			Help:      help,
			Buckets:   defaultBuckets,
		}, labels)
	}
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "es",
			Name:      name,
			Help:      help,
		}, labels)
	}

	m := &ESMetrics{
		commandDuration:      histogram("command_duration_seconds", "Command execution latency in seconds", "aggregate_type", "command"),
		commandsTotal:        counter("commands_total", "Total number of executed commands", "aggregate_type", "command", "success"),
		projectDuration:      histogram("project_duration_seconds", "Stream projection latency in seconds", "aggregate_type"),
		storeLoadDuration:    histogram("store_load_duration_seconds", "Event store load latency in seconds", "aggregate_type"),
		storeAppendDuration:  histogram("store_append_duration_seconds", "Event store append latency in seconds", "aggregate_type"),
		eventsAppended:       counter("events_appended_total", "Total number of events appended", "aggregate_type"),
		concurrencyConflicts: counter("concurrency_conflicts_total", "Total number of optimistic concurrency conflicts", "aggregate_type"),
		commandRetries:       counter("command_retries_total", "Total number of commands re-executed after a conflict", "aggregate_type"),
		snapshotLoadDuration: histogram("snapshot_load_duration_seconds", "Snapshot load latency in seconds", "aggregate_type"),
		snapshotSaveDuration: histogram("snapshot_save_duration_seconds", "Snapshot save latency in seconds", "aggregate_type"),
		projectionEvents:     counter("projection_events_total", "Total number of events handled by projections", "projection", "event", "success"),
	}

	reg.MustRegister(
		m.commandDuration,
		m.commandsTotal,
		m.projectDuration,
		m.storeLoadDuration,
		m.storeAppendDuration,
		m.eventsAppended,
		m.concurrencyConflicts,
		m.commandRetries,
		m.snapshotLoadDuration,
		m.snapshotSaveDuration,
		m.projectionEvents,
	)

	return m
}

func (m *ESMetrics) CommandDuration(aggType, command string) metrics.Timer {
	return newTimer(m.commandDuration.WithLabelValues(aggType, command))
}

func (m *ESMetrics) CommandExecuted(aggType, command string, success bool) {
	m.commandsTotal.WithLabelValues(aggType, command, boolToStr(success)).Inc()
}

func (m *ESMetrics) ProjectDuration(aggType string) metrics.Timer {
	return newTimer(m.projectDuration.WithLabelValues(aggType))
}

func (m *ESMetrics) StoreLoadDuration(aggType string) metrics.Timer {
	return newTimer(m.storeLoadDuration.WithLabelValues(aggType))
}

func (m *ESMetrics) StoreAppendDuration(aggType string) metrics.Timer {
	return newTimer(m.storeAppendDuration.WithLabelValues(aggType))
}

func (m *ESMetrics) EventsAppended(aggType string, count int) {
	m.eventsAppended.WithLabelValues(aggType).Add(float64(count))
}

func (m *ESMetrics) ConcurrencyConflict(aggType string) {
	m.concurrencyConflicts.WithLabelValues(aggType).Inc()
}

func (m *ESMetrics) CommandRetried(aggType string) {
	m.commandRetries.WithLabelValues(aggType).Inc()
}

func (m *ESMetrics) SnapshotLoadDuration(aggType string) metrics.Timer {
	return newTimer(m.snapshotLoadDuration.WithLabelValues(aggType))
}

func (m *ESMetrics) SnapshotSaveDuration(aggType string) metrics.Timer {
	return newTimer(m.snapshotSaveDuration.WithLabelValues(aggType))
}

func (m *ESMetrics) ProjectionEventProcessed(projection, eventName string, success bool) {
	m.projectionEvents.WithLabelValues(projection, eventName, boolToStr(success)).Inc()
}

var _ es.ESMetrics = (*ESMetrics)(nil)
