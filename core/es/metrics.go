package es

import "github.com/codewandler/esgo/core/metrics"

// ESMetrics is the instrumentation surface of aggregates, repositories and
// projections. Implementations must be safe for concurrent use.
type ESMetrics interface {
	// Aggregate
	CommandDuration(aggType, command string) metrics.Timer
	CommandExecuted(aggType, command string, success bool)
	ProjectDuration(aggType string) metrics.Timer

	// Store
	StoreLoadDuration(aggType string) metrics.Timer
	StoreAppendDuration(aggType string) metrics.Timer
	EventsAppended(aggType string, count int)

	// Repository
	ConcurrencyConflict(aggType string)
	CommandRetried(aggType string)

	// Snapshots
	SnapshotLoadDuration(aggType string) metrics.Timer
	SnapshotSaveDuration(aggType string) metrics.Timer

	// Projections
	ProjectionEventProcessed(projection, eventName string, success bool)
}

type nopESMetrics struct{}

func (nopESMetrics) CommandDuration(string, string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) CommandExecuted(string, string, bool)         {}
func (nopESMetrics) ProjectDuration(string) metrics.Timer         { return metrics.NopTimer() }

func (nopESMetrics) StoreLoadDuration(string) metrics.Timer   { return metrics.NopTimer() }
func (nopESMetrics) StoreAppendDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) EventsAppended(string, int)               {}

func (nopESMetrics) ConcurrencyConflict(string) {}
func (nopESMetrics) CommandRetried(string)      {}

func (nopESMetrics) SnapshotLoadDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) SnapshotSaveDuration(string) metrics.Timer { return metrics.NopTimer() }

func (nopESMetrics) ProjectionEventProcessed(string, string, bool) {}

// NopESMetrics returns a no-op ESMetrics implementation.
func NopESMetrics() ESMetrics { return nopESMetrics{} }
