// Package metrics defines the metric primitives the core instruments itself
// with, so backends (Prometheus, tests) plug in without touching core code.
package metrics

import "time"

// Counter is a monotonically increasing metric.
type Counter interface {
	Inc()
	Add(delta float64)
}

// Timer measures one operation. Call ObserveDuration when it completes:
//
//	defer m.StoreLoadDuration("account").ObserveDuration()
type Timer interface {
	ObserveDuration()
}

// Observer receives a single float observation, e.g. a histogram.
type Observer interface {
	Observe(value float64)
}

// NewTimer starts a Timer reporting elapsed seconds to o.
func NewTimer(o Observer) Timer {
	return &timer{o: o, start: time.Now()}
}

type timer struct {
	o     Observer
	start time.Time
}

func (t *timer) ObserveDuration() { t.o.Observe(time.Since(t.start).Seconds()) }
