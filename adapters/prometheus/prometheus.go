// Package prometheus provides a Prometheus implementation of es.ESMetrics.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/esgo/core/metrics"
)

const namespace = "esgo"

func newTimer(o prometheus.Observer) metrics.Timer { return metrics.NewTimer(o) }

// Default histogram buckets for latency metrics (in seconds).
var defaultBuckets = []float64{
	.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
