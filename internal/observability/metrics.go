// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics contains the gatekeep Prometheus metrics.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ResetsSweptTotal  prometheus.Counter
	SweepFailures     prometheus.Counter
}

// NewMetrics creates and registers the gatekeep metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeep_auth_operations_total",
				Help: "Total number of auth operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatekeep_auth_operation_duration_seconds",
				Help:    "Duration of auth operations in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),
		ResetsSweptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeep_resets_swept_total",
			Help: "Total number of expired pending resets cleared by the sweeper",
		}),
		SweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatekeep_reset_sweep_failures_total",
			Help: "Total number of failed reset sweeps",
		}),
	}

	reg.MustRegister(m.OperationsTotal, m.OperationDuration, m.ResetsSweptTotal, m.SweepFailures)
	return m
}

// RecordSweep is a sweeper hook that updates the sweep metrics.
func (m *Metrics) RecordSweep(cleared int64, err error) {
	if err != nil {
		m.SweepFailures.Inc()
		return
	}
	m.ResetsSweptTotal.Add(float64(cleared))
}

// outcomeLabel maps an error to a low-cardinality outcome label: the auth
// error code when present, otherwise success or error.
func outcomeLabel(code string, err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case code != "":
		return code
	default:
		return OutcomeError
	}
}
