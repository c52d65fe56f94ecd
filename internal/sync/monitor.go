// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package sync

import (
	"github.com/kramdoss/manila/internal/monitoring"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics of the pollers that fetch backend state from openstack.
type Monitor struct {
	// Duration of a complete sync run, by datasource.
	RunTimer *prometheus.HistogramVec
	// Number of objects fetched in the last run, by datasource.
	ObjectsGauge *prometheus.GaugeVec
	// Duration of the requests to the openstack api, by datasource.
	RequestTimer *prometheus.HistogramVec
	// Number of failed sync runs, by datasource.
	FailedRunsCounter *prometheus.CounterVec
}

func NewSyncMonitor(registry *monitoring.Registry) Monitor {
	runTimer := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "manila_scheduler_sync_run_duration_seconds",
		Help:    "Duration of sync run",
		Buckets: prometheus.DefBuckets,
	}, []string{"datasource"})
	objectsGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "manila_scheduler_sync_objects",
		Help: "Number of objects synced",
	}, []string{"datasource"})
	requestTimer := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "manila_scheduler_sync_request_duration_seconds",
		Help:    "Duration of sync request",
		Buckets: prometheus.DefBuckets,
	}, []string{"datasource"})
	failedRunsCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "manila_scheduler_sync_failed_runs_total",
		Help: "Number of failed sync runs",
	}, []string{"datasource"})
	registry.MustRegister(runTimer, objectsGauge, requestTimer, failedRunsCounter)
	return Monitor{
		RunTimer:          runTimer,
		ObjectsGauge:      objectsGauge,
		RequestTimer:      requestTimer,
		FailedRunsCounter: failedRunsCounter,
	}
}
