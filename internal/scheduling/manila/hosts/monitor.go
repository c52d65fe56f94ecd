// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package hosts

import (
	"github.com/kramdoss/manila/internal/monitoring"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics of the host manager.
type Monitor struct {
	// Number of cached hosts by state (enabled, disabled).
	hostsGauge *prometheus.GaugeVec
	// Number of received reports by result (accepted, invalid, outdated).
	reportsCounter *prometheus.CounterVec
}

func NewManagerMonitor(registry *monitoring.Registry) Monitor {
	hostsGauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "manila_scheduler_hosts",
		Help: "Number of storage pools known to the scheduler, by state",
	}, []string{"state"})
	reportsCounter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "manila_scheduler_host_reports_total",
		Help: "Number of received capability reports, by result",
	}, []string{"result"})
	registry.MustRegister(hostsGauge, reportsCounter)
	return Monitor{hostsGauge: hostsGauge, reportsCounter: reportsCounter}
}

func (m Monitor) observeReport(result string) {
	if m.reportsCounter != nil {
		m.reportsCounter.WithLabelValues(result).Inc()
	}
}

func (m Monitor) observeHosts(enabled, disabled int) {
	if m.hostsGauge == nil {
		return
	}
	m.hostsGauge.WithLabelValues("enabled").Set(float64(enabled))
	m.hostsGauge.WithLabelValues("disabled").Set(float64(disabled))
}
