// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"github.com/kramdoss/manila/internal/monitoring"
	"github.com/prometheus/client_golang/prometheus"
)

// Database connection metrics. The zero value records nothing.
type Monitor struct {
	// Pings while connecting, by result (success, error).
	connectionAttempts *prometheus.CounterVec
}

func NewDBMonitor(registry *monitoring.Registry) Monitor {
	connectionAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "manila_scheduler_db_connection_attempts_total",
		Help: "Total number of attempts to connect to the report database",
	}, []string{"result"})
	registry.MustRegister(connectionAttempts)
	return Monitor{connectionAttempts: connectionAttempts}
}

func (m Monitor) observeConnectionAttempt(err error) {
	if m.connectionAttempts == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.connectionAttempts.WithLabelValues(result).Inc()
}
