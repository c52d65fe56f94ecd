// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package mqtt

import (
	"github.com/kramdoss/manila/internal/monitoring"
	"github.com/prometheus/client_golang/prometheus"
)

// Broker connection and message metrics. The zero value records nothing.
type Monitor struct {
	connections     prometheus.Counter
	connectionsLost prometheus.Counter
	// Published messages by topic and result (success, error).
	published *prometheus.CounterVec
}

func NewMQTTMonitor(registry *monitoring.Registry) Monitor {
	m := Monitor{
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "manila_scheduler_mqtt_connections_total",
			Help: "Total number of (re)connections to the MQTT broker",
		}),
		connectionsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "manila_scheduler_mqtt_connections_lost_total",
			Help: "Total number of lost connections to the MQTT broker",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "manila_scheduler_mqtt_published_messages_total",
			Help: "Total number of messages published to the MQTT broker",
		}, []string{"topic", "result"}),
	}
	registry.MustRegister(m.connections, m.connectionsLost, m.published)
	return m
}

func (m Monitor) observeConnection() {
	if m.connections != nil {
		m.connections.Inc()
	}
}

func (m Monitor) observeConnectionLost() {
	if m.connectionsLost != nil {
		m.connectionsLost.Inc()
	}
}

func (m Monitor) observePublish(topic string, err error) {
	if m.published == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.published.WithLabelValues(topic, result).Inc()
}
