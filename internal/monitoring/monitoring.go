// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"

	"github.com/kramdoss/manila/internal/conf"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/sapcc/go-bits/httpext"
)

// Custom prometheus registry that adds functionality to the default registry.
type Registry struct {
	// Inherited prometheus registry.
	*prometheus.Registry
	// Custom configuration for the monitoring.
	config conf.MonitoringConfig
}

// Create a new registry with the given configuration.
// This registry will include the default go collector and process collector.
func NewRegistry(config conf.MonitoringConfig) *Registry {
	registry := &Registry{
		Registry: prometheus.NewRegistry(),
		config:   config,
	}
	// Add go execution stats and process metrics to the registry.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry
}

// Custom gather method that adds the configured labels to all metrics.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	families, err := r.Registry.Gather()
	if err != nil {
		return nil, err
	}
	names := slices.Sorted(maps.Keys(r.config.Labels))
	for _, family := range families {
		for _, metric := range family.Metric {
			for _, name := range names {
				if hasLabel(metric, name) {
					continue
				}
				labelName, labelValue := name, r.config.Labels[name]
				metric.Label = append(metric.Label, &dto.LabelPair{
					Name:  &labelName,
					Value: &labelValue,
				})
			}
		}
	}
	return families, nil
}

func hasLabel(metric *dto.Metric, name string) bool {
	for _, label := range metric.Label {
		if label.GetName() == name {
			return true
		}
	}
	return false
}

// Serve the prometheus metrics of the registry until the context is done.
func (r *Registry) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r, promhttp.HandlerOpts{}))
	slog.Info("metrics listening", "port", r.config.Port)
	addr := fmt.Sprintf(":%d", r.config.Port)
	return httpext.ListenAndServeContext(ctx, addr, mux)
}
