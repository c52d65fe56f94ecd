// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package lib

import (
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/kramdoss/manila/internal/conf"
	"github.com/kramdoss/manila/internal/db"
	"github.com/prometheus/client_golang/prometheus"
)

// Wraps a scheduler step to monitor its execution.
type StepMonitor[RequestType PipelineRequest] struct {
	// The wrapped step.
	Step Step[RequestType]
	// The pipeline name to which this step belongs.
	pipelineName string
	// The name of this step.
	stepName string
	// A timer to measure how long the step takes to run.
	runTimer prometheus.Observer
	// A metric to monitor how much the step modifies the weights of the hosts.
	stepHostWeight *prometheus.GaugeVec
	// A metric to observe how many hosts are removed from the state.
	removedHostsObserver prometheus.Observer
}

// Schedule using the wrapped step and measure the time it takes.
func monitorStep[RequestType PipelineRequest](step Step[RequestType], stepName string, m FilterWeigherPipelineMonitor) *StepMonitor[RequestType] {
	var runTimer prometheus.Observer
	if m.stepRunTimer != nil {
		runTimer = m.stepRunTimer.
			WithLabelValues(m.PipelineName, stepName)
	}
	var removedHostsObserver prometheus.Observer
	if m.stepRemovedHostsObserver != nil {
		removedHostsObserver = m.stepRemovedHostsObserver.
			WithLabelValues(m.PipelineName, stepName)
	}
	return &StepMonitor[RequestType]{
		Step:                 step,
		runTimer:             runTimer,
		stepName:             stepName,
		pipelineName:         m.PipelineName,
		stepHostWeight:       m.stepHostWeight,
		removedHostsObserver: removedHostsObserver,
	}
}

// Initialize the wrapped step.
func (s *StepMonitor[RequestType]) Init(db db.DB, opts conf.RawOpts) error {
	return s.Step.Init(db, opts)
}

// Run the step and observe its execution.
func (s *StepMonitor[RequestType]) Run(traceLog *slog.Logger, request RequestType) (*StepResult, error) {
	if s.runTimer != nil {
		timer := prometheus.NewTimer(s.runTimer)
		defer timer.ObserveDuration()
	}
	stepResult, err := s.Step.Run(traceLog, request)
	if err != nil {
		return nil, err
	}
	// Observe how much the step modifies the weights of the hosts.
	if s.stepHostWeight != nil {
		for host, weight := range stepResult.Activations {
			s.stepHostWeight.
				WithLabelValues(s.pipelineName, host, s.stepName).
				Add(weight)
		}
	}
	hostsIn := request.GetHosts()
	hostsOut := slices.Sorted(maps.Keys(stepResult.Activations))
	nHostsRemoved := len(hostsIn) - len(hostsOut)
	if nHostsRemoved > 0 {
		traceLog.Info("scheduler: removed hosts", "name", s.stepName, "count", nHostsRemoved)
	}
	if s.removedHostsObserver != nil {
		s.removedHostsObserver.Observe(float64(nHostsRemoved))
	}
	// Log something like this:
	// free capacity: before [ 10.00 GB, 100.00 GB ], after [ 100.00 GB ]
	for statName, statData := range stepResult.Statistics {
		if statData.Hosts == nil {
			continue
		}
		traceLog.Info(
			"scheduler: statistics for step "+s.stepName+" -- "+statName,
			"before", formatStats(hostsIn, statData),
			"after", formatStats(hostsOut, statData),
		)
	}
	return stepResult, nil
}

func formatStats(hosts []string, stats StepStatistics) string {
	parts := make([]string, 0, len(hosts))
	for _, host := range hosts {
		value, ok := stats.Hosts[host]
		if !ok {
			parts = append(parts, "-")
			continue
		}
		parts = append(parts, strconv.FormatFloat(value, 'f', 2, 64)+" "+stats.Unit)
	}
	return strings.Join(parts, ", ")
}
