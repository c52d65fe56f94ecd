// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package lib

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collection of Prometheus metrics to monitor scheduler pipeline
type FilterWeigherPipelineMonitor struct {
	// The pipeline name is used to differentiate between different pipelines.
	PipelineName string
	// A histogram to measure how long each step takes to run.
	stepRunTimer *prometheus.HistogramVec
	// A metric to monitor how much the step modifies the weights of the hosts.
	stepHostWeight *prometheus.GaugeVec
	// A histogram to observe how many hosts are removed from the state.
	stepRemovedHostsObserver *prometheus.HistogramVec
	// A counter of hosts rejected because a filter could not evaluate them.
	stepEvaluationErrors *prometheus.CounterVec
	// A histogram to measure how long the pipeline takes to run in total.
	pipelineRunTimer *prometheus.HistogramVec
	// A histogram to observe the number of hosts going into the scheduler pipeline.
	hostNumberInObserver *prometheus.HistogramVec
	// A histogram to observe the number of hosts coming out of the scheduler pipeline.
	hostNumberOutObserver *prometheus.HistogramVec
	// Counter for the number of requests processed by the scheduler, by outcome.
	requestCounter *prometheus.CounterVec
}

// Create a new scheduler monitor. The caller registers it with a registry.
func NewPipelineMonitor() FilterWeigherPipelineMonitor {
	return FilterWeigherPipelineMonitor{
		stepRunTimer: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "manila_scheduler_pipeline_step_run_duration_seconds",
			Help:    "Duration of scheduler pipeline step run",
			Buckets: prometheus.DefBuckets,
		}, []string{"pipeline", "step"}),
		stepHostWeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "manila_scheduler_pipeline_step_weight_modification",
			Help: "Modification of host weight by scheduler pipeline step",
		}, []string{"pipeline", "host", "step"}),
		stepRemovedHostsObserver: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "manila_scheduler_pipeline_step_removed_hosts",
			Help:    "Number of hosts removed by scheduler pipeline step",
			Buckets: prometheus.ExponentialBucketsRange(1, 1000, 10),
		}, []string{"pipeline", "step"}),
		stepEvaluationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "manila_scheduler_pipeline_step_evaluation_errors_total",
			Help: "Hosts rejected because a filter could not evaluate them",
		}, []string{"pipeline", "step"}),
		pipelineRunTimer: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "manila_scheduler_pipeline_run_duration_seconds",
			Help:    "Duration of scheduler pipeline run",
			Buckets: prometheus.DefBuckets,
		}, []string{"pipeline"}),
		hostNumberInObserver: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "manila_scheduler_pipeline_host_number_in",
			Help:    "Number of hosts going into the scheduler pipeline",
			Buckets: prometheus.ExponentialBucketsRange(1, 1000, 10),
		}, []string{"pipeline"}),
		hostNumberOutObserver: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "manila_scheduler_pipeline_host_number_out",
			Help:    "Number of hosts coming out of the scheduler pipeline",
			Buckets: prometheus.ExponentialBucketsRange(1, 1000, 10),
		}, []string{"pipeline"}),
		requestCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "manila_scheduler_pipeline_requests_total",
			Help: "Total number of requests processed by the scheduler.",
		}, []string{"pipeline", "outcome"}),
	}
}

// Get a copied pipeline monitor with the name set, after binding the metrics.
func (m FilterWeigherPipelineMonitor) SubPipeline(name string) FilterWeigherPipelineMonitor {
	cp := m
	cp.PipelineName = name
	return cp
}

// Observe a scheduler pipeline result: hosts going in, and hosts going out.
func (m *FilterWeigherPipelineMonitor) observePipelineResult(hostsIn, hostsOut []string) {
	if m.hostNumberInObserver != nil {
		m.hostNumberInObserver.
			WithLabelValues(m.PipelineName).
			Observe(float64(len(hostsIn)))
	}
	if m.hostNumberOutObserver != nil {
		m.hostNumberOutObserver.
			WithLabelValues(m.PipelineName).
			Observe(float64(len(hostsOut)))
	}
	if m.requestCounter != nil {
		outcome := "selected"
		if len(hostsOut) == 0 {
			outcome = "no_valid_host"
		}
		m.requestCounter.
			WithLabelValues(m.PipelineName, outcome).
			Inc()
	}
}

// Observe hosts that a filter rejected because it could not evaluate them.
func (m *FilterWeigherPipelineMonitor) observeEvaluationErrors(stepName string, n int) {
	if m.stepEvaluationErrors == nil || n == 0 {
		return
	}
	m.stepEvaluationErrors.
		WithLabelValues(m.PipelineName, stepName).
		Add(float64(n))
}

func (m *FilterWeigherPipelineMonitor) Describe(ch chan<- *prometheus.Desc) {
	m.stepRunTimer.Describe(ch)
	m.stepHostWeight.Describe(ch)
	m.stepRemovedHostsObserver.Describe(ch)
	m.stepEvaluationErrors.Describe(ch)
	m.pipelineRunTimer.Describe(ch)
	m.hostNumberInObserver.Describe(ch)
	m.hostNumberOutObserver.Describe(ch)
	m.requestCounter.Describe(ch)
}

func (m *FilterWeigherPipelineMonitor) Collect(ch chan<- prometheus.Metric) {
	m.stepRunTimer.Collect(ch)
	m.stepHostWeight.Collect(ch)
	m.stepRemovedHostsObserver.Collect(ch)
	m.stepEvaluationErrors.Collect(ch)
	m.pipelineRunTimer.Collect(ch)
	m.hostNumberInObserver.Collect(ch)
	m.hostNumberOutObserver.Collect(ch)
	m.requestCounter.Collect(ch)
}
