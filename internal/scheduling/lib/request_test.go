// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package lib

import (
	"log/slog"
	"slices"

	"github.com/kramdoss/manila/internal/conf"
	"github.com/kramdoss/manila/internal/db"
)

type mockPipelineRequest struct {
	Hosts   []string
	Weights map[string]float64
}

func (m mockPipelineRequest) GetHosts() []string             { return m.Hosts }
func (m mockPipelineRequest) GetWeights() map[string]float64 { return m.Weights }
func (m mockPipelineRequest) GetTraceLogArgs() []slog.Attr   { return []slog.Attr{} }
func (m mockPipelineRequest) FilterHosts(includedHosts map[string]float64) PipelineRequest {
	filtered := []string{}
	for _, host := range m.Hosts {
		if _, ok := includedHosts[host]; ok {
			filtered = append(filtered, host)
		}
	}
	return mockPipelineRequest{Hosts: filtered, Weights: m.Weights}
}

func newMockRequest(hosts ...string) mockPipelineRequest {
	weights := make(map[string]float64, len(hosts))
	for _, host := range hosts {
		weights[host] = 0
	}
	return mockPipelineRequest{Hosts: slices.Clone(hosts), Weights: weights}
}

type mockStep struct {
	InitFunc func(db db.DB, opts conf.RawOpts) error
	RunFunc  func(traceLog *slog.Logger, request mockPipelineRequest) (*StepResult, error)
}

func (m *mockStep) Init(db db.DB, opts conf.RawOpts) error {
	if m.InitFunc == nil {
		return nil
	}
	return m.InitFunc(db, opts)
}

func (m *mockStep) Run(traceLog *slog.Logger, request mockPipelineRequest) (*StepResult, error) {
	return m.RunFunc(traceLog, request)
}

// Step that keeps the given hosts and rejects all others with the given reason.
func keepHosts(reason string, keep ...string) *mockStep {
	return &mockStep{RunFunc: func(_ *slog.Logger, request mockPipelineRequest) (*StepResult, error) {
		result := &StepResult{Activations: map[string]float64{}, Reasons: map[string]string{}}
		for _, host := range request.GetHosts() {
			if slices.Contains(keep, host) {
				result.Activations[host] = 0
			} else {
				result.Reasons[host] = reason
			}
		}
		return result, nil
	}}
}

// Step that assigns the given activations to the hosts in the request.
func weighHosts(activations map[string]float64) *mockStep {
	return &mockStep{RunFunc: func(_ *slog.Logger, request mockPipelineRequest) (*StepResult, error) {
		result := &StepResult{Activations: map[string]float64{}}
		for _, host := range request.GetHosts() {
			result.Activations[host] = activations[host]
		}
		return result, nil
	}}
}
