// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package weighers

import (
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/kramdoss/manila/internal/conf"
	"github.com/kramdoss/manila/internal/db"
	"github.com/kramdoss/manila/internal/scheduling/lib"
	"github.com/kramdoss/manila/internal/scheduling/manila/api"
	"github.com/kramdoss/manila/internal/scheduling/manila/hosts"
)

func testHosts(free map[string]float64) []hosts.HostState {
	states := make([]hosts.HostState, 0, len(free))
	for id, gb := range free {
		states = append(states, hosts.HostState{
			ID:                       id,
			TotalCapacityGB:          200,
			FreeCapacityGB:           gb,
			MaxOversubscriptionRatio: 1,
			Enabled:                  true,
		})
	}
	slices.SortFunc(states, func(a, b hosts.HostState) int {
		return strings.Compare(a.ID, b.ID)
	})
	return states
}

func TestCapacityWeigherOpts_Validate(t *testing.T) {
	one, zero := 1.0, 0.0
	tests := []struct {
		name        string
		opts        CapacityWeigherOpts
		expectError bool
	}{
		{"defaults", CapacityWeigherOpts{}, false},
		{"custom bounds", CapacityWeigherOpts{ActivationLowerBound: &zero, ActivationUpperBound: &one}, false},
		{"equal bounds", CapacityWeigherOpts{ActivationLowerBound: &one, ActivationUpperBound: &one}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.expectError {
				t.Fatalf("expected error %v, got %v", tt.expectError, err)
			}
		})
	}
}

func TestCapacityWeigher_Run(t *testing.T) {
	tests := []struct {
		name     string
		opts     string
		free     map[string]float64
		expected map[string]float64
	}{
		{
			name:     "scaled between peers",
			opts:     "{}",
			free:     map[string]float64{"a": 50, "b": 75, "c": 100},
			expected: map[string]float64{"a": 0, "b": 0.5, "c": 1},
		},
		{
			name:     "all equal",
			opts:     "{}",
			free:     map[string]float64{"a": 50, "b": 50},
			expected: map[string]float64{"a": 0, "b": 0},
		},
		{
			name:     "single host",
			opts:     "{}",
			free:     map[string]float64{"a": 10},
			expected: map[string]float64{"a": 0},
		},
		{
			name:     "custom activation bounds",
			opts:     `{"activationLowerBound": -1, "activationUpperBound": 1}`,
			free:     map[string]float64{"a": 0, "b": 50, "c": 100},
			expected: map[string]float64{"a": -1, "b": 0, "c": 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			weigher := &CapacityWeigher{}
			if err := weigher.Init(db.DB{}, conf.NewRawOpts(tt.opts)); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			request := api.NewSchedulingRequest(api.PlacementRequest{Size: 1}, testHosts(tt.free))
			result, err := weigher.Run(slog.Default(), request)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(result.Activations) != len(tt.expected) {
				t.Fatalf("expected %d activations, got %d", len(tt.expected), len(result.Activations))
			}
			for host, expected := range tt.expected {
				if got := result.Activations[host]; got != expected {
					t.Errorf("expected activation %f for host %s, got %f", expected, host, got)
				}
				if got := result.Statistics["free capacity"].Hosts[host]; got != tt.free[host] {
					t.Errorf("expected free capacity statistic %f for host %s, got %f", tt.free[host], host, got)
				}
			}
		})
	}
}

func TestCapacityWeigher_Multiplier(t *testing.T) {
	states := testHosts(map[string]float64{"a": 10, "b": 50, "c": 100, "d": 50})
	tests := []struct {
		name       string
		multiplier float64
		expected   []string
	}{
		// Equal hosts keep their id order.
		{"spread", 1.0, []string{"c", "b", "d", "a"}},
		{"stack", -1.0, []string{"a", "b", "d", "c"}},
		{"disabled", 0.0, []string{"a", "b", "c", "d"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipeline, err := lib.InitNewFilterWeigherPipeline(
				"test", map[string]func() lib.Filter[api.SchedulingRequest]{}, nil,
				Index, []conf.SchedulerStepConfig{{Name: "capacity_weigher", Multiplier: &tt.multiplier}},
				db.DB{}, lib.NewPipelineMonitor(),
			)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			decision, err := pipeline.Run(api.NewSchedulingRequest(api.PlacementRequest{Size: 1}, states))
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !slices.Equal(decision.OrderedHosts, tt.expected) {
				t.Fatalf("expected hosts %v, got %v", tt.expected, decision.OrderedHosts)
			}
		})
	}
}
