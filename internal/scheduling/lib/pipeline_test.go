// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package lib

import (
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/kramdoss/manila/internal/conf"
	"github.com/kramdoss/manila/internal/db"
)

func newTestPipeline(filters map[string]*mockStep, filtersOrder []string, weighers map[string]*mockStep, multipliers map[string]float64) *filterWeigherPipeline[mockPipelineRequest] {
	p := &filterWeigherPipeline[mockPipelineRequest]{
		filters:             map[string]Filter[mockPipelineRequest]{},
		filtersOrder:        filtersOrder,
		weighers:            map[string]Weigher[mockPipelineRequest]{},
		weighersMultipliers: multipliers,
	}
	for name, f := range filters {
		p.filters[name] = validateFilter[mockPipelineRequest](f)
	}
	for name, w := range weighers {
		p.weighers[name] = validateWeigher[mockPipelineRequest](w, conf.SchedulerStepDisabledValidationsConfig{})
		p.weighersOrder = append(p.weighersOrder, name)
	}
	slices.Sort(p.weighersOrder)
	return p
}

func TestPipeline_Run(t *testing.T) {
	pipeline := newTestPipeline(
		map[string]*mockStep{"mock_filter": keepHosts("too small", "host1", "host2")},
		[]string{"mock_filter"},
		map[string]*mockStep{"mock_weigher": weighHosts(map[string]float64{
			"host1": 0.5,
			"host2": 1.0,
			"host3": -0.5,
		})},
		map[string]float64{"mock_weigher": 1.0},
	)

	tests := []struct {
		name            string
		request         mockPipelineRequest
		expectedHosts   []string
		expectedReasons map[string]string
	}{
		{
			name:            "Single filter and weigher",
			request:         newMockRequest("host1", "host2", "host3"),
			expectedHosts:   []string{"host2", "host1"},
			expectedReasons: map[string]string{"host3": "mock_filter: too small"},
		},
		{
			name:            "All hosts filtered",
			request:         newMockRequest("host3", "host4"),
			expectedHosts:   []string{},
			expectedReasons: map[string]string{"host3": "mock_filter: too small", "host4": "mock_filter: too small"},
		},
		{
			name:            "No hosts",
			request:         newMockRequest(),
			expectedHosts:   []string{},
			expectedReasons: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := pipeline.Run(tt.request)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !slices.Equal(result.OrderedHosts, tt.expectedHosts) {
				t.Fatalf("expected hosts %v, got %v", tt.expectedHosts, result.OrderedHosts)
			}
			if len(result.Reasons) != len(tt.expectedReasons) {
				t.Fatalf("expected %d reasons, got %v", len(tt.expectedReasons), result.Reasons)
			}
			for host, reason := range tt.expectedReasons {
				if result.Reasons[host] != reason {
					t.Errorf("expected reason %q for host %s, got %q", reason, host, result.Reasons[host])
				}
			}
		})
	}
}

func TestPipeline_FirstRejectingFilterWins(t *testing.T) {
	pipeline := newTestPipeline(
		map[string]*mockStep{
			"first":  keepHosts("first reason", "host1"),
			"second": keepHosts("second reason"),
		},
		[]string{"first", "second"},
		nil, nil,
	)
	result, err := pipeline.Run(newMockRequest("host1", "host2"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.Reasons["host2"] != "first: first reason" {
		t.Errorf("expected first filter reason, got %q", result.Reasons["host2"])
	}
	if result.Reasons["host1"] != "second: second reason" {
		t.Errorf("expected second filter reason, got %q", result.Reasons["host1"])
	}
	if len(result.OrderedHosts) != 0 {
		t.Errorf("expected no hosts, got %v", result.OrderedHosts)
	}
}

func TestPipeline_FiltersCommute(t *testing.T) {
	a := keepHosts("a", "host1", "host2")
	b := keepHosts("b", "host2", "host3")
	for _, order := range [][]string{{"a", "b"}, {"b", "a"}} {
		pipeline := newTestPipeline(map[string]*mockStep{"a": a, "b": b}, order, nil, nil)
		result, err := pipeline.Run(newMockRequest("host1", "host2", "host3"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !slices.Equal(result.OrderedHosts, []string{"host2"}) {
			t.Errorf("order %v: expected [host2], got %v", order, result.OrderedHosts)
		}
	}
}

func TestPipeline_FilterErrorRejectsRemainingHosts(t *testing.T) {
	failing := &mockStep{RunFunc: func(_ *slog.Logger, _ mockPipelineRequest) (*StepResult, error) {
		return nil, errors.New("boom")
	}}
	pipeline := newTestPipeline(
		map[string]*mockStep{"keep": keepHosts("gone", "host1", "host2"), "failing": failing},
		[]string{"keep", "failing"},
		nil, nil,
	)
	result, err := pipeline.Run(newMockRequest("host1", "host2", "host3"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(result.OrderedHosts) != 0 {
		t.Fatalf("expected no hosts, got %v", result.OrderedHosts)
	}
	if result.Reasons["host3"] != "keep: gone" {
		t.Errorf("expected reason of first filter, got %q", result.Reasons["host3"])
	}
	for _, host := range []string{"host1", "host2"} {
		if !strings.HasPrefix(result.Reasons[host], "failing: evaluation failed: boom") {
			t.Errorf("expected evaluation failure for %s, got %q", host, result.Reasons[host])
		}
	}
}

func TestPipeline_SkippedSteps(t *testing.T) {
	skipped := &mockStep{RunFunc: func(_ *slog.Logger, _ mockPipelineRequest) (*StepResult, error) {
		return nil, ErrStepSkipped
	}}
	pipeline := newTestPipeline(
		map[string]*mockStep{"skipped": skipped},
		[]string{"skipped"},
		map[string]*mockStep{"skipped_weigher": skipped},
		map[string]float64{"skipped_weigher": 1.0},
	)
	result, err := pipeline.Run(newMockRequest("host2", "host1"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !slices.Equal(result.OrderedHosts, []string{"host1", "host2"}) {
		t.Errorf("expected hosts sorted by name, got %v", result.OrderedHosts)
	}
}

func TestPipeline_ApplyWeights(t *testing.T) {
	p := &filterWeigherPipeline[mockPipelineRequest]{
		weighersOrder:       []string{"step1", "step2"},
		weighersMultipliers: map[string]float64{"step1": 2.0},
	}
	stepWeights := map[string]map[string]float64{
		"step1": {"host1": 0.5, "host2": 0.2},
		"step2": {"host1": 0.3, "host2": 0.4},
	}
	inWeights := map[string]float64{"host1": 1.0, "host2": 1.0}
	result := p.applyWeights(stepWeights, inWeights)
	expected := map[string]float64{
		"host1": 1.0 + 2*0.5 + 0.3,
		"host2": 1.0 + 2*0.2 + 0.4,
	}
	for host, weight := range expected {
		if diff := result[host] - weight; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("expected weight %f for host %s, got %f", weight, host, result[host])
		}
	}
	if inWeights["host1"] != 1.0 {
		t.Error("expected input weights to be left untouched")
	}
}

func TestPipeline_SortHostsByWeights(t *testing.T) {
	p := &filterWeigherPipeline[mockPipelineRequest]{}
	weights := map[string]float64{"c": 1.0, "b": 2.0, "a": 1.0, "d": 0.5}
	for range 10 {
		hosts := p.sortHostsByWeights(weights)
		if !slices.Equal(hosts, []string{"b", "a", "c", "d"}) {
			t.Fatalf("expected [b a c d], got %v", hosts)
		}
	}
}

func TestInitNewFilterWeigherPipeline(t *testing.T) {
	var initializedWith []string
	supportedFilters := map[string]func() Filter[mockPipelineRequest]{
		"mock_filter": func() Filter[mockPipelineRequest] {
			return &mockStep{
				InitFunc: func(_ db.DB, opts conf.RawOpts) error {
					initializedWith = append(initializedWith, opts.String())
					return nil
				},
				RunFunc: keepHosts("nope", "host1").RunFunc,
			}
		},
	}
	supportedWeighers := map[string]func() Weigher[mockPipelineRequest]{
		"mock_weigher": func() Weigher[mockPipelineRequest] {
			return weighHosts(map[string]float64{"host1": 1.0})
		},
	}
	multiplier := -2.0

	t.Run("valid configuration", func(t *testing.T) {
		pipeline, err := InitNewFilterWeigherPipeline(
			"test", supportedFilters,
			[]conf.SchedulerStepConfig{{Name: "mock_filter", Options: conf.NewRawOpts(`{"a": 1}`)}},
			supportedWeighers,
			[]conf.SchedulerStepConfig{{Name: "mock_weigher", Multiplier: &multiplier}},
			db.DB{}, NewPipelineMonitor(),
		)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(initializedWith) != 1 || initializedWith[0] != `{"a": 1}` {
			t.Fatalf("expected filter to be initialized with options, got %v", initializedWith)
		}
		result, err := pipeline.Run(newMockRequest("host1", "host2"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !slices.Equal(result.OrderedHosts, []string{"host1"}) {
			t.Fatalf("expected [host1], got %v", result.OrderedHosts)
		}
		if result.AggregatedOutWeights["host1"] != -2.0 {
			t.Errorf("expected weight -2, got %f", result.AggregatedOutWeights["host1"])
		}
	})

	t.Run("unsupported steps", func(t *testing.T) {
		_, err := InitNewFilterWeigherPipeline(
			"test", supportedFilters,
			[]conf.SchedulerStepConfig{{Name: "unknown_filter"}},
			supportedWeighers,
			[]conf.SchedulerStepConfig{{Name: "unknown_weigher"}},
			db.DB{}, NewPipelineMonitor(),
		)
		if !errors.Is(err, ErrUnsupportedStep) {
			t.Fatalf("expected unsupported step error, got %v", err)
		}
		if !strings.Contains(err.Error(), "unknown_filter") || !strings.Contains(err.Error(), "unknown_weigher") {
			t.Errorf("expected both step names in error, got %v", err)
		}
	})

	t.Run("failing init", func(t *testing.T) {
		failing := map[string]func() Filter[mockPipelineRequest]{
			"failing": func() Filter[mockPipelineRequest] {
				return &mockStep{InitFunc: func(db.DB, conf.RawOpts) error { return errors.New("bad options") }}
			},
		}
		_, err := InitNewFilterWeigherPipeline(
			"test", failing, []conf.SchedulerStepConfig{{Name: "failing"}},
			supportedWeighers, nil, db.DB{}, NewPipelineMonitor(),
		)
		if err == nil || !strings.Contains(err.Error(), "bad options") {
			t.Fatalf("expected init error, got %v", err)
		}
	})
}
