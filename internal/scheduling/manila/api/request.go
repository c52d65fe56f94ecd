// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"log/slog"

	"github.com/kramdoss/manila/internal/scheduling/lib"
	"github.com/kramdoss/manila/internal/scheduling/manila/hosts"
)

// Request passed through the filter and weigher pipeline.
type SchedulingRequest struct {
	Spec PlacementRequest
	// Snapshot of the candidate hosts, sorted by id.
	Hosts []hosts.HostState
	// Initial weights of the hosts.
	Weights map[string]float64
}

// Create a pipeline request with zero initial weights for all hosts.
func NewSchedulingRequest(spec PlacementRequest, snapshot []hosts.HostState) SchedulingRequest {
	weights := make(map[string]float64, len(snapshot))
	for _, host := range snapshot {
		weights[host.ID] = 0
	}
	return SchedulingRequest{Spec: spec, Hosts: snapshot, Weights: weights}
}

func (r SchedulingRequest) GetHosts() []string {
	ids := make([]string, len(r.Hosts))
	for i, host := range r.Hosts {
		ids[i] = host.ID
	}
	return ids
}

func (r SchedulingRequest) GetWeights() map[string]float64 {
	return r.Weights
}

func (r SchedulingRequest) GetTraceLogArgs() []slog.Attr {
	return []slog.Attr{
		slog.String("requestID", r.Spec.RequestID),
		slog.Int("size", r.Spec.Size),
		slog.String("availabilityZone", r.Spec.AvailabilityZone),
		slog.Int("attempt", r.Spec.Attempt()),
	}
}

func (r SchedulingRequest) FilterHosts(includedHosts map[string]float64) lib.PipelineRequest {
	filtered := make([]hosts.HostState, 0, len(includedHosts))
	for _, host := range r.Hosts {
		if _, ok := includedHosts[host.ID]; ok {
			filtered = append(filtered, host)
		}
	}
	r.Hosts = filtered
	return r
}
