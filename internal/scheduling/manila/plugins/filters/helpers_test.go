// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package filters

import (
	"log/slog"
	"maps"
	"slices"
	"testing"

	"github.com/kramdoss/manila/internal/conf"
	"github.com/kramdoss/manila/internal/db"
	"github.com/kramdoss/manila/internal/scheduling/lib"
	"github.com/kramdoss/manila/internal/scheduling/manila/api"
	"github.com/kramdoss/manila/internal/scheduling/manila/hosts"
)

func testHost(id string, free float64) hosts.HostState {
	return hosts.HostState{
		ID:                       id,
		AvailabilityZone:         "zone1",
		TotalCapacityGB:          200,
		FreeCapacityGB:           free,
		MaxOversubscriptionRatio: 1,
		Capabilities:             map[string]any{},
		Enabled:                  true,
	}
}

// Run the filter from the index and return the kept hosts and the reasons of the rejected ones.
func runFilter(t *testing.T, name string, spec api.PlacementRequest, states ...hosts.HostState) ([]string, map[string]string) {
	t.Helper()
	makeFilter, ok := Index[name]
	if !ok {
		t.Fatalf("expected filter %s to be registered", name)
	}
	filter := makeFilter()
	if err := filter.Init(db.DB{}, conf.NewRawOpts("{}")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	result, err := filter.Run(slog.Default(), api.NewSchedulingRequest(spec, states))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	return slices.Sorted(maps.Keys(result.Activations)), rejectedReasons(result)
}

func rejectedReasons(result *lib.StepResult) map[string]string {
	reasons := map[string]string{}
	for host, reason := range result.Reasons {
		if _, kept := result.Activations[host]; !kept {
			reasons[host] = reason
		}
	}
	return reasons
}
