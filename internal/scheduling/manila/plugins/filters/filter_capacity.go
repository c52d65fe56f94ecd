// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package filters

import (
	"fmt"
	"log/slog"

	"github.com/kramdoss/manila/internal/scheduling/lib"
	"github.com/kramdoss/manila/internal/scheduling/manila/api"
)

// Reject hosts that can't fit the requested share size.
type CapacityFilter struct {
	lib.BaseFilter[api.SchedulingRequest, lib.EmptyStepOpts]
}

func (s *CapacityFilter) Run(traceLog *slog.Logger, request api.SchedulingRequest) (*lib.StepResult, error) {
	result := s.IncludeAllHostsFromRequest(request)
	result.Statistics["effective capacity"] = s.PrepareStats(request, "GB")
	size := float64(request.Spec.Size)
	for _, host := range request.Hosts {
		effective := host.EffectiveCapacityGB()
		result.Statistics["effective capacity"].Hosts[host.ID] = effective
		if size > effective {
			s.Reject(result, host.ID, fmt.Sprintf(
				"requested %d GB exceeds effective capacity of %.2f GB", request.Spec.Size, effective,
			))
			continue
		}
		if reserved := host.ReservedCapacityGB(); host.FreeCapacityGB < reserved {
			s.Reject(result, host.ID, fmt.Sprintf(
				"free capacity of %.2f GB is below the reserve of %.2f GB", host.FreeCapacityGB, reserved,
			))
		}
	}
	return result, nil
}

func init() {
	Index["capacity_filter"] = func() ManilaFilter { return &CapacityFilter{} }
}
