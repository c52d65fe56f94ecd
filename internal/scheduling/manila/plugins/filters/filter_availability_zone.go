// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package filters

import (
	"fmt"
	"log/slog"

	"github.com/kramdoss/manila/internal/scheduling/lib"
	"github.com/kramdoss/manila/internal/scheduling/manila/api"
)

type AvailabilityZoneFilter struct {
	lib.BaseFilter[api.SchedulingRequest, lib.EmptyStepOpts]
}

// Only keep hosts in the requested availability zone.
func (s *AvailabilityZoneFilter) Run(traceLog *slog.Logger, request api.SchedulingRequest) (*lib.StepResult, error) {
	result := s.IncludeAllHostsFromRequest(request)
	requested := request.Spec.AvailabilityZone
	if requested == "" {
		traceLog.Debug("no availability zone requested, keeping all hosts")
		return result, nil
	}
	for _, host := range request.Hosts {
		if host.AvailabilityZone == requested {
			continue
		}
		s.Reject(result, host.ID, fmt.Sprintf(
			"host is in availability zone %q, requested %q", host.AvailabilityZone, requested,
		))
	}
	return result, nil
}

func init() {
	Index["availability_zone_filter"] = func() ManilaFilter { return &AvailabilityZoneFilter{} }
}
