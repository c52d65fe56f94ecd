// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package filters

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/kramdoss/manila/internal/scheduling/lib"
	"github.com/kramdoss/manila/internal/scheduling/manila/api"
)

// Exclude hosts on which provisioning already failed for this request.
// The exclusion holds for the whole lifetime of the request, hosts are never cycled.
type RetryFilter struct {
	lib.BaseFilter[api.SchedulingRequest, lib.EmptyStepOpts]
}

func (s *RetryFilter) Run(traceLog *slog.Logger, request api.SchedulingRequest) (*lib.StepResult, error) {
	result := s.IncludeAllHostsFromRequest(request)
	if len(request.Spec.RetryHosts) == 0 {
		return result, nil
	}
	traceLog.Info("excluding previously attempted hosts", "retryHosts", request.Spec.RetryHosts)
	for _, host := range request.Hosts {
		attempt := slices.Index(request.Spec.RetryHosts, host.ID)
		if attempt < 0 {
			continue
		}
		s.Reject(result, host.ID, fmt.Sprintf("provisioning already failed on this host (attempt %d)", attempt+1))
	}
	return result, nil
}

func init() {
	Index["retry_filter"] = func() ManilaFilter { return &RetryFilter{} }
}
