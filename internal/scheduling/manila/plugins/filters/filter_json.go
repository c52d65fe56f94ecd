// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package filters

import (
	"log/slog"

	"github.com/kramdoss/manila/internal/scheduling/lib"
	"github.com/kramdoss/manila/internal/scheduling/manila/api"
)

// Evaluate the boolean expression given with the request against each host.
type JsonFilter struct {
	lib.BaseFilter[api.SchedulingRequest, lib.EmptyStepOpts]
}

func (s *JsonFilter) Run(traceLog *slog.Logger, request api.SchedulingRequest) (*lib.StepResult, error) {
	result := s.IncludeAllHostsFromRequest(request)
	query, err := parseJsonQuery(request.Spec.JsonFilter)
	if err != nil {
		traceLog.Warn("malformed json filter, rejecting all hosts", "error", err)
		for _, host := range request.Hosts {
			s.RejectWithError(result, host.ID, err)
		}
		return result, nil
	}
	if query == nil {
		return result, nil
	}
	for _, host := range request.Hosts {
		matches, err := query.matches(host)
		if err != nil {
			s.RejectWithError(result, host.ID, err)
			continue
		}
		if !matches {
			s.Reject(result, host.ID, "host does not match the json filter")
		}
	}
	return result, nil
}

func init() {
	Index["json_filter"] = func() ManilaFilter { return &JsonFilter{} }
}
