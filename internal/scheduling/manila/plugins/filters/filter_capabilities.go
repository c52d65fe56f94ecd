// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package filters

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/kramdoss/manila/internal/scheduling/lib"
	"github.com/kramdoss/manila/internal/scheduling/manila/api"
)

// Check that the reported capabilities of each host satisfy the extra specs of the request.
type CapabilitiesFilter struct {
	lib.BaseFilter[api.SchedulingRequest, lib.EmptyStepOpts]
}

func (s *CapabilitiesFilter) Run(traceLog *slog.Logger, request api.SchedulingRequest) (*lib.StepResult, error) {
	result := s.IncludeAllHostsFromRequest(request)
	if len(request.Spec.ExtraSpecs) == 0 {
		traceLog.Debug("no extra specs in request, keeping all hosts")
		return result, nil
	}
	// Sorted, so that the reported reason is the same for identical requests.
	specs := make([]ExtraSpec, 0, len(request.Spec.ExtraSpecs))
	var parseErrs []error
	for _, key := range slices.Sorted(maps.Keys(request.Spec.ExtraSpecs)) {
		spec, ok, err := ParseExtraSpec(key, request.Spec.ExtraSpecs[key])
		if err != nil {
			parseErrs = append(parseErrs, err)
			continue
		}
		if ok {
			specs = append(specs, spec)
		}
	}
	if err := errors.Join(parseErrs...); err != nil {
		traceLog.Warn("malformed extra specs, rejecting all hosts", "error", err)
		for _, host := range request.Hosts {
			s.RejectWithError(result, host.ID, err)
		}
		return result, nil
	}
	for _, host := range request.Hosts {
		for _, spec := range specs {
			capability, present := hostCapability(host, spec.Key)
			matches, err := spec.Match(capability, present)
			if errors.Is(err, errMissingCapability) {
				s.Reject(result, host.ID, err.Error())
				break
			}
			if err != nil {
				traceLog.Warn("failed to evaluate extra spec", "host", host.ID, "key", spec.Key, "error", err)
				s.RejectWithError(result, host.ID, err)
				break
			}
			if !matches {
				s.Reject(result, host.ID, fmt.Sprintf(
					"capability %s is %q, requested %q",
					spec.Key, formatValue(capability), spec.Raw,
				))
				break
			}
		}
	}
	return result, nil
}

func init() {
	Index["capabilities_filter"] = func() ManilaFilter { return &CapabilitiesFilter{} }
}
