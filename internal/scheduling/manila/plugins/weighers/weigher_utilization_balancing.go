// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package weighers

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/kramdoss/manila/internal/scheduling/lib"
	"github.com/kramdoss/manila/internal/scheduling/manila/api"
)

// Capability in which backends such as netapp report their
// performance utilization, in percent.
const utilizationCapability = "utilization"

// Options for the scheduling step, given through the step config in the service
// yaml file.
type UtilizationBalancingWeigherOpts struct {
	UtilizationLowerBound float64 `json:"utilizationLowerBound"` // -> mapped to ActivationLowerBound
	UtilizationUpperBound float64 `json:"utilizationUpperBound"` // -> mapped to ActivationUpperBound

	UtilizationActivationLowerBound float64 `json:"utilizationActivationLowerBound"`
	UtilizationActivationUpperBound float64 `json:"utilizationActivationUpperBound"`
}

func (o UtilizationBalancingWeigherOpts) Validate() error {
	// Avoid zero-division during min-max scaling.
	if o.UtilizationLowerBound == o.UtilizationUpperBound {
		return errors.New("utilizationLowerBound and utilizationUpperBound must not be equal")
	}
	return nil
}

// Step to balance load by avoiding highly utilized storage pools.
type UtilizationBalancingWeigher struct {
	lib.BaseWeigher[api.SchedulingRequest, UtilizationBalancingWeigherOpts]
}

// Downvote hosts that are highly utilized.
// Hosts that don't report their utilization are left untouched.
func (s *UtilizationBalancingWeigher) Run(traceLog *slog.Logger, request api.SchedulingRequest) (*lib.StepResult, error) {
	result := s.IncludeAllHostsFromRequest(request)
	result.Statistics["utilization"] = s.PrepareStats(request, "%")

	for _, host := range request.Hosts {
		utilization, ok := percentage(host.Capabilities[utilizationCapability])
		if !ok {
			traceLog.Debug("host reports no utilization", "host", host.ID)
			continue
		}
		result.Activations[host.ID] = lib.MinMaxScale(
			utilization,
			s.Options.UtilizationLowerBound,
			s.Options.UtilizationUpperBound,
			s.Options.UtilizationActivationLowerBound,
			s.Options.UtilizationActivationUpperBound,
		)
		result.Statistics["utilization"].Hosts[host.ID] = utilization
	}
	return result, nil
}

func percentage(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

func init() {
	Index["utilization_balancing"] = func() ManilaWeigher { return &UtilizationBalancingWeigher{} }
}
