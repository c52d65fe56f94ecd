// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package weighers

import (
	"errors"
	"log/slog"

	"github.com/kramdoss/manila/internal/scheduling/lib"
	"github.com/kramdoss/manila/internal/scheduling/manila/api"
)

// Options for the capacity weigher, given through the step config.
type CapacityWeigherOpts struct {
	// Bounds of the activation the free capacity is scaled into.
	// The scaled value is multiplied with the configured multiplier.
	ActivationLowerBound *float64 `json:"activationLowerBound,omitempty"`
	ActivationUpperBound *float64 `json:"activationUpperBound,omitempty"`
}

func (o CapacityWeigherOpts) Validate() error {
	if o.ActivationLowerBound != nil && o.ActivationUpperBound != nil &&
		*o.ActivationLowerBound == *o.ActivationUpperBound {
		return errors.New("activationLowerBound and activationUpperBound must not be equal")
	}
	return nil
}

func (o CapacityWeigherOpts) bounds() (lower, upper float64) {
	lower, upper = 0, 1
	if o.ActivationLowerBound != nil {
		lower = *o.ActivationLowerBound
	}
	if o.ActivationUpperBound != nil {
		upper = *o.ActivationUpperBound
	}
	return lower, upper
}

// Prefer hosts with more free capacity. With a negative multiplier, hosts
// with less free capacity are preferred, which stacks shares on few backends.
type CapacityWeigher struct {
	lib.BaseWeigher[api.SchedulingRequest, CapacityWeigherOpts]
}

func (s *CapacityWeigher) Run(traceLog *slog.Logger, request api.SchedulingRequest) (*lib.StepResult, error) {
	result := s.IncludeAllHostsFromRequest(request)
	result.Statistics["free capacity"] = s.PrepareStats(request, "GB")
	if len(request.Hosts) == 0 {
		return result, nil
	}

	lowest, highest := request.Hosts[0].FreeCapacityGB, request.Hosts[0].FreeCapacityGB
	for _, host := range request.Hosts {
		lowest = min(lowest, host.FreeCapacityGB)
		highest = max(highest, host.FreeCapacityGB)
	}
	if lowest == highest {
		traceLog.Debug("all hosts have the same free capacity, no effect")
	}
	activationLower, activationUpper := s.Options.bounds()
	for _, host := range request.Hosts {
		result.Activations[host.ID] = lib.MinMaxScale(
			host.FreeCapacityGB,
			lowest, highest,
			activationLower, activationUpper,
		)
		result.Statistics["free capacity"].Hosts[host.ID] = host.FreeCapacityGB
	}
	return result, nil
}

func init() {
	Index["capacity_weigher"] = func() ManilaWeigher { return &CapacityWeigher{} }
}
