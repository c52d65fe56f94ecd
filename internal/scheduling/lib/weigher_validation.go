// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package lib

import (
	"errors"
	"log/slog"

	"github.com/kramdoss/manila/internal/conf"
	"github.com/kramdoss/manila/internal/db"
)

// Wrapper for weighers that validates them after execution.
type WeigherValidator[RequestType PipelineRequest] struct {
	// The wrapped weigher to validate.
	Weigher Weigher[RequestType]
	// By default, all validations are enabled.
	DisabledValidations conf.SchedulerStepDisabledValidationsConfig
}

// Validate the wrapped weigher.
func validateWeigher[RequestType PipelineRequest](
	weigher Weigher[RequestType],
	disabledValidations conf.SchedulerStepDisabledValidationsConfig,
) *WeigherValidator[RequestType] {

	return &WeigherValidator[RequestType]{Weigher: weigher, DisabledValidations: disabledValidations}
}

// Initialize the wrapped weigher with the database and options.
func (s *WeigherValidator[RequestType]) Init(db db.DB, opts conf.RawOpts) error {
	return s.Weigher.Init(db, opts)
}

// Run the weigher and validate what happens.
func (s *WeigherValidator[RequestType]) Run(traceLog *slog.Logger, request RequestType) (*StepResult, error) {
	result, err := s.Weigher.Run(traceLog, request)
	if err != nil {
		return nil, err
	}
	deduplicated := map[string]struct{}{}
	for _, host := range request.GetHosts() {
		deduplicated[host] = struct{}{}
	}
	// Weighers must not filter out hosts.
	if len(result.Activations) != len(deduplicated) {
		return nil, errors.New("safety: number of (deduplicated) hosts changed during step execution")
	}
	if !s.DisabledValidations.SomeHostsRemain && len(result.Activations) == 0 {
		return nil, errors.New("safety: no hosts remain after step execution")
	}
	return result, nil
}
