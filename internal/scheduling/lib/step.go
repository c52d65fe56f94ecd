// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package lib

import (
	"fmt"
	"log/slog"

	"github.com/kramdoss/manila/internal/conf"
	"github.com/kramdoss/manila/internal/db"
)

// Interface to which step options must conform.
type StepOpts interface {
	// Validate the options for this step.
	Validate() error
}

// Empty options for steps that don't need any.
type EmptyStepOpts struct{}

func (o EmptyStepOpts) Validate() error { return nil }

// Steps can be chained together to form a scheduling pipeline.
type Step[RequestType PipelineRequest] interface {
	// Configure the step and initialize things like a database connection.
	Init(db db.DB, opts conf.RawOpts) error
	// Run this step in the scheduling pipeline.
	//
	// The request is immutable and modifications are stored in the result.
	// This allows steps to be run in parallel (e.g. weighers) without passing
	// mutable state around.
	//
	// Filters remove hosts by omitting them from the returned activations.
	// Weighers must include all hosts from the request.
	//
	// A traceLog is provided that contains the global request id and should
	// be used to log the step's execution.
	Run(traceLog *slog.Logger, request RequestType) (*StepResult, error)
}

// Interface for a filter as part of the scheduling pipeline.
type Filter[RequestType PipelineRequest] interface {
	Step[RequestType]
}

// Interface for a weigher as part of the scheduling pipeline.
type Weigher[RequestType PipelineRequest] interface {
	Step[RequestType]
}

// Common base for all steps that provides some functionality
// that would otherwise be duplicated across all steps.
type BaseStep[RequestType PipelineRequest, Opts StepOpts] struct {
	// Options to pass via json to this step.
	conf.JsonOpts[Opts]
	// The activation function to use.
	ActivationFunction
	// Database connection.
	DB db.DB
}

// Init the step with the database and options.
func (s *BaseStep[RequestType, Opts]) Init(db db.DB, opts conf.RawOpts) error {
	if err := s.Load(opts); err != nil {
		return err
	}
	if err := s.Options.Validate(); err != nil {
		return err
	}
	s.DB = db
	return nil
}

// Get a default result (no action) for the hosts given in the request.
// Use this to initialize the result before applying filtering/weighing logic.
func (s *BaseStep[RequestType, Opts]) IncludeAllHostsFromRequest(request RequestType) *StepResult {
	activations := make(map[string]float64)
	for _, host := range request.GetHosts() {
		activations[host] = s.NoEffect()
	}
	return &StepResult{
		Activations: activations,
		Statistics:  make(map[string]StepStatistics),
		Reasons:     make(map[string]string),
	}
}

// Get default statistics for the hosts given in the request.
func (s *BaseStep[RequestType, Opts]) PrepareStats(request RequestType, unit string) StepStatistics {
	return StepStatistics{
		Unit:  unit,
		Hosts: make(map[string]float64, len(request.GetHosts())),
	}
}

// Common base for filters.
type BaseFilter[RequestType PipelineRequest, Opts StepOpts] struct {
	BaseStep[RequestType, Opts]
}

// Remove the host from the result and record why.
func (s *BaseFilter[RequestType, Opts]) Reject(result *StepResult, host, reason string) {
	delete(result.Activations, host)
	if result.Reasons == nil {
		result.Reasons = make(map[string]string)
	}
	result.Reasons[host] = reason
}

// Remove a host that could not be evaluated. This is a soft rejection,
// the filter continues with the other hosts.
func (s *BaseFilter[RequestType, Opts]) RejectWithError(result *StepResult, host string, err error) {
	s.Reject(result, host, fmt.Errorf("%w: %w", ErrFilterEvaluation, err).Error())
}

// Common base for weighers.
type BaseWeigher[RequestType PipelineRequest, Opts StepOpts] struct {
	BaseStep[RequestType, Opts]
}
