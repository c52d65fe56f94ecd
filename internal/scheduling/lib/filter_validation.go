// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package lib

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/kramdoss/manila/internal/conf"
	"github.com/kramdoss/manila/internal/db"
)

// Wrapper for filters that validates them after execution.
type FilterValidator[RequestType PipelineRequest] struct {
	// The wrapped filter to validate.
	Filter Filter[RequestType]
}

// Validate the wrapped filter.
func validateFilter[RequestType PipelineRequest](filter Filter[RequestType]) *FilterValidator[RequestType] {
	return &FilterValidator[RequestType]{Filter: filter}
}

// Initialize the wrapped filter with the database and options.
func (s *FilterValidator[RequestType]) Init(db db.DB, opts conf.RawOpts) error {
	return s.Filter.Init(db, opts)
}

// Run the filter and validate what happens.
func (s *FilterValidator[RequestType]) Run(traceLog *slog.Logger, request RequestType) (*StepResult, error) {
	result, err := s.Filter.Run(traceLog, request)
	if err != nil {
		return nil, err
	}
	hostsIn := make(map[string]struct{}, len(request.GetHosts()))
	for _, host := range request.GetHosts() {
		hostsIn[host] = struct{}{}
	}
	// Filters can only remove hosts, not add new ones.
	if len(result.Activations) > len(hostsIn) {
		return nil, errors.New("safety: number of hosts increased during step execution")
	}
	for host := range result.Activations {
		if _, ok := hostsIn[host]; !ok {
			return nil, fmt.Errorf("safety: host %s was not part of the request", host)
		}
	}
	return result, nil
}
