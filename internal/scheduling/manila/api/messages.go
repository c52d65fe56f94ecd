// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// The placement request could not be scheduled because it is malformed.
var ErrInvalidRequest = errors.New("invalid placement request")

// Request to place a share on one of the known backend pools.
type PlacementRequest struct {
	// Identifier used to correlate logs, generated if empty.
	RequestID string `json:"request_id,omitempty"`
	// Requested share size in GB.
	Size int `json:"size"`
	// Share type extra specs that the backend capabilities must satisfy.
	ExtraSpecs map[string]string `json:"extra_specs,omitempty"`
	// Requested availability zone, empty for any zone.
	AvailabilityZone string `json:"availability_zone,omitempty"`
	// Boolean expression over host attributes, as json tree or as
	// json-encoded string (manila passes the "query" scheduler hint as string).
	JsonFilter json.RawMessage `json:"json_filter,omitempty"`
	// Hosts on which provisioning already failed, oldest first.
	RetryHosts []string `json:"retry_hosts,omitempty"`
	// Maximum number of attempts for this request, 0 for the configured default.
	MaxAttempts int `json:"max_attempts,omitempty"`
}

// Get the maximum number of attempts, falling back to the given default.
func (r PlacementRequest) GetMaxAttempts(defaultMaxAttempts int) int {
	if r.MaxAttempts > 0 {
		return r.MaxAttempts
	}
	return defaultMaxAttempts
}

// The number of the attempt this request represents, starting at 1.
func (r PlacementRequest) Attempt() int {
	return len(r.RetryHosts) + 1
}

// Check that the request can be scheduled.
func (r PlacementRequest) Validate(defaultMaxAttempts int) error {
	if r.Size <= 0 {
		return fmt.Errorf("%w: size must be positive, got %d", ErrInvalidRequest, r.Size)
	}
	if r.MaxAttempts < 0 {
		return fmt.Errorf("%w: max_attempts must not be negative", ErrInvalidRequest)
	}
	maxAttempts := r.GetMaxAttempts(defaultMaxAttempts)
	if len(r.RetryHosts) > maxAttempts {
		return fmt.Errorf("%w: %d retry hosts exceed %d attempts", ErrInvalidRequest, len(r.RetryHosts), maxAttempts)
	}
	seen := make(map[string]struct{}, len(r.RetryHosts))
	for _, host := range r.RetryHosts {
		if _, ok := seen[host]; ok {
			return fmt.Errorf("%w: retry host %s appears twice", ErrInvalidRequest, host)
		}
		seen[host] = struct{}{}
	}
	return nil
}

// Copy of the request with the failed host appended to the retry history.
func (r PlacementRequest) WithRetryHost(host string) PlacementRequest {
	cp := r
	cp.RetryHosts = append(slices.Clone(r.RetryHosts), host)
	return cp
}
