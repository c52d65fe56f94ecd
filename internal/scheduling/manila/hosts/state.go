// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package hosts

import (
	"errors"
	"fmt"
	"time"
)

var (
	// The report violates an invariant of the host state.
	ErrInvalidReport = errors.New("invalid capability report")
	// The report is older than the state already known for the backend.
	ErrOutdatedReport = errors.New("outdated capability report")
)

// Capability and capacity report sent periodically by a storage backend pool.
type CapabilityReport struct {
	// Stable identifier of the backend pool, e.g. "host@backend#pool".
	BackendID        string `json:"backend_id"`
	AvailabilityZone string `json:"availability_zone"`

	TotalCapacityGB float64 `json:"total_capacity_gb"`
	FreeCapacityGB  float64 `json:"free_capacity_gb"`
	// Percentage (0..100) of the total capacity kept in reserve.
	ReservedPercentage float64 `json:"reserved_percentage"`

	ThinProvisioning         bool    `json:"thin_provisioning"`
	MaxOverSubscriptionRatio float64 `json:"max_over_subscription_ratio,omitempty"`

	// Backend-defined capabilities, such as "driver_handles_share_servers".
	Capabilities map[string]any `json:"capabilities,omitempty"`

	// When the report was taken. A zero timestamp is set on arrival.
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Snapshot of one backend pool, replaced wholesale on every report.
type HostState struct {
	ID               string `json:"id"`
	AvailabilityZone string `json:"availability_zone"`

	TotalCapacityGB    float64 `json:"total_capacity_gb"`
	FreeCapacityGB     float64 `json:"free_capacity_gb"`
	ReservedPercentage float64 `json:"reserved_percentage"`

	ThinProvisioning         bool    `json:"thin_provisioning"`
	MaxOversubscriptionRatio float64 `json:"max_over_subscription_ratio"`

	Capabilities map[string]any `json:"capabilities"`

	UpdatedAt time.Time `json:"updated_at"`
	// Disabled hosts did not report within the staleness timeout.
	Enabled bool `json:"enabled"`
}

// Build the host state for a report. Reports without timestamp are stamped with now.
func NewHostState(report CapabilityReport, now time.Time) (HostState, error) {
	updatedAt := report.Timestamp
	if updatedAt.IsZero() {
		updatedAt = now
	}
	ratio := report.MaxOverSubscriptionRatio
	if ratio == 0 {
		ratio = 1
	}
	state := HostState{
		ID:                       report.BackendID,
		AvailabilityZone:         report.AvailabilityZone,
		TotalCapacityGB:          report.TotalCapacityGB,
		FreeCapacityGB:           report.FreeCapacityGB,
		ReservedPercentage:       report.ReservedPercentage,
		ThinProvisioning:         report.ThinProvisioning,
		MaxOversubscriptionRatio: ratio,
		Capabilities:             deepCopyMap(report.Capabilities),
		UpdatedAt:                updatedAt,
		Enabled:                  true,
	}
	if state.Capabilities == nil {
		state.Capabilities = map[string]any{}
	}
	if err := state.Validate(); err != nil {
		return HostState{}, err
	}
	return state, nil
}

// Check the invariants of the host state.
func (h HostState) Validate() error {
	switch {
	case h.ID == "":
		return fmt.Errorf("%w: missing backend id", ErrInvalidReport)
	case h.TotalCapacityGB < 0 || h.FreeCapacityGB < 0:
		return fmt.Errorf("%w: negative capacity for %s", ErrInvalidReport, h.ID)
	case h.ReservedPercentage < 0 || h.ReservedPercentage > 100:
		return fmt.Errorf("%w: reserved percentage %.2f of %s is not within 0..100", ErrInvalidReport, h.ReservedPercentage, h.ID)
	case h.MaxOversubscriptionRatio < 1:
		return fmt.Errorf("%w: oversubscription ratio %.2f of %s is below 1", ErrInvalidReport, h.MaxOversubscriptionRatio, h.ID)
	case !h.ThinProvisioning && h.FreeCapacityGB > h.TotalCapacityGB:
		return fmt.Errorf("%w: free capacity exceeds total capacity of thick provisioned %s", ErrInvalidReport, h.ID)
	}
	return nil
}

// Capacity kept in reserve, in GB.
func (h HostState) ReservedCapacityGB() float64 {
	return h.TotalCapacityGB * h.ReservedPercentage / 100
}

// Capacity that can be requested from this host, in GB.
// Thin provisioned hosts may be oversubscribed beyond their physical capacity.
func (h HostState) EffectiveCapacityGB() float64 {
	if !h.ThinProvisioning {
		return h.FreeCapacityGB
	}
	return h.TotalCapacityGB * h.MaxOversubscriptionRatio * (1 - h.ReservedPercentage/100)
}

// Deep copy of the host state, so that callers can't mutate the cache.
func (h HostState) Clone() HostState {
	cp := h
	cp.Capabilities = deepCopyMap(h.Capabilities)
	return cp
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = deepCopyValue(v)
	}
	return cp
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyValue(item)
		}
		return cp
	default:
		return val
	}
}
