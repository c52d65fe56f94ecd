// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package manila

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kramdoss/manila/internal/scheduling/manila/hosts"
)

// The pool cannot be scheduled on since manila doesn't know its capacity.
var errUnknownCapacity = errors.New("unknown capacity")

// Layout of the capability timestamps reported by manila, in UTC.
const poolTimestampLayout = "2006-01-02T15:04:05.999999"

// OpenStack Manila storage pool.
// See: https://docs.openstack.org/api-ref/shared-file-system/#list-back-end-storage-pools-with-details
type StoragePool struct {
	// Pool name in the form host@backend#pool.
	Name    string `json:"name"`
	Host    string `json:"host"`
	Backend string `json:"backend"`
	Pool    string `json:"pool"`
	// Capabilities as reported by the share driver.
	Capabilities map[string]any `json:"capabilities"`
}

// Capabilities that are translated into report fields instead of being
// passed through as capabilities.
var reportFields = []string{
	"total_capacity_gb",
	"free_capacity_gb",
	"reserved_percentage",
	"thin_provisioning",
	"max_over_subscription_ratio",
	"timestamp",
}

// Convert the pool into a capability report for the host manager.
// Manila doesn't tell the availability zone of a pool, so it is given by the caller.
func (p StoragePool) CapabilityReport(zone string) (hosts.CapabilityReport, error) {
	total, err := capacity(p.Capabilities["total_capacity_gb"])
	if err != nil {
		return hosts.CapabilityReport{}, fmt.Errorf("pool %s: total capacity: %w", p.Name, err)
	}
	free, err := capacity(p.Capabilities["free_capacity_gb"])
	if err != nil {
		return hosts.CapabilityReport{}, fmt.Errorf("pool %s: free capacity: %w", p.Name, err)
	}
	// An infinite pool has as much free capacity as it has in total.
	if math.IsInf(free, 1) {
		free = total
	}
	if math.IsInf(total, 1) {
		total, free = math.MaxFloat64, math.MaxFloat64
	}
	report := hosts.CapabilityReport{
		BackendID:          p.Name,
		AvailabilityZone:   zone,
		TotalCapacityGB:    total,
		FreeCapacityGB:     free,
		ReservedPercentage: number(p.Capabilities["reserved_percentage"], 0),
		ThinProvisioning:   supports(p.Capabilities["thin_provisioning"]),
		// Manila reports the ratio as string, e.g. "20.0".
		MaxOverSubscriptionRatio: number(p.Capabilities["max_over_subscription_ratio"], 1),
		Capabilities:             make(map[string]any, len(p.Capabilities)),
	}
	if raw, ok := p.Capabilities["timestamp"].(string); ok {
		if ts, err := time.ParseInLocation(poolTimestampLayout, raw, time.UTC); err == nil {
			report.Timestamp = ts
		}
	}
	for key, value := range p.Capabilities {
		if slices.Contains(reportFields, key) {
			continue
		}
		report.Capabilities[key] = value
	}
	return report, nil
}

// Parse a capacity, which may be a number, a numeric string, "infinite" or "unknown".
func capacity(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case json.Number:
		return v.Float64()
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "infinite":
			return math.Inf(1), nil
		case "unknown", "":
			return 0, errUnknownCapacity
		}
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	case nil:
		return 0, errUnknownCapacity
	}
	return 0, fmt.Errorf("unexpected capacity %v", value)
}

// Parse a number that may be given as string, falling back to the default.
func number(value any, fallback float64) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case string:
		if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return n
		}
	}
	return fallback
}

// Whether a capability is supported. Drivers report either a single
// value or a list of the supported values, such as [true, false].
func supports(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && b
	case []any:
		for _, item := range v {
			if supports(item) {
				return true
			}
		}
	}
	return false
}
