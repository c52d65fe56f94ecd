// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package filters

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kramdoss/manila/internal/scheduling/manila/hosts"
)

// Look up a host attribute by the name manila uses for it in capability reports.
func hostAttribute(host hosts.HostState, name string) (any, bool) {
	switch name {
	case "id", "host":
		return host.ID, true
	case "availability_zone":
		return host.AvailabilityZone, true
	case "total_capacity_gb":
		return host.TotalCapacityGB, true
	case "free_capacity_gb":
		return host.FreeCapacityGB, true
	case "reserved_percentage":
		return host.ReservedPercentage, true
	case "thin_provisioning":
		return host.ThinProvisioning, true
	case "max_over_subscription_ratio":
		return host.MaxOversubscriptionRatio, true
	}
	return nil, false
}

// Look up a reported capability, falling back to the host attributes.
func hostCapability(host hosts.HostState, key string) (any, bool) {
	if value, ok := host.Capabilities[key]; ok && value != nil {
		return value, true
	}
	return hostAttribute(host, key)
}

// Format a capability value the way backends report it, e.g. True instead of true.
func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "True"
		}
		return "False"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Interpret a value as number, accepting numeric strings.
func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

// Interpret a value as boolean, accepting "True"/"False" strings in any case.
func toBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}
