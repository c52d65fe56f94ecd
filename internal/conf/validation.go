// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package conf

import (
	"errors"
	"fmt"
	"strings"
)

// Check that the shared configuration is consistent.
func (c *SharedConfig) Validate() error {
	// Check the keystone URL.
	if c.KeystoneConfig.URL != "" && !strings.Contains(c.KeystoneConfig.URL, "/v3") {
		return fmt.Errorf(
			"expected v3 Keystone URL, but got %s",
			c.KeystoneConfig.URL,
		)
	}
	// OpenStack urls should end without a slash.
	if strings.HasSuffix(c.KeystoneConfig.URL, "/") {
		return fmt.Errorf("openstack url %s should not end with a slash", c.KeystoneConfig.URL)
	}
	return nil
}

// Check that the scheduler configuration can be used to build a pipeline.
func (c SchedulerConfig) Validate() error {
	if len(c.Filters) == 0 && len(c.Weighers) == 0 {
		return errors.New("scheduler needs at least one filter or weigher")
	}
	seen := make(map[string]struct{}, len(c.Filters)+len(c.Weighers))
	for _, step := range append(append([]SchedulerStepConfig{}, c.Filters...), c.Weighers...) {
		if step.Name == "" {
			return errors.New("scheduler step without name")
		}
		if _, ok := seen[step.Name]; ok {
			return fmt.Errorf("scheduler step %s configured twice", step.Name)
		}
		seen[step.Name] = struct{}{}
	}
	for _, filter := range c.Filters {
		if filter.Multiplier != nil {
			return fmt.Errorf("filter %s cannot have a multiplier", filter.Name)
		}
	}
	if c.StalenessTimeoutSeconds < 0 {
		return errors.New("stalenessTimeoutSeconds must not be negative")
	}
	if c.SweepIntervalSeconds < 0 {
		return errors.New("sweepIntervalSeconds must not be negative")
	}
	if c.DefaultMaxAttempts < 0 {
		return errors.New("defaultMaxAttempts must not be negative")
	}
	return nil
}

// Check the complete service configuration.
func (c *Config) Validate() error {
	if err := c.SharedConfig.Validate(); err != nil {
		return err
	}
	if err := c.SchedulerConfig.Validate(); err != nil {
		return fmt.Errorf("invalid scheduler config: %w", err)
	}
	if c.SyncConfig.Manila.Enabled && c.KeystoneConfig.URL == "" {
		return errors.New("manila pool sync needs a keystone url")
	}
	if c.SyncConfig.Manila.IntervalSeconds < 0 {
		return errors.New("sync intervalSeconds must not be negative")
	}
	return nil
}
