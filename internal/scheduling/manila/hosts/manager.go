// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package hosts

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Process-wide cache of backend pool states.
//
// Scheduling passes read deep copies of the cached states, so that
// concurrent reports never change a pass in flight.
type Manager struct {
	mu    sync.RWMutex
	hosts map[string]HostState
	// Clock used to stamp reports without timestamp.
	now     func() time.Time
	monitor Monitor
}

func NewManager(monitor Monitor) *Manager {
	return &Manager{
		hosts:   make(map[string]HostState),
		now:     time.Now,
		monitor: monitor,
	}
}

// Replace the state of the reporting backend with the report.
func (m *Manager) Update(report CapabilityReport) (HostState, error) {
	state, err := NewHostState(report, m.now())
	if err != nil {
		m.monitor.observeReport("invalid")
		return HostState{}, err
	}
	m.mu.Lock()
	prev, exists := m.hosts[state.ID]
	if exists && state.UpdatedAt.Before(prev.UpdatedAt) {
		m.mu.Unlock()
		m.monitor.observeReport("outdated")
		return HostState{}, fmt.Errorf(
			"%w: report for %s from %s is older than %s", ErrOutdatedReport,
			state.ID, state.UpdatedAt.Format(time.RFC3339), prev.UpdatedAt.Format(time.RFC3339),
		)
	}
	m.hosts[state.ID] = state
	enabled, disabled := m.countLocked()
	m.mu.Unlock()

	m.monitor.observeReport("accepted")
	m.monitor.observeHosts(enabled, disabled)
	if exists && !prev.Enabled {
		slog.Info("hosts: re-enabled host after new report", "host", state.ID)
	}
	return state.Clone(), nil
}

// Get copies of all enabled hosts, sorted by their id.
// If a zone is given, only hosts in this zone are returned.
func (m *Manager) Snapshot(zone string) []HostState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot := make([]HostState, 0, len(m.hosts))
	for _, host := range m.hosts {
		if !host.Enabled {
			continue
		}
		if zone != "" && host.AvailabilityZone != zone {
			continue
		}
		snapshot = append(snapshot, host.Clone())
	}
	sortByID(snapshot)
	return snapshot
}

// Disable all hosts that did not report within the timeout before now.
// Returns the ids of the hosts disabled by this call.
func (m *Manager) Sweep(now time.Time, timeout time.Duration) []string {
	deadline := now.Add(-timeout)
	m.mu.Lock()
	var disabledIDs []string
	for id, host := range m.hosts {
		if !host.Enabled || !host.UpdatedAt.Before(deadline) {
			continue
		}
		host.Enabled = false
		m.hosts[id] = host
		disabledIDs = append(disabledIDs, id)
	}
	enabled, disabled := m.countLocked()
	m.mu.Unlock()

	m.monitor.observeHosts(enabled, disabled)
	slices.Sort(disabledIDs)
	for _, id := range disabledIDs {
		slog.Warn("hosts: disabled stale host", "host", id, "timeout", timeout)
	}
	return disabledIDs
}

// Get a copy of the host with the given id, including disabled hosts.
func (m *Manager) Get(id string) (HostState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	host, ok := m.hosts[id]
	if !ok {
		return HostState{}, false
	}
	return host.Clone(), true
}

// Get copies of all hosts including disabled ones, sorted by their id.
func (m *Manager) List() []HostState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]HostState, 0, len(m.hosts))
	for _, host := range m.hosts {
		all = append(all, host.Clone())
	}
	sortByID(all)
	return all
}

// Apply a batch of reports, e.g. from a warm start or a pool poll.
// Invalid and outdated reports are skipped and returned as joined error.
func (m *Manager) UpdateAll(reports []CapabilityReport) (int, error) {
	var errs []error
	accepted := 0
	for _, report := range reports {
		if _, err := m.Update(report); err != nil {
			errs = append(errs, err)
			continue
		}
		accepted++
	}
	return accepted, errors.Join(errs...)
}

// Must be called with the lock held.
func (m *Manager) countLocked() (enabled, disabled int) {
	for _, host := range m.hosts {
		if host.Enabled {
			enabled++
		} else {
			disabled++
		}
	}
	return enabled, disabled
}

func sortByID(states []HostState) {
	slices.SortFunc(states, func(a, b HostState) int {
		return cmp.Compare(a.ID, b.ID)
	})
}
