// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package hosts

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/kramdoss/manila/internal/conf"
	"github.com/kramdoss/manila/internal/monitoring"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var testNow = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestManager() *Manager {
	m := NewManager(Monitor{})
	m.now = func() time.Time { return testNow }
	return m
}

func report(id, zone string, free float64) CapabilityReport {
	return CapabilityReport{
		BackendID:        id,
		AvailabilityZone: zone,
		TotalCapacityGB:  200,
		FreeCapacityGB:   free,
		Capabilities:     map[string]any{"driver_handles_share_servers": true},
	}
}

func ids(states []HostState) []string {
	result := make([]string, len(states))
	for i, s := range states {
		result[i] = s.ID
	}
	return result
}

func TestManager_Update(t *testing.T) {
	m := newTestManager()
	state, err := m.Update(report("b", "zone1", 10))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !state.UpdatedAt.Equal(testNow) {
		t.Errorf("expected report to be stamped, got %v", state.UpdatedAt)
	}

	// A later report replaces the state wholesale.
	next := CapabilityReport{BackendID: "b", TotalCapacityGB: 50, FreeCapacityGB: 5, Timestamp: testNow.Add(time.Second)}
	if _, err := m.Update(next); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	got, ok := m.Get("b")
	if !ok {
		t.Fatal("expected host to exist")
	}
	if got.AvailabilityZone != "" || len(got.Capabilities) != 0 || got.FreeCapacityGB != 5 {
		t.Errorf("expected the state to be replaced, not merged, got %+v", got)
	}

	// An older report is dropped.
	old := next
	old.Timestamp = testNow.Add(-time.Hour)
	old.FreeCapacityGB = 1
	if _, err := m.Update(old); !errors.Is(err, ErrOutdatedReport) {
		t.Fatalf("expected outdated error, got %v", err)
	}
	if got, _ := m.Get("b"); got.FreeCapacityGB != 5 {
		t.Errorf("expected outdated report to be ignored, got %+v", got)
	}

	// An invalid report leaves the cache untouched.
	if _, err := m.Update(CapabilityReport{BackendID: "b", TotalCapacityGB: -1}); !errors.Is(err, ErrInvalidReport) {
		t.Fatalf("expected invalid report error, got %v", err)
	}
	if got, _ := m.Get("b"); got.TotalCapacityGB != 50 {
		t.Errorf("expected invalid report to be ignored, got %+v", got)
	}
}

func TestManager_Snapshot(t *testing.T) {
	m := newTestManager()
	for _, r := range []CapabilityReport{report("c", "zone2", 100), report("a", "zone1", 10), report("b", "zone1", 50)} {
		if _, err := m.Update(r); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}
	if got := ids(m.Snapshot("")); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("expected all hosts sorted by id, got %v", got)
	}
	if got := ids(m.Snapshot("zone1")); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("expected hosts of zone1, got %v", got)
	}

	// Mutating the snapshot doesn't change the cache.
	snapshot := m.Snapshot("")
	snapshot[0].FreeCapacityGB = 0
	snapshot[0].Capabilities["driver_handles_share_servers"] = false
	got, _ := m.Get("a")
	if got.FreeCapacityGB != 10 || got.Capabilities["driver_handles_share_servers"] != true {
		t.Errorf("expected cache to be isolated from the snapshot, got %+v", got)
	}
}

func TestManager_Sweep(t *testing.T) {
	m := newTestManager()
	stale := report("stale", "zone1", 10)
	stale.Timestamp = testNow.Add(-2 * time.Minute)
	fresh := report("fresh", "zone1", 10)
	fresh.Timestamp = testNow.Add(-10 * time.Second)
	if _, err := m.UpdateAll([]CapabilityReport{stale, fresh}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	disabled := m.Sweep(testNow, time.Minute)
	if !slices.Equal(disabled, []string{"stale"}) {
		t.Fatalf("expected stale host to be disabled, got %v", disabled)
	}
	if got := ids(m.Snapshot("")); !slices.Equal(got, []string{"fresh"}) {
		t.Errorf("expected only fresh host in snapshot, got %v", got)
	}
	// Disabled hosts are kept for inspection.
	if got := ids(m.List()); !slices.Equal(got, []string{"fresh", "stale"}) {
		t.Errorf("expected disabled host to be listed, got %v", got)
	}
	// Sweeping again doesn't report the host twice.
	if disabled := m.Sweep(testNow, time.Minute); len(disabled) != 0 {
		t.Errorf("expected no newly disabled hosts, got %v", disabled)
	}

	// A new report re-enables the host.
	stale.Timestamp = testNow
	if _, err := m.Update(stale); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got, _ := m.Get("stale"); !got.Enabled {
		t.Error("expected host to be re-enabled")
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m := newTestManager()
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Go(func() {
			r := report(fmt.Sprintf("host%02d", i), "zone1", float64(i))
			r.Timestamp = testNow.Add(time.Duration(i) * time.Second)
			if _, err := m.Update(r); err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
		wg.Go(func() {
			for _, host := range m.Snapshot("zone1") {
				if !host.Enabled {
					t.Errorf("expected only enabled hosts, got %+v", host)
				}
			}
		})
		wg.Go(func() {
			m.Sweep(testNow, time.Hour)
		})
	}
	wg.Wait()
	if n := len(m.List()); n != 20 {
		t.Errorf("expected 20 hosts, got %d", n)
	}
}

func TestManager_Metrics(t *testing.T) {
	registry := monitoring.NewRegistry(conf.MonitoringConfig{})
	monitor := NewManagerMonitor(registry)
	m := NewManager(monitor)
	m.now = func() time.Time { return testNow }

	if _, err := m.Update(report("a", "zone1", 10)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := m.Update(CapabilityReport{}); err == nil {
		t.Fatal("expected error, got nil")
	}
	m.Sweep(testNow.Add(time.Hour), time.Minute)

	if v := testutil.ToFloat64(monitor.reportsCounter.WithLabelValues("accepted")); v != 1 {
		t.Errorf("expected 1 accepted report, got %f", v)
	}
	if v := testutil.ToFloat64(monitor.reportsCounter.WithLabelValues("invalid")); v != 1 {
		t.Errorf("expected 1 invalid report, got %f", v)
	}
	if v := testutil.ToFloat64(monitor.hostsGauge.WithLabelValues("disabled")); v != 1 {
		t.Errorf("expected 1 disabled host, got %f", v)
	}
	if v := testutil.ToFloat64(monitor.hostsGauge.WithLabelValues("enabled")); v != 0 {
		t.Errorf("expected 0 enabled hosts, got %f", v)
	}
}
