// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package reports

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kramdoss/manila/internal/scheduling/manila/hosts"
	testlibDB "github.com/kramdoss/manila/testlib/db"
	testlibMQTT "github.com/kramdoss/manila/testlib/mqtt"
)

const topic = "manila/scheduler/hosts/reports"

func TestDecodeReports(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		expectedIDs []string
		expectError bool
	}{
		{"single report", `{"backend_id": "a", "total_capacity_gb": 10}`, []string{"a"}, false},
		{"list of reports", ` [{"backend_id": "a"}, {"backend_id": "b"}]`, []string{"a", "b"}, false},
		{"empty list", `[]`, []string{}, false},
		{"empty payload", ``, nil, true},
		{"malformed", `{"backend_id": `, nil, true},
		{"wrong type", `"a"`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reports, err := DecodeReports([]byte(tt.payload))
			if tt.expectError {
				if !errors.Is(err, hosts.ErrInvalidReport) {
					t.Fatalf("expected invalid report error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(reports) != len(tt.expectedIDs) {
				t.Fatalf("expected %d reports, got %d", len(tt.expectedIDs), len(reports))
			}
			for i, id := range tt.expectedIDs {
				if reports[i].BackendID != id {
					t.Errorf("expected report %d to be %s, got %s", i, id, reports[i].BackendID)
				}
			}
		})
	}
}

func TestIngestor_Subscribe(t *testing.T) {
	manager := hosts.NewManager(hosts.Monitor{})
	ingestor := NewIngestor(manager, nil)
	client := &testlibMQTT.MockClient{}
	if err := ingestor.Subscribe(client, topic); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	payload := `[
		{"backend_id": "a", "availability_zone": "zone1", "total_capacity_gb": 100, "free_capacity_gb": 50},
		{"backend_id": "b", "total_capacity_gb": 100, "free_capacity_gb": 500}
	]`
	if !client.Deliver(topic, []byte(payload)) {
		t.Fatal("expected the ingestor to subscribe to the topic")
	}
	if _, ok := manager.Get("a"); !ok {
		t.Error("expected valid report to be applied")
	}
	// Thick provisioned with more free than total capacity.
	if _, ok := manager.Get("b"); ok {
		t.Error("expected invalid report to be rejected")
	}

	// Malformed payloads are dropped without affecting the cache.
	client.Deliver(topic, []byte(`not json`))
	if n := len(manager.List()); n != 1 {
		t.Errorf("expected one host, got %d", n)
	}
}

func TestIngestor_PersistsReports(t *testing.T) {
	dbEnv := testlibDB.SetupDBEnv(t)
	defer dbEnv.Close()
	store, err := hosts.NewStore(*dbEnv.DB)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	manager := hosts.NewManager(hosts.Monitor{})
	ingestor := NewIngestor(manager, store)
	accepted, err := ingestor.HandlePayload([]byte(`{"backend_id": "a", "total_capacity_gb": 100, "free_capacity_gb": 50}`))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if accepted != 1 {
		t.Fatalf("expected one accepted report, got %d", accepted)
	}
	state, _ := manager.Get("a")

	// A restarted scheduler restores the host with its original stamp.
	restored := hosts.NewManager(hosts.Monitor{})
	if _, err := store.Restore(restored); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	got, ok := restored.Get("a")
	if !ok {
		t.Fatal("expected host to be restored")
	}
	if !got.UpdatedAt.Equal(state.UpdatedAt) || got.FreeCapacityGB != 50 {
		t.Errorf("expected restored state %+v, got %+v", state, got)
	}

	// Rejected reports are not persisted.
	if _, err := ingestor.HandlePayload([]byte(`{"backend_id": "b", "total_capacity_gb": -1}`)); err == nil {
		t.Fatal("expected an error for an invalid report")
	}
	reports, err := store.Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(reports) != 1 {
		t.Errorf("expected one stored report, got %d", len(reports))
	}
}

func TestSweeper_SweepOnce(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	manager := hosts.NewManager(hosts.Monitor{})
	ingestor := NewIngestor(manager, nil)
	old := hosts.CapabilityReport{BackendID: "old", TotalCapacityGB: 1, Timestamp: now.Add(-time.Hour)}
	fresh := hosts.CapabilityReport{BackendID: "fresh", TotalCapacityGB: 1, Timestamp: now}
	if _, err := ingestor.Ingest([]hosts.CapabilityReport{old, fresh}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	sweeper := &Sweeper{Manager: manager, Interval: time.Second, Timeout: time.Minute, Now: func() time.Time { return now }}
	disabled := sweeper.SweepOnce()
	if len(disabled) != 1 || disabled[0] != "old" {
		t.Fatalf("expected [old] to be disabled, got %v", disabled)
	}
	if snapshot := manager.Snapshot(""); len(snapshot) != 1 || snapshot[0].ID != "fresh" {
		t.Errorf("expected only the fresh host in the snapshot, got %v", snapshot)
	}
	// A new report re-enables the host.
	old.Timestamp = now
	if _, err := ingestor.Ingest([]hosts.CapabilityReport{old}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n := len(manager.Snapshot("")); n != 2 {
		t.Errorf("expected both hosts to be enabled, got %d", n)
	}
}

func TestSweeper_Run(t *testing.T) {
	manager := hosts.NewManager(hosts.Monitor{})
	if _, err := manager.Update(hosts.CapabilityReport{BackendID: "old", TotalCapacityGB: 1, Timestamp: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	sweeper := &Sweeper{Manager: manager, Interval: time.Millisecond, Timeout: time.Minute}
	done := make(chan error)
	go func() { done <- sweeper.Run(ctx) }()
	deadline := time.Now().Add(5 * time.Second)
	for len(manager.Snapshot("")) > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n := len(manager.Snapshot("")); n != 0 {
		t.Errorf("expected stale host to be swept, got %d enabled hosts", n)
	}
}
