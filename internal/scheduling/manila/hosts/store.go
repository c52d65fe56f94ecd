// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package hosts

import (
	"encoding/json"
	"fmt"

	"github.com/kramdoss/manila/internal/db"
)

// Last accepted report of a backend pool, as persisted in the database.
type StoredReport struct {
	BackendID string `db:"backend_id,primarykey"`
	// The report encoded as json.
	Report string `db:"report"`
	// Unix timestamp of the report in nanoseconds.
	UpdatedAt int64 `db:"updated_at"`
}

// Table in which the reports are stored.
func (StoredReport) TableName() string { return "manila_host_reports" }

// Persists accepted reports so that a restarted scheduler can warm up its cache.
type Store struct {
	db db.DB
}

// Create the store and its table if it doesn't exist yet.
func NewStore(database db.DB) (*Store, error) {
	if err := database.CreateTable(database.AddTable(StoredReport{})); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", StoredReport{}.TableName(), err)
	}
	return &Store{db: database}, nil
}

// Insert or replace the report of the backend.
func (s *Store) Save(report CapabilityReport) error {
	encoded, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return db.Upsert(s.db, &StoredReport{
		BackendID: report.BackendID,
		Report:    string(encoded),
		UpdatedAt: report.Timestamp.UnixNano(),
	})
}

// Load all stored reports, ordered by backend id.
func (s *Store) Load() ([]CapabilityReport, error) {
	var stored []StoredReport
	query := "SELECT * FROM " + StoredReport{}.TableName() + " ORDER BY backend_id"
	if _, err := s.db.Select(&stored, query); err != nil {
		return nil, err
	}
	reports := make([]CapabilityReport, 0, len(stored))
	for _, row := range stored {
		var report CapabilityReport
		if err := json.Unmarshal([]byte(row.Report), &report); err != nil {
			return nil, fmt.Errorf("failed to decode stored report of %s: %w", row.BackendID, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Replay the stored reports into the manager.
func (s *Store) Restore(m *Manager) (int, error) {
	reports, err := s.Load()
	if err != nil {
		return 0, err
	}
	return m.UpdateAll(reports)
}
