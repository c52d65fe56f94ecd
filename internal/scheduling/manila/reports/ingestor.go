// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package reports

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kramdoss/manila/internal/mqtt"
	"github.com/kramdoss/manila/internal/scheduling/manila/hosts"
)

// Feeds capability reports into the host manager and, if configured,
// persists the accepted reports for a warm start.
type Ingestor struct {
	manager *hosts.Manager
	// Optional store for accepted reports.
	store *hosts.Store
}

// Create a new ingestor. The store may be nil.
func NewIngestor(manager *hosts.Manager, store *hosts.Store) *Ingestor {
	return &Ingestor{manager: manager, store: store}
}

// Decode a single json report or a json array of reports.
func DecodeReports(payload []byte) ([]hosts.CapabilityReport, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", hosts.ErrInvalidReport)
	}
	if trimmed[0] == '[' {
		var reports []hosts.CapabilityReport
		if err := json.Unmarshal(trimmed, &reports); err != nil {
			return nil, fmt.Errorf("%w: %w", hosts.ErrInvalidReport, err)
		}
		return reports, nil
	}
	var report hosts.CapabilityReport
	if err := json.Unmarshal(trimmed, &report); err != nil {
		return nil, fmt.Errorf("%w: %w", hosts.ErrInvalidReport, err)
	}
	return []hosts.CapabilityReport{report}, nil
}

// Apply the reports to the host manager. Rejected reports don't stop the
// others from being applied and are returned as joined error.
func (i *Ingestor) Ingest(reports []hosts.CapabilityReport) (int, error) {
	var errs []error
	accepted := 0
	for _, report := range reports {
		state, err := i.manager.Update(report)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		accepted++
		if i.store == nil {
			continue
		}
		// Persist with the stamp, so a warm start won't make the host look fresh.
		report.Timestamp = state.UpdatedAt
		if err := i.store.Save(report); err != nil {
			slog.Error("reports: failed to persist report", "host", report.BackendID, "error", err)
		}
	}
	return accepted, errors.Join(errs...)
}

// Handle a raw report payload, e.g. from mqtt or http.
func (i *Ingestor) HandlePayload(payload []byte) (int, error) {
	reports, err := DecodeReports(payload)
	if err != nil {
		return 0, err
	}
	return i.Ingest(reports)
}

// Subscribe to reports published on the topic.
func (i *Ingestor) Subscribe(client mqtt.Client, topic string) error {
	return client.Subscribe(topic, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		accepted, err := i.HandlePayload(msg.Payload())
		if err != nil {
			slog.Warn("reports: rejected capability reports", "topic", msg.Topic(), "accepted", accepted, "error", err)
			return
		}
		slog.Debug("reports: ingested capability reports", "topic", msg.Topic(), "accepted", accepted)
	})
}
