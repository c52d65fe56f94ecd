// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package manila

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kramdoss/manila/internal/conf"
	"github.com/kramdoss/manila/internal/mqtt"
	"github.com/kramdoss/manila/internal/scheduling/manila/hosts"
	"github.com/kramdoss/manila/internal/sync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sapcc/go-bits/jobloop"
)

// Receiver of the converted pool reports, e.g. the report ingestor.
type ReportSink interface {
	Ingest(reports []hosts.CapabilityReport) (int, error)
}

// Polls the manila pool api and feeds the pools into the host cache.
// This is an alternative report source for deployments in which the share
// services don't publish their reports to the scheduler directly.
type Syncer struct {
	api  ManilaAPI
	sink ReportSink
	conf conf.SyncManilaConfig
	mon  sync.Monitor
	// Optional client to announce finished syncs.
	mqttClient mqtt.Client
}

func NewSyncer(api ManilaAPI, sink ReportSink, conf conf.SyncManilaConfig, mon sync.Monitor, mqttClient mqtt.Client) *Syncer {
	return &Syncer{api: api, sink: sink, conf: conf, mon: mon, mqttClient: mqttClient}
}

// Fetch all pools once and hand them to the sink.
// Returns the number of accepted reports.
func (s *Syncer) Sync(ctx context.Context) (int, error) {
	if s.mon.RunTimer != nil {
		timer := prometheus.NewTimer(s.mon.RunTimer.WithLabelValues(datasourceStoragePools))
		defer timer.ObserveDuration()
	}
	pools, err := s.api.GetAllStoragePools(ctx)
	if err != nil {
		return 0, err
	}
	reports := make([]hosts.CapabilityReport, 0, len(pools))
	var errs []error
	for _, pool := range pools {
		report, err := pool.CapabilityReport(s.conf.AvailabilityZone)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		reports = append(reports, report)
	}
	accepted, err := s.sink.Ingest(reports)
	if err != nil {
		errs = append(errs, err)
	}
	if s.mon.ObjectsGauge != nil {
		s.mon.ObjectsGauge.WithLabelValues(datasourceStoragePools).Set(float64(accepted))
	}
	if s.mqttClient != nil {
		go s.mqttClient.Publish(TriggerManilaStoragePoolsSynced, accepted)
	}
	return accepted, errors.Join(errs...)
}

// Initialize the api and sync periodically until the context is cancelled.
func (s *Syncer) Run(ctx context.Context) error {
	if err := s.api.Init(ctx); err != nil {
		return err
	}
	for {
		accepted, err := s.Sync(ctx)
		if err != nil {
			slog.Error("failed to sync manila storage pools", "accepted", accepted, "error", err)
			if s.mon.FailedRunsCounter != nil {
				s.mon.FailedRunsCounter.WithLabelValues(datasourceStoragePools).Inc()
			}
		} else {
			slog.Info("synced manila storage pools", "accepted", accepted)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(jobloop.DefaultJitter(s.conf.Interval())):
		}
	}
}
