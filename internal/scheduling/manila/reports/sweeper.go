// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package reports

import (
	"context"
	"log/slog"
	"time"

	"github.com/kramdoss/manila/internal/scheduling/manila/hosts"
	"github.com/sapcc/go-bits/jobloop"
)

// Periodically disables hosts that stopped reporting.
type Sweeper struct {
	Manager  *hosts.Manager
	Interval time.Duration
	Timeout  time.Duration
	// Clock, defaults to time.Now.
	Now func() time.Time
}

// Sweep once and return the ids of the newly disabled hosts.
func (s *Sweeper) SweepOnce() []string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return s.Manager.Sweep(now(), s.Timeout)
}

// Sweep until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	slog.Info("reports: starting sweeper", "interval", s.Interval, "timeout", s.Timeout)
	for {
		if disabled := s.SweepOnce(); len(disabled) > 0 {
			slog.Info("reports: swept stale hosts", "hosts", disabled)
		}
		select {
		case <-ctx.Done():
			slog.Info("reports: sweeper shutting down")
			return nil
		case <-time.After(jobloop.DefaultJitter(s.Interval)):
		}
	}
}
