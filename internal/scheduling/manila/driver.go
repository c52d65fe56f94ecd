// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package manila

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kramdoss/manila/internal/conf"
	"github.com/kramdoss/manila/internal/mqtt"
	"github.com/kramdoss/manila/internal/scheduling/lib"
	"github.com/kramdoss/manila/internal/scheduling/manila/api"
	"github.com/kramdoss/manila/internal/scheduling/manila/hosts"
)

// State of a single scheduling pass.
type State int

const (
	StateStart State = iota
	StateSnapshotting
	StateFiltering
	StateWeighing
	StateSelected
	StateNoValidHost
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "Start"
	case StateSnapshotting:
		return "Snapshotting"
	case StateFiltering:
		return "Filtering"
	case StateWeighing:
		return "Weighing"
	case StateSelected:
		return "Selected"
	case StateNoValidHost:
		return "NoValidHost"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for candidate := StateStart; candidate <= StateNoValidHost; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown scheduling state %q", text)
}

// No host passed all filters.
var ErrNoValidHost = errors.New("no valid host was found")

// Detailed no valid host failure, matching ErrNoValidHost with errors.Is.
type NoValidHostError struct {
	// Why each host was excluded, prefixed with the rejecting filter.
	// Empty if there were no enabled hosts at all.
	Reasons map[string]string
}

func (e *NoValidHostError) Error() string {
	if len(e.Reasons) == 0 {
		return ErrNoValidHost.Error() + ": no enabled hosts"
	}
	return fmt.Sprintf("%s: %d hosts rejected", ErrNoValidHost, len(e.Reasons))
}

func (e *NoValidHostError) Is(target error) bool {
	return target == ErrNoValidHost
}

// Candidate host with its aggregated weight.
type WeighedHost struct {
	HostID string  `json:"host_id"`
	Score  float64 `json:"score"`
}

// Outcome of a scheduling pass.
type Result struct {
	RequestID string `json:"request_id"`
	// The selected host, empty if no valid host was found.
	HostID string  `json:"host_id,omitempty"`
	Score  float64 `json:"score"`
	// All hosts that passed the filters, best first.
	OrderedHosts []WeighedHost `json:"ordered_hosts"`
	// The attempt this pass represents, starting at 1.
	Attempt int   `json:"attempt"`
	State   State `json:"state"`
}

// Runs single scheduling passes against the host cache.
// The driver keeps no state between passes, retries are carried by the request.
type Driver struct {
	config   conf.SchedulerConfig
	hosts    *hosts.Manager
	pipeline lib.FilterWeigherPipeline[api.SchedulingRequest]
	// Optional client to publish decisions.
	mqttClient mqtt.Client
	now        func() time.Time
}

// Create a new driver. The mqtt client may be nil.
func NewDriver(
	config conf.SchedulerConfig,
	manager *hosts.Manager,
	pipeline lib.FilterWeigherPipeline[api.SchedulingRequest],
	mqttClient mqtt.Client,
) *Driver {

	return &Driver{
		config:     config,
		hosts:      manager,
		pipeline:   pipeline,
		mqttClient: mqttClient,
		now:        time.Now,
	}
}

func (d *Driver) DefaultMaxAttempts() int {
	return d.config.MaxAttempts()
}

// Run a scheduling pass for the request.
//
// Returns a *NoValidHostError if every host was excluded. Invalid requests
// return an error wrapping api.ErrInvalidRequest.
func (d *Driver) Schedule(ctx context.Context, request api.PlacementRequest) (Result, error) {
	if request.RequestID == "" {
		request.RequestID = uuid.NewString()
	}
	result := Result{RequestID: request.RequestID, Attempt: request.Attempt(), State: StateStart}
	traceLog := slog.With("requestID", request.RequestID, "attempt", result.Attempt)
	if err := request.Validate(d.config.MaxAttempts()); err != nil {
		traceLog.Warn("scheduler: rejecting invalid request", "error", err)
		return result, err
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	transition := func(next State) {
		traceLog.Debug("scheduler: state transition", "from", result.State, "to", next)
		result.State = next
	}

	transition(StateSnapshotting)
	d.hosts.Sweep(d.now(), d.config.StalenessTimeout())
	snapshot := d.hosts.Snapshot("")
	if len(snapshot) == 0 {
		transition(StateNoValidHost)
		traceLog.Warn("scheduler: no enabled hosts")
		return result, &NoValidHostError{Reasons: map[string]string{}}
	}

	transition(StateFiltering)
	decision, err := d.pipeline.Run(api.NewSchedulingRequest(request, snapshot))
	if err != nil {
		return result, fmt.Errorf("failed to run pipeline: %w", err)
	}
	if len(decision.OrderedHosts) == 0 {
		transition(StateNoValidHost)
		reasons := make(map[string]string, len(snapshot))
		for _, host := range snapshot {
			reason, ok := decision.Reasons[host.ID]
			if !ok {
				reason = "no reason recorded"
			}
			reasons[host.ID] = reason
		}
		traceLog.Info("scheduler: no valid host", "reasons", reasons)
		return result, &NoValidHostError{Reasons: reasons}
	}

	transition(StateWeighing)
	result.OrderedHosts = make([]WeighedHost, len(decision.OrderedHosts))
	for i, host := range decision.OrderedHosts {
		result.OrderedHosts[i] = WeighedHost{HostID: host, Score: decision.AggregatedOutWeights[host]}
	}
	result.HostID = result.OrderedHosts[0].HostID
	result.Score = result.OrderedHosts[0].Score
	transition(StateSelected)
	traceLog.Info("scheduler: selected host", "host", result.HostID, "score", result.Score)

	if d.config.PublishDecisions && d.mqttClient != nil {
		go d.mqttClient.Publish(TopicFinished, result)
	}
	return result, nil
}
