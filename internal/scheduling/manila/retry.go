// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package manila

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kramdoss/manila/internal/scheduling/manila/api"
)

// Provisioning failed on every attempt the request allowed.
var ErrAttemptsExhausted = errors.New("scheduling attempts exhausted")

type Scheduler interface {
	// Run a single scheduling pass.
	Schedule(ctx context.Context, request api.PlacementRequest) (Result, error)
	// Attempts allowed for requests that don't set their own.
	DefaultMaxAttempts() int
}

// Creates the share on the selected host.
type Provisioner interface {
	Provision(ctx context.Context, result Result) error
}

// Adapter to use a function as provisioner.
type ProvisionerFunc func(ctx context.Context, result Result) error

func (f ProvisionerFunc) Provision(ctx context.Context, result Result) error {
	return f(ctx, result)
}

// Schedule the request and provision it on the selected host. If provisioning
// fails, the host is added to the retry history and the request is scheduled
// again, until the attempts are used up.
//
// Returns the result of the successful attempt, the no valid host error of the
// last pass, or ErrAttemptsExhausted wrapping the last provisioning error.
func ScheduleWithRetries(ctx context.Context, scheduler Scheduler, request api.PlacementRequest, provisioner Provisioner) (Result, error) {
	maxAttempts := request.GetMaxAttempts(scheduler.DefaultMaxAttempts())
	for {
		result, err := scheduler.Schedule(ctx, request)
		if err != nil {
			return result, err
		}
		// Keep the generated id for all attempts.
		request.RequestID = result.RequestID
		err = provisioner.Provision(ctx, result)
		if err == nil {
			return result, nil
		}
		slog.Warn("scheduler: provisioning failed", "requestID", result.RequestID,
			"host", result.HostID, "attempt", result.Attempt, "error", err)
		request = request.WithRetryHost(result.HostID)
		if len(request.RetryHosts) >= maxAttempts {
			return result, fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, len(request.RetryHosts), err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
	}
}
