// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package weighers

import (
	"github.com/kramdoss/manila/internal/scheduling/lib"
	"github.com/kramdoss/manila/internal/scheduling/manila/api"
)

type ManilaWeigher = lib.Weigher[api.SchedulingRequest]

// Configuration of weighers supported by the manila scheduler.
var Index = map[string]func() ManilaWeigher{}
