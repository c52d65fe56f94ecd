// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package filters

import (
	"github.com/kramdoss/manila/internal/scheduling/lib"
	"github.com/kramdoss/manila/internal/scheduling/manila/api"
)

type ManilaFilter = lib.Filter[api.SchedulingRequest]

// Configuration of filters supported by the manila scheduler.
var Index = map[string]func() ManilaFilter{}
