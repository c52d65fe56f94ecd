// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package manila

import (
	"github.com/kramdoss/manila/internal/conf"
	"github.com/kramdoss/manila/internal/db"
	"github.com/kramdoss/manila/internal/scheduling/lib"
	"github.com/kramdoss/manila/internal/scheduling/manila/api"
	"github.com/kramdoss/manila/internal/scheduling/manila/plugins/filters"
	"github.com/kramdoss/manila/internal/scheduling/manila/plugins/weighers"
)

const (
	// Name of the placement pipeline, used as metric label.
	PipelineName = "manila-placement"
	// Topic on which successful placement decisions are published.
	TopicFinished = "manila/scheduler/pipeline/finished"
)

// Create the placement pipeline from the configured filters and weighers.
// The steps actually used by the scheduler are defined through the configuration file.
func NewPipeline(
	config conf.SchedulerConfig,
	database db.DB,
	monitor lib.FilterWeigherPipelineMonitor,
) (lib.FilterWeigherPipeline[api.SchedulingRequest], error) {

	return lib.InitNewFilterWeigherPipeline(
		PipelineName,
		filters.Index, config.Filters,
		weighers.Index, config.Weighers,
		database, monitor,
	)
}
