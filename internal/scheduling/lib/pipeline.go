// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package lib

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/kramdoss/manila/internal/conf"
	"github.com/kramdoss/manila/internal/db"
	"github.com/prometheus/client_golang/prometheus"
)

type FilterWeigherPipelineDecision struct {
	// The hosts that went into the pipeline.
	InHosts []string
	// The output weights after applying the weigher step activations and multipliers.
	AggregatedOutWeights map[string]float64
	// The hosts in order of preference, with the most preferred host first.
	OrderedHosts []string
	// Why hosts were removed by the filters, prefixed by the rejecting filter.
	Reasons map[string]string
}

type FilterWeigherPipeline[RequestType PipelineRequest] interface {
	// Run the scheduling pipeline with the given request.
	Run(request RequestType) (FilterWeigherPipelineDecision, error)
}

// Pipeline of scheduler steps.
type filterWeigherPipeline[RequestType PipelineRequest] struct {
	// The activation function to use when combining the
	// results of the scheduler steps.
	ActivationFunction
	// The order in which filters are applied, by their step name.
	filtersOrder []string
	// The filters by their name.
	filters map[string]Filter[RequestType]
	// The order in which weighers are applied, by their step name.
	weighersOrder []string
	// The weighers by their name.
	weighers map[string]Weigher[RequestType]
	// Multipliers to apply to weigher outputs.
	weighersMultipliers map[string]float64
	// Monitor to observe the pipeline.
	monitor FilterWeigherPipelineMonitor
}

// Create a new pipeline with filters and weighers contained in the configuration.
// Unknown step names and steps that fail to initialize are returned as a joined error.
func InitNewFilterWeigherPipeline[RequestType PipelineRequest](
	name string,
	supportedFilters map[string]func() Filter[RequestType],
	confedFilters []conf.SchedulerStepConfig,
	supportedWeighers map[string]func() Weigher[RequestType],
	confedWeighers []conf.SchedulerStepConfig,
	database db.DB,
	monitor FilterWeigherPipelineMonitor,
) (FilterWeigherPipeline[RequestType], error) {

	pipelineMonitor := monitor.SubPipeline(name)
	var errs []error

	filtersByName := make(map[string]Filter[RequestType], len(confedFilters))
	filtersOrder := []string{}
	for _, filterConfig := range confedFilters {
		slog.Info("scheduler: configuring filter", "name", filterConfig.Name)
		makeFilter, ok := supportedFilters[filterConfig.Name]
		if !ok {
			slog.Error("scheduler: unsupported filter", "name", filterConfig.Name,
				"supported", slices.Sorted(maps.Keys(supportedFilters)))
			errs = append(errs, fmt.Errorf("%w: filter %s", ErrUnsupportedStep, filterConfig.Name))
			continue
		}
		var filter Filter[RequestType] = validateFilter(makeFilter())
		filter = monitorStep[RequestType](filter, filterConfig.Name, pipelineMonitor)
		if err := filter.Init(database, filterConfig.Options); err != nil {
			slog.Error("scheduler: failed to initialize filter", "name", filterConfig.Name, "error", err)
			errs = append(errs, fmt.Errorf("failed to initialize filter %s: %w", filterConfig.Name, err))
			continue
		}
		filtersByName[filterConfig.Name] = filter
		filtersOrder = append(filtersOrder, filterConfig.Name)
		slog.Info("scheduler: added filter", "name", filterConfig.Name)
	}

	weighersByName := make(map[string]Weigher[RequestType], len(confedWeighers))
	weighersMultipliers := make(map[string]float64, len(confedWeighers))
	weighersOrder := []string{}
	for _, weigherConfig := range confedWeighers {
		slog.Info("scheduler: configuring weigher", "name", weigherConfig.Name)
		makeWeigher, ok := supportedWeighers[weigherConfig.Name]
		if !ok {
			slog.Error("scheduler: unsupported weigher", "name", weigherConfig.Name,
				"supported", slices.Sorted(maps.Keys(supportedWeighers)))
			errs = append(errs, fmt.Errorf("%w: weigher %s", ErrUnsupportedStep, weigherConfig.Name))
			continue
		}
		// Validate that the weigher doesn't unexpectedly filter out hosts.
		var weigher Weigher[RequestType] = validateWeigher(makeWeigher(), weigherConfig.DisabledValidations)
		weigher = monitorStep[RequestType](weigher, weigherConfig.Name, pipelineMonitor)
		if err := weigher.Init(database, weigherConfig.Options); err != nil {
			slog.Error("scheduler: failed to initialize weigher", "name", weigherConfig.Name, "error", err)
			errs = append(errs, fmt.Errorf("failed to initialize weigher %s: %w", weigherConfig.Name, err))
			continue
		}
		weighersByName[weigherConfig.Name] = weigher
		weighersOrder = append(weighersOrder, weigherConfig.Name)
		if weigherConfig.Multiplier == nil {
			weighersMultipliers[weigherConfig.Name] = 1.0
		} else {
			weighersMultipliers[weigherConfig.Name] = *weigherConfig.Multiplier
		}
		slog.Info("scheduler: added weigher", "name", weigherConfig.Name)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &filterWeigherPipeline[RequestType]{
		filtersOrder:        filtersOrder,
		filters:             filtersByName,
		weighersOrder:       weighersOrder,
		weighers:            weighersByName,
		weighersMultipliers: weighersMultipliers,
		monitor:             pipelineMonitor,
	}, nil
}

// Execute filters in their configured order. During this process, the
// request is mutated to only include the remaining hosts, and the reason
// of the first filter rejecting a host is recorded.
func (p *filterWeigherPipeline[RequestType]) runFilters(
	log *slog.Logger,
	request RequestType,
) (filteredRequest RequestType, reasons map[string]string) {

	filteredRequest = request
	reasons = make(map[string]string)
	for _, filterName := range p.filtersOrder {
		hostsIn := filteredRequest.GetHosts()
		if len(hostsIn) == 0 {
			break
		}
		filter := p.filters[filterName]
		stepLog := log.With("filter", filterName)
		stepLog.Info("scheduler: running filter")
		result, err := filter.Run(stepLog, filteredRequest)
		if errors.Is(err, ErrStepSkipped) {
			stepLog.Info("scheduler: filter skipped")
			continue
		}
		if err != nil {
			// A filter that cannot run at all rejects every remaining host.
			stepLog.Error("scheduler: failed to run filter", "error", err)
			result = &StepResult{Activations: map[string]float64{}, Reasons: map[string]string{}}
			for _, host := range hostsIn {
				result.Reasons[host] = fmt.Errorf("%w: %w", ErrFilterEvaluation, err).Error()
			}
		}
		nEvaluationErrors := 0
		for _, host := range hostsIn {
			if _, ok := result.Activations[host]; ok {
				continue
			}
			reason, ok := result.Reasons[host]
			if !ok || reason == "" {
				reason = "rejected"
			}
			if strings.HasPrefix(reason, ErrFilterEvaluation.Error()) {
				nEvaluationErrors++
			}
			reasons[host] = filterName + ": " + reason
			stepLog.Info("scheduler: filter rejected host", "host", host, "reason", reason)
		}
		p.monitor.observeEvaluationErrors(filterName, nEvaluationErrors)
		stepLog.Info("scheduler: finished filter", "remainingHosts", len(result.Activations))
		// Mutate the request to only include the remaining hosts.
		// Assume the resulting request type is the same as the input type.
		filteredRequest = filteredRequest.FilterHosts(result.Activations).(RequestType)
	}
	return filteredRequest, reasons
}

// Execute weighers and collect their activations by step name.
func (p *filterWeigherPipeline[RequestType]) runWeighers(
	log *slog.Logger,
	filteredRequest RequestType,
) map[string]map[string]float64 {

	activationsByStep := map[string]map[string]float64{}
	// Weighers can be run in parallel as they do not modify the request.
	var lock sync.Mutex
	var wg sync.WaitGroup
	for _, weigherName := range p.weighersOrder {
		weigher := p.weighers[weigherName]
		wg.Go(func() {
			stepLog := log.With("weigher", weigherName)
			stepLog.Info("scheduler: running weigher")
			result, err := weigher.Run(stepLog, filteredRequest)
			if errors.Is(err, ErrStepSkipped) {
				stepLog.Info("scheduler: weigher skipped")
				return
			}
			if err != nil {
				stepLog.Error("scheduler: failed to run weigher", "error", err)
				return
			}
			stepLog.Info("scheduler: finished weigher")
			lock.Lock()
			defer lock.Unlock()
			activationsByStep[weigherName] = result.Activations
		})
	}
	wg.Wait()
	return activationsByStep
}

// Apply the step weights to the input weights.
func (p *filterWeigherPipeline[RequestType]) applyWeights(
	stepWeights map[string]map[string]float64,
	inWeights map[string]float64,
) map[string]float64 {

	outWeights := make(map[string]float64, len(inWeights))
	maps.Copy(outWeights, inWeights)
	// Apply all activations in the strict order defined by the configuration.
	for _, weigherName := range p.weighersOrder {
		weigherActivations, ok := stepWeights[weigherName]
		if !ok {
			// This is ok, since steps can be skipped.
			continue
		}
		multiplier, ok := p.weighersMultipliers[weigherName]
		if !ok {
			multiplier = 1.0
		}
		outWeights = p.Apply(outWeights, weigherActivations, multiplier)
	}
	return outWeights
}

// Sort the hosts by their weights, ties broken by ascending host name.
func (p *filterWeigherPipeline[RequestType]) sortHostsByWeights(weights map[string]float64) []string {
	hosts := slices.Collect(maps.Keys(weights))
	slices.SortFunc(hosts, func(a, b string) int {
		if c := cmp.Compare(weights[b], weights[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return hosts
}

// Evaluate the pipeline and return a list of hosts in order of preference.
func (p *filterWeigherPipeline[RequestType]) Run(request RequestType) (FilterWeigherPipelineDecision, error) {
	if p.monitor.pipelineRunTimer != nil {
		timer := prometheus.NewTimer(p.monitor.pipelineRunTimer.WithLabelValues(p.monitor.PipelineName))
		defer timer.ObserveDuration()
	}
	slogArgs := request.GetTraceLogArgs()
	slogArgsAny := make([]any, 0, len(slogArgs))
	for _, arg := range slogArgs {
		slogArgsAny = append(slogArgsAny, arg)
	}
	traceLog := slog.With(slogArgsAny...)

	hostsIn := slices.Clone(request.GetHosts())
	traceLog.Info("scheduler: starting pipeline", "hosts", hostsIn)
	inWeights := request.GetWeights()

	// Run filters first to reduce the number of hosts.
	// Any weights assigned to filtered out hosts are ignored.
	filteredRequest, reasons := p.runFilters(traceLog, request)
	remainingHosts := filteredRequest.GetHosts()
	traceLog.Info("scheduler: finished filters", "remainingHosts", remainingHosts)

	remainingWeights := make(map[string]float64, len(remainingHosts))
	for _, host := range remainingHosts {
		remainingWeights[host] = inWeights[host]
	}
	outWeights := remainingWeights
	if len(remainingHosts) > 0 {
		stepWeights := p.runWeighers(traceLog, filteredRequest)
		outWeights = p.applyWeights(stepWeights, remainingWeights)
	}
	traceLog.Info("scheduler: output weights", "weights", outWeights)

	hosts := p.sortHostsByWeights(outWeights)
	traceLog.Info("scheduler: sorted hosts", "hosts", hosts)

	// Collect some metrics about the pipeline execution.
	go p.monitor.observePipelineResult(hostsIn, hosts)

	return FilterWeigherPipelineDecision{
		InHosts:              hostsIn,
		AggregatedOutWeights: outWeights,
		OrderedHosts:         hosts,
		Reasons:              reasons,
	}, nil
}
