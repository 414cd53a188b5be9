package nightly

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nadmax/nightlies/internal/gather"
	"github.com/nadmax/nightlies/internal/metrics"
	"github.com/nadmax/nightlies/internal/workflow"
)

const DefaultMaxConcurrency = 8

// RunFetcher loads the recent run history of one workflow, newest first.
type RunFetcher interface {
	FetchRuns(ctx context.Context, def workflow.Definition) ([]Run, error)
}

type Aggregator struct {
	registry      *workflow.Registry
	runs          RunFetcher
	classifier    *Classifier
	maxConcurrent int
	logger        logrus.FieldLogger
}

type AggregatorOptions struct {
	MaxConcurrency int
	Strategy       Strategy
	Logger         logrus.FieldLogger
}

// NewAggregator wires a fetcher that serves both run listings and job steps, which is what the GitHub
// client provides.
func NewAggregator(registry *workflow.Registry, source interface {
	RunFetcher
	StepFetcher
}, opts AggregatorOptions) *Aggregator {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	return &Aggregator{
		registry:      registry,
		runs:          source,
		classifier:    NewClassifier(source, opts.Strategy, opts.MaxConcurrency, opts.Logger),
		maxConcurrent: opts.MaxConcurrency,
		logger:        opts.Logger,
	}
}

// Aggregate builds one GuideStatus per registry entry, in registry order. A workflow whose history
// cannot be fetched contributes an empty run list. The only error is cancellation of ctx.
func (a *Aggregator) Aggregate(ctx context.Context) ([]GuideStatus, error) {
	start := time.Now()
	defs := a.registry.Definitions()

	histories, err := a.fetchAll(ctx, defs)
	if err != nil {
		return nil, err
	}

	tasks := make([]gather.Task[[]Run], len(defs))
	for i, def := range defs {
		history := histories[i]
		tasks[i] = func(ctx context.Context) ([]Run, error) {
			a.classifier.ClassifyFailures(ctx, def.Repo, history)
			return history, nil
		}
	}
	classified := gather.All(ctx, a.maxConcurrent, tasks)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("aggregation aborted: %w", err)
	}

	guides := make([]GuideStatus, len(defs))
	for i, def := range defs {
		history := classified[i].Value
		if classified[i].Err != nil {
			history = histories[i]
		}
		guides[i] = newGuideStatus(def, history)
		metrics.UpdateGuidePassRate(def.ID(), def.Guide, def.Platform, guides[i].PassRate)
	}

	metrics.RecordAggregation(time.Since(start))
	a.logger.WithFields(logrus.Fields{
		"guides":   len(guides),
		"duration": time.Since(start).Round(time.Millisecond).String(),
	}).Info("Aggregated nightly workflow status")

	return guides, nil
}

// fetchAll loads every workflow's history concurrently and waits for all of them to settle.
func (a *Aggregator) fetchAll(ctx context.Context, defs []workflow.Definition) ([][]Run, error) {
	tasks := make([]gather.Task[[]Run], len(defs))
	for i, def := range defs {
		tasks[i] = func(ctx context.Context) ([]Run, error) {
			return a.runs.FetchRuns(ctx, def)
		}
	}

	results := gather.All(ctx, a.maxConcurrent, tasks)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("aggregation aborted: %w", err)
	}

	histories := make([][]Run, len(defs))
	for i, res := range results {
		if res.Err != nil {
			a.logger.WithFields(logrus.Fields{
				"repo":     defs[i].Repo,
				"workflow": defs[i].WorkflowFile,
			}).WithError(res.Err).Warn("Failed to fetch workflow runs")
			metrics.RecordWorkflowFetchFailure(defs[i].Repo)
			histories[i] = []Run{}
			continue
		}
		history := res.Value
		if len(history) > MaxRuns {
			history = history[:MaxRuns]
		}
		histories[i] = history
	}
	return histories, nil
}
