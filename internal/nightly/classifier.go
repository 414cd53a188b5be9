package nightly

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nadmax/nightlies/internal/gather"
	"github.com/nadmax/nightlies/internal/metrics"
)

type StrategyKind string

const (
	KindHeuristic  StrategyKind = "heuristic"
	KindStructured StrategyKind = "structured"
)

// Strategy decides why a failed run failed, given its job steps.
type Strategy interface {
	Kind() StrategyKind
	Classify(steps []Step) FailureReason
}

// HeuristicMatcher flags a run as GPU-unavailable when a failed step's name contains one of GPUTokens
// and one of AvailabilityTokens. Matching is case-insensitive.
type HeuristicMatcher struct {
	GPUTokens          []string
	AvailabilityTokens []string
}

func DefaultMatcher() HeuristicMatcher {
	return HeuristicMatcher{
		GPUTokens:          []string{"gpu"},
		AvailabilityTokens: []string{"availab", "capacity"},
	}
}

func (HeuristicMatcher) Kind() StrategyKind { return KindHeuristic }

func (m HeuristicMatcher) Classify(steps []Step) FailureReason {
	for _, s := range steps {
		if !s.Failed() {
			continue
		}
		name := strings.ToLower(s.Name)
		if containsAny(name, m.GPUTokens) && containsAny(name, m.AvailabilityTokens) {
			return ReasonGPUUnavailable
		}
	}
	return ReasonTestFailure
}

// StructuredSignal flags a run as GPU-unavailable when a dedicated step, named exactly Signal, failed.
type StructuredSignal struct {
	Signal string
}

func (StructuredSignal) Kind() StrategyKind { return KindStructured }

func (s StructuredSignal) Classify(steps []Step) FailureReason {
	for _, step := range steps {
		if step.Failed() && step.Name == s.Signal {
			return ReasonGPUUnavailable
		}
	}
	return ReasonTestFailure
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if t != "" && strings.Contains(s, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

// StepFetcher loads the job steps of one run.
type StepFetcher interface {
	FetchSteps(ctx context.Context, repo string, runID int64) ([]Step, error)
}

type Classifier struct {
	steps         StepFetcher
	strategy      Strategy
	maxConcurrent int
	logger        logrus.FieldLogger
}

func NewClassifier(steps StepFetcher, strategy Strategy, maxConcurrent int, logger logrus.FieldLogger) *Classifier {
	if strategy == nil {
		strategy = DefaultMatcher()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Classifier{
		steps:         steps,
		strategy:      strategy,
		maxConcurrent: maxConcurrent,
		logger:        logger,
	}
}

// ClassifyFailures sets FailureReason on every failed run in place. Runs whose steps cannot be fetched
// are classified as test failures.
func (c *Classifier) ClassifyFailures(ctx context.Context, repo string, runs []Run) {
	var failed []int
	for i := range runs {
		if runs[i].Failed() {
			failed = append(failed, i)
		} else {
			runs[i].FailureReason = ReasonNone
		}
	}
	if len(failed) == 0 {
		return
	}

	tasks := make([]gather.Task[FailureReason], len(failed))
	for i, idx := range failed {
		runID := runs[idx].ID
		tasks[i] = func(ctx context.Context) (FailureReason, error) {
			steps, err := c.steps.FetchSteps(ctx, repo, runID)
			if err != nil {
				return ReasonTestFailure, err
			}
			return c.strategy.Classify(steps), nil
		}
	}

	for _, res := range gather.All(ctx, c.maxConcurrent, tasks) {
		run := &runs[failed[res.Index]]
		reason := res.Value
		if res.Err != nil {
			c.logger.WithFields(logrus.Fields{
				"repo":   repo,
				"run_id": run.ID,
			}).WithError(res.Err).Warn("Failed to fetch job steps, defaulting to test failure")
			reason = ReasonTestFailure
		}
		run.FailureReason = reason
		metrics.RecordFailureClassified(string(reason))
	}
}
