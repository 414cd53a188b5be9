// Package nightly aggregates nightly end-to-end workflow runs into per-guide status: it fetches run history,
// classifies failures and derives pass-rate and trend statistics.
package nightly

import (
	"time"

	"github.com/nadmax/nightlies/internal/workflow"
)

type (
	FailureReason string
	Trend         string
)

const (
	StatusCompleted  = "completed"
	StatusInProgress = "in_progress"

	ConclusionSuccess = "success"
	ConclusionFailure = "failure"
)

const (
	ReasonNone           FailureReason = ""
	ReasonGPUUnavailable FailureReason = "gpu_unavailable"
	ReasonTestFailure    FailureReason = "test_failure"
)

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendSteady Trend = "steady"
)

// MaxRuns is the run history depth kept per guide.
const MaxRuns = 7

type Run struct {
	ID            int64         `json:"id"`
	Status        string        `json:"status"`
	Conclusion    *string       `json:"conclusion"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	HTMLURL       string        `json:"htmlUrl"`
	RunNumber     int           `json:"runNumber"`
	FailureReason FailureReason `json:"failureReason,omitempty"`
	Model         string        `json:"model"`
	GPUType       string        `json:"gpuType"`
	GPUCount      int           `json:"gpuCount"`
	Event         string        `json:"event"`
}

func (r Run) Completed() bool {
	return r.Status == StatusCompleted
}

func (r Run) Succeeded() bool {
	return r.Conclusion != nil && *r.Conclusion == ConclusionSuccess
}

func (r Run) Failed() bool {
	return r.Conclusion != nil && *r.Conclusion == ConclusionFailure
}

// Step is one step of a job belonging to a run.
type Step struct {
	Job        string `json:"job"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
}

func (s Step) Failed() bool {
	return s.Conclusion == ConclusionFailure
}

type GuideStatus struct {
	Guide            string  `json:"guide"`
	Acronym          string  `json:"acronym"`
	Platform         string  `json:"platform"`
	Repo             string  `json:"repo"`
	WorkflowFile     string  `json:"workflowFile"`
	Runs             []Run   `json:"runs"`
	PassRate         int     `json:"passRate"`
	Trend            Trend   `json:"trend"`
	LatestConclusion *string `json:"latestConclusion"`
	Model            string  `json:"model"`
	GPUType          string  `json:"gpuType"`
	GPUCount         int     `json:"gpuCount"`
}

func newGuideStatus(def workflow.Definition, runs []Run) GuideStatus {
	if runs == nil {
		runs = []Run{}
	}
	return GuideStatus{
		Guide:            def.Guide,
		Acronym:          def.Acronym,
		Platform:         def.Platform,
		Repo:             def.Repo,
		WorkflowFile:     def.WorkflowFile,
		Runs:             runs,
		PassRate:         PassRate(runs),
		Trend:            ComputeTrend(runs),
		LatestConclusion: latestConclusion(runs),
		Model:            def.Model,
		GPUType:          def.GPUType,
		GPUCount:         def.GPUCount,
	}
}

// latestConclusion reports the newest run's conclusion, or its status while it has not completed.
func latestConclusion(runs []Run) *string {
	if len(runs) == 0 {
		return nil
	}
	latest := runs[0]
	if latest.Conclusion != nil {
		c := *latest.Conclusion
		return &c
	}
	s := latest.Status
	return &s
}

// HasInProgress reports whether any run of any guide is still executing.
func HasInProgress(guides []GuideStatus) bool {
	for _, g := range guides {
		for _, r := range g.Runs {
			if r.Status == StatusInProgress {
				return true
			}
		}
	}
	return false
}
