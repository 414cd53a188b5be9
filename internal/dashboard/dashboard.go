// Package dashboard summarizes a nightly snapshot into fleet-wide counts for the status card header.
package dashboard

import (
	"time"

	"github.com/nadmax/nightlies/internal/nightly"
)

type Summary struct {
	TotalGuides        int            `json:"totalGuides"`
	Passing            int            `json:"passing"`
	Failing            int            `json:"failing"`
	GPUUnavailable     int            `json:"gpuUnavailable"`
	InProgress         int            `json:"inProgress"`
	NoHistory          int            `json:"noHistory"`
	OverallPassRate    int            `json:"overallPassRate"`
	GuidesByPlatform   map[string]int `json:"guidesByPlatform"`
	AverageRunDuration string         `json:"averageRunDuration"`
	CachedAt           string         `json:"cachedAt"`
	FromCache          bool           `json:"fromCache"`
}

// Summarize buckets each guide by the state of its newest run.
func Summarize(guides []nightly.GuideStatus) Summary {
	summary := Summary{
		TotalGuides:      len(guides),
		GuidesByPlatform: make(map[string]int),
	}

	var (
		all           []nightly.Run
		totalDuration time.Duration
		durationCount int
	)

	for _, g := range guides {
		summary.GuidesByPlatform[g.Platform]++
		all = append(all, g.Runs...)

		for _, r := range g.Runs {
			if r.Completed() && !r.CreatedAt.IsZero() && r.UpdatedAt.After(r.CreatedAt) {
				totalDuration += r.UpdatedAt.Sub(r.CreatedAt)
				durationCount++
			}
		}

		if len(g.Runs) == 0 {
			summary.NoHistory++
			continue
		}

		latest := g.Runs[0]
		switch {
		case !latest.Completed():
			summary.InProgress++
		case latest.Succeeded():
			summary.Passing++
		case latest.Failed() && latest.FailureReason == nightly.ReasonGPUUnavailable:
			summary.GPUUnavailable++
		case latest.Failed():
			summary.Failing++
		}
	}

	summary.OverallPassRate = nightly.PassRate(all)

	if durationCount > 0 {
		avg := totalDuration / time.Duration(durationCount)
		summary.AverageRunDuration = avg.Round(time.Second).String()
	} else {
		summary.AverageRunDuration = "N/A"
	}

	return summary
}
