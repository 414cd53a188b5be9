package nightly

import "math"

const (
	recentWindow   = 3
	minTrendRuns   = recentWindow + 1
	trendThreshold = 0.10
)

// PassRate is the rounded percentage of completed runs that succeeded, or 0 with no completed runs.
func PassRate(runs []Run) int {
	completed, succeeded := 0, 0
	for _, r := range runs {
		if !r.Completed() {
			continue
		}
		completed++
		if r.Succeeded() {
			succeeded++
		}
	}
	if completed == 0 {
		return 0
	}
	return int(math.Round(100 * float64(succeeded) / float64(completed)))
}

// ComputeTrend compares the success rate of the three newest runs against the older ones.
// runs must be ordered newest first.
func ComputeTrend(runs []Run) Trend {
	if len(runs) < minTrendRuns {
		return TrendSteady
	}

	recent := successRate(runs[:recentWindow])
	older := successRate(runs[recentWindow:])

	switch {
	case recent-older > trendThreshold:
		return TrendUp
	case older-recent > trendThreshold:
		return TrendDown
	default:
		return TrendSteady
	}
}

func successRate(runs []Run) float64 {
	if len(runs) == 0 {
		return 0
	}
	n := 0
	for _, r := range runs {
		if r.Succeeded() {
			n++
		}
	}
	return float64(n) / float64(len(runs))
}
