// Package notify alerts maintainers when a nightly guide starts failing its tests.
package notify

import (
	"context"

	"github.com/nadmax/nightlies/internal/nightly"
)

type Regression struct {
	Guide        string
	Platform     string
	Repo         string
	WorkflowFile string
	RunID        int64
	RunNumber    int
	HTMLURL      string
}

type Notifier interface {
	NotifyRegressions(ctx context.Context, regressions []Regression) error
}

// DetectRegressions returns guides whose newest completed run is a test failure that was not already
// the newest completed run in previous. GPU capacity failures are not regressions.
func DetectRegressions(previous, current []nightly.GuideStatus) []Regression {
	seen := make(map[string]int64, len(previous))
	for _, g := range previous {
		if r := latestCompleted(g.Runs); r != nil {
			seen[g.Repo+"/"+g.WorkflowFile] = r.ID
		}
	}

	var regressions []Regression
	for _, g := range current {
		r := latestCompleted(g.Runs)
		if r == nil || !r.Failed() || r.FailureReason != nightly.ReasonTestFailure {
			continue
		}
		if id, ok := seen[g.Repo+"/"+g.WorkflowFile]; ok && id == r.ID {
			continue
		}
		regressions = append(regressions, Regression{
			Guide:        g.Guide,
			Platform:     g.Platform,
			Repo:         g.Repo,
			WorkflowFile: g.WorkflowFile,
			RunID:        r.ID,
			RunNumber:    r.RunNumber,
			HTMLURL:      r.HTMLURL,
		})
	}
	return regressions
}

func latestCompleted(runs []nightly.Run) *nightly.Run {
	for i := range runs {
		if runs[i].Completed() {
			return &runs[i]
		}
	}
	return nil
}
