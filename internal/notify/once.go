package notify

import (
	"context"
	"sync"
)

// Once wraps a Notifier so that each failing run is alerted at most once per process, however many
// refreshes or concurrent requests detect it. A failed send releases its runs for a later retry.
type Once struct {
	next Notifier
	mu   sync.Mutex
	sent map[string]int64
}

func NewOnce(next Notifier) *Once {
	return &Once{
		next: next,
		sent: make(map[string]int64),
	}
}

func (o *Once) NotifyRegressions(ctx context.Context, regressions []Regression) error {
	pending := o.claim(regressions)
	if len(pending) == 0 {
		return nil
	}

	if err := o.next.NotifyRegressions(ctx, pending); err != nil {
		o.release(pending)
		return err
	}
	return nil
}

func (o *Once) claim(regressions []Regression) []Regression {
	o.mu.Lock()
	defer o.mu.Unlock()

	var pending []Regression
	for _, r := range regressions {
		key := r.Repo + "/" + r.WorkflowFile
		if id, ok := o.sent[key]; ok && id == r.RunID {
			continue
		}
		o.sent[key] = r.RunID
		pending = append(pending, r)
	}
	return pending
}

func (o *Once) release(regressions []Regression) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, r := range regressions {
		key := r.Repo + "/" + r.WorkflowFile
		if o.sent[key] == r.RunID {
			delete(o.sent, key)
		}
	}
}
