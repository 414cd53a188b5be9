package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nadmax/nightlies/internal/cache"
	"github.com/nadmax/nightlies/internal/dashboard"
	"github.com/nadmax/nightlies/internal/httputil"
	"github.com/nadmax/nightlies/internal/nightly"
	"github.com/nadmax/nightlies/internal/notify"
)

const (
	missingTokenMessage = "GitHub token is not configured"
	missingTokenHint    = "Set GITHUB_TOKEN on the server to a token with actions:read access to the monitored repositories"
	notifyTimeout       = 30 * time.Second
)

type StatusResponse struct {
	Guides    []nightly.GuideStatus `json:"guides"`
	CachedAt  string                `json:"cachedAt"`
	FromCache bool                  `json:"fromCache"`
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !a.preflight(w, r) {
		return
	}

	entry, fromCache, err := a.snapshot(r.Context(), a.requestLogger(r))
	if err != nil {
		a.writeUpstreamError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, StatusResponse{
		Guides:    entry.Guides,
		CachedAt:  entry.CachedAt,
		FromCache: fromCache,
	})
}

func (a *API) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !a.preflight(w, r) {
		return
	}

	entry, fromCache, err := a.snapshot(r.Context(), a.requestLogger(r))
	if err != nil {
		a.writeUpstreamError(w, r, err)
		return
	}

	summary := dashboard.Summarize(entry.Guides)
	summary.CachedAt = entry.CachedAt
	summary.FromCache = fromCache
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// preflight applies CORS and method/credential checks shared by the nightly routes. It reports whether
// the request should proceed.
func (a *API) preflight(w http.ResponseWriter, r *http.Request) bool {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	h.Set("Cache-Control", "no-store")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return false
	case http.MethodGet:
	default:
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}

	if a.token == "" {
		a.requestLogger(r).Error("Rejecting request: GitHub token is not configured")
		httputil.WriteJSONErrorWithHint(w, missingTokenMessage, missingTokenHint, http.StatusServiceUnavailable)
		return false
	}
	return true
}

// snapshot serves the cached entry while it is fresh and otherwise runs a full aggregation and caches it.
func (a *API) snapshot(ctx context.Context, log logrus.FieldLogger) (entry *cache.Entry, fromCache bool, err error) {
	previous, fresh := a.snapshots.Load(ctx)
	if fresh {
		return previous, true, nil
	}

	guides, err := a.aggregate(ctx)
	if err != nil {
		return nil, false, err
	}

	saved, handle := a.snapshots.Save(context.WithoutCancel(ctx), guides)
	if err := handle.Wait(a.writeTimeout); errors.Is(err, cache.ErrWriteTimeout) {
		log.WithField("timeout", a.writeTimeout.String()).Warn("Responding before cache write completed")
	}

	if a.notifier != nil && previous != nil {
		a.alerts.Add(1)
		go a.notifyRegressions(previous.Guides, guides, log)
	}

	return saved, false, nil
}

func (a *API) aggregate(ctx context.Context) (guides []nightly.GuideStatus, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("aggregation panicked: %v", r)
		}
	}()
	return a.aggregator.Aggregate(ctx)
}

func (a *API) notifyRegressions(previous, current []nightly.GuideStatus, log logrus.FieldLogger) {
	defer a.alerts.Done()

	regressions := notify.DetectRegressions(previous, current)
	if len(regressions) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if err := a.notifier.NotifyRegressions(ctx, regressions); err != nil {
		log.WithError(err).Warn("Failed to send regression alert")
	}
}

func (a *API) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	a.requestLogger(r).WithError(err).Error("Failed to build nightly status")
	httputil.WriteJSONError(w, fmt.Sprintf("Failed to fetch nightly workflow status: %v", err), http.StatusBadGateway)
}
