package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadmax/nightlies/internal/cache"
	"github.com/nadmax/nightlies/internal/dashboard"
	"github.com/nadmax/nightlies/internal/nightly"
	"github.com/nadmax/nightlies/internal/notify"
	"github.com/nadmax/nightlies/internal/workflow"
)

type fakeAggregator struct {
	guides []nightly.GuideStatus
	err    error
	calls  atomic.Int32
}

func (f *fakeAggregator) Aggregate(ctx context.Context) ([]nightly.GuideStatus, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.guides, nil
}

type panickingAggregator struct{}

func (panickingAggregator) Aggregate(context.Context) ([]nightly.GuideStatus, error) {
	panic("boom")
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent [][]notify.Regression
	done chan struct{}
}

func (n *recordingNotifier) NotifyRegressions(_ context.Context, regressions []notify.Regression) error {
	n.mu.Lock()
	n.sent = append(n.sent, regressions)
	n.mu.Unlock()
	close(n.done)
	return nil
}

func conclusion(c string) *string {
	return &c
}

func sampleGuides() []nightly.GuideStatus {
	return []nightly.GuideStatus{{
		Guide:        "Inference Scheduling",
		Acronym:      "IS",
		Platform:     "GKE",
		Repo:         "llm-d/llm-d",
		WorkflowFile: "nightly-e2e-inference-scheduling-gke.yaml",
		Runs: []nightly.Run{{
			ID:         101,
			RunNumber:  12,
			Status:     nightly.StatusCompleted,
			Conclusion: conclusion(nightly.ConclusionSuccess),
		}},
		PassRate: 100,
		Trend:    nightly.TrendSteady,
	}}
}

func setupTestAPI(t *testing.T, agg Aggregator, token string) (*API, *cache.MemoryStore) {
	t.Helper()
	store := cache.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	snapshots := cache.NewSnapshotCache(store, cache.DefaultKey, cache.DefaultTTLPolicy(), nil)
	return NewAPI(snapshots, agg, Options{Token: token, WriteTimeout: time.Second}), store
}

func seedEntry(t *testing.T, store cache.Store, entry cache.Entry) {
	t.Helper()
	raw, err := json.Marshal(entry)
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), cache.DefaultKey, string(raw), 0))
}

func getStatus(t *testing.T, api *API) (*httptest.ResponseRecorder, StatusResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, StatusPath, nil)
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)

	var resp StatusResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	}
	return w, resp
}

func TestStatus_ColdFetchThenCacheHit(t *testing.T) {
	agg := &fakeAggregator{guides: sampleGuides()}
	api, _ := setupTestAPI(t, agg, "token")

	w, resp := getStatus(t, api)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.False(t, resp.FromCache)
	assert.NotEmpty(t, resp.CachedAt)
	require.Len(t, resp.Guides, 1)
	assert.Equal(t, int32(1), agg.calls.Load())

	w, cached := getStatus(t, api)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, cached.FromCache)
	assert.Equal(t, resp.CachedAt, cached.CachedAt)
	assert.Equal(t, resp.Guides, cached.Guides)
	assert.Equal(t, int32(1), agg.calls.Load())
}

func TestStatus_FreshEntrySkipsAggregation(t *testing.T) {
	agg := &fakeAggregator{guides: sampleGuides()}
	api, store := setupTestAPI(t, agg, "token")

	seedEntry(t, store, cache.Entry{
		Guides:    sampleGuides(),
		CachedAt:  "2026-01-01T00:00:00Z",
		ExpiresAt: time.Now().Add(time.Minute).UnixMilli(),
	})

	w, resp := getStatus(t, api)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.FromCache)
	assert.Equal(t, "2026-01-01T00:00:00Z", resp.CachedAt)
	assert.Zero(t, agg.calls.Load())
}

func TestStatus_StaleEntryTriggersFetch(t *testing.T) {
	agg := &fakeAggregator{guides: sampleGuides()}
	api, store := setupTestAPI(t, agg, "token")

	// A recent cachedAt must not matter once expiresAt has passed.
	seedEntry(t, store, cache.Entry{
		Guides:    nil,
		CachedAt:  time.Now().UTC().Format(time.RFC3339Nano),
		ExpiresAt: time.Now().Add(-time.Second).UnixMilli(),
	})

	w, resp := getStatus(t, api)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, resp.FromCache)
	assert.Len(t, resp.Guides, 1)
	assert.Equal(t, int32(1), agg.calls.Load())
}

func TestStatus_MissingToken(t *testing.T) {
	agg := &fakeAggregator{guides: sampleGuides()}
	api, _ := setupTestAPI(t, agg, "")

	w, _ := getStatus(t, api)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp struct {
		Error string `json:"error"`
		Hint  string `json:"hint"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.NotEmpty(t, resp.Error)
	assert.Contains(t, resp.Hint, "GITHUB_TOKEN")
	assert.Zero(t, agg.calls.Load())
}

func TestStatus_Preflight(t *testing.T) {
	agg := &fakeAggregator{}
	api, _ := setupTestAPI(t, agg, "")

	req := httptest.NewRequest(http.MethodOptions, StatusPath, nil)
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Zero(t, agg.calls.Load())
}

func TestStatus_MethodNotAllowed(t *testing.T) {
	agg := &fakeAggregator{}
	api, _ := setupTestAPI(t, agg, "token")

	req := httptest.NewRequest(http.MethodPost, StatusPath, nil)
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Zero(t, agg.calls.Load())
}

func TestStatus_AggregationFailure(t *testing.T) {
	tests := []struct {
		name string
		agg  Aggregator
	}{
		{name: "error", agg: &fakeAggregator{err: errors.New("aggregation aborted: context canceled")}},
		{name: "panic", agg: panickingAggregator{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, store := setupTestAPI(t, tt.agg, "token")

			w, _ := getStatus(t, api)
			assert.Equal(t, http.StatusBadGateway, w.Code)

			var resp map[string]string
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.NotEmpty(t, resp["error"])

			_, err := store.Get(context.Background(), cache.DefaultKey)
			assert.ErrorIs(t, err, cache.ErrMiss)
		})
	}
}

type isolatingSource struct {
	failing string
}

func (s *isolatingSource) FetchRuns(_ context.Context, def workflow.Definition) ([]nightly.Run, error) {
	if def.WorkflowFile == s.failing {
		return nil, errors.New("upstream 500")
	}
	return []nightly.Run{{
		ID:         1,
		Status:     nightly.StatusCompleted,
		Conclusion: conclusion(nightly.ConclusionSuccess),
	}}, nil
}

func (s *isolatingSource) FetchSteps(context.Context, string, int64) ([]nightly.Step, error) {
	return nil, nil
}

func TestStatus_OneWorkflowFailureIsIsolated(t *testing.T) {
	defs := make([]workflow.Definition, 5)
	for i := range defs {
		defs[i] = workflow.Definition{
			Repo:         "llm-d/llm-d",
			WorkflowFile: fmt.Sprintf("nightly-%d.yaml", i),
			Guide:        fmt.Sprintf("Guide %d", i),
			Acronym:      fmt.Sprintf("G%d", i),
			Platform:     "GKE",
		}
	}
	registry, err := workflow.NewRegistry(defs)
	require.NoError(t, err)

	agg := nightly.NewAggregator(registry, &isolatingSource{failing: "nightly-2.yaml"}, nightly.AggregatorOptions{})
	api, _ := setupTestAPI(t, agg, "token")

	w, resp := getStatus(t, api)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, resp.Guides, 5)
	for i, g := range resp.Guides {
		assert.Equal(t, defs[i].Guide, g.Guide)
	}
	assert.Empty(t, resp.Guides[2].Runs)
	assert.NotNil(t, resp.Guides[2].Runs)
	assert.Len(t, resp.Guides[0].Runs, 1)
}

func TestSummary(t *testing.T) {
	agg := &fakeAggregator{guides: sampleGuides()}
	api, _ := setupTestAPI(t, agg, "token")

	req := httptest.NewRequest(http.MethodGet, SummaryPath, nil)
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var summary dashboard.Summary
	require.NoError(t, json.NewDecoder(w.Body).Decode(&summary))
	assert.Equal(t, 1, summary.TotalGuides)
	assert.Equal(t, 1, summary.Passing)
	assert.Equal(t, 1, summary.GuidesByPlatform["GKE"])
	assert.False(t, summary.FromCache)
	assert.NotEmpty(t, summary.CachedAt)
}

func TestStatus_RegressionAlertOnRefresh(t *testing.T) {
	failing := sampleGuides()
	failing[0].Runs = append([]nightly.Run{{
		ID:            102,
		RunNumber:     13,
		Status:        nightly.StatusCompleted,
		Conclusion:    conclusion(nightly.ConclusionFailure),
		FailureReason: nightly.ReasonTestFailure,
	}}, failing[0].Runs...)

	notifier := &recordingNotifier{done: make(chan struct{})}
	store := cache.NewMemoryStore()
	snapshots := cache.NewSnapshotCache(store, cache.DefaultKey, cache.DefaultTTLPolicy(), nil)
	api := NewAPI(snapshots, &fakeAggregator{guides: failing}, Options{Token: "token", Notifier: notifier})

	seedEntry(t, store, cache.Entry{
		Guides:    sampleGuides(),
		CachedAt:  "2026-01-01T00:00:00Z",
		ExpiresAt: time.Now().Add(-time.Minute).UnixMilli(),
	})

	w, _ := getStatus(t, api)
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case <-notifier.done:
	case <-time.After(2 * time.Second):
		t.Fatal("regression alert was not sent")
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.sent, 1)
	require.Len(t, notifier.sent[0], 1)
	assert.Equal(t, int64(102), notifier.sent[0][0].RunID)
}

func TestHealth(t *testing.T) {
	api, _ := setupTestAPI(t, &fakeAggregator{}, "")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	w := httptest.NewRecorder()
	api.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
}

type readOnlyStore struct {
	*cache.MemoryStore
}

func (readOnlyStore) Set(context.Context, string, string, time.Duration) error {
	return errors.New("READONLY You can't write against a read only replica.")
}

type countingNotifier struct {
	sent atomic.Int32
}

func (c *countingNotifier) NotifyRegressions(context.Context, []notify.Regression) error {
	c.sent.Add(1)
	return nil
}

func TestStatus_RegressionAlertedOnceWhenCacheWritesFail(t *testing.T) {
	failing := sampleGuides()
	failing[0].Runs = append([]nightly.Run{{
		ID:            102,
		RunNumber:     13,
		Status:        nightly.StatusCompleted,
		Conclusion:    conclusion(nightly.ConclusionFailure),
		FailureReason: nightly.ReasonTestFailure,
	}}, failing[0].Runs...)

	mem := cache.NewMemoryStore()
	seedEntry(t, mem, cache.Entry{
		Guides:    sampleGuides(),
		CachedAt:  "2026-01-01T00:00:00Z",
		ExpiresAt: time.Now().Add(-time.Minute).UnixMilli(),
	})

	notifier := &countingNotifier{}
	snapshots := cache.NewSnapshotCache(readOnlyStore{mem}, cache.DefaultKey, cache.DefaultTTLPolicy(), nil)
	agg := &fakeAggregator{guides: failing}
	api := NewAPI(snapshots, agg, Options{Token: "token", Notifier: notifier})

	for i := 0; i < 3; i++ {
		w, resp := getStatus(t, api)
		require.Equal(t, http.StatusOK, w.Code)
		assert.False(t, resp.FromCache)
	}
	api.Drain()

	assert.Equal(t, int32(3), agg.calls.Load(), "the stale entry is never replaced")
	assert.Equal(t, int32(1), notifier.sent.Load())
}

func TestStatus_ConcurrentRefreshesAlertOnce(t *testing.T) {
	failing := sampleGuides()
	failing[0].Runs = []nightly.Run{{
		ID:            102,
		Status:        nightly.StatusCompleted,
		Conclusion:    conclusion(nightly.ConclusionFailure),
		FailureReason: nightly.ReasonTestFailure,
	}}

	mem := cache.NewMemoryStore()
	seedEntry(t, mem, cache.Entry{
		Guides:    sampleGuides(),
		ExpiresAt: time.Now().Add(-time.Minute).UnixMilli(),
	})

	notifier := &countingNotifier{}
	snapshots := cache.NewSnapshotCache(readOnlyStore{mem}, cache.DefaultKey, cache.DefaultTTLPolicy(), nil)
	api := NewAPI(snapshots, &fakeAggregator{guides: failing}, Options{Token: "token", Notifier: notifier})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, StatusPath, nil)
			api.ServeHTTP(httptest.NewRecorder(), req)
		}()
	}
	wg.Wait()
	api.Drain()

	assert.Equal(t, int32(1), notifier.sent.Load())
}
