package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nadmax/nightlies/internal/metrics"
	"github.com/nadmax/nightlies/internal/nightly"
)

const (
	DefaultKey       = "nightly-e2e-status"
	DefaultActiveTTL = 2 * time.Minute
	DefaultIdleTTL   = 5 * time.Minute
	DefaultRetention = time.Hour
)

var ErrWriteTimeout = errors.New("cache write still in flight")

// Entry is one cached snapshot. It is stale once now >= ExpiresAt (epoch milliseconds).
type Entry struct {
	Guides    []nightly.GuideStatus `json:"guides"`
	CachedAt  string                `json:"cachedAt"`
	ExpiresAt int64                 `json:"expiresAt"`
}

func (e *Entry) Fresh(now time.Time) bool {
	return now.UnixMilli() < e.ExpiresAt
}

// TTLPolicy picks a shorter lifetime while any nightly run is still executing. Retention keeps a stale
// entry in the store past its expiry so the next refresh can compare against it.
type TTLPolicy struct {
	Active    time.Duration
	Idle      time.Duration
	Retention time.Duration
}

func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{Active: DefaultActiveTTL, Idle: DefaultIdleTTL, Retention: DefaultRetention}
}

func (p TTLPolicy) For(guides []nightly.GuideStatus) time.Duration {
	if nightly.HasInProgress(guides) {
		return p.Active
	}
	return p.Idle
}

// WriteHandle tracks a cache write started by SnapshotCache.Save.
type WriteHandle struct {
	done chan struct{}
	err  error
}

func (h *WriteHandle) Done() <-chan struct{} {
	return h.done
}

// Err returns the write error once Done is closed.
func (h *WriteHandle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the write completes or timeout elapses. The write keeps running after a timeout.
func (h *WriteHandle) Wait(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return h.err
	case <-timer.C:
		return ErrWriteTimeout
	}
}

type SnapshotCache struct {
	store  Store
	key    string
	policy TTLPolicy
	now    func() time.Time
	logger logrus.FieldLogger
}

func NewSnapshotCache(store Store, key string, policy TTLPolicy, logger logrus.FieldLogger) *SnapshotCache {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SnapshotCache{
		store:  store,
		key:    key,
		policy: policy,
		now:    time.Now,
		logger: logger,
	}
}

// Load returns the stored entry, if any, and whether it is still fresh. Read and decode failures are
// reported as a miss.
func (c *SnapshotCache) Load(ctx context.Context) (*Entry, bool) {
	raw, err := c.store.Get(ctx, c.key)
	if errors.Is(err, ErrMiss) {
		metrics.RecordCacheLookup("miss")
		return nil, false
	}
	if err != nil {
		metrics.RecordCacheLookup("error")
		c.logger.WithError(err).Warn("Failed to read cached snapshot")
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		metrics.RecordCacheLookup("error")
		c.logger.WithError(err).Warn("Discarding undecodable cached snapshot")
		return nil, false
	}

	if !entry.Fresh(c.now()) {
		metrics.RecordCacheLookup("stale")
		return &entry, false
	}

	metrics.RecordCacheLookup("hit")
	return &entry, true
}

// Save builds an entry for guides and writes it in the background. The returned handle reports when the
// write has landed. Failures are logged and never returned to the request path.
func (c *SnapshotCache) Save(ctx context.Context, guides []nightly.GuideStatus) (*Entry, *WriteHandle) {
	now := c.now()
	ttl := c.policy.For(guides)
	entry := &Entry{
		Guides:    guides,
		CachedAt:  now.UTC().Format(time.RFC3339Nano),
		ExpiresAt: now.Add(ttl).UnixMilli(),
	}

	handle := &WriteHandle{done: make(chan struct{})}
	data, err := json.Marshal(entry)
	if err != nil {
		handle.err = fmt.Errorf("failed to encode snapshot: %w", err)
		c.writeFailed(handle.err)
		close(handle.done)
		return entry, handle
	}

	go func() {
		defer close(handle.done)
		if err := c.store.Set(ctx, c.key, string(data), ttl+c.policy.Retention); err != nil {
			handle.err = err
			c.writeFailed(err)
			return
		}
		c.logger.WithField("ttl", ttl.String()).Debug("Cached nightly snapshot")
	}()

	return entry, handle
}

func (c *SnapshotCache) writeFailed(err error) {
	metrics.RecordCacheWriteFailure()
	c.logger.WithError(err).Warn("Failed to write snapshot cache")
}
