package main

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nadmax/nightlies/internal/cache"
	"github.com/nadmax/nightlies/internal/metrics"
)

func startCacheProbe(ctx context.Context, store cache.Store, key string, interval time.Duration, logger logrus.FieldLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	probeCache(ctx, store, key, logger)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probeCache(ctx, store, key, logger)
		}
	}
}

// probeCache treats a miss as healthy: the backend answered.
func probeCache(ctx context.Context, store cache.Store, key string, logger logrus.FieldLogger) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := store.Get(probeCtx, key)
	up := err == nil || errors.Is(err, cache.ErrMiss)
	if !up {
		logger.WithError(err).Warn("Cache backend probe failed")
	}
	metrics.UpdateCacheUp(up)
	return up
}
