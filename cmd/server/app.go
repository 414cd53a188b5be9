package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/nadmax/nightlies/internal/cache"
	"github.com/nadmax/nightlies/internal/config"
	"github.com/nadmax/nightlies/internal/github"
	"github.com/nadmax/nightlies/internal/logging"
	"github.com/nadmax/nightlies/internal/nightly"
	"github.com/nadmax/nightlies/internal/notify"
	"github.com/nadmax/nightlies/internal/workflow"
)

type app struct {
	cfg        *config.Config
	logger     *logrus.Logger
	store      cache.Store
	snapshots  *cache.SnapshotCache
	aggregator *nightly.Aggregator
	notifier   notify.Notifier
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	if err := cfg.CheckToken(); errors.Is(err, config.ErrMissingToken) {
		logger.Warn("GITHUB_TOKEN is not set; status requests will be answered with 503")
	}

	registry, err := loadRegistry(cfg)
	if err != nil {
		return nil, err
	}

	client, err := github.NewClient(cfg.GitHub.Token, github.Options{
		BaseURL: cfg.GitHub.BaseURL,
		Timeout: cfg.GitHub.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		snapshots: cache.NewSnapshotCache(store, cfg.Cache.Key, cache.TTLPolicy{
			Active:    cfg.Cache.ActiveTTL,
			Idle:      cfg.Cache.IdleTTL,
			Retention: cfg.Cache.Retention,
		}, logger),
		aggregator: nightly.NewAggregator(registry, client, nightly.AggregatorOptions{
			MaxConcurrency: cfg.Fetch.MaxConcurrency,
			Strategy:       buildStrategy(cfg.Classifier),
			Logger:         logger,
		}),
	}

	if cfg.Notify.Enabled() {
		n, err := notify.NewEmailNotifier(notify.EmailConfig{
			APIKey:      cfg.Notify.SendGridAPIKey,
			FromName:    cfg.Notify.FromName,
			FromAddress: cfg.Notify.FromAddress,
			To:          cfg.Notify.To,
		}, logger)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		a.notifier = n
	}

	logger.WithFields(logrus.Fields{
		"workflows": registry.Len(),
		"backend":   cfg.Cache.Backend,
		"strategy":  cfg.Classifier.Strategy,
	}).Info("Initialized nightly aggregator")

	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close cache store")
	}
}

func loadRegistry(cfg *config.Config) (*workflow.Registry, error) {
	if cfg.Registry.File == "" {
		return workflow.Default(), nil
	}
	registry, err := workflow.LoadFile(cfg.Registry.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow registry: %w", err)
	}
	return registry, nil
}

func buildStore(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case config.BackendRedis:
		return cache.NewRedisStore(cfg.Cache.RedisAddr)
	case config.BackendPostgres:
		store, err := cache.NewPostgresStore(cfg.Cache.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	case config.BackendMemory:
		return cache.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

func buildStrategy(cfg config.ClassifierConfig) nightly.Strategy {
	if cfg.Strategy == config.StrategyStructured {
		return nightly.StructuredSignal{Signal: cfg.SignalStep}
	}
	return nightly.DefaultMatcher()
}
