// Package api serves the nightly end-to-end status feed over HTTP.
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/nadmax/nightlies/internal/cache"
	"github.com/nadmax/nightlies/internal/nightly"
	"github.com/nadmax/nightlies/internal/notify"
)

const (
	StatusPath  = "/api/nightly-e2e/status"
	SummaryPath = "/api/nightly-e2e/summary"

	DefaultWriteTimeout = 500 * time.Millisecond
)

type Aggregator interface {
	Aggregate(ctx context.Context) ([]nightly.GuideStatus, error)
}

type Options struct {
	// Token is the CI read token. Only its presence is checked here.
	Token        string
	WriteTimeout time.Duration
	Notifier     notify.Notifier
	Logger       logrus.FieldLogger
}

type API struct {
	snapshots    *cache.SnapshotCache
	aggregator   Aggregator
	token        string
	writeTimeout time.Duration
	notifier     notify.Notifier
	logger       logrus.FieldLogger
	mux          *http.ServeMux
	alerts       sync.WaitGroup
}

type requestIDKey struct{}

func NewAPI(snapshots *cache.SnapshotCache, aggregator Aggregator, opts Options) *API {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	api := &API{
		snapshots:    snapshots,
		aggregator:   aggregator,
		token:        opts.Token,
		writeTimeout: opts.WriteTimeout,
		logger:       opts.Logger,
		mux:          http.NewServeMux(),
	}
	if opts.Notifier != nil {
		api.notifier = notify.NewOnce(opts.Notifier)
	}

	api.setupRoutes()
	return api
}

// Drain waits for regression alerts still being sent in the background.
func (a *API) Drain() {
	a.alerts.Wait()
}

func (a *API) setupRoutes() {
	a.mux.HandleFunc(StatusPath, a.handleStatus)
	a.mux.HandleFunc(SummaryPath, a.handleSummary)
	a.mux.HandleFunc("/healthz", a.handleHealth)
	a.mux.Handle("/metrics", promhttp.Handler())
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", id)

	a.mux.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
}

func (a *API) requestLogger(r *http.Request) logrus.FieldLogger {
	log := a.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	})
	if id, ok := r.Context().Value(requestIDKey{}).(string); ok {
		log = log.WithField("request_id", id)
	}
	return log
}
