package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nadmax/nightlies/internal/api"
	"github.com/nadmax/nightlies/internal/middleware"
)

const (
	cacheProbeInterval = 30 * time.Second
	shutdownTimeout    = 10 * time.Second
)

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := api.NewAPI(a.snapshots, a.aggregator, api.Options{
		Token:        a.cfg.GitHub.Token,
		WriteTimeout: a.cfg.Cache.WriteTimeout,
		Notifier:     a.notifier,
		Logger:       a.logger,
	})

	go startCacheProbe(ctx, a.store, a.cfg.Cache.Key, cacheProbeInterval, a.logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           middleware.MetricsMiddleware(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.WithField("addr", srv.Addr).Info("Server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	handler.Drain()
	return err
}
