package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kurihiro0119/github-yearbook/internal/api"
	"github.com/kurihiro0119/github-yearbook/internal/bootstrap"
	"github.com/kurihiro0119/github-yearbook/internal/config"
	"github.com/kurihiro0119/github-yearbook/internal/logger"
	"github.com/kurihiro0119/github-yearbook/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.Init(cfg.LogLevel, cfg.LogFormat)

	// Initialize storage
	store, err := bootstrap.OpenStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	provider, err := bootstrap.NewCollector(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize GitHub collector: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewCollector(reg)

	agg := bootstrap.NewAggregator(cfg, store, provider, log, recorder)
	handler := api.NewHandler(agg)
	router := api.SetupRoutes(handler, log.With("component", "api"), reg)

	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting API server", "addr", addr, "storage", cfg.StorageType)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
