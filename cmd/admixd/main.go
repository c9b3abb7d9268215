// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// admixd is the ad-mediation daemon: it schedules ads for the music
// player, records plays and revenue, and serves the management API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tavari-hq/admix/pkg/ads"
	"github.com/tavari-hq/admix/pkg/api"
	"github.com/tavari-hq/admix/pkg/config"
	"github.com/tavari-hq/admix/pkg/log"
	"github.com/tavari-hq/admix/pkg/metric"
	"github.com/tavari-hq/admix/pkg/providers"
	"github.com/tavari-hq/admix/pkg/revenue"
	"github.com/tavari-hq/admix/pkg/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "admixd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := log.NewWithLevel(cfg.LogLevel)
	defer logger.Sync()

	metrics, err := metric.NewMetrics()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	rates := revenue.NewRateSource(cfg.ExchangeRateURL, logger)
	calc := revenue.NewCalculator(store, rates,
		revenue.WithCalcLogger(logger),
		revenue.WithCalcMetrics(metrics),
	)

	hub := api.NewHub(logger)
	registry := ads.NewRegistry(
		providers.FromConfig(cfg, logger),
		store,
		calc,
		ads.WithLogger(logger),
		ads.WithMetrics(metrics),
		ads.WithPlayListener(hub.Publish),
	)

	server := api.NewServer(registry, hub, metrics, logger)
	apiSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(metrics.Gatherer(), promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		logger.Info("metrics server listening", "addr", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := apiSrv.Shutdown(ctx); err != nil {
		logger.Warn("api server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(ctx); err != nil {
		logger.Warn("metrics server shutdown", "error", err)
	}

	hub.Close()
	// Drains every manager's in-flight counter and revenue writes.
	registry.DestroyAll()

	logger.Info("admixd stopped")
	return nil
}
