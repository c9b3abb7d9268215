// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// admix-payouts runs the scheduled payout pass: businesses whose
// pending revenue meets the configured minimum have all their pending
// records marked paid, all-or-nothing per business.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/tavari-hq/admix/pkg/config"
	"github.com/tavari-hq/admix/pkg/log"
	"github.com/tavari-hq/admix/pkg/metric"
	"github.com/tavari-hq/admix/pkg/revenue"
	"github.com/tavari-hq/admix/pkg/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	runOnce := flag.Bool("once", false, "run a single payout pass and exit")
	flag.Parse()

	if err := run(*configPath, *runOnce); err != nil {
		fmt.Fprintln(os.Stderr, "admix-payouts:", err)
		os.Exit(1)
	}
}

type runner struct {
	calc    *revenue.Calculator
	minimum decimal.Decimal
	log     log.Logger

	mu      sync.RWMutex
	lastRun *revenue.PayoutRun
	lastAt  time.Time
	lastErr error
}

func (r *runner) runOnce(ctx context.Context) {
	run, err := r.calc.ProcessPayouts(ctx, r.minimum)

	r.mu.Lock()
	r.lastRun, r.lastAt, r.lastErr = run, time.Now().UTC(), err
	r.mu.Unlock()

	if err != nil {
		r.log.Error("payout pass failed", "error", err)
		return
	}
	r.log.Info("payout pass complete",
		"paid", run.BusinessesPaid,
		"skipped", run.BusinessesSkipped,
		"records", run.RecordsPaid,
		"total", run.TotalPaid.String(),
	)
}

func (r *runner) handleStatus(w http.ResponseWriter, _ *http.Request) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := map[string]interface{}{
		"status": "healthy",
	}
	if !r.lastAt.IsZero() {
		status["last_run_at"] = r.lastAt.Format(time.RFC3339)
		status["last_run"] = r.lastRun
	}
	if r.lastErr != nil {
		status["status"] = "degraded"
		status["last_error"] = r.lastErr.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

func run(configPath string, once bool) error {
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

	calc := revenue.NewCalculator(store, revenue.NewRateSource(cfg.ExchangeRateURL, logger),
		revenue.WithCalcLogger(logger),
		revenue.WithCalcMetrics(metrics),
	)

	r := &runner{
		calc:    calc,
		minimum: decimal.NewFromFloat(cfg.PayoutMinimum),
		log:     logger,
	}

	if once {
		r.runOnce(context.Background())
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.lastErr
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.PayoutSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		r.runOnce(ctx)
	}); err != nil {
		return fmt.Errorf("invalid payout schedule %q: %w", cfg.PayoutSchedule, err)
	}
	scheduler.Start()
	logger.Info("payout scheduler started",
		"schedule", cfg.PayoutSchedule,
		"minimum", r.minimum.String(),
	)

	router := mux.NewRouter()
	router.HandleFunc("/healthz", r.handleStatus).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(metrics.Gatherer(), promhttp.HandlerOpts{}))

	opsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("ops server listening", "addr", cfg.MetricsAddr)
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("ops server: %w", err)
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

	// Let an in-flight payout pass finish before exiting.
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := opsSrv.Shutdown(ctx); err != nil {
		logger.Warn("ops server shutdown", "error", err)
	}

	logger.Info("admix-payouts stopped")
	return nil
}
