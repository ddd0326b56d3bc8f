package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talentsift/talentsift/internal/bootstrap"
	"github.com/talentsift/talentsift/internal/config"
	"github.com/talentsift/talentsift/internal/core/domain"
	"github.com/talentsift/talentsift/internal/observability/logging"
	"github.com/talentsift/talentsift/internal/observability/metrics"
)

const service = "worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewJSONLogger(service, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(service)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("worker_metrics_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	app.ProcessUC.SetStageObserver(func(stage domain.Stage) {
		workerMetrics.ObserveStageAttempt(service, string(stage))
	})

	logger.Info("worker_subscribed", "subject", cfg.NATSIngestSubject)
	err = app.Queue.SubscribeResumeIngested(ctx, func(handlerCtx context.Context, runID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		if run, err := app.Runs.GetByID(processCtx, runID); err == nil {
			workerMetrics.ObserveQueueLag(service, time.Since(run.StartedAt))
		}

		workerMetrics.StartRun()
		start := time.Now()
		err := app.ProcessUC.ProcessRun(processCtx, runID)
		workerMetrics.FinishRun(service, time.Since(start), err)
		return err
	})
	if err != nil {
		logger.Error("worker_subscribe_error", "error", err)
		os.Exit(1)
	}
}
