package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/invoice-dashboard/internal/bootstrap"
	"github.com/kirillkom/invoice-dashboard/internal/config"
	"github.com/kirillkom/invoice-dashboard/internal/infrastructure/queue/nats"
	"github.com/kirillkom/invoice-dashboard/internal/observability/logging"
	"github.com/kirillkom/invoice-dashboard/internal/observability/metrics"
)

const serviceName = "invoice-worker"

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stdout, serviceName, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if !cfg.NATSEnabled {
		logger.Error("worker requires NATS_ENABLED=true")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(app.Metrics.Registry()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker subscribed", "subject", cfg.NATSSubject, "metrics_addr", metricsServer.Addr)
	err = app.Queue.SubscribeReprocessRequested(ctx, func(handlerCtx context.Context, invoiceID string) error {
		if at, ok := nats.RequestedAt(handlerCtx); ok {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(at))
		}

		processCtx, cancel := context.WithTimeout(handlerCtx, cfg.WebhookTimeout)
		defer cancel()

		started := time.Now()
		workerMetrics.StartExtraction()
		err := app.ProcessUC.ProcessByID(processCtx, invoiceID)
		workerMetrics.FinishExtraction(serviceName, time.Since(started), err)
		if err == nil {
			logger.Info("invoice re-extracted", "invoice_id", invoiceID, "duration_ms", time.Since(started).Milliseconds())
		}
		return err
	})
	if err != nil {
		logger.Error("worker subscribe error", "error", err)
		os.Exit(1)
	}
}
