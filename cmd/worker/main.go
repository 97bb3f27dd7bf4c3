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

	"github.com/kirillkom/rag-chatbot/internal/bootstrap"
	"github.com/kirillkom/rag-chatbot/internal/config"
	"github.com/kirillkom/rag-chatbot/internal/infrastructure/queue/nats"
	"github.com/kirillkom/rag-chatbot/internal/observability/logging"
	"github.com/kirillkom/rag-chatbot/internal/observability/metrics"
)

const (
	serviceName  = "worker"
	indexTimeout = 10 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))
	if cfg.NATSURL == "" {
		slog.Error("worker_requires_queue", "error", "NATS_URL is not set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeIndexRequests(ctx, func(handlerCtx context.Context, locator string) error {
		if req, ok := nats.RequestFromContext(handlerCtx); ok && !req.EnqueuedAt.IsZero() {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(req.EnqueuedAt))
		}

		indexCtx, cancel := context.WithTimeout(handlerCtx, indexTimeout)
		defer cancel()

		workerMetrics.StartRequest()
		start := time.Now()
		report, err := app.IndexUC.CreateIndex(indexCtx, locator)
		workerMetrics.FinishRequest(serviceName, time.Since(start), report != nil && report.Skipped, err)
		return err
	})
	if err != nil {
		slog.Error("worker_subscribe_error", "error", err)
		os.Exit(1)
	}
}
