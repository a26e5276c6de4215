package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/bootstrap"
	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/config"
	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/observability/metrics"
)

// The worker consumes document-change events and drops cached
// retrievals, so answers never serve chunks from changed documents
// longer than one event delivery.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")

	app, err := bootstrap.New(ctx, "worker", cfg, nil)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("worker metrics server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	app.Logger.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeDocumentsUpdated(ctx, func(handlerCtx context.Context, documentID string) error {
		workerMetrics.StartInvalidation()
		start := time.Now()

		clearCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Second)
		defer cancel()

		dropped := app.Retrieval.ClearCache(clearCtx, "")
		workerMetrics.FinishInvalidation("worker", time.Since(start), int64(dropped), nil)
		app.Logger.Info("cache invalidated",
			"document_id", documentID,
			"entries_dropped", dropped,
		)
		return nil
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
