package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/hehank376/rag-knowledge-qa-system-sub002/internal/adapters/http"
	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/bootstrap"
	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/config"
	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverMetrics := metrics.NewHTTPServerMetrics("api")

	app, err := bootstrap.New(ctx, "api", cfg, serverMetrics.Retrieval())
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	api := httpadapter.NewRouter(app.Retrieval, app.Answer, app.Answer, app.Logger).Handler(httpadapter.TrafficPolicy{
		RateLimitRPS:   cfg.APIRateLimitRPS,
		RateLimitBurst: cfg.APIRateLimitBurst,
		MaxConcurrent:  cfg.APIMaxConcurrent,
		QueueTimeout:   time.Duration(cfg.APIQueueTimeoutMS) * time.Millisecond,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", serverMetrics.Handler())
	mux.Handle("/", serverMetrics.Middleware("api", api))

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		app.Logger.Info("api listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("api shutdown error", "error", err)
	}
}
