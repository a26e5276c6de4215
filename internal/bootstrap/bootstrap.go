package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/config"
	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/core/ports"
	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/core/usecase"
	rediscache "github.com/hehank376/rag-knowledge-qa-system-sub002/internal/infrastructure/cache/redis"
	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/infrastructure/llm/ollama"
	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/infrastructure/queue/nats"
	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/infrastructure/rerank/lexical"
	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/infrastructure/repository/postgres"
	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/infrastructure/resilience"
	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/infrastructure/retriever/qdrant"
	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/observability/logging"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue     *nats.Queue
	Retrieval ports.RetrievalService
	Answer    *usecase.AnswerUseCase

	closeFn func()
}

func New(ctx context.Context, service string, cfg config.Config, metrics usecase.MetricsRecorder) (*App, error) {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sessionRepo := postgres.NewSessionRepository(db)
	if err := sessionRepo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	cacheStore := rediscache.New(rediscache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	executor := resilience.NewExecutor(resilience.DefaultPolicy(), logger)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	retriever := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, embedder)
	reranker := lexical.New()

	cache := usecase.NewResultCache(cacheStore, usecase.CacheConfig{
		Enabled: cfg.CacheEnabled,
		TTL:     time.Duration(cfg.CacheTTLSeconds) * time.Second,
	}, logger)
	router := usecase.NewSearchStrategyRouter(retriever, logger)

	orchestrator, err := usecase.NewRetrievalOrchestrator(cache, router, reranker, cfg.DefaultRetrievalConfig(), logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("init retrieval orchestrator: %w", err)
	}

	// RetrievalMetrics also records answer observations; the worker
	// passes nil and skips both.
	answerMetrics, _ := metrics.(usecase.AnswerMetricsRecorder)
	answerUC := usecase.NewAnswerUseCase(orchestrator, generator, sessionRepo, logger, answerMetrics)

	return &App{
		Config: cfg,
		Logger: logger,

		Queue:     queue,
		Retrieval: orchestrator,
		Answer:    answerUC,

		closeFn: func() {
			queue.Close()
			_ = cacheStore.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
