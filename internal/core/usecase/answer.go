package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/core/domain"
	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/core/ports"
)

// AnswerMetricsRecorder receives QA-flow observations. A nil recorder
// disables recording.
type AnswerMetricsRecorder interface {
	ObserveAnswerSources(count int)
}

// AnswerUseCase is the question-answering flow: retrieve ranked chunks,
// synthesize an answer, persist the QA pair into the session history.
// History persistence is best-effort; a store outage never blocks the
// answer.
type AnswerUseCase struct {
	retrieval ports.RetrievalService
	generator ports.AnswerGenerator
	sessions  ports.SessionStore
	logger    *slog.Logger
	metrics   AnswerMetricsRecorder
}

func NewAnswerUseCase(
	retrieval ports.RetrievalService,
	generator ports.AnswerGenerator,
	sessions ports.SessionStore,
	logger *slog.Logger,
	metrics AnswerMetricsRecorder,
) *AnswerUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnswerUseCase{
		retrieval: retrieval,
		generator: generator,
		sessions:  sessions,
		logger:    logger,
		metrics:   metrics,
	}
}

func (uc *AnswerUseCase) Ask(ctx context.Context, sessionID, question string, cfg *domain.RetrievalConfig) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("question is empty"))
	}
	if strings.TrimSpace(sessionID) == "" {
		sessionID = uuid.NewString()
	}
	if _, err := uc.sessions.EnsureSession(ctx, sessionID); err != nil {
		uc.logger.Warn("ensure_session_failed", "session_id", sessionID, "error", err)
	}

	sources, err := uc.retrieval.Search(ctx, question, cfg)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	if uc.metrics != nil {
		uc.metrics.ObserveAnswerSources(len(sources))
	}

	answerText, err := uc.generator.GenerateAnswer(ctx, question, sources)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	pair := domain.QAPair{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Question:  question,
		Answer:    answerText,
		Sources:   sources,
		CreatedAt: time.Now().UTC(),
	}
	if err := uc.sessions.AppendQAPair(ctx, pair); err != nil {
		uc.logger.Warn("append_qa_pair_failed", "session_id", sessionID, "error", err)
	}

	return &domain.Answer{
		SessionID: sessionID,
		Text:      answerText,
		Sources:   sources,
	}, nil
}

// History returns the most recent QA pairs of a session.
func (uc *AnswerUseCase) History(ctx context.Context, sessionID string, limit int) ([]domain.QAPair, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "history", fmt.Errorf("session id is empty"))
	}
	if limit <= 0 {
		limit = 20
	}
	pairs, err := uc.sessions.ListRecentQAPairs(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list qa pairs: %w", err)
	}
	return pairs, nil
}
