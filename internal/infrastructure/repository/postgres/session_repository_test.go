package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*SessionRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &SessionRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestEnsureSessionInsertsThenSelects(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO qa_sessions").
		WithArgs("sess-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, qa_count, created_at, updated_at").
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "qa_count", "created_at", "updated_at"}).
			AddRow("sess-1", 2, now, now))

	session, err := repo.EnsureSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("EnsureSession() error = %v", err)
	}
	if session.ID != "sess-1" || session.QACount != 2 {
		t.Fatalf("unexpected session %+v", session)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAppendQAPairWritesPairAndBumpsCount(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO qa_pairs").
		WithArgs("qa-1", "sess-1", "what is rag", "an architecture", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE qa_sessions").
		WithArgs("sess-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.AppendQAPair(context.Background(), domain.QAPair{
		ID:        "qa-1",
		SessionID: "sess-1",
		Question:  "what is rag",
		Answer:    "an architecture",
		Sources:   []domain.ScoredResult{{ChunkID: "c1", Content: "ctx", Score: 0.9}},
	})
	if err != nil {
		t.Fatalf("AppendQAPair() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListRecentQAPairsRestoresChronologicalOrder(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "session_id", "question", "answer", "sources", "created_at"}).
		AddRow("qa-2", "sess-1", "q2", "a2", []byte(`[]`), now).
		AddRow("qa-1", "sess-1", "q1", "a1", []byte(`[{"chunk_id":"c1","document_id":"d1","content":"ctx","similarity_score":0.9}]`), now.Add(-time.Minute))
	mock.ExpectQuery("SELECT id, session_id, question, answer, sources, created_at").
		WithArgs("sess-1", 10).
		WillReturnRows(rows)

	pairs, err := repo.ListRecentQAPairs(context.Background(), "sess-1", 10)
	if err != nil {
		t.Fatalf("ListRecentQAPairs() error = %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
	if pairs[0].ID != "qa-1" || pairs[1].ID != "qa-2" {
		t.Fatalf("expected chronological order, got %s then %s", pairs[0].ID, pairs[1].ID)
	}
	if len(pairs[0].Sources) != 1 || pairs[0].Sources[0].ChunkID != "c1" {
		t.Fatalf("expected decoded sources, got %+v", pairs[0].Sources)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListRecentQAPairsZeroLimit(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	pairs, err := repo.ListRecentQAPairs(context.Background(), "sess-1", 0)
	if err != nil {
		t.Fatalf("ListRecentQAPairs() error = %v", err)
	}
	if pairs != nil {
		t.Fatalf("expected nil for zero limit, got %v", pairs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
