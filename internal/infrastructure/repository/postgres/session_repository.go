package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/hehank376/rag-knowledge-qa-system-sub002/internal/core/domain"
)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *SessionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS qa_sessions (
	id TEXT PRIMARY KEY,
	qa_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS qa_pairs (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES qa_sessions(id),
	question TEXT NOT NULL,
	answer TEXT NOT NULL,
	sources JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_qa_pairs_session_created ON qa_pairs(session_id, created_at);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *SessionRepository) EnsureSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO qa_sessions (id, qa_count, created_at, updated_at)
VALUES ($1, 0, $2, $2)
ON CONFLICT (id) DO NOTHING
`, sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("ensure session insert: %w", err)
	}

	row := r.db.QueryRowContext(ctx, `
SELECT id, qa_count, created_at, updated_at
FROM qa_sessions
WHERE id = $1
`, sessionID)

	var session domain.Session
	if err := row.Scan(
		&session.ID,
		&session.QACount,
		&session.CreatedAt,
		&session.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("ensure session select: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) AppendQAPair(ctx context.Context, pair domain.QAPair) error {
	if pair.CreatedAt.IsZero() {
		pair.CreatedAt = time.Now().UTC()
	}
	sources := pair.Sources
	if sources == nil {
		sources = []domain.ScoredResult{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("marshal qa sources: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO qa_pairs (id, session_id, question, answer, sources, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, pair.ID, pair.SessionID, pair.Question, pair.Answer, sourcesJSON, pair.CreatedAt)
	if err != nil {
		return fmt.Errorf("append qa pair: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
UPDATE qa_sessions
SET qa_count = qa_count + 1, updated_at = $2
WHERE id = $1
`, pair.SessionID, pair.CreatedAt)
	if err != nil {
		return fmt.Errorf("bump session qa count: %w", err)
	}
	return nil
}

func (r *SessionRepository) ListRecentQAPairs(ctx context.Context, sessionID string, limit int) ([]domain.QAPair, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, session_id, question, answer, sources, created_at
FROM qa_pairs
WHERE session_id = $1
ORDER BY created_at DESC
LIMIT $2
`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent qa pairs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.QAPair, 0, limit)
	for rows.Next() {
		var pair domain.QAPair
		var sourcesJSON []byte
		if err := rows.Scan(
			&pair.ID,
			&pair.SessionID,
			&pair.Question,
			&pair.Answer,
			&sourcesJSON,
			&pair.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan qa pair: %w", err)
		}
		if len(sourcesJSON) > 0 {
			if err := json.Unmarshal(sourcesJSON, &pair.Sources); err != nil {
				return nil, fmt.Errorf("unmarshal qa sources: %w", err)
			}
		}
		out = append(out, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate qa pairs: %w", err)
	}

	// Returned in descending order from SQL; reverse to keep chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
