package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vietddude/analyzer/internal/core/domain"
	"github.com/vietddude/analyzer/internal/infra/storage"
)

// SessionRepo implements storage.SessionArchive on PostgreSQL.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo creates the archive repository.
func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

type sessionRow struct {
	RequestID    string `db:"request_id"`
	State        string `db:"state"`
	LastKind     string `db:"last_kind"`
	AttemptCount int    `db:"attempt_count"`
	Attempts     []byte `db:"attempts"`
	ClosedAtMs   int64  `db:"closed_at_ms"`
}

func (r *SessionRepo) Save(ctx context.Context, rec storage.ArchivedSession) error {
	attempts, err := json.Marshal(rec.Attempts)
	if err != nil {
		return fmt.Errorf("marshal attempts: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO request_sessions (request_id, state, last_kind, attempt_count, attempts, closed_at_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (request_id) DO UPDATE SET
			state = EXCLUDED.state,
			last_kind = EXCLUDED.last_kind,
			attempt_count = EXCLUDED.attempt_count,
			attempts = EXCLUDED.attempts,
			closed_at_ms = EXCLUDED.closed_at_ms`,
		rec.RequestID, string(rec.State), string(rec.LastKind), rec.AttemptCount, attempts, rec.ClosedAtMs,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepo) Get(ctx context.Context, requestID string) (*storage.ArchivedSession, error) {
	var row sessionRow
	err := r.db.GetContext(ctx, &row, `
		SELECT request_id, state, last_kind, attempt_count, attempts, closed_at_ms
		FROM request_sessions WHERE request_id = $1`, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", requestID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}

	rec := storage.ArchivedSession{
		RequestID:    row.RequestID,
		State:        domain.SessionState(row.State),
		LastKind:     domain.ErrorKind(row.LastKind),
		AttemptCount: row.AttemptCount,
		ClosedAtMs:   row.ClosedAtMs,
	}
	if len(row.Attempts) > 0 {
		if err := json.Unmarshal(row.Attempts, &rec.Attempts); err != nil {
			return nil, fmt.Errorf("unmarshal attempts: %w", err)
		}
	}
	return &rec, nil
}

func (r *SessionRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM request_sessions`); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}
