// Package storage defines the persistence seams for closed sessions.
package storage

import (
	"context"
	"errors"

	"github.com/vietddude/analyzer/internal/core/domain"
)

// ErrNotFound means no archived session exists for the request id.
var ErrNotFound = errors.New("archived session not found")

// ArchivedSession summarizes a session that reached a terminal state.
type ArchivedSession struct {
	RequestID    string                 `db:"request_id"`
	State        domain.SessionState    `db:"state"`
	LastKind     domain.ErrorKind       `db:"last_kind"`
	AttemptCount int                    `db:"attempt_count"`
	Attempts     []domain.AttemptRecord `db:"-"`
	ClosedAtMs   int64                  `db:"closed_at_ms"`
}

// FromSnapshot builds an archive record from a terminal session snapshot.
func FromSnapshot(snap domain.SessionSnapshot, closedAtMs int64) ArchivedSession {
	return ArchivedSession{
		RequestID:    snap.RequestID,
		State:        snap.State,
		LastKind:     snap.LastKind(),
		AttemptCount: len(snap.Attempts),
		Attempts:     snap.Attempts,
		ClosedAtMs:   closedAtMs,
	}
}

// SessionArchive persists closed sessions for audit and lookups.
type SessionArchive interface {
	Save(ctx context.Context, rec ArchivedSession) error
	Get(ctx context.Context, requestID string) (*ArchivedSession, error)
	Count(ctx context.Context) (int, error)
}
