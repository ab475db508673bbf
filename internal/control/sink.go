package control

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/analyzer/internal/analysis/policy"
	"github.com/vietddude/analyzer/internal/analysis/present"
	"github.com/vietddude/analyzer/internal/core/domain"
	redisclient "github.com/vietddude/analyzer/internal/infra/redis"
	"github.com/vietddude/analyzer/internal/infra/storage"
)

// sinkTimeout bounds the persistence work for one closed session.
const sinkTimeout = 5 * time.Second

// closedSessionSink persists terminal sessions: every one goes to the
// archive, and failed ones additionally cache their descriptor so lookups
// stay cheap after the janitor evicts the session.
type closedSessionSink struct {
	registry *policy.Registry
	archive  storage.SessionArchive
	cache    *redisclient.Client
}

func (s *closedSessionSink) SessionClosed(snap domain.SessionSnapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	rec := storage.FromSnapshot(snap, time.Now().UnixMilli())
	if err := s.archive.Save(ctx, rec); err != nil {
		slog.Warn("Failed to archive session", "request_id", snap.RequestID, "error", err)
	}

	if s.cache == nil || snap.State == domain.StateSuccess {
		return
	}
	desc := present.Describe(snap, s.registry, time.Now())
	if err := s.cache.SetDescriptor(ctx, snap.RequestID, desc); err != nil {
		slog.Warn("Failed to cache descriptor", "request_id", snap.RequestID, "error", err)
	}
}
