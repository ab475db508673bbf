// Package memory is the in-process fallback archive used when no database is
// configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/vietddude/analyzer/internal/infra/storage"
)

// Archive keeps archived sessions in a map.
type Archive struct {
	mu       sync.RWMutex
	sessions map[string]storage.ArchivedSession
}

// NewArchive creates an empty in-memory archive.
func NewArchive() *Archive {
	return &Archive{sessions: make(map[string]storage.ArchivedSession)}
}

func (a *Archive) Save(ctx context.Context, rec storage.ArchivedSession) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[rec.RequestID] = rec
	return nil
}

func (a *Archive) Get(ctx context.Context, requestID string) (*storage.ArchivedSession, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.sessions[requestID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", requestID, storage.ErrNotFound)
	}
	return &rec, nil
}

func (a *Archive) Count(ctx context.Context) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.sessions), nil
}
