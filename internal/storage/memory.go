package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/terra-clan/assessment-engine/internal/models"
)

// MemoryRepository keeps sessions in process memory
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]*models.Session),
	}
}

// CreateSession stores a copy of the session
func (r *MemoryRepository) CreateSession(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID]; exists {
		return nil
	}
	r.sessions[s.ID] = s.Clone()
	return nil
}

// UpdateSession replaces the stored record
func (r *MemoryRepository) UpdateSession(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, s.ID)
	}
	r.sessions[s.ID] = s.Clone()
	return nil
}

// GetSession returns a copy of the stored record, or nil
func (r *MemoryRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id].Clone(), nil
}

// ListSessionsByOwner returns the owner's sessions, most recent first
func (r *MemoryRepository) ListSessionsByOwner(ctx context.Context, owner string, limit, offset int) ([]*models.Session, error) {
	r.mu.RLock()
	var out []*models.Session
	for _, s := range r.sessions {
		if s.Owner == owner {
			out = append(out, s.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Ping always succeeds
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (r *MemoryRepository) Close() error {
	return nil
}
