package storage

import (
	"context"
	"errors"

	"github.com/terra-clan/assessment-engine/internal/models"
)

// ErrNotFound is returned by updates that match no record
var ErrNotFound = errors.New("session record not found")

// Repository is the persistence gateway for assessment sessions
type Repository interface {
	// CreateSession inserts a record. An id that already exists is left
	// untouched, so a retried insert whose first attempt committed succeeds.
	CreateSession(ctx context.Context, s *models.Session) error
	// UpdateSession writes the full record by id
	UpdateSession(ctx context.Context, s *models.Session) error
	// GetSession returns nil, nil when the session does not exist
	GetSession(ctx context.Context, id string) (*models.Session, error)
	// ListSessionsByOwner returns the owner's sessions, most recent first
	ListSessionsByOwner(ctx context.Context, owner string, limit, offset int) ([]*models.Session, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}
