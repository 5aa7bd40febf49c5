package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/terra-clan/assessment-engine/internal/failure"
	"github.com/terra-clan/assessment-engine/internal/models"
	"github.com/terra-clan/assessment-engine/internal/storage"
)

// Persister writes session records with bounded at-least-once retry
type Persister struct {
	repo     storage.Repository
	attempts int
	backoff  time.Duration
}

// NewPersister creates a persister. attempts below one means a single try.
func NewPersister(repo storage.Repository, attempts int, backoff time.Duration) *Persister {
	if attempts < 1 {
		attempts = 1
	}
	return &Persister{
		repo:     repo,
		attempts: attempts,
		backoff:  backoff,
	}
}

// Create inserts a new session record
func (p *Persister) Create(ctx context.Context, s *models.Session) error {
	return p.retry(ctx, "create", s.ID, func(ctx context.Context) error {
		return p.repo.CreateSession(ctx, s)
	}, "Could not create the assessment session, please try again")
}

// Update writes the full session record
func (p *Persister) Update(ctx context.Context, s *models.Session) error {
	return p.retry(ctx, "update", s.ID, func(ctx context.Context) error {
		return p.repo.UpdateSession(ctx, s)
	}, "Your progress could not be saved")
}

func (p *Persister) retry(ctx context.Context, op, id string, fn func(context.Context) error, reason string) error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}

		slog.Warn("session write failed",
			"op", op,
			"session_id", id,
			"attempt", attempt,
			"error", err,
		)

		if attempt == p.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return failure.Wrap(ctx.Err(), failure.KindPersistence, reason)
		case <-time.After(p.backoff * time.Duration(attempt)):
		}
	}

	slog.Error("session write gave up", "op", op, "session_id", id, "attempts", p.attempts, "error", err)
	return failure.Wrap(err, failure.KindPersistence, reason)
}
