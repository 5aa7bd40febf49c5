package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/assessment-engine/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 2
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Pool exposes the connection pool for migrations
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// encodedSession holds the JSONB columns of a session
type encodedSession struct {
	results     []byte
	submissions []byte
	metadata    []byte
}

func encodeSession(s *models.Session) (encodedSession, error) {
	var enc encodedSession
	var err error

	results := s.Results
	if results == nil {
		results = map[models.StageName]*models.StageResult{}
	}
	if enc.results, err = json.Marshal(results); err != nil {
		return enc, fmt.Errorf("failed to marshal results: %w", err)
	}

	submissions := s.Submissions
	if submissions == nil {
		submissions = []models.Submission{}
	}
	if enc.submissions, err = json.Marshal(submissions); err != nil {
		return enc, fmt.Errorf("failed to marshal submissions: %w", err)
	}

	if enc.metadata, err = json.Marshal(s.Metadata); err != nil {
		return enc, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return enc, nil
}

// CreateSession inserts a new session record
func (r *PostgresRepository) CreateSession(ctx context.Context, s *models.Session) error {
	enc, err := encodeSession(s)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO assessment_sessions (id, owner, status, results, technical_unlocked, coding_unlocked, submissions, metadata, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = r.pool.Exec(ctx, query,
		s.ID,
		s.Owner,
		string(s.Status),
		enc.results,
		s.TechnicalUnlocked,
		s.CodingUnlocked,
		enc.submissions,
		enc.metadata,
		s.CreatedAt,
		s.UpdatedAt,
		nullTime(s.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// UpdateSession overwrites the mutable columns of a session
func (r *PostgresRepository) UpdateSession(ctx context.Context, s *models.Session) error {
	enc, err := encodeSession(s)
	if err != nil {
		return err
	}

	query := `
		UPDATE assessment_sessions
		SET status = $2, results = $3, technical_unlocked = $4, coding_unlocked = $5, submissions = $6, metadata = $7, updated_at = $8, completed_at = $9
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		s.ID,
		string(s.Status),
		enc.results,
		s.TechnicalUnlocked,
		s.CodingUnlocked,
		enc.submissions,
		enc.metadata,
		s.UpdatedAt,
		nullTime(s.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, s.ID)
	}

	return nil
}

const sessionColumns = `id, owner, status, results, technical_unlocked, coding_unlocked, submissions, metadata, created_at, updated_at, completed_at`

// GetSession retrieves a session by ID
func (r *PostgresRepository) GetSession(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM assessment_sessions WHERE id = $1`

	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// ListSessionsByOwner returns an owner's sessions ordered by recency
func (r *PostgresRepository) ListSessionsByOwner(ctx context.Context, owner string, limit, offset int) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM assessment_sessions WHERE owner = $1 ORDER BY created_at DESC`
	args := []interface{}{owner}
	argNum := 2

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, limit)
		argNum++
	}

	if offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	var statusStr string
	var completedAt sql.NullTime
	var resultsJSON, submissionsJSON, metadataJSON []byte

	err := row.Scan(
		&s.ID,
		&s.Owner,
		&statusStr,
		&resultsJSON,
		&s.TechnicalUnlocked,
		&s.CodingUnlocked,
		&submissionsJSON,
		&metadataJSON,
		&s.CreatedAt,
		&s.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Status = models.SessionStatus(statusStr)
	if completedAt.Valid {
		s.CompletedAt = &completedAt.Time
	}

	if err := json.Unmarshal(resultsJSON, &s.Results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal results: %w", err)
	}
	if err := json.Unmarshal(submissionsJSON, &s.Submissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal submissions: %w", err)
	}
	if err := json.Unmarshal(metadataJSON, &s.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &s, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
