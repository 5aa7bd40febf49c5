package health

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresProbe checks the database over a dedicated database/sql handle,
// independent of the application pool
type PostgresProbe struct {
	BaseProbe
	db *sql.DB
}

// NewPostgresProbe opens a single-connection handle for readiness checks
func NewPostgresProbe(dsn string) (*PostgresProbe, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &PostgresProbe{
		BaseProbe: BaseProbe{name: "postgres"},
		db:        db,
	}, nil
}

// Check runs a trivial query
func (p *PostgresProbe) Check(ctx context.Context) error {
	var one int
	if err := p.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("postgres check failed: %w", err)
	}
	return nil
}

// Close closes the handle
func (p *PostgresProbe) Close() error {
	return p.db.Close()
}
