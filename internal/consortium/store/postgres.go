package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"oai-edge/internal/consortium"
)

// Postgres reads consortium membership from a relational table shared with
// the tenant-configuration service.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle (pgx stdlib driver).
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the membership table when it does not exist yet.
// Deployments that own their schema call this at startup; shared schemas
// manage it externally.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS consortium_members (
			consortium_id TEXT NOT NULL,
			tenant_id     TEXT NOT NULL,
			central       BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (consortium_id, tenant_id)
		)`)
	if err != nil {
		return fmt.Errorf("ensure consortium_members schema: %w", err)
	}
	return nil
}

// Members returns every row of the consortium the tenant belongs to, ordered
// by tenant id. An unaffiliated tenant yields no rows and no error.
func (s *Postgres) Members(ctx context.Context, tenantID string) ([]consortium.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.tenant_id, m.central
		FROM consortium_members m
		WHERE m.consortium_id IN (
			SELECT consortium_id FROM consortium_members WHERE tenant_id = $1
		)
		ORDER BY m.tenant_id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query consortium members: %w", err)
	}
	defer rows.Close()

	var members []consortium.Member
	for rows.Next() {
		var m consortium.Member
		if err := rows.Scan(&m.TenantID, &m.Central); err != nil {
			return nil, fmt.Errorf("scan consortium member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consortium members: %w", err)
	}
	return members, nil
}

// Add inserts one membership row. Primarily used by tests and seeding.
func (s *Postgres) Add(ctx context.Context, consortiumID string, m consortium.Member) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consortium_members (consortium_id, tenant_id, central)
		VALUES ($1, $2, $3)
		ON CONFLICT (consortium_id, tenant_id) DO UPDATE SET central = EXCLUDED.central`,
		consortiumID, m.TenantID, m.Central)
	if err != nil {
		return fmt.Errorf("insert consortium member: %w", err)
	}
	return nil
}
