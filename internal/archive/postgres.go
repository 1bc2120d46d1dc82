package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Iron-Ham/conductor/internal/config"
)

const schema = `CREATE TABLE IF NOT EXISTS conductor_archive (
	kind        TEXT        NOT NULL,
	id          TEXT        NOT NULL,
	tenant_id   TEXT        NOT NULL,
	status      TEXT        NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	body        JSONB       NOT NULL,
	PRIMARY KEY (kind, id)
)`

// PostgresSink upserts records into the conductor_archive table.
type PostgresSink struct {
	db *pgxpool.Pool
}

// OpenPostgres creates a pool from cfg, verifies it, and ensures the
// archive table exists.
func OpenPostgres(ctx context.Context, cfg config.PostgresConfig) (*PostgresSink, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := NewPostgresSink(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresSink wraps an existing pool. The caller owns the pool unless
// Close is called.
func NewPostgresSink(db *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{db: db}
}

// EnsureSchema creates the archive table if it does not exist.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create archive table: %w", err)
	}
	return nil
}

// Write upserts r. A record archived twice keeps its latest body.
func (s *PostgresSink) Write(ctx context.Context, r Record) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO conductor_archive (kind, id, tenant_id, status, finished_at, body)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (kind, id) DO UPDATE
		 SET tenant_id = EXCLUDED.tenant_id, status = EXCLUDED.status,
		     finished_at = EXCLUDED.finished_at, body = EXCLUDED.body`,
		string(r.Kind), r.ID, r.TenantID, r.Status, r.FinishedAt, string(r.Body))
	if err != nil {
		return fmt.Errorf("archive %s %s to postgres: %w", r.Kind, r.ID, err)
	}
	return nil
}

// Get returns one archived record.
func (s *PostgresSink) Get(ctx context.Context, kind Kind, id string) (Record, error) {
	var (
		r    Record
		k    string
		body []byte
	)
	err := s.db.QueryRow(ctx,
		"SELECT kind, id, tenant_id, status, finished_at, body FROM conductor_archive WHERE kind = $1 AND id = $2",
		string(kind), id).Scan(&k, &r.ID, &r.TenantID, &r.Status, &r.FinishedAt, &body)
	if err != nil {
		return Record{}, err
	}
	r.Kind = Kind(k)
	r.Body = body
	return r, nil
}

// ByTenant returns up to limit records of kind for a tenant, newest first.
func (s *PostgresSink) ByTenant(ctx context.Context, kind Kind, tenantID string, limit int) ([]Record, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, status, finished_at, body FROM conductor_archive
		 WHERE kind = $1 AND tenant_id = $2 ORDER BY finished_at DESC LIMIT $3`,
		string(kind), tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r := Record{Kind: kind, TenantID: tenantID}
		var body []byte
		if err := rows.Scan(&r.ID, &r.Status, &r.FinishedAt, &body); err != nil {
			return nil, err
		}
		r.Body = body
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the pool.
func (s *PostgresSink) Close() error {
	s.db.Close()
	return nil
}
