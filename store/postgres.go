package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Anshjain123/Code-N-Collab/protocol"
)

const schema = `
CREATE TABLE IF NOT EXISTS models (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	version    INTEGER NOT NULL,
	elements   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);
CREATE TABLE IF NOT EXISTS compile_runs (
	job_id      TEXT PRIMARY KEY,
	room        TEXT NOT NULL,
	language    TEXT NOT NULL,
	succeeded   BOOLEAN NOT NULL,
	duration_ms BIGINT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);`

// Postgres stores models and compile runs in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to url and creates the tables if needed.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) LoadModel(ctx context.Context, key protocol.ModelKey) (Snapshot, error) {
	snap := Snapshot{Collection: key.Collection, ID: key.ID}
	err := p.pool.QueryRow(ctx,
		`SELECT version, elements, updated_at FROM models WHERE collection = $1 AND id = $2`,
		key.Collection, key.ID,
	).Scan(&snap.Version, &snap.Elements, &snap.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("store: load %s: %w", key, err)
	}
	return snap, nil
}

func (p *Postgres) SaveModel(ctx context.Context, snap Snapshot) error {
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now()
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO models (collection, id, version, elements, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (collection, id)
		 DO UPDATE SET version = EXCLUDED.version, elements = EXCLUDED.elements, updated_at = EXCLUDED.updated_at
		 WHERE models.version <= EXCLUDED.version`,
		snap.Collection, snap.ID, snap.Version, snap.Elements, snap.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: save %s: %w", snap.Key(), err)
	}
	return nil
}

func (p *Postgres) DeleteModel(ctx context.Context, key protocol.ModelKey) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM models WHERE collection = $1 AND id = $2`, key.Collection, key.ID)
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) LogCompile(ctx context.Context, rec CompileRecord) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO compile_runs (job_id, room, language, succeeded, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.JobID, rec.Room, rec.Language, rec.Succeeded, rec.Duration.Milliseconds(), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: log compile %s: %w", rec.JobID, err)
	}
	return nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}
