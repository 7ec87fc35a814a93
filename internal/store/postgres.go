package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// transcriptsSchema is applied on connect. The table is append-only; one row
// per transcript fragment.
const transcriptsSchema = `CREATE TABLE IF NOT EXISTS transcripts (
	id serial PRIMARY KEY,
	show_name TEXT NOT NULL,
	"timestamp" TIMESTAMP WITHOUT TIME ZONE NOT NULL,
	content TEXT NOT NULL
);`

// Postgres persists transcript fragments. The pool is safe to share across
// the short-lived per-fragment inserts.
type Postgres struct {
	pool     *pgxpool.Pool
	showName string
}

// NewPostgres connects to the database at dsn, ensures the transcripts table
// exists, and tags every insert with showName.
func NewPostgres(ctx context.Context, dsn, showName string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, transcriptsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	log.Info().Str("show_name", showName).Msg("Connected to Postgres transcript store")

	return &Postgres{pool: pool, showName: showName}, nil
}

// InsertTranscript writes one transcript fragment.
func (p *Postgres) InsertTranscript(ctx context.Context, timestamp time.Time, content string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO transcripts (show_name, "timestamp", content) VALUES ($1, $2, $3)`,
		p.showName, timestamp.UTC(), content,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transcript: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}
