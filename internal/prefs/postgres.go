package prefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlPreferences = `
CREATE TABLE IF NOT EXISTS preferences (
    key        TEXT         PRIMARY KEY,
    value      BOOLEAN      NOT NULL,
    updated_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);`

// Postgres stores preferences in a "preferences" table.
type Postgres struct {
	pool *pgxpool.Pool
	key  string
}

// NewPostgres opens a pool to dsn, pings it and creates the preferences
// table if it does not exist. key defaults to [DefaultKey].
func NewPostgres(ctx context.Context, dsn, key string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("prefs: postgres: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("prefs: postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("prefs: postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlPreferences); err != nil {
		pool.Close()
		return nil, fmt.Errorf("prefs: postgres: migrate: %w", err)
	}
	if key == "" {
		key = DefaultKey
	}
	return &Postgres{pool: pool, key: key}, nil
}

// LoadMute implements [MuteStore].
func (p *Postgres) LoadMute(ctx context.Context) (bool, error) {
	var muted bool
	err := p.pool.QueryRow(ctx, `SELECT value FROM preferences WHERE key = $1`, p.key).Scan(&muted)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("prefs: postgres: load %s: %w", p.key, err)
	}
	return muted, nil
}

// SaveMute implements [MuteStore].
func (p *Postgres) SaveMute(ctx context.Context, muted bool) error {
	const q = `
INSERT INTO preferences (key, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	if _, err := p.pool.Exec(ctx, q, p.key, muted); err != nil {
		return fmt.Errorf("prefs: postgres: save %s: %w", p.key, err)
	}
	return nil
}

// Ping implements [Store].
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("prefs: postgres: ping: %w", err)
	}
	return nil
}

// Close implements [Store].
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
