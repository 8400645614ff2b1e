package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

// Store wraps DB access.
type Store struct {
	Pool *pgxpool.Pool
}

func New(dsn string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.Pool.Ping(ctx)
}

// EnsureSchema creates the tables the sync server needs. The board cell
// grid is stored as a jsonb snapshot per session; the in-memory store is
// authoritative and writes through on accepted mutations.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	host_id     TEXT NOT NULL,
	board_size  INT NOT NULL,
	version     BIGINT NOT NULL DEFAULT 0,
	cells       JSONB NOT NULL DEFAULT '[]',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS session_players (
	session_id   TEXT NOT NULL REFERENCES sessions(id),
	player_id    TEXT NOT NULL,
	display_name TEXT NOT NULL,
	color        TEXT NOT NULL,
	team         TEXT NOT NULL DEFAULT '',
	joined_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (session_id, player_id)
);
CREATE TABLE IF NOT EXISTS queue_entries (
	id           TEXT PRIMARY KEY,
	player_id    TEXT NOT NULL,
	display_name TEXT NOT NULL,
	criteria     JSONB NOT NULL DEFAULT '{}',
	status       TEXT NOT NULL,
	session_id   TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_queue_entries_status ON queue_entries(status, expires_at);
`)
	return err
}
