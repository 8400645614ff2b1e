package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
)

func (s *Store) UpsertSession(ctx context.Context, sess Session, cells []Cell) error {
	raw, err := json.Marshal(cells)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
INSERT INTO sessions (id, status, host_id, board_size, version, cells, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	host_id = EXCLUDED.host_id,
	version = EXCLUDED.version,
	cells = EXCLUDED.cells,
	updated_at = EXCLUDED.updated_at`,
		sess.ID, sess.Status, sess.HostID, sess.BoardSize, sess.Version, raw, sess.CreatedAt, sess.UpdatedAt)
	return err
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*Session, []Cell, error) {
	row := s.Pool.QueryRow(ctx, `
SELECT id, status, host_id, board_size, version, cells, created_at, updated_at
FROM sessions WHERE id = $1`, sessionID)
	var (
		sess Session
		raw  []byte
	)
	if err := row.Scan(&sess.ID, &sess.Status, &sess.HostID, &sess.BoardSize, &sess.Version, &raw, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	var cells []Cell
	if err := json.Unmarshal(raw, &cells); err != nil {
		return nil, nil, err
	}
	return &sess, cells, nil
}

// ListOpenSessions returns every session that has not reached a terminal
// status, with its cell grid. Used to rehydrate the in-memory store at boot.
func (s *Store) ListOpenSessions(ctx context.Context) ([]Session, map[string][]Cell, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT id, status, host_id, board_size, version, cells, created_at, updated_at
FROM sessions WHERE status NOT IN ('completed', 'cancelled')`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var sessions []Session
	cellsByID := map[string][]Cell{}
	for rows.Next() {
		var (
			sess Session
			raw  []byte
		)
		if err := rows.Scan(&sess.ID, &sess.Status, &sess.HostID, &sess.BoardSize, &sess.Version, &raw, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, nil, err
		}
		var cells []Cell
		if err := json.Unmarshal(raw, &cells); err != nil {
			return nil, nil, err
		}
		sessions = append(sessions, sess)
		cellsByID[sess.ID] = cells
	}
	return sessions, cellsByID, rows.Err()
}

func (s *Store) UpsertSessionPlayer(ctx context.Context, sessionID string, p Player) error {
	_, err := s.Pool.Exec(ctx, `
INSERT INTO session_players (session_id, player_id, display_name, color, team, joined_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (session_id, player_id) DO UPDATE SET
	display_name = EXCLUDED.display_name,
	color = EXCLUDED.color,
	team = EXCLUDED.team`,
		sessionID, p.ID, p.DisplayName, p.Color, p.Team, p.JoinedAt)
	return err
}

func (s *Store) DeleteSessionPlayer(ctx context.Context, sessionID, playerID string) error {
	_, err := s.Pool.Exec(ctx,
		`DELETE FROM session_players WHERE session_id = $1 AND player_id = $2`,
		sessionID, playerID)
	return err
}

func (s *Store) ListSessionPlayers(ctx context.Context, sessionID string) ([]Player, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT player_id, display_name, color, team, joined_at
FROM session_players WHERE session_id = $1 ORDER BY joined_at`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var players []Player
	for rows.Next() {
		var p Player
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.Color, &p.Team, &p.JoinedAt); err != nil {
			return nil, err
		}
		players = append(players, p)
	}
	return players, rows.Err()
}
