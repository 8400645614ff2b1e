package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
)

func (s *Store) InsertQueueEntry(ctx context.Context, e QueueEntry) error {
	raw, err := json.Marshal(e.Criteria)
	if err != nil {
		return err
	}
	_, err = s.Pool.Exec(ctx, `
INSERT INTO queue_entries (id, player_id, display_name, criteria, status, session_id, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.PlayerID, e.DisplayName, raw, e.Status, e.SessionID, e.CreatedAt, e.ExpiresAt)
	return err
}

func (s *Store) UpdateQueueEntryStatus(ctx context.Context, entryID, status, sessionID string) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE queue_entries SET status = $2, session_id = $3 WHERE id = $1`,
		entryID, status, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteQueueEntry(ctx context.Context, entryID string) error {
	_, err := s.Pool.Exec(ctx, `DELETE FROM queue_entries WHERE id = $1`, entryID)
	return err
}

func (s *Store) GetQueueEntry(ctx context.Context, entryID string) (*QueueEntry, error) {
	row := s.Pool.QueryRow(ctx, `
SELECT id, player_id, display_name, criteria, status, session_id, created_at, expires_at
FROM queue_entries WHERE id = $1`, entryID)
	var (
		e   QueueEntry
		raw []byte
	)
	if err := row.Scan(&e.ID, &e.PlayerID, &e.DisplayName, &raw, &e.Status, &e.SessionID, &e.CreatedAt, &e.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(raw, &e.Criteria); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) ListWaitingQueueEntries(ctx context.Context) ([]QueueEntry, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT id, player_id, display_name, criteria, status, session_id, created_at, expires_at
FROM queue_entries WHERE status = 'waiting' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []QueueEntry
	for rows.Next() {
		var (
			e   QueueEntry
			raw []byte
		)
		if err := rows.Scan(&e.ID, &e.PlayerID, &e.DisplayName, &raw, &e.Status, &e.SessionID, &e.CreatedAt, &e.ExpiresAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &e.Criteria); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PurgeTerminalQueueEntries removes terminal entries older than the cutoff
// so the table does not accumulate forever. Returns rows removed.
func (s *Store) PurgeTerminalQueueEntries(ctx context.Context) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `
DELETE FROM queue_entries
WHERE status IN ('accepted', 'rejected', 'expired') AND expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
