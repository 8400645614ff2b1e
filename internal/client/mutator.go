package client

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/PromptLogic1/Arcadia-sub004/internal/board"
	"github.com/PromptLogic1/Arcadia-sub004/internal/store"
)

const defaultMutationTimeout = 10 * time.Second

type MutationStatus string

const (
	MutationCommitted MutationStatus = "committed"
	MutationConflict  MutationStatus = "conflict"
	MutationFailed    MutationStatus = "failed"
)

// MutationResult is the three-branch outcome of an optimistic mutation.
// Conflict results carry the authoritative state the mirror was resynced
// to; failed results carry the retryable error after the mirror was rolled
// back to its pre-mutation snapshot.
type MutationResult struct {
	Status    MutationStatus
	RequestID string
	Cells     []store.Cell
	Version   int64
	Err       error
}

// BoardMutator applies cell mutations optimistically: the mirror is
// updated before the round trip so the initiator gets immediate feedback,
// then reconciled against the authoritative response.
type BoardMutator struct {
	backend   Backend
	mirror    *Mirror
	sessionID string
	playerID  string
	timeout   time.Duration
}

func NewBoardMutator(backend Backend, mirror *Mirror, sessionID, playerID string, timeout time.Duration) *BoardMutator {
	if timeout <= 0 {
		timeout = defaultMutationTimeout
	}
	return &BoardMutator{
		backend:   backend,
		mirror:    mirror,
		sessionID: sessionID,
		playerID:  playerID,
		timeout:   timeout,
	}
}

func (b *BoardMutator) Mark(ctx context.Context, position int) MutationResult {
	return b.mutate(ctx, position, board.ActionMark)
}

func (b *BoardMutator) Unmark(ctx context.Context, position int) MutationResult {
	return b.mutate(ctx, position, board.ActionUnmark)
}

func (b *BoardMutator) mutate(ctx context.Context, position int, action string) MutationResult {
	requestID := uuid.NewString()
	key := Key{Kind: KindBoard, ID: b.sessionID}

	entry, ok := b.mirror.Get(key)
	if !ok {
		cells, version, err := b.backend.GetBoardState(ctx, b.sessionID)
		if err != nil {
			return MutationResult{Status: MutationFailed, RequestID: requestID, Err: err}
		}
		entry = Entry{Value: board.BoardSnapshot{Cells: cells, Version: version}, Version: version}
		b.mirror.Put(key, entry.Value, version)
	}
	snapshot, ok := entry.Value.(board.BoardSnapshot)
	if !ok {
		return MutationResult{Status: MutationFailed, RequestID: requestID, Err: errors.New("mirror holds no board snapshot")}
	}
	if position < 0 || position >= len(snapshot.Cells) {
		return MutationResult{Status: MutationFailed, RequestID: requestID, Err: board.ErrInvalidCell}
	}

	// Speculative apply: the mirror moves ahead of the server by exactly
	// the version the accepted mutation would produce, so the confirming
	// broadcast lands as an idempotent skip.
	speculative := applyLocal(snapshot.Cells, position, b.playerID, action)
	specVersion := snapshot.Version + 1
	b.mirror.Put(key, board.BoardSnapshot{Cells: speculative, Version: specVersion}, specVersion)

	subCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	cells, version, err := b.backend.SubmitCellMutation(subCtx, b.sessionID, position, b.playerID, action, snapshot.Version)
	if err == nil {
		return MutationResult{Status: MutationCommitted, RequestID: requestID, Cells: cells, Version: version}
	}

	var conflict *board.VersionConflict
	if errors.As(err, &conflict) {
		// Stale expected version: discard the speculative state and adopt
		// the authoritative snapshot. No automatic replay.
		b.mirror.Put(key, board.BoardSnapshot{Cells: conflict.Cells, Version: conflict.Version}, conflict.Version)
		log.Debug().Str("session_id", b.sessionID).Int64("authoritative_version", conflict.Version).Msg("mutation conflicted, mirror resynced")
		return MutationResult{Status: MutationConflict, RequestID: requestID, Cells: conflict.Cells, Version: conflict.Version}
	}

	// Transient failure: restore the exact pre-mutation snapshot.
	b.mirror.Put(key, snapshot, snapshot.Version)
	return MutationResult{Status: MutationFailed, RequestID: requestID, Err: err}
}

// applyLocal mirrors the server's accept semantics on a cloned grid.
func applyLocal(cells []store.Cell, position int, playerID, action string) []store.Cell {
	out := make([]store.Cell, len(cells))
	copy(out, cells)
	ids := make([]string, 0, len(cells[position].CompletedBy)+1)
	for _, id := range cells[position].CompletedBy {
		if action == board.ActionUnmark && id == playerID {
			continue
		}
		ids = append(ids, id)
	}
	if action == board.ActionMark && !contains(ids, playerID) {
		ids = append(ids, playerID)
	}
	cell := out[position]
	cell.CompletedBy = ids
	cell.IsMarked = len(ids) > 0
	cell.LastModifiedBy = playerID
	cell.LastUpdated = time.Now()
	out[position] = cell
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
