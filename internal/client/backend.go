// Package client is the consumer-side half of the sync protocol: a local
// mirror of server-owned state, an optimistic mutation controller that
// reconciles speculative writes against the authoritative store, and a
// per-channel synchronizer that merges push events with poll fallback.
package client

import (
	"context"

	"github.com/PromptLogic1/Arcadia-sub004/internal/matchmaking"
	"github.com/PromptLogic1/Arcadia-sub004/internal/presence"
	"github.com/PromptLogic1/Arcadia-sub004/internal/store"
	"github.com/PromptLogic1/Arcadia-sub004/internal/stream"
)

// Backend is the narrow surface the client core needs from the sync
// server. SubmitCellMutation returns *board.VersionConflict when the
// expected version is stale; the conflict carries the authoritative state.
type Backend interface {
	GetSessionState(ctx context.Context, sessionID string) (store.Session, error)
	GetBoardState(ctx context.Context, sessionID string) ([]store.Cell, int64, error)
	SubmitCellMutation(ctx context.Context, sessionID string, position int, playerID, action string, expectedVersion int64) ([]store.Cell, int64, error)
	GetSessionPlayers(ctx context.Context, sessionID string) ([]store.Player, error)

	JoinQueue(ctx context.Context, player store.Player, criteria store.Criteria) (store.QueueEntry, error)
	LeaveQueue(ctx context.Context, entryID string) error
	AcceptQueueEntry(ctx context.Context, entryID, sessionID string) error
	RejectQueueEntry(ctx context.Context, entryID string) error
	CleanupExpiredQueue(ctx context.Context) (int, error)
	GetQueueState(ctx context.Context) (matchmaking.QueueSnapshot, error)

	Heartbeat(ctx context.Context, channel, playerID string, metadata map[string]any) error
	GetPresenceSnapshot(ctx context.Context, channel string) (presence.Snapshot, error)

	// Subscribe opens the push stream for a channel. The returned channel
	// closes when the stream drops; cancelling ctx tears it down.
	Subscribe(ctx context.Context, channel, lastEventID string) (<-chan stream.Event, error)
}
