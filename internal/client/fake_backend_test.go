package client

import (
	"context"
	"errors"

	"github.com/PromptLogic1/Arcadia-sub004/internal/matchmaking"
	"github.com/PromptLogic1/Arcadia-sub004/internal/presence"
	"github.com/PromptLogic1/Arcadia-sub004/internal/store"
	"github.com/PromptLogic1/Arcadia-sub004/internal/stream"
)

// fakeBackend lets each test script exactly the calls it cares about.
// Unscripted calls fail loudly.
type fakeBackend struct {
	getSessionState    func(ctx context.Context, sessionID string) (store.Session, error)
	getBoardState      func(ctx context.Context, sessionID string) ([]store.Cell, int64, error)
	submitCellMutation func(ctx context.Context, sessionID string, position int, playerID, action string, expectedVersion int64) ([]store.Cell, int64, error)
	getQueueState      func(ctx context.Context) (matchmaking.QueueSnapshot, error)
	getPresence        func(ctx context.Context, channel string) (presence.Snapshot, error)
	subscribe          func(ctx context.Context, channel, lastEventID string) (<-chan stream.Event, error)
}

var errUnscripted = errors.New("unscripted backend call")

func (f *fakeBackend) GetSessionState(ctx context.Context, sessionID string) (store.Session, error) {
	if f.getSessionState == nil {
		return store.Session{}, errUnscripted
	}
	return f.getSessionState(ctx, sessionID)
}

func (f *fakeBackend) GetBoardState(ctx context.Context, sessionID string) ([]store.Cell, int64, error) {
	if f.getBoardState == nil {
		return nil, 0, errUnscripted
	}
	return f.getBoardState(ctx, sessionID)
}

func (f *fakeBackend) SubmitCellMutation(ctx context.Context, sessionID string, position int, playerID, action string, expectedVersion int64) ([]store.Cell, int64, error) {
	if f.submitCellMutation == nil {
		return nil, 0, errUnscripted
	}
	return f.submitCellMutation(ctx, sessionID, position, playerID, action, expectedVersion)
}

func (f *fakeBackend) GetSessionPlayers(ctx context.Context, sessionID string) ([]store.Player, error) {
	return nil, errUnscripted
}

func (f *fakeBackend) JoinQueue(ctx context.Context, player store.Player, criteria store.Criteria) (store.QueueEntry, error) {
	return store.QueueEntry{}, errUnscripted
}

func (f *fakeBackend) LeaveQueue(ctx context.Context, entryID string) error { return errUnscripted }

func (f *fakeBackend) AcceptQueueEntry(ctx context.Context, entryID, sessionID string) error {
	return errUnscripted
}

func (f *fakeBackend) RejectQueueEntry(ctx context.Context, entryID string) error {
	return errUnscripted
}

func (f *fakeBackend) CleanupExpiredQueue(ctx context.Context) (int, error) {
	return 0, errUnscripted
}

func (f *fakeBackend) GetQueueState(ctx context.Context) (matchmaking.QueueSnapshot, error) {
	if f.getQueueState == nil {
		return matchmaking.QueueSnapshot{}, errUnscripted
	}
	return f.getQueueState(ctx)
}

func (f *fakeBackend) Heartbeat(ctx context.Context, channel, playerID string, metadata map[string]any) error {
	return errUnscripted
}

func (f *fakeBackend) GetPresenceSnapshot(ctx context.Context, channel string) (presence.Snapshot, error) {
	if f.getPresence == nil {
		return presence.Snapshot{}, errUnscripted
	}
	return f.getPresence(ctx, channel)
}

func (f *fakeBackend) Subscribe(ctx context.Context, channel, lastEventID string) (<-chan stream.Event, error) {
	if f.subscribe == nil {
		return nil, errUnscripted
	}
	return f.subscribe(ctx, channel, lastEventID)
}
