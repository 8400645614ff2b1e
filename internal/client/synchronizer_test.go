package client

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/PromptLogic1/Arcadia-sub004/internal/board"
	"github.com/PromptLogic1/Arcadia-sub004/internal/matchmaking"
	"github.com/PromptLogic1/Arcadia-sub004/internal/presence"
	"github.com/PromptLogic1/Arcadia-sub004/internal/store"
	"github.com/PromptLogic1/Arcadia-sub004/internal/stream"
)

func newBoardEvent(id string, version int64, marked ...int) stream.Event {
	cells := seedBoard(9)
	for _, p := range marked {
		cells[p].IsMarked = true
	}
	return stream.Event{
		EventID: id,
		Event:   board.EventBoardUpdated,
		Channel: "s1",
		Version: version,
		Data:    board.BoardSnapshot{Cells: cells, Version: version},
	}
}

func TestHandleEventAppliesInOrder(t *testing.T) {
	mirror := NewMirror()
	s := newSynchronizer(&fakeBackend{}, mirror, "s1", SessionChannel, Options{})

	s.handleEvent(newBoardEvent("1", 1, 0))
	s.handleEvent(newBoardEvent("2", 2, 0, 1))

	snap := boardFromMirror(t, mirror, "s1")
	if snap.Version != 2 {
		t.Fatalf("expected version 2, got %d", snap.Version)
	}
	if s.currentEventID() != "2" {
		t.Fatalf("expected last event id 2, got %q", s.currentEventID())
	}
}

func TestHandleEventSkipsStaleAndDuplicate(t *testing.T) {
	mirror := NewMirror()
	s := newSynchronizer(&fakeBackend{}, mirror, "s1", SessionChannel, Options{})

	s.handleEvent(newBoardEvent("5", 5, 0, 1, 2))
	s.handleEvent(newBoardEvent("3", 3, 0)) // late arrival
	s.handleEvent(newBoardEvent("5", 5, 0)) // redelivery

	snap := boardFromMirror(t, mirror, "s1")
	if snap.Version != 5 {
		t.Fatalf("stale event replaced a newer snapshot: version %d", snap.Version)
	}
	if !snap.Cells[2].IsMarked {
		t.Fatal("redelivery clobbered the installed snapshot")
	}
}

func TestHandleEventDecodesWireForm(t *testing.T) {
	mirror := NewMirror()
	s := newSynchronizer(&fakeBackend{}, mirror, "s1", SessionChannel, Options{})

	snap := board.BoardSnapshot{Cells: seedBoard(4), Version: 9}
	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s.handleEvent(stream.Event{
		EventID: "9",
		Event:   board.EventBoardUpdated,
		Channel: "s1",
		Version: 9,
		Data:    json.RawMessage(raw),
	})

	got := boardFromMirror(t, mirror, "s1")
	if got.Version != 9 || len(got.Cells) != 4 {
		t.Fatalf("wire decode failed: %+v", got)
	}
}

func TestQueueMatchEventFiresCallback(t *testing.T) {
	mirror := NewMirror()
	var notice matchmaking.MatchNotice
	s := newSynchronizer(&fakeBackend{}, mirror, matchmaking.QueueChannel, QueueChannel, Options{
		OnMatch: func(n matchmaking.MatchNotice) { notice = n },
	})

	s.handleEvent(stream.Event{
		EventID: "1",
		Event:   matchmaking.EventQueueMatched,
		Channel: matchmaking.QueueChannel,
		Version: 3,
		Data:    matchmaking.MatchNotice{SessionID: "sess-1", PlayerIDs: []string{"p1", "p2"}},
	})
	if notice.SessionID != "sess-1" || len(notice.PlayerIDs) != 2 {
		t.Fatalf("match callback not fired: %+v", notice)
	}
}

func TestPollOnceSessionChannel(t *testing.T) {
	mirror := NewMirror()
	backend := &fakeBackend{
		getBoardState: func(context.Context, string) ([]store.Cell, int64, error) {
			return seedBoard(9), 6, nil
		},
		getSessionState: func(context.Context, string) (store.Session, error) {
			return store.Session{ID: "s1", Status: store.SessionActive, Version: 6}, nil
		},
	}
	s := newSynchronizer(backend, mirror, "s1", SessionChannel, Options{})

	if err := s.pollOnce(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if snap := boardFromMirror(t, mirror, "s1"); snap.Version != 6 {
		t.Fatalf("board not refreshed: %d", snap.Version)
	}
	e, ok := mirror.Get(Key{Kind: KindSession, ID: "s1"})
	if !ok || e.Version != 6 {
		t.Fatalf("session not refreshed: %+v ok=%v", e, ok)
	}
}

func TestPollCannotRegressPushState(t *testing.T) {
	mirror := NewMirror()
	backend := &fakeBackend{
		getBoardState: func(context.Context, string) ([]store.Cell, int64, error) {
			return seedBoard(9), 4, nil // poll returns older state
		},
		getSessionState: func(context.Context, string) (store.Session, error) {
			return store.Session{ID: "s1", Version: 4}, nil
		},
	}
	s := newSynchronizer(backend, mirror, "s1", SessionChannel, Options{})

	s.handleEvent(newBoardEvent("7", 7, 0))
	if err := s.pollOnce(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if snap := boardFromMirror(t, mirror, "s1"); snap.Version != 7 {
		t.Fatalf("poll regressed the mirror to %d", snap.Version)
	}
}

func TestPollOncePresenceGatesOnSnapshotTime(t *testing.T) {
	mirror := NewMirror()
	taken := time.Now()
	backend := &fakeBackend{
		getPresence: func(_ context.Context, channel string) (presence.Snapshot, error) {
			return presence.Snapshot{Channel: channel, OnlineCount: 2, TakenAt: taken}, nil
		},
	}
	s := newSynchronizer(backend, mirror, "s1", PresenceChannel, Options{})

	if err := s.pollOnce(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	e, ok := mirror.Get(Key{Kind: KindPresence, ID: "s1"})
	if !ok || e.Version != taken.UnixMilli() {
		t.Fatalf("presence entry wrong: %+v ok=%v", e, ok)
	}

	// An identical snapshot re-poll is a no-op skip.
	if mirror.Apply(Key{Kind: KindPresence, ID: "s1"}, presence.Snapshot{}, taken.UnixMilli()) {
		t.Fatal("equal snapshot time must not replace")
	}
}

func TestFresherPushCancelsInflightPoll(t *testing.T) {
	mirror := NewMirror()
	started := make(chan struct{})
	cancelled := make(chan struct{})
	backend := &fakeBackend{
		getBoardState: func(ctx context.Context, _ string) ([]store.Cell, int64, error) {
			close(started)
			select {
			case <-ctx.Done():
				close(cancelled)
				return nil, 0, ctx.Err()
			case <-time.After(5 * time.Second):
				return seedBoard(9), 1, nil
			}
		},
	}
	s := newSynchronizer(backend, mirror, "s1", SessionChannel, Options{})

	s.startPoll(context.Background())
	<-started

	// The push event applies and supersedes the stuck refetch.
	s.handleEvent(newBoardEvent("2", 2, 0))
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight poll kept running after a fresher push applied")
	}

	if snap := boardFromMirror(t, mirror, "s1"); snap.Version != 2 {
		t.Fatalf("push state lost: version %d", snap.Version)
	}
}

func TestSkippedPushLeavesPollRunning(t *testing.T) {
	mirror := NewMirror()
	started := make(chan struct{})
	release := make(chan struct{})
	var wasCancelled bool
	done := make(chan struct{})
	backend := &fakeBackend{
		getBoardState: func(ctx context.Context, _ string) ([]store.Cell, int64, error) {
			close(started)
			defer close(done)
			select {
			case <-ctx.Done():
				wasCancelled = true
				return nil, 0, ctx.Err()
			case <-release:
				return seedBoard(9), 3, nil
			}
		},
		getSessionState: func(context.Context, string) (store.Session, error) {
			return store.Session{ID: "s1", Version: 3}, nil
		},
	}
	s := newSynchronizer(backend, mirror, "s1", SessionChannel, Options{})

	s.handleEvent(newBoardEvent("5", 5, 0))
	s.startPoll(context.Background())
	<-started

	// A stale redelivery is skipped by the version gate and must not
	// cancel the refetch.
	s.handleEvent(newBoardEvent("5", 5, 0))
	close(release)
	<-done
	if wasCancelled {
		t.Fatal("skipped push cancelled the in-flight poll")
	}
}

func TestRunGoesLiveAndFallsBackOnDrop(t *testing.T) {
	mirror := NewMirror()
	events := make(chan stream.Event, 4)
	subscribed := make(chan struct{}, 16)
	first := true
	backend := &fakeBackend{
		subscribe: func(ctx context.Context, _, _ string) (<-chan stream.Event, error) {
			select {
			case subscribed <- struct{}{}:
			default:
			}
			if first {
				first = false
				return events, nil
			}
			// Later subscriptions stay open until the context ends.
			replacement := make(chan stream.Event)
			go func() {
				<-ctx.Done()
				close(replacement)
			}()
			return replacement, nil
		},
		getBoardState: func(context.Context, string) ([]store.Cell, int64, error) {
			return seedBoard(9), 3, nil
		},
		getSessionState: func(context.Context, string) (store.Session, error) {
			return store.Session{ID: "s1", Version: 3}, nil
		},
	}
	s := newSynchronizer(backend, mirror, "s1", SessionChannel, Options{
		PollInterval: time.Hour,
		RetryDelay:   10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	<-subscribed
	events <- newBoardEvent("1", 1, 0)
	waitFor(t, func() bool {
		e, ok := mirror.Get(Key{Kind: KindBoard, ID: "s1"})
		return ok && e.Version == 1
	})
	if s.State() != StateLive {
		t.Fatalf("expected live, got %s", s.State())
	}

	// Drop the stream: the synchronizer refetches and resubscribes.
	close(events)
	<-subscribed
	waitFor(t, func() bool {
		e, ok := mirror.Get(Key{Kind: KindBoard, ID: "s1"})
		return ok && e.Version == 3
	})

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop on cancel")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
