package matchmaking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/PromptLogic1/Arcadia-sub004/internal/board"
	"github.com/PromptLogic1/Arcadia-sub004/internal/presence"
	"github.com/PromptLogic1/Arcadia-sub004/internal/store"
)

func newTestManager(t *testing.T, clock clockwork.Clock) (*Manager, *board.Store) {
	t.Helper()
	boards := board.NewStore(nil, 64, 0)
	tracker := presence.NewTracker(clock, 30*time.Second)
	return NewManager(boards, tracker, nil, FIFOStrategy{}, clock, time.Minute, 64), boards
}

func TestJoinRejectsDuplicateWaitingPlayer(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, clockwork.NewFakeClock())

	if _, err := m.Join(ctx, store.Player{ID: "p1", DisplayName: "Ann"}, store.Criteria{Mode: "ranked"}); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if _, err := m.Join(ctx, store.Player{ID: "p1", DisplayName: "Ann"}, store.Criteria{Mode: "ranked"}); !errors.Is(err, ErrAlreadyQueued) {
		t.Fatalf("expected ErrAlreadyQueued, got %v", err)
	}
}

func TestFIFOMatchCreatesActiveSession(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	m, boards := newTestManager(t, clock)

	first, err := m.Join(ctx, store.Player{ID: "p1", DisplayName: "Ann"}, store.Criteria{Mode: "ranked"})
	if err != nil {
		t.Fatalf("join p1: %v", err)
	}
	if first.Status != store.QueueWaiting {
		t.Fatalf("expected p1 waiting, got %s", first.Status)
	}

	second, err := m.Join(ctx, store.Player{ID: "p2", DisplayName: "Ben"}, store.Criteria{Mode: "ranked"})
	if err != nil {
		t.Fatalf("join p2: %v", err)
	}
	if second.Status != store.QueueAccepted || second.SessionID == "" {
		t.Fatalf("expected p2 accepted with session, got %+v", second)
	}

	firstNow, err := m.Entry(first.ID)
	if err != nil {
		t.Fatalf("entry p1: %v", err)
	}
	if firstNow.Status != store.QueueAccepted || firstNow.SessionID != second.SessionID {
		t.Fatalf("expected p1 accepted into %s, got %+v", second.SessionID, firstNow)
	}

	sess, err := boards.GetSession(second.SessionID)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if sess.Status != store.SessionActive {
		t.Fatalf("expected active session, got %s", sess.Status)
	}
	if sess.HostID != "p1" {
		t.Fatalf("expected longer-waiting player as host, got %s", sess.HostID)
	}
	players, err := boards.Players(second.SessionID)
	if err != nil {
		t.Fatalf("players: %v", err)
	}
	if len(players) != 2 {
		t.Fatalf("expected 2 players, got %d", len(players))
	}
}

func TestIncompatibleCriteriaDoNotMatch(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, clockwork.NewFakeClock())

	if _, err := m.Join(ctx, store.Player{ID: "p1"}, store.Criteria{Mode: "ranked"}); err != nil {
		t.Fatalf("join p1: %v", err)
	}
	e, err := m.Join(ctx, store.Player{ID: "p2"}, store.Criteria{Mode: "casual"})
	if err != nil {
		t.Fatalf("join p2: %v", err)
	}
	if e.Status != store.QueueWaiting {
		t.Fatalf("expected waiting, got %s", e.Status)
	}
}

func TestLeaveWaitingEntry(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, clockwork.NewFakeClock())

	e, err := m.Join(ctx, store.Player{ID: "p1"}, store.Criteria{Mode: "ranked"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := m.Leave(ctx, e.ID); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := m.Leave(ctx, e.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second leave, got %v", err)
	}
	// The player can queue again after leaving.
	if _, err := m.Join(ctx, store.Player{ID: "p1"}, store.Criteria{Mode: "ranked"}); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
}

func TestRejectOnlyFromWaiting(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, clockwork.NewFakeClock())

	e, err := m.Join(ctx, store.Player{ID: "p1"}, store.Criteria{Mode: "ranked"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := m.Reject(ctx, e.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := m.Reject(ctx, e.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if err := m.Accept(ctx, "missing", "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCleanupExpiredSweepIsIdempotent(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	m, _ := newTestManager(t, clock)

	e, err := m.Join(ctx, store.Player{ID: "p1"}, store.Criteria{Mode: "ranked"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	clock.Advance(30 * time.Second)
	if n, _ := m.CleanupExpired(ctx); n != 0 {
		t.Fatalf("expected nothing expired yet, got %d", n)
	}

	clock.Advance(31 * time.Second)
	n, err := m.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired, got %d", n)
	}
	got, err := m.Entry(e.ID)
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if got.Status != store.QueueExpired {
		t.Fatalf("expected expired, got %s", got.Status)
	}

	if n, _ := m.CleanupExpired(ctx); n != 0 {
		t.Fatalf("second sweep should expire nothing, got %d", n)
	}
}

func TestExpiredEntryIsPurgedFromMemory(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	m, _ := newTestManager(t, clock)

	e, err := m.Join(ctx, store.Player{ID: "p1"}, store.Criteria{Mode: "ranked"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	clock.Advance(2 * time.Minute)
	if _, err := m.CleanupExpired(ctx); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	// First sweep marked it expired; second sweep drops the terminal entry.
	if _, err := m.CleanupExpired(ctx); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if _, err := m.Entry(e.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected entry gone, got %v", err)
	}
}

// hookedPersister lets a test run code in the middle of the match
// handoff, after the pair is reserved but before it is accepted.
type hookedPersister struct {
	onInsert func(e store.QueueEntry)
}

func (p *hookedPersister) InsertQueueEntry(_ context.Context, e store.QueueEntry) error {
	if p.onInsert != nil {
		p.onInsert(e)
	}
	return nil
}

func (p *hookedPersister) UpdateQueueEntryStatus(context.Context, string, string, string) error {
	return nil
}
func (p *hookedPersister) DeleteQueueEntry(context.Context, string) error { return nil }
func (p *hookedPersister) ListWaitingQueueEntries(context.Context) ([]store.QueueEntry, error) {
	return nil, nil
}
func (p *hookedPersister) PurgeTerminalQueueEntries(context.Context) (int64, error) { return 0, nil }

func TestOpponentCannotLeaveDuringHandoff(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	boards := board.NewStore(nil, 64, 0)
	tracker := presence.NewTracker(clock, 30*time.Second)
	repo := &hookedPersister{}
	m := NewManager(boards, tracker, repo, FIFOStrategy{}, clock, time.Minute, 64)

	first, err := m.Join(ctx, store.Player{ID: "p1", DisplayName: "Ann"}, store.Criteria{Mode: "ranked"})
	if err != nil {
		t.Fatalf("join p1: %v", err)
	}

	var leaveErr error
	hookRan := false
	repo.onInsert = func(e store.QueueEntry) {
		if e.PlayerID != "p2" {
			return
		}
		hookRan = true
		leaveErr = m.Leave(ctx, first.ID)
	}
	second, err := m.Join(ctx, store.Player{ID: "p2", DisplayName: "Ben"}, store.Criteria{Mode: "ranked"})
	if err != nil {
		t.Fatalf("join p2: %v", err)
	}
	if !hookRan {
		t.Fatal("handoff hook never ran")
	}
	if !errors.Is(leaveErr, ErrNotFound) {
		t.Fatalf("leave during handoff should miss the reserved entry, got %v", leaveErr)
	}

	firstNow, err := m.Entry(first.ID)
	if err != nil {
		t.Fatalf("entry p1: %v", err)
	}
	if firstNow.Status != store.QueueAccepted || firstNow.SessionID != second.SessionID {
		t.Fatalf("reserved entry lost its match: %+v", firstNow)
	}
}

func TestOpponentCannotBeAcceptedElsewhereDuringHandoff(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	boards := board.NewStore(nil, 64, 0)
	tracker := presence.NewTracker(clock, 30*time.Second)
	repo := &hookedPersister{}
	m := NewManager(boards, tracker, repo, FIFOStrategy{}, clock, time.Minute, 64)

	first, err := m.Join(ctx, store.Player{ID: "p1"}, store.Criteria{Mode: "ranked"})
	if err != nil {
		t.Fatalf("join p1: %v", err)
	}

	var acceptErr error
	repo.onInsert = func(e store.QueueEntry) {
		if e.PlayerID == "p2" {
			acceptErr = m.Accept(ctx, first.ID, "some-other-session")
		}
	}
	second, err := m.Join(ctx, store.Player{ID: "p2"}, store.Criteria{Mode: "ranked"})
	if err != nil {
		t.Fatalf("join p2: %v", err)
	}
	if !errors.Is(acceptErr, ErrNotFound) {
		t.Fatalf("accept during handoff should miss the reserved entry, got %v", acceptErr)
	}
	firstNow, err := m.Entry(first.ID)
	if err != nil {
		t.Fatalf("entry p1: %v", err)
	}
	if firstNow.SessionID != second.SessionID {
		t.Fatalf("entry accepted into %s instead of the matched session %s", firstNow.SessionID, second.SessionID)
	}
}

type failingSessions struct{}

func (failingSessions) CreateSession(context.Context, store.Player, int) (store.Session, []store.Cell, error) {
	return store.Session{}, nil, errors.New("session store down")
}

func (failingSessions) JoinSession(context.Context, string, store.Player) (store.Player, error) {
	return store.Player{}, errors.New("session store down")
}

func (failingSessions) TransitionStatus(context.Context, string, string) (store.Session, error) {
	return store.Session{}, errors.New("session store down")
}

func TestFailedHandoffRequeuesBothEntries(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	tracker := presence.NewTracker(clock, 30*time.Second)
	m := NewManager(failingSessions{}, tracker, nil, FIFOStrategy{}, clock, time.Minute, 64)

	first, err := m.Join(ctx, store.Player{ID: "p1"}, store.Criteria{Mode: "ranked"})
	if err != nil {
		t.Fatalf("join p1: %v", err)
	}
	if _, err := m.Join(ctx, store.Player{ID: "p2"}, store.Criteria{Mode: "ranked"}); err == nil {
		t.Fatal("expected handoff failure to surface")
	}

	firstNow, err := m.Entry(first.ID)
	if err != nil {
		t.Fatalf("entry p1: %v", err)
	}
	if firstNow.Status != store.QueueWaiting || firstNow.SessionID != "" {
		t.Fatalf("opponent not restored to waiting: %+v", firstNow)
	}
	snap := m.Snapshot()
	waiting := 0
	for _, e := range snap.Entries {
		if e.Status == store.QueueWaiting {
			waiting++
		}
	}
	if waiting != 2 {
		t.Fatalf("expected both entries back in the pool, got %d waiting", waiting)
	}
}

func TestSnapshotDoesNotAdvanceVersion(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, clockwork.NewFakeClock())

	if _, err := m.Join(ctx, store.Player{ID: "p1"}, store.Criteria{Mode: "ranked"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	a := m.Snapshot()
	b := m.Snapshot()
	if a.Version != b.Version {
		t.Fatalf("read advanced version: %d vs %d", a.Version, b.Version)
	}
	if len(a.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(a.Entries))
	}
}
