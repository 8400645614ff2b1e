package session

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

func TestOverviewCombinesRosterAndLiveness(t *testing.T) {
	ctx := context.Background()
	boards := board.NewStore(nil, 16, 0)
	clock := clockwork.NewFakeClock()
	tracker := presence.NewTracker(clock, 30*time.Second)
	svc := NewService(boards, tracker)

	sess, _, err := boards.CreateSession(ctx, store.Player{ID: "host", DisplayName: "Host"}, 9)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := boards.JoinSession(ctx, sess.ID, store.Player{ID: "p2", DisplayName: "Ben"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	tracker.Heartbeat(sess.ID, "host", nil)

	overview, err := svc.Overview(sess.ID)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if len(overview.Players) != 2 {
		t.Fatalf("expected 2 players, got %d", len(overview.Players))
	}
	if overview.OnlineCount != 1 || overview.Online[0] != "host" {
		t.Fatalf("expected only host online, got %+v", overview.Online)
	}
}

func TestOverviewErrors(t *testing.T) {
	boards := board.NewStore(nil, 16, 0)
	tracker := presence.NewTracker(clockwork.NewFakeClock(), 30*time.Second)
	svc := NewService(boards, tracker)

	if _, err := svc.Overview(""); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := svc.Overview("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
