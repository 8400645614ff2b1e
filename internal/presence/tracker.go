package presence

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultLivenessWindow = 30 * time.Second

// Player is one online entry in a channel snapshot.
type Player struct {
	PlayerID string         `json:"player_id"`
	LastSeen time.Time      `json:"last_seen"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Snapshot struct {
	Channel     string    `json:"channel"`
	Players     []Player  `json:"players"`
	OnlineCount int       `json:"online_count"`
	TakenAt     time.Time `json:"taken_at"`
}

// Tracker keeps per-channel heartbeat records. Liveness is derived: a
// player whose last heartbeat is older than the window is simply absent
// from the next snapshot, no offline event exists.
type Tracker struct {
	clock  clockwork.Clock
	window time.Duration

	mu       sync.Mutex
	channels map[string]map[string]Player
}

func NewTracker(clock clockwork.Clock, window time.Duration) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if window <= 0 {
		window = DefaultLivenessWindow
	}
	return &Tracker{
		clock:    clock,
		window:   window,
		channels: map[string]map[string]Player{},
	}
}

// Heartbeat upserts the player's last-seen timestamp and metadata. No
// history is kept; the newest heartbeat wins.
func (t *Tracker) Heartbeat(channel, playerID string, metadata map[string]any) {
	if channel == "" || playerID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := t.channels[channel]
	if ch == nil {
		ch = map[string]Player{}
		t.channels[channel] = ch
	}
	var meta map[string]any
	if len(metadata) > 0 {
		meta = make(map[string]any, len(metadata))
		for k, v := range metadata {
			meta[k] = v
		}
	}
	ch[playerID] = Player{
		PlayerID: playerID,
		LastSeen: t.clock.Now(),
		Metadata: meta,
	}
}

// Snapshot returns the players with a heartbeat inside the liveness
// window, pruning everyone else from the registry as a side effect.
func (t *Tracker) Snapshot(channel string) Snapshot {
	now := t.clock.Now()
	cutoff := now.Add(-t.window)

	t.mu.Lock()
	defer t.mu.Unlock()
	snap := Snapshot{Channel: channel, TakenAt: now}
	ch := t.channels[channel]
	for id, p := range ch {
		if p.LastSeen.Before(cutoff) {
			delete(ch, id)
			continue
		}
		snap.Players = append(snap.Players, p)
	}
	if len(ch) == 0 {
		delete(t.channels, channel)
	}
	snap.OnlineCount = len(snap.Players)
	return snap
}

// Forget drops one player immediately, used when a session closes its
// channel. Absent players are a no-op.
func (t *Tracker) Forget(channel, playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ch := t.channels[channel]; ch != nil {
		delete(ch, playerID)
		if len(ch) == 0 {
			delete(t.channels, channel)
		}
	}
}
