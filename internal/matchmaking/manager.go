package matchmaking

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/PromptLogic1/Arcadia-sub004/internal/presence"
	"github.com/PromptLogic1/Arcadia-sub004/internal/store"
	"github.com/PromptLogic1/Arcadia-sub004/internal/stream"
)

const (
	DefaultEntryTTL       = 60 * time.Second
	defaultJanitorsPeriod = 5 * time.Second

	// Event names broadcast on the queue channel.
	EventQueueUpdated = "queue_updated"
	EventQueueMatched = "queue_matched"

	// QueueChannel is the channel name queue events are tagged with.
	QueueChannel = "queue"
)

// QueueSnapshot is the payload of a queue_updated event and of queue polls.
type QueueSnapshot struct {
	Entries []store.QueueEntry `json:"entries"`
	Version int64              `json:"version"`
}

type MatchNotice struct {
	SessionID string   `json:"session_id"`
	EntryIDs  []string `json:"entry_ids"`
	PlayerIDs []string `json:"player_ids"`
}

// SessionCreator is the board-store surface a successful match hands off
// to. Satisfied by *board.Store.
type SessionCreator interface {
	CreateSession(ctx context.Context, host store.Player, boardSize int) (store.Session, []store.Cell, error)
	JoinSession(ctx context.Context, sessionID string, p store.Player) (store.Player, error)
	TransitionStatus(ctx context.Context, sessionID, next string) (store.Session, error)
}

// QueuePersister is the durability hook for queue entries. May be nil.
type QueuePersister interface {
	InsertQueueEntry(ctx context.Context, e store.QueueEntry) error
	UpdateQueueEntryStatus(ctx context.Context, entryID, status, sessionID string) error
	DeleteQueueEntry(ctx context.Context, entryID string) error
	ListWaitingQueueEntries(ctx context.Context) ([]store.QueueEntry, error)
	PurgeTerminalQueueEntries(ctx context.Context) (int64, error)
}

// Manager tracks players waiting to be placed into a session. Entries move
// waiting -> accepted | rejected | expired and nothing else; expired and
// other terminal entries are removed by the sweep once their expiry passes.
type Manager struct {
	sessions SessionCreator
	tracker  *presence.Tracker
	repo     QueuePersister
	strategy MatchStrategy
	clock    clockwork.Clock
	ttl      time.Duration
	events   *stream.Buffer

	mu       sync.Mutex
	entries  map[string]*store.QueueEntry
	order    []string
	byPlayer map[string]string
	version  int64
}

func NewManager(sessions SessionCreator, tracker *presence.Tracker, repo QueuePersister, strategy MatchStrategy, clock clockwork.Clock, ttl time.Duration, bufferSize int) *Manager {
	if strategy == nil {
		strategy = FIFOStrategy{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = DefaultEntryTTL
	}
	return &Manager{
		sessions: sessions,
		tracker:  tracker,
		repo:     repo,
		strategy: strategy,
		clock:    clock,
		ttl:      ttl,
		events:   stream.NewBuffer(bufferSize),
		entries:  map[string]*store.QueueEntry{},
		byPlayer: map[string]string{},
	}
}

// Events returns the queue channel event buffer.
func (m *Manager) Events() *stream.Buffer {
	return m.events
}

// Rehydrate loads waiting entries from the persister at boot. Entries that
// expired while the server was down are left for the first sweep.
func (m *Manager) Rehydrate(ctx context.Context) error {
	if m.repo == nil {
		return nil
	}
	waiting, err := m.repo.ListWaitingQueueEntries(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range waiting {
		e := waiting[i]
		m.entries[e.ID] = &e
		m.order = append(m.order, e.ID)
		m.byPlayer[e.PlayerID] = e.ID
	}
	return nil
}

// StartJanitor drives the expiry sweep and terminal purge on a fixed
// interval until the context is cancelled.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultJanitorsPeriod
	}
	ticker := m.clock.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				if n, err := m.CleanupExpired(ctx); err != nil {
					log.Warn().Err(err).Msg("queue sweep failed")
				} else if n > 0 {
					log.Info().Int("expired", n).Msg("queue entries expired")
				}
				if m.repo != nil {
					if _, err := m.repo.PurgeTerminalQueueEntries(ctx); err != nil {
						log.Warn().Err(err).Msg("queue purge failed")
					}
				}
			}
		}
	}()
}

// Join enqueues a player. A player with a live waiting entry cannot queue
// twice. If the strategy finds a compatible opponent the pair is matched
// immediately and both entries come back accepted with the new session ID.
func (m *Manager) Join(ctx context.Context, player store.Player, criteria store.Criteria) (store.QueueEntry, error) {
	now := m.clock.Now()
	m.mu.Lock()
	if id, ok := m.byPlayer[player.ID]; ok {
		if e := m.entries[id]; e != nil && e.Status == store.QueueWaiting {
			m.mu.Unlock()
			return store.QueueEntry{}, ErrAlreadyQueued
		}
	}
	entry := store.QueueEntry{
		ID:          store.NewID(),
		PlayerID:    player.ID,
		DisplayName: player.DisplayName,
		Criteria:    criteria,
		Status:      store.QueueWaiting,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.ttl),
	}
	opponentID, matched := m.strategy.Match(entry, m.waitingLocked())
	var opponent *store.QueueEntry
	if matched {
		opponent = m.entries[opponentID]
		matched = opponent != nil && opponent.Status == store.QueueWaiting
	}
	m.entries[entry.ID] = &entry
	m.byPlayer[player.ID] = entry.ID
	if !matched {
		m.order = append(m.order, entry.ID)
		m.version++
		snap := m.snapshotLocked()
		m.mu.Unlock()

		m.persistInsert(ctx, entry)
		m.events.Append(EventQueueUpdated, QueueChannel, snap.Version, snap)
		return entry, nil
	}
	// Reserve the opponent before releasing the lock: its entry leaves
	// the registry entirely, so a concurrent Leave/Accept/Reject cannot
	// touch it while the handoff is in flight.
	m.removeFromOrderLocked(opponent.ID)
	opp := *opponent
	delete(m.entries, opp.ID)
	if m.byPlayer[opp.PlayerID] == opp.ID {
		delete(m.byPlayer, opp.PlayerID)
	}
	m.mu.Unlock()

	m.persistInsert(ctx, entry)
	return m.completeMatch(ctx, entry.ID, opp, player, criteria)
}

// completeMatch creates the session with the longer-waiting player as host
// and marks both entries accepted. On any failure both entries are put
// back to waiting so the sweep or a later join can pick them up.
func (m *Manager) completeMatch(ctx context.Context, newcomerID string, opp store.QueueEntry, newcomer store.Player, criteria store.Criteria) (store.QueueEntry, error) {
	host := store.Player{ID: opp.PlayerID, DisplayName: opp.DisplayName, Team: opp.Criteria.Team}
	sess, _, err := m.sessions.CreateSession(ctx, host, boardSizeFor(opp.Criteria, criteria))
	if err == nil {
		newcomer.Team = criteria.Team
		_, err = m.sessions.JoinSession(ctx, sess.ID, newcomer)
	}
	if err == nil {
		_, err = m.sessions.TransitionStatus(ctx, sess.ID, store.SessionActive)
	}
	if err != nil {
		log.Error().Err(err).Str("entry_id", newcomerID).Str("opponent_entry_id", opp.ID).Msg("match handoff failed")
		m.mu.Lock()
		m.restoreWaitingLocked(opp)
		m.requeueLocked(newcomerID)
		m.version++
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.events.Append(EventQueueUpdated, QueueChannel, snap.Version, snap)
		return store.QueueEntry{}, err
	}

	m.mu.Lock()
	opp.Status = store.QueueAccepted
	opp.SessionID = sess.ID
	reserved := opp
	m.entries[opp.ID] = &reserved
	if _, ok := m.byPlayer[opp.PlayerID]; !ok {
		m.byPlayer[opp.PlayerID] = opp.ID
	}
	var accepted store.QueueEntry
	if e := m.entries[newcomerID]; e != nil {
		e.Status = store.QueueAccepted
		e.SessionID = sess.ID
		accepted = *e
	}
	notice := MatchNotice{
		SessionID: sess.ID,
		EntryIDs:  []string{opp.ID, newcomerID},
		PlayerIDs: []string{opp.PlayerID, newcomer.ID},
	}
	m.version++
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.persistStatus(ctx, opp.ID, store.QueueAccepted, sess.ID)
	m.persistStatus(ctx, newcomerID, store.QueueAccepted, sess.ID)
	if m.tracker != nil {
		m.tracker.Heartbeat(sess.ID, opp.PlayerID, nil)
		m.tracker.Heartbeat(sess.ID, newcomer.ID, nil)
	}
	m.events.Append(EventQueueMatched, QueueChannel, snap.Version, notice)
	m.events.Append(EventQueueUpdated, QueueChannel, snap.Version, snap)
	log.Info().Str("session_id", sess.ID).Str("host_id", opp.PlayerID).Str("player_id", newcomer.ID).Msg("queue matched")
	return accepted, nil
}

// Leave removes a waiting entry outright. Terminal and unknown entries
// fail with ErrNotFound.
func (m *Manager) Leave(ctx context.Context, entryID string) error {
	m.mu.Lock()
	e := m.entries[entryID]
	if e == nil || e.Status != store.QueueWaiting {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.entries, entryID)
	delete(m.byPlayer, e.PlayerID)
	m.removeFromOrderLocked(entryID)
	m.version++
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if m.repo != nil {
		if err := m.repo.DeleteQueueEntry(ctx, entryID); err != nil {
			log.Warn().Err(err).Str("entry_id", entryID).Msg("delete queue entry failed")
		}
	}
	m.events.Append(EventQueueUpdated, QueueChannel, snap.Version, snap)
	return nil
}

// Accept moves a waiting entry into accepted with the session it was
// placed into. Only valid from waiting.
func (m *Manager) Accept(ctx context.Context, entryID, sessionID string) error {
	return m.transition(ctx, entryID, store.QueueAccepted, sessionID)
}

// Reject moves a waiting entry into rejected. Only valid from waiting.
func (m *Manager) Reject(ctx context.Context, entryID string) error {
	return m.transition(ctx, entryID, store.QueueRejected, "")
}

func (m *Manager) transition(ctx context.Context, entryID, status, sessionID string) error {
	m.mu.Lock()
	e := m.entries[entryID]
	if e == nil {
		m.mu.Unlock()
		return ErrNotFound
	}
	if e.Status != store.QueueWaiting {
		m.mu.Unlock()
		return ErrInvalidState
	}
	e.Status = status
	e.SessionID = sessionID
	m.removeFromOrderLocked(entryID)
	m.version++
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.persistStatus(ctx, entryID, status, sessionID)
	m.events.Append(EventQueueUpdated, QueueChannel, snap.Version, snap)
	return nil
}

// CleanupExpired sweeps every waiting entry past its expiry into expired
// and drops terminal entries whose expiry has passed. Safe to call
// concurrently and redundantly; a second sweep over the same state
// removes nothing.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	now := m.clock.Now()
	var newlyExpired []string

	m.mu.Lock()
	for id, e := range m.entries {
		if e.Status == store.QueueWaiting && e.ExpiresAt.Before(now) {
			e.Status = store.QueueExpired
			m.removeFromOrderLocked(id)
			newlyExpired = append(newlyExpired, id)
			continue
		}
		if store.TerminalQueueStatus(e.Status) && e.ExpiresAt.Before(now) {
			delete(m.entries, id)
			if m.byPlayer[e.PlayerID] == id {
				delete(m.byPlayer, e.PlayerID)
			}
		}
	}
	var snap QueueSnapshot
	if len(newlyExpired) > 0 {
		m.version++
		snap = m.snapshotLocked()
	}
	m.mu.Unlock()

	for _, id := range newlyExpired {
		m.persistStatus(ctx, id, store.QueueExpired, "")
	}
	if len(newlyExpired) > 0 {
		m.events.Append(EventQueueUpdated, QueueChannel, snap.Version, snap)
	}
	return len(newlyExpired), nil
}

// Entry returns a copy of one entry.
func (m *Manager) Entry(entryID string) (store.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[entryID]
	if e == nil {
		return store.QueueEntry{}, ErrNotFound
	}
	return *e, nil
}

// Snapshot returns the current queue state for the polling path. Reads do
// not advance the queue version.
func (m *Manager) Snapshot() QueueSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() QueueSnapshot {
	entries := make([]store.QueueEntry, 0, len(m.entries))
	for _, id := range m.order {
		if e := m.entries[id]; e != nil {
			entries = append(entries, *e)
		}
	}
	for _, e := range m.entries {
		if e.Status != store.QueueWaiting {
			entries = append(entries, *e)
		}
	}
	return QueueSnapshot{Entries: entries, Version: m.version}
}

func (m *Manager) waitingLocked() []store.QueueEntry {
	out := make([]store.QueueEntry, 0, len(m.order))
	for _, id := range m.order {
		if e := m.entries[id]; e != nil && e.Status == store.QueueWaiting {
			out = append(out, *e)
		}
	}
	return out
}

// restoreWaitingLocked puts a reserved entry back into the waiting pool
// after a failed handoff, unless its player re-queued in the meantime.
func (m *Manager) restoreWaitingLocked(e store.QueueEntry) {
	if id, ok := m.byPlayer[e.PlayerID]; ok {
		if cur := m.entries[id]; cur != nil && cur.Status == store.QueueWaiting {
			return
		}
	}
	e.Status = store.QueueWaiting
	e.SessionID = ""
	restored := e
	m.entries[e.ID] = &restored
	m.byPlayer[e.PlayerID] = e.ID
	m.removeFromOrderLocked(e.ID)
	m.order = append(m.order, e.ID)
}

func (m *Manager) requeueLocked(entryID string) {
	e := m.entries[entryID]
	if e == nil {
		return
	}
	e.Status = store.QueueWaiting
	e.SessionID = ""
	m.removeFromOrderLocked(entryID)
	m.order = append(m.order, entryID)
}

func (m *Manager) removeFromOrderLocked(entryID string) {
	for i, id := range m.order {
		if id == entryID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

func (m *Manager) persistInsert(ctx context.Context, e store.QueueEntry) {
	if m.repo == nil {
		return
	}
	if err := m.repo.InsertQueueEntry(ctx, e); err != nil {
		log.Warn().Err(err).Str("entry_id", e.ID).Msg("persist queue entry failed")
	}
}

func (m *Manager) persistStatus(ctx context.Context, entryID, status, sessionID string) {
	if m.repo == nil {
		return
	}
	if err := m.repo.UpdateQueueEntryStatus(ctx, entryID, status, sessionID); err != nil {
		log.Warn().Err(err).Str("entry_id", entryID).Str("status", status).Msg("persist queue status failed")
	}
}
