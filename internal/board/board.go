package board

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/PromptLogic1/Arcadia-sub004/internal/store"
	"github.com/PromptLogic1/Arcadia-sub004/internal/stream"
)

// Cell mutation actions.
const (
	ActionMark   = "mark"
	ActionUnmark = "unmark"
)

// Event names broadcast on a session's channel.
const (
	EventBoardUpdated   = "board_updated"
	EventSessionUpdated = "session_updated"
	EventPlayersUpdated = "players_updated"
)

const DefaultBoardSize = 25

// BoardSnapshot is the payload of a board_updated event and of board state
// reads: the full cell grid plus the session version that produced it.
type BoardSnapshot struct {
	Cells   []store.Cell `json:"cells"`
	Version int64        `json:"version"`
}

type SessionSnapshot struct {
	Session store.Session `json:"session"`
}

type PlayersSnapshot struct {
	Players []store.Player `json:"players"`
	Version int64          `json:"version"`
}

// Persister is the durability hook behind the in-memory store. Writes are
// best effort: an accepted mutation is never rolled back because the
// write-behind failed. May be nil.
type Persister interface {
	UpsertSession(ctx context.Context, sess store.Session, cells []store.Cell) error
	UpsertSessionPlayer(ctx context.Context, sessionID string, p store.Player) error
	DeleteSessionPlayer(ctx context.Context, sessionID, playerID string) error
	ListOpenSessions(ctx context.Context) ([]store.Session, map[string][]store.Cell, error)
	ListSessionPlayers(ctx context.Context, sessionID string) ([]store.Player, error)
}

// Store owns the authoritative state of every live session: its cell grid,
// roster and monotonic version. All mutations for one session are applied
// in sequence under the store mutex; concurrent writers contend on the
// expected version, not on locks of their own.
type Store struct {
	repo        Persister
	bufferSize  int
	defaultSize int

	mu       sync.Mutex
	sessions map[string]*sessionState
}

type sessionState struct {
	session store.Session
	cells   []store.Cell
	players []store.Player
	buffer  *stream.Buffer
}

func NewStore(repo Persister, bufferSize, defaultSize int) *Store {
	if defaultSize <= 0 {
		defaultSize = DefaultBoardSize
	}
	return &Store{
		repo:        repo,
		bufferSize:  bufferSize,
		defaultSize: defaultSize,
		sessions:    map[string]*sessionState{},
	}
}

// Rehydrate loads every non-terminal session from the persister. Called
// once at boot, before the store is exposed to traffic.
func (s *Store) Rehydrate(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	sessions, cellsByID, err := s.repo.ListOpenSessions(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range sessions {
		players, err := s.repo.ListSessionPlayers(ctx, sess.ID)
		if err != nil {
			return err
		}
		s.sessions[sess.ID] = &sessionState{
			session: sess,
			cells:   cellsByID[sess.ID],
			players: players,
			buffer:  stream.NewBuffer(s.bufferSize),
		}
	}
	return nil
}

// CreateSession starts a new session with the given host as its first
// player. A zero boardSize gets the default grid.
func (s *Store) CreateSession(ctx context.Context, host store.Player, boardSize int) (store.Session, []store.Cell, error) {
	if boardSize <= 0 {
		boardSize = s.defaultSize
	}
	if host.ID == "" {
		return store.Session{}, nil, ErrInvalidAction
	}
	now := time.Now()
	host.JoinedAt = now
	sess := store.Session{
		ID:        store.NewID(),
		Status:    store.SessionWaiting,
		HostID:    host.ID,
		BoardSize: boardSize,
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	cells := newGrid(boardSize)

	s.mu.Lock()
	st := &sessionState{
		session: sess,
		cells:   cells,
		buffer:  stream.NewBuffer(s.bufferSize),
	}
	if _, err := s.addPlayerLocked(st, host); err != nil {
		s.mu.Unlock()
		return store.Session{}, nil, err
	}
	s.sessions[sess.ID] = st
	st.buffer.Append(EventSessionUpdated, sess.ID, sess.Version, SessionSnapshot{Session: sess})
	out := cloneCells(st.cells)
	s.mu.Unlock()

	s.persistSession(ctx, sess, out)
	s.persistPlayer(ctx, sess.ID, host)
	return sess, out, nil
}

func (s *Store) GetSession(sessionID string) (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.sessions[sessionID]
	if st == nil {
		return store.Session{}, ErrNotFound
	}
	return st.session, nil
}

func (s *Store) GetBoardState(sessionID string) ([]store.Cell, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.sessions[sessionID]
	if st == nil {
		return nil, 0, ErrNotFound
	}
	return cloneCells(st.cells), st.session.Version, nil
}

func (s *Store) Players(sessionID string) ([]store.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.sessions[sessionID]
	if st == nil {
		return nil, ErrNotFound
	}
	out := make([]store.Player, len(st.players))
	copy(out, st.players)
	return out, nil
}

// Buffer returns the session's event channel, or nil if unknown.
func (s *Store) Buffer(sessionID string) *stream.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.sessions[sessionID]
	if st == nil {
		return nil
	}
	return st.buffer
}

// ApplyCellMutation applies mark/unmark to one cell under the compare-and-
// increment rule: it accepts only if expectedVersion matches the current
// session version, otherwise it returns *VersionConflict carrying the
// authoritative state. Every accepted call increments the version by
// exactly one, including a duplicate mark by the same player (the
// completed_by update itself is idempotent, the version bump is not).
func (s *Store) ApplyCellMutation(ctx context.Context, sessionID string, position int, playerID, action string, expectedVersion int64) ([]store.Cell, int64, error) {
	if action != ActionMark && action != ActionUnmark {
		return nil, 0, ErrInvalidAction
	}
	s.mu.Lock()
	st := s.sessions[sessionID]
	if st == nil {
		s.mu.Unlock()
		return nil, 0, ErrNotFound
	}
	if store.TerminalSessionStatus(st.session.Status) || st.session.Status == store.SessionPaused {
		s.mu.Unlock()
		return nil, 0, ErrInvalidState
	}
	if position < 0 || position >= len(st.cells) {
		s.mu.Unlock()
		return nil, 0, ErrInvalidCell
	}
	if expectedVersion != st.session.Version {
		conflict := &VersionConflict{Cells: cloneCells(st.cells), Version: st.session.Version}
		s.mu.Unlock()
		return nil, 0, conflict
	}

	now := time.Now()
	cell := &st.cells[position]
	switch action {
	case ActionMark:
		if !containsID(cell.CompletedBy, playerID) {
			cell.CompletedBy = append(cell.CompletedBy, playerID)
		}
	case ActionUnmark:
		cell.CompletedBy = removeID(cell.CompletedBy, playerID)
	}
	cell.IsMarked = len(cell.CompletedBy) > 0
	cell.LastModifiedBy = playerID
	cell.LastUpdated = now
	st.session.Version++
	st.session.UpdatedAt = now

	sess := st.session
	cells := cloneCells(st.cells)
	st.buffer.Append(EventBoardUpdated, sessionID, sess.Version, BoardSnapshot{Cells: cells, Version: sess.Version})
	s.mu.Unlock()

	s.persistSession(ctx, sess, cells)
	return cells, sess.Version, nil
}

var allowedTransitions = map[string][]string{
	store.SessionWaiting: {store.SessionActive, store.SessionCancelled},
	store.SessionActive:  {store.SessionPaused, store.SessionCompleted, store.SessionCancelled},
	store.SessionPaused:  {store.SessionActive, store.SessionCompleted, store.SessionCancelled},
}

// TransitionStatus moves the session through its lifecycle. Terminal
// statuses accept no further transitions; restarting a completed session
// goes through ResetBoard instead.
func (s *Store) TransitionStatus(ctx context.Context, sessionID, next string) (store.Session, error) {
	s.mu.Lock()
	st := s.sessions[sessionID]
	if st == nil {
		s.mu.Unlock()
		return store.Session{}, ErrNotFound
	}
	if !transitionAllowed(st.session.Status, next) {
		s.mu.Unlock()
		return store.Session{}, ErrInvalidState
	}
	st.session.Status = next
	st.session.Version++
	st.session.UpdatedAt = time.Now()
	sess := st.session
	cells := cloneCells(st.cells)
	st.buffer.Append(EventSessionUpdated, sessionID, sess.Version, SessionSnapshot{Session: sess})
	s.mu.Unlock()

	s.persistSession(ctx, sess, cells)
	return sess, nil
}

// ResetBoard restarts a session: cells are cleared in place (never
// deleted) and the session goes back to active. The version keeps
// increasing across restarts so mirrors cannot mistake the fresh board
// for an older snapshot.
func (s *Store) ResetBoard(ctx context.Context, sessionID string) ([]store.Cell, int64, error) {
	s.mu.Lock()
	st := s.sessions[sessionID]
	if st == nil {
		s.mu.Unlock()
		return nil, 0, ErrNotFound
	}
	if st.session.Status == store.SessionCancelled {
		s.mu.Unlock()
		return nil, 0, ErrInvalidState
	}
	st.cells = newGrid(st.session.BoardSize)
	st.session.Status = store.SessionActive
	st.session.Version++
	st.session.UpdatedAt = time.Now()
	sess := st.session
	cells := cloneCells(st.cells)
	st.buffer.Append(EventSessionUpdated, sessionID, sess.Version, SessionSnapshot{Session: sess})
	st.buffer.Append(EventBoardUpdated, sessionID, sess.Version, BoardSnapshot{Cells: cells, Version: sess.Version})
	s.mu.Unlock()

	s.persistSession(ctx, sess, cells)
	return cells, sess.Version, nil
}

// JoinSession adds a player to the roster. A requested color that is
// already in use fails with ErrColorTaken; an empty color gets the first
// free one from the palette.
func (s *Store) JoinSession(ctx context.Context, sessionID string, p store.Player) (store.Player, error) {
	s.mu.Lock()
	st := s.sessions[sessionID]
	if st == nil {
		s.mu.Unlock()
		return store.Player{}, ErrNotFound
	}
	if store.TerminalSessionStatus(st.session.Status) {
		s.mu.Unlock()
		return store.Player{}, ErrInvalidState
	}
	p.JoinedAt = time.Now()
	joined, err := s.addPlayerLocked(st, p)
	if err != nil {
		s.mu.Unlock()
		return store.Player{}, err
	}
	st.session.Version++
	st.session.UpdatedAt = p.JoinedAt
	sess := st.session
	players := make([]store.Player, len(st.players))
	copy(players, st.players)
	st.buffer.Append(EventPlayersUpdated, sessionID, sess.Version, PlayersSnapshot{Players: players, Version: sess.Version})
	s.mu.Unlock()

	s.persistSession(ctx, sess, nil)
	s.persistPlayer(ctx, sessionID, joined)
	return joined, nil
}

// LeaveSession removes a player. If the host leaves, the oldest remaining
// player inherits the session; if nobody remains the session is cancelled.
func (s *Store) LeaveSession(ctx context.Context, sessionID, playerID string) error {
	s.mu.Lock()
	st := s.sessions[sessionID]
	if st == nil {
		s.mu.Unlock()
		return ErrNotFound
	}
	idx := -1
	for i, p := range st.players {
		if p.ID == playerID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	st.players = append(st.players[:idx], st.players[idx+1:]...)
	now := time.Now()
	if len(st.players) == 0 {
		if !store.TerminalSessionStatus(st.session.Status) {
			st.session.Status = store.SessionCancelled
		}
	} else if st.session.HostID == playerID {
		st.session.HostID = st.players[0].ID
	}
	st.session.Version++
	st.session.UpdatedAt = now
	sess := st.session
	players := make([]store.Player, len(st.players))
	copy(players, st.players)
	st.buffer.Append(EventPlayersUpdated, sessionID, sess.Version, PlayersSnapshot{Players: players, Version: sess.Version})
	st.buffer.Append(EventSessionUpdated, sessionID, sess.Version, SessionSnapshot{Session: sess})
	s.mu.Unlock()

	s.persistSession(ctx, sess, nil)
	if s.repo != nil {
		if err := s.repo.DeleteSessionPlayer(ctx, sessionID, playerID); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Str("player_id", playerID).Msg("delete session player failed")
		}
	}
	return nil
}

var defaultColors = []string{
	"red", "blue", "green", "yellow", "purple", "orange", "teal", "pink",
}

func (s *Store) addPlayerLocked(st *sessionState, p store.Player) (store.Player, error) {
	for _, existing := range st.players {
		if existing.ID == p.ID {
			return store.Player{}, ErrInvalidState
		}
	}
	taken := map[string]bool{}
	for _, existing := range st.players {
		taken[existing.Color] = true
	}
	if p.Color == "" {
		for _, c := range defaultColors {
			if !taken[c] {
				p.Color = c
				break
			}
		}
		if p.Color == "" {
			p.Color = "gray"
		}
	} else if taken[p.Color] {
		return store.Player{}, ErrColorTaken
	}
	st.players = append(st.players, p)
	return p, nil
}

func (s *Store) persistSession(ctx context.Context, sess store.Session, cells []store.Cell) {
	if s.repo == nil {
		return
	}
	if cells == nil {
		s.mu.Lock()
		if st := s.sessions[sess.ID]; st != nil {
			cells = cloneCells(st.cells)
		}
		s.mu.Unlock()
	}
	if err := s.repo.UpsertSession(ctx, sess, cells); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Int64("version", sess.Version).Msg("persist session failed")
	}
}

func (s *Store) persistPlayer(ctx context.Context, sessionID string, p store.Player) {
	if s.repo == nil {
		return
	}
	if err := s.repo.UpsertSessionPlayer(ctx, sessionID, p); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Str("player_id", p.ID).Msg("persist player failed")
	}
}

func newGrid(size int) []store.Cell {
	cells := make([]store.Cell, size)
	for i := range cells {
		cells[i] = store.Cell{Position: i, CompletedBy: []string{}}
	}
	return cells
}

func cloneCells(cells []store.Cell) []store.Cell {
	out := make([]store.Cell, len(cells))
	copy(out, cells)
	for i := range out {
		ids := make([]string, len(cells[i].CompletedBy))
		copy(ids, cells[i].CompletedBy)
		out[i].CompletedBy = ids
	}
	return out
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func transitionAllowed(from, to string) bool {
	for _, v := range allowedTransitions[from] {
		if v == to {
			return true
		}
	}
	return false
}
