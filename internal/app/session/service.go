package session

import (
	"errors"

	"github.com/PromptLogic1/Arcadia-sub004/internal/board"
	"github.com/PromptLogic1/Arcadia-sub004/internal/presence"
	"github.com/PromptLogic1/Arcadia-sub004/internal/store"
)

// Overview is the read model the UI shows for one session: state, roster
// and who is actually online right now.
type Overview struct {
	Session     store.Session  `json:"session"`
	Players     []store.Player `json:"players"`
	OnlineCount int            `json:"online_count"`
	Online      []string       `json:"online"`
}

type Service struct {
	boards  *board.Store
	tracker *presence.Tracker
}

func NewService(boards *board.Store, tracker *presence.Tracker) *Service {
	return &Service{boards: boards, tracker: tracker}
}

func (s *Service) Overview(sessionID string) (*Overview, error) {
	if sessionID == "" {
		return nil, ErrInvalidRequest
	}
	sess, err := s.boards.GetSession(sessionID)
	if err != nil {
		if errors.Is(err, board.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	players, err := s.boards.Players(sessionID)
	if err != nil {
		return nil, err
	}
	snap := s.tracker.Snapshot(sessionID)
	online := make([]string, 0, len(snap.Players))
	for _, p := range snap.Players {
		online = append(online, p.PlayerID)
	}
	return &Overview{
		Session:     sess,
		Players:     players,
		OnlineCount: snap.OnlineCount,
		Online:      online,
	}, nil
}
