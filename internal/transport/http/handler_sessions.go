package httptransport

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	appsession "github.com/PromptLogic1/Arcadia-sub004/internal/app/session"
	"github.com/PromptLogic1/Arcadia-sub004/internal/board"
	"github.com/PromptLogic1/Arcadia-sub004/internal/store"
)

type SessionHandlers struct {
	boards     *board.Store
	sessionSvc *appsession.Service
}

func NewSessionHandlers(boards *board.Store, sessionSvc *appsession.Service) *SessionHandlers {
	return &SessionHandlers{boards: boards, sessionSvc: sessionSvc}
}

func (h *SessionHandlers) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			HostID      string `json:"host_id"`
			DisplayName string `json:"display_name"`
			Color       string `json:"color"`
			Team        string `json:"team"`
			BoardSize   int    `json:"board_size"`
		}
		if !decodeBody(r, &req) || req.HostID == "" {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		host := store.Player{ID: req.HostID, DisplayName: req.DisplayName, Color: req.Color, Team: req.Team}
		sess, cells, err := h.boards.CreateSession(r.Context(), host, req.BoardSize)
		if err != nil {
			writeBoardError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"session": sess,
			"cells":   cells,
			"version": sess.Version,
		})
	}
}

func (h *SessionHandlers) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := h.boards.GetSession(chi.URLParam(r, "session_id"))
		if err != nil {
			writeBoardError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func (h *SessionHandlers) Overview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		overview, err := h.sessionSvc.Overview(chi.URLParam(r, "session_id"))
		if err != nil {
			switch {
			case errors.Is(err, appsession.ErrInvalidRequest):
				WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			case errors.Is(err, appsession.ErrSessionNotFound):
				WriteHTTPError(w, http.StatusNotFound, "session_not_found")
			default:
				WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			}
			return
		}
		writeJSON(w, http.StatusOK, overview)
	}
}

func (h *SessionHandlers) Board() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cells, version, err := h.boards.GetBoardState(chi.URLParam(r, "session_id"))
		if err != nil {
			writeBoardError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, board.BoardSnapshot{Cells: cells, Version: version})
	}
}

func (h *SessionHandlers) MutateCell() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "session_id")
		position, ok := parseIntParam(r, "position")
		if !ok {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_cell")
			return
		}
		var req struct {
			PlayerID        string `json:"player_id"`
			Action          string `json:"action"`
			ExpectedVersion int64  `json:"expected_version"`
		}
		if !decodeBody(r, &req) || req.PlayerID == "" {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		cells, version, err := h.boards.ApplyCellMutation(r.Context(), sessionID, position, req.PlayerID, req.Action, req.ExpectedVersion)
		if err != nil {
			writeBoardError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, board.BoardSnapshot{Cells: cells, Version: version})
	}
}

func (h *SessionHandlers) Transition() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status string `json:"status"`
		}
		if !decodeBody(r, &req) || req.Status == "" {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		sess, err := h.boards.TransitionStatus(r.Context(), chi.URLParam(r, "session_id"), req.Status)
		if err != nil {
			writeBoardError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess)
	}
}

func (h *SessionHandlers) Reset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cells, version, err := h.boards.ResetBoard(r.Context(), chi.URLParam(r, "session_id"))
		if err != nil {
			writeBoardError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, board.BoardSnapshot{Cells: cells, Version: version})
	}
}

func (h *SessionHandlers) Join() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PlayerID    string `json:"player_id"`
			DisplayName string `json:"display_name"`
			Color       string `json:"color"`
			Team        string `json:"team"`
		}
		if !decodeBody(r, &req) || req.PlayerID == "" {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		p := store.Player{ID: req.PlayerID, DisplayName: req.DisplayName, Color: req.Color, Team: req.Team}
		joined, err := h.boards.JoinSession(r.Context(), chi.URLParam(r, "session_id"), p)
		if err != nil {
			writeBoardError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, joined)
	}
}

func (h *SessionHandlers) Leave() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h.boards.LeaveSession(r.Context(), chi.URLParam(r, "session_id"), chi.URLParam(r, "player_id"))
		if err != nil {
			writeBoardError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *SessionHandlers) Players() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		players, err := h.boards.Players(chi.URLParam(r, "session_id"))
		if err != nil {
			writeBoardError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"players": players})
	}
}

func writeBoardError(w http.ResponseWriter, err error) {
	var conflict *board.VersionConflict
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":   "version_conflict",
			"cells":   conflict.Cells,
			"version": conflict.Version,
		})
	case errors.Is(err, board.ErrNotFound):
		WriteHTTPError(w, http.StatusNotFound, "session_not_found")
	case errors.Is(err, board.ErrInvalidState):
		WriteHTTPError(w, http.StatusConflict, "invalid_state")
	case errors.Is(err, board.ErrColorTaken):
		WriteHTTPError(w, http.StatusConflict, "color_taken")
	case errors.Is(err, board.ErrInvalidCell):
		WriteHTTPError(w, http.StatusBadRequest, "invalid_cell")
	case errors.Is(err, board.ErrInvalidAction):
		WriteHTTPError(w, http.StatusBadRequest, "invalid_action")
	default:
		WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
	}
}
