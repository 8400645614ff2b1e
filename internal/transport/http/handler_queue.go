package httptransport

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/PromptLogic1/Arcadia-sub004/internal/matchmaking"
	"github.com/PromptLogic1/Arcadia-sub004/internal/store"
)

type QueueHandlers struct {
	queue *matchmaking.Manager
}

func NewQueueHandlers(queue *matchmaking.Manager) *QueueHandlers {
	return &QueueHandlers{queue: queue}
}

func (h *QueueHandlers) Join() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PlayerID    string         `json:"player_id"`
			DisplayName string         `json:"display_name"`
			Criteria    store.Criteria `json:"criteria"`
		}
		if !decodeBody(r, &req) || req.PlayerID == "" {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		player := store.Player{ID: req.PlayerID, DisplayName: req.DisplayName}
		entry, err := h.queue.Join(r.Context(), player, req.Criteria)
		if err != nil {
			writeQueueError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	}
}

func (h *QueueHandlers) Leave() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.queue.Leave(r.Context(), chi.URLParam(r, "entry_id")); err != nil {
			writeQueueError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *QueueHandlers) Accept() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			SessionID string `json:"session_id"`
		}
		if !decodeBody(r, &req) || req.SessionID == "" {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		if err := h.queue.Accept(r.Context(), chi.URLParam(r, "entry_id"), req.SessionID); err != nil {
			writeQueueError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *QueueHandlers) Reject() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.queue.Reject(r.Context(), chi.URLParam(r, "entry_id")); err != nil {
			writeQueueError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *QueueHandlers) Cleanup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		removed, err := h.queue.CleanupExpired(r.Context())
		if err != nil {
			WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
	}
}

func (h *QueueHandlers) State() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.queue.Snapshot())
	}
}

func (h *QueueHandlers) Entry() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := h.queue.Entry(chi.URLParam(r, "entry_id"))
		if err != nil {
			writeQueueError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

func writeQueueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, matchmaking.ErrAlreadyQueued):
		WriteHTTPError(w, http.StatusConflict, "already_queued")
	case errors.Is(err, matchmaking.ErrNotFound):
		WriteHTTPError(w, http.StatusNotFound, "entry_not_found")
	case errors.Is(err, matchmaking.ErrInvalidState):
		WriteHTTPError(w, http.StatusConflict, "invalid_state")
	default:
		WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
	}
}
