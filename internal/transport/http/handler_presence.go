package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/PromptLogic1/Arcadia-sub004/internal/presence"
)

type PresenceHandlers struct {
	tracker *presence.Tracker
}

func NewPresenceHandlers(tracker *presence.Tracker) *PresenceHandlers {
	return &PresenceHandlers{tracker: tracker}
}

func (h *PresenceHandlers) Heartbeat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PlayerID string         `json:"player_id"`
			Metadata map[string]any `json:"metadata"`
		}
		if !decodeBody(r, &req) || req.PlayerID == "" {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		h.tracker.Heartbeat(chi.URLParam(r, "channel"), req.PlayerID, req.Metadata)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *PresenceHandlers) Snapshot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.tracker.Snapshot(chi.URLParam(r, "channel")))
	}
}
