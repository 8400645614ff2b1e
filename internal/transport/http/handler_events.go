package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/PromptLogic1/Arcadia-sub004/internal/board"
	"github.com/PromptLogic1/Arcadia-sub004/internal/matchmaking"
	"github.com/PromptLogic1/Arcadia-sub004/internal/stream"
)

var ssePingInterval = 15 * time.Second

// SessionEventsHandler streams a session's push events over SSE, replaying
// everything after the client's Last-Event-ID first so reconnects miss
// nothing the buffer still holds.
func SessionEventsHandler(boards *board.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "session_id")
		buf := boards.Buffer(sessionID)
		if buf == nil {
			WriteHTTPError(w, http.StatusNotFound, "session_not_found")
			return
		}
		serveSSE(w, r, sessionID, buf)
	}
}

// QueueEventsHandler streams the matchmaking queue channel.
func QueueEventsHandler(queue *matchmaking.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serveSSE(w, r, matchmaking.QueueChannel, queue.Events())
	}
}

func serveSSE(w http.ResponseWriter, r *http.Request, channel string, buf *stream.Buffer) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteHTTPError(w, http.StatusInternalServerError, "stream_not_supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for _, ev := range buf.ReplayAfter(r.Header.Get("Last-Event-ID")) {
		if err := stream.WriteSSE(w, ev); err != nil {
			return
		}
	}
	flusher.Flush()

	ch := buf.Subscribe()
	defer buf.Unsubscribe(ch)
	ticker := time.NewTicker(ssePingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := stream.WriteSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			ping := stream.Event{
				Event:    "ping",
				Channel:  channel,
				ServerTS: time.Now().UnixMilli(),
				Data:     map[string]any{"ts": time.Now().UnixMilli()},
			}
			if err := stream.WriteSSE(w, ping); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
