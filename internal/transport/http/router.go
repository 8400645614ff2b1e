package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	appsession "github.com/PromptLogic1/Arcadia-sub004/internal/app/session"
	"github.com/PromptLogic1/Arcadia-sub004/internal/board"
	"github.com/PromptLogic1/Arcadia-sub004/internal/matchmaking"
	"github.com/PromptLogic1/Arcadia-sub004/internal/presence"
)

func NewRouter(boards *board.Store, queue *matchmaking.Manager, tracker *presence.Tracker) *chi.Mux {
	sessionSvc := appsession.NewService(boards, tracker)
	sessionHandlers := NewSessionHandlers(boards, sessionSvc)
	queueHandlers := NewQueueHandlers(queue)
	presenceHandlers := NewPresenceHandlers(tracker)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(APILogMiddleware()).Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/api", func(r chi.Router) {
		// SSE endpoints skip the request logger: they are long-lived and
		// would each log a multi-minute duration on disconnect.
		r.Get("/sessions/{session_id}/events", SessionEventsHandler(boards))
		r.Get("/queue/events", QueueEventsHandler(queue))

		r.Group(func(r chi.Router) {
			r.Use(APILogMiddleware())

			r.Post("/sessions", sessionHandlers.Create())
			r.Get("/sessions/{session_id}", sessionHandlers.Get())
			r.Get("/sessions/{session_id}/overview", sessionHandlers.Overview())
			r.Get("/sessions/{session_id}/board", sessionHandlers.Board())
			r.Post("/sessions/{session_id}/board/{position}", sessionHandlers.MutateCell())
			r.Post("/sessions/{session_id}/status", sessionHandlers.Transition())
			r.Post("/sessions/{session_id}/reset", sessionHandlers.Reset())
			r.Post("/sessions/{session_id}/players", sessionHandlers.Join())
			r.Delete("/sessions/{session_id}/players/{player_id}", sessionHandlers.Leave())
			r.Get("/sessions/{session_id}/players", sessionHandlers.Players())

			r.Post("/queue", queueHandlers.Join())
			r.Get("/queue", queueHandlers.State())
			r.Get("/queue/{entry_id}", queueHandlers.Entry())
			r.Delete("/queue/{entry_id}", queueHandlers.Leave())
			r.Post("/queue/{entry_id}/accept", queueHandlers.Accept())
			r.Post("/queue/{entry_id}/reject", queueHandlers.Reject())
			r.Post("/queue/cleanup", queueHandlers.Cleanup())

			r.Post("/presence/{channel}/heartbeat", presenceHandlers.Heartbeat())
			r.Get("/presence/{channel}", presenceHandlers.Snapshot())
		})
	})

	return r
}
