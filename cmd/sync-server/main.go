package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/PromptLogic1/Arcadia-sub004/internal/board"
	"github.com/PromptLogic1/Arcadia-sub004/internal/config"
	"github.com/PromptLogic1/Arcadia-sub004/internal/logging"
	"github.com/PromptLogic1/Arcadia-sub004/internal/matchmaking"
	"github.com/PromptLogic1/Arcadia-sub004/internal/presence"
	"github.com/PromptLogic1/Arcadia-sub004/internal/store"
	httptransport "github.com/PromptLogic1/Arcadia-sub004/internal/transport/http"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadApp()
	if err != nil {
		panic(err)
	}
	logging.Init(cfg.Log)

	st, err := store.New(cfg.Server.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	defer st.Close()
	ctx := context.Background()
	if err := st.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("db ping failed")
	}
	if err := st.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("ensure schema failed")
	}

	clock := clockwork.NewRealClock()
	boards := board.NewStore(st, cfg.Sync.EventBufferSize, cfg.Sync.DefaultBoardCellCount)
	if err := boards.Rehydrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("session rehydrate failed")
	}
	tracker := presence.NewTracker(clock, cfg.Sync.PresenceTTL())
	queue := matchmaking.NewManager(boards, tracker, st, matchmaking.FIFOStrategy{}, clock, cfg.Sync.QueueTTL(), cfg.Sync.EventBufferSize)
	if err := queue.Rehydrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("queue rehydrate failed")
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	queue.StartJanitor(janitorCtx, cfg.Sync.JanitorInterval())

	router := httptransport.NewRouter(boards, queue, tracker)
	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.HTTPAddr).Msg("sync server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown incomplete")
	}
	log.Info().Msg("sync server stopped")
}
