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
	"github.com/sirupsen/logrus"

	"github.com/sajang-ai/backend/internal/auth"
	"github.com/sajang-ai/backend/internal/config"
	"github.com/sajang-ai/backend/internal/handler"
	"github.com/sajang-ai/backend/internal/handler/stream"
	"github.com/sajang-ai/backend/internal/logging"
	"github.com/sajang-ai/backend/internal/model/persona"
	"github.com/sajang-ai/backend/internal/service/ai"
	"github.com/sajang-ai/backend/internal/service/chat"
	"github.com/sajang-ai/backend/internal/service/conversation"
	"github.com/sajang-ai/backend/internal/service/ratelimit"
	"github.com/sajang-ai/backend/internal/service/summary"
	"github.com/sajang-ai/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger := logging.New(cfg.Log)
	if envErr != nil {
		logger.WithError(envErr).Debug("no .env file, using process environment only")
	}

	personaItems, err := persona.LoadFile(cfg.PersonasFile)
	if err != nil {
		logger.WithError(err).Fatal("failed to load persona catalog")
	}
	personaStore := persona.NewMemoryStore(personaItems)
	logger.WithField("count", len(personaItems)).Info("persona catalog loaded")

	repo, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open conversation store")
	}
	defer repo.Close()

	// The relay runs without a completer when credentials are missing and answers 503.
	var completer stream.Completer
	aiService, err := ai.NewService(ctx, cfg.AI)
	switch {
	case errors.Is(err, ai.ErrNotConfigured):
		logger.WithField("provider", cfg.AI.Provider).Warn("AI credentials not configured, chat is disabled")
	case err != nil:
		logger.WithError(err).Error("failed to initialize AI service, chat is disabled")
	default:
		completer = aiService
		logger.WithFields(logrus.Fields{
			"provider": cfg.AI.Provider,
			"model":    aiService.ModelName(),
		}).Info("AI service initialized")
	}

	summarizer, err := summary.NewService(ctx, aiService.SummaryModel(), repo, summary.Config{
		Every: cfg.Chat.SummaryEvery,
		Turns: cfg.Chat.SummaryTurns,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to build summarizer")
	}

	conversations := conversation.NewService(repo, summarizer, conversation.Config{
		RecordTimeout: cfg.Chat.RecordTimeout,
	}, logger)

	var verifier auth.Verifier
	if v := auth.NewSupabaseVerifier(cfg.Auth); v != nil {
		verifier = v
	} else {
		logger.Warn("SUPABASE_URL / SUPABASE_ANON_KEY not set, authenticated routes are disabled")
	}
	authMW := auth.NewMiddleware(verifier, logger)

	sessions := chat.NewService(chat.Config{
		TTL:         cfg.Chat.SessionTTL,
		MaxSessions: cfg.Chat.MaxSessions,
	})
	sessions.Start(ctx, cfg.Chat.SweepInterval, logging.Component(logger, "session"))

	limiter := ratelimit.New(cfg.Chat.RateLimitMax, cfg.Chat.RateLimitWindow)
	limiter.Start(ctx, cfg.Chat.RateLimitWindow, logging.Component(logger, "ratelimit"))

	relay := stream.NewRelay(completer, sessions, conversations, stream.Config{
		HistoryWindow: cfg.Chat.HistoryWindow,
	}, logger)

	router := handler.NewRouter(handler.Deps{
		Config:        cfg,
		Personas:      personaStore,
		Relay:         relay,
		Limiter:       limiter,
		Auth:          authMW,
		Conversations: conversations,
		Store:         repo,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.WithField("addr", cfg.Server.Addr).Info("backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.WithError(err).Error("server error")
	}

	// Let detached turn recordings finish before the store closes.
	conversations.Wait()
	logger.Info("shutdown complete")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
