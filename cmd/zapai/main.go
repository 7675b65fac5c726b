package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/mmelo/zapai/internal/ai"
	"github.com/mmelo/zapai/internal/bot"
	"github.com/mmelo/zapai/internal/config"
	"github.com/mmelo/zapai/internal/logging"
	"github.com/mmelo/zapai/internal/memory"
	"github.com/mmelo/zapai/internal/ratelimit"
	"github.com/mmelo/zapai/internal/whatsapp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatal().Err(err).Msg("logging")
	}

	store, err := newStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("store")
	}
	defer store.Close()

	waClient := whatsapp.NewClient(cfg.WAPhoneNumberID, cfg.WAAccessToken)
	aiClient := ai.NewClient(cfg.OpenAIAPIKey, ai.Options{
		Model:        cfg.OpenAIModel,
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
		SystemPrompt: cfg.SystemPrompt,
		Timeout:      cfg.RequestTimeout,
	})
	limiter := ratelimit.NewLimiter(cfg.RateLimitPerMinute, time.Minute)

	botHandler := bot.NewHandler(waClient, aiClient, store, limiter, bot.Options{
		Timeout:            cfg.RequestTimeout,
		RateLimitQuiet:     cfg.RateLimitQuiet,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	webhookHandler := whatsapp.NewWebhookHandler(cfg.WAVerifyToken, botHandler.HandleMessage)

	// Periodic cleanup of idle rate windows and per-user locks to prevent
	// memory leaks from one-off senders.
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			limiter.Cleanup()
			botHandler.CleanupLocks(1 * time.Hour)
		}
	}()

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", botHandler.HandleHealth)
	r.Get("/stats", botHandler.HandleStats)
	r.Get("/conversations/{identity}", botHandler.HandleConversation)

	r.Get("/webhook", webhookHandler.HandleVerify)
	r.Post("/webhook", webhookHandler.HandleIncoming)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.StoreBackend).Msg("zapai: listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("zapai: shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("shutdown")
	}
	log.Info().Msg("zapai: stopped")
}

func newStore(cfg *config.Config) (memory.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreBolt:
		return memory.NewBoltStore(cfg.DataDir+"/zapai.db", cfg.MaxConversationLength)
	case config.StoreRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return memory.NewRedisStore(ctx, cfg.RedisURL, cfg.MaxConversationLength, cfg.ConversationTTL)
	default:
		return memory.NewMemoryStore(cfg.MaxConversationLength), nil
	}
}
