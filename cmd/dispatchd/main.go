package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freshlane/realtime-go/internal/config"
	"github.com/freshlane/realtime-go/internal/database"
	"github.com/freshlane/realtime-go/internal/feed"
	"github.com/freshlane/realtime-go/internal/handler"
	"github.com/freshlane/realtime-go/internal/location"
	"github.com/freshlane/realtime-go/internal/middleware"
	"github.com/freshlane/realtime-go/internal/model"
	"github.com/freshlane/realtime-go/internal/moderation"
	"github.com/freshlane/realtime-go/internal/redis"
	"github.com/freshlane/realtime-go/internal/repository"
	"github.com/freshlane/realtime-go/internal/rest"
	"github.com/freshlane/realtime-go/internal/service"
	"github.com/freshlane/realtime-go/internal/session"
	"github.com/freshlane/realtime-go/internal/transport"
)

const rosterChannel = "dispatch:roster"

// feedFallback adapts the change feed to the channel's fallback interface.
type feedFallback struct {
	*feed.Feed
}

func (f feedFallback) Subscribe(conversationID int64, fn func([]model.Message)) service.Subscription {
	return f.Feed.Subscribe(conversationID, fn)
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setLogLevel(cfg.LogLevel)

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	convRepo := repository.NewConversationRepository(db.DB)
	msgRepo := repository.NewMessageRepository(db.DB)
	blocklistRepo := repository.NewBlocklistRepository(db.DB)

	changeFeed := feed.New(redisClient, msgRepo, cfg.FeedDebounce())

	client := transport.NewClient(cfg.GatewayURL, cfg.ReconnectCeiling)
	recovery := session.NewRecovery(client)
	defer client.Disconnect()

	// Permanent unavailability is expected steady state for deployments
	// without a gateway; everything degrades to the change feed.
	if err := client.Connect(context.Background()); err != nil {
		log.Warn().Err(err).Msg("gateway unavailable, running on change feed only")
	}

	apiClient := rest.NewClient(cfg.APIBaseURL, nil)
	modService := moderation.NewService(blocklistRepo)
	directory := service.NewDirectory(apiClient, cfg.DirectoryCacheTTL())
	channel := service.NewChannel(client, feedFallback{changeFeed}, apiClient, modService, cfg.SendDedupWindow())
	defer channel.Unsubscribe()
	typing := service.NewTyping(client, cfg.TypingIdle())

	roster := location.NewRoster(cfg.StaleAfter())
	rosterConsumer := location.NewConsumer(client, roster)
	defer rosterConsumer.Close()

	stalenessJob := location.NewStalenessJob(roster, cfg.RosterTick(), func(entries []model.RosterEntry) {
		data, err := json.Marshal(entries)
		if err != nil {
			return
		}
		if err := redisClient.Publish(context.Background(), rosterChannel, data).Err(); err != nil {
			log.Warn().Err(err).Msg("failed to publish roster snapshot")
		}
	})
	stalenessJob.Start()
	defer stalenessJob.Stop()

	chatHandler := handler.NewChatHandler(directory, channel, typing, recovery, client)
	conversationsHandler := handler.NewConversationsHandler(convRepo, msgRepo, client)
	ordersHandler := handler.NewOrdersHandler(recovery, client)
	driversHandler := handler.NewDriversHandler(roster)
	moderationHandler := handler.NewModerationHandler(modService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"transport": client.Ready(),
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Mount("/chat", chatHandler.Routes())
		r.Mount("/conversations", conversationsHandler.Routes())
		r.Mount("/orders", ordersHandler.Routes())
		r.Mount("/drivers", driversHandler.Routes())
		r.Mount("/moderation", moderationHandler.Routes())
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
