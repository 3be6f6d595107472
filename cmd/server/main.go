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

	"github.com/pensim/interview-server-go/internal/config"
	"github.com/pensim/interview-server-go/internal/database"
	"github.com/pensim/interview-server-go/internal/handler"
	"github.com/pensim/interview-server-go/internal/inference"
	"github.com/pensim/interview-server-go/internal/jobs"
	"github.com/pensim/interview-server-go/internal/middleware"
	"github.com/pensim/interview-server-go/internal/redis"
	"github.com/pensim/interview-server-go/internal/repository"
	"github.com/pensim/interview-server-go/internal/service"
	"github.com/pensim/interview-server-go/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
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
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	cancel()
	log.Info().Msg("database ready")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	store := repository.NewStore(db)
	aiClient := inference.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.ChatModel, cfg.DebriefModel)

	manager := service.NewManager(cfg, store, aiClient, aiClient)
	defer manager.Shutdown()

	registerHandler := handler.NewRegisterHandler(manager)
	eventsHandler := handler.NewEventsHandler(broker, manager)
	messagesHandler := handler.NewMessagesHandler(manager)

	ipLimiter := middleware.NewIPRateLimitMiddleware(middleware.NewRateLimiter(), cfg.RegisterRateLimit)
	participantLimiter := middleware.NewParticipantRateLimitMiddleware(redisClient.Client, cfg.MessageRateLimit)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.With(ipLimiter.Handler).Post("/register", registerHandler.ServeHTTP)

		r.Route("/participants/{participantID}", func(r chi.Router) {
			// The event stream stays open for the participant's lifetime,
			// so no request timeout applies to it.
			r.Get("/events", eventsHandler.ServeHTTP)

			r.With(
				chimiddleware.Timeout(config.ServerRequestTimeout),
				participantLimiter.Handler,
			).Post("/messages", messagesHandler.ServeHTTP)
		})
	})

	reaperJob := jobs.NewReaperJob(manager, store, cfg.SessionTTL(), cfg.Retention(), config.ReaperInterval)
	reaperJob.Start()
	defer reaperJob.Stop()

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
