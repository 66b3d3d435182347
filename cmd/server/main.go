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

	"github.com/mdlh/query-server-go/internal/cache"
	"github.com/mdlh/query-server-go/internal/config"
	"github.com/mdlh/query-server-go/internal/database"
	"github.com/mdlh/query-server-go/internal/handler"
	"github.com/mdlh/query-server-go/internal/jobs"
	"github.com/mdlh/query-server-go/internal/middleware"
	"github.com/mdlh/query-server-go/internal/redis"
	"github.com/mdlh/query-server-go/internal/repository"
	"github.com/mdlh/query-server-go/internal/service"
	"github.com/mdlh/query-server-go/internal/session"
	"github.com/mdlh/query-server-go/internal/warehouse"
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
	cancel()
	if err := db.Migrate(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	historyRepo := repository.NewQueryHistoryRepository(db.DB)

	sessions := session.NewManager(cfg.SessionIdleTTL(), cfg.SessionMaxAge())
	defer sessions.Close()

	metadataCaches := cache.NewMetadata(cache.MetadataTTLs{
		Databases:    time.Duration(cfg.CacheTTLDatabasesSeconds) * time.Second,
		Schemas:      time.Duration(cfg.CacheTTLSchemasSeconds) * time.Second,
		Tables:       time.Duration(cfg.CacheTTLTablesSeconds) * time.Second,
		Columns:      time.Duration(cfg.CacheTTLColumnsSeconds) * time.Second,
		Capabilities: time.Duration(cfg.CacheTTLCapabilitiesSeconds) * time.Second,
	})
	queryCache := cache.NewQueryCache(cfg.QueryCacheMaxEntries, cfg.QueryCacheTTL(), cfg.QueryCacheMaxBytes)

	connService := service.NewConnectionService(sessions, warehouse.OpenSnowflake)
	metaService := service.NewMetadataService(metadataCaches)
	queryService := service.NewQueryService(historyRepo, queryCache, cfg)
	preflightService := service.NewPreflightService()
	feedbackService := service.NewFeedbackService(cfg.FeedbackDatabase, cfg.FeedbackSchema)

	sessionMiddleware := middleware.NewSessionMiddleware(sessions)
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client, cfg.QueryRateLimitPerMin)

	connHandler := handler.NewConnectionHandler(connService)
	metadataHandler := handler.NewMetadataHandler(metaService)
	queryHandler := handler.NewQueryHandler(queryService, preflightService, historyRepo, rateLimitMiddleware.Handler)
	feedbackHandler := handler.NewFeedbackHandler(feedbackService)

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
			"sessions":  sessions.Count(),
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/connect", connHandler.Connect)
		r.Get("/sessions", connHandler.Sessions)

		r.Group(func(r chi.Router) {
			r.Use(sessionMiddleware.Handler)
			r.Mount("/", connHandler.SessionRoutes())
			r.Mount("/metadata", metadataHandler.Routes())
			r.Mount("/query", queryHandler.Routes())
			r.Mount("/feedback", feedbackHandler.Routes())
		})
	})

	cleanupJob := jobs.NewCleanupJob(sessions, historyRepo, cfg.HistoryRetention(), config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

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
