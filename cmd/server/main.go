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

	"github.com/steamrent/rental-server-go/internal/capability"
	"github.com/steamrent/rental-server-go/internal/config"
	"github.com/steamrent/rental-server-go/internal/database"
	"github.com/steamrent/rental-server-go/internal/handler"
	"github.com/steamrent/rental-server-go/internal/jobs"
	"github.com/steamrent/rental-server-go/internal/middleware"
	"github.com/steamrent/rental-server-go/internal/redis"
	"github.com/steamrent/rental-server-go/internal/repository"
	"github.com/steamrent/rental-server-go/internal/service"
	"github.com/steamrent/rental-server-go/internal/util"
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
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	accountRepo := repository.NewAccountRepository(db)
	friendModeRepo := repository.NewFriendModeRepository(db)
	operatorRepo := repository.NewOperatorRepository(db)

	bootstrapOperator(operatorRepo)

	notifier := capability.Notifier(capability.NewHTTPNotifier(cfg.NotifierURL))

	var rotator capability.CredentialRotator = capability.NoopRotator{}
	if cfg.RotatorURL != "" {
		rotator = capability.NewHTTPRotator(cfg.RotatorURL, cfg.RotationTimeout())
	}

	var guard capability.GuardCodeFetcher = capability.NoneGuardFetcher{}
	if cfg.MailboxURL != "" {
		guard = capability.NewHTTPGuardFetcher(cfg.MailboxURL, cfg.GuardFetchTimeoutDur())
	}

	leaseService := service.NewLeaseService(accountRepo, notifier, cfg)
	friendModeService := service.NewFriendModeService(friendModeRepo, cfg)
	gameNameService := service.NewGameNameService(redisClient)
	rateLimiter := service.NewCommandRateLimiter(redisClient)

	expiryWatcher := jobs.NewExpiryWatcher(accountRepo, leaseService, rotator, notifier, cfg)
	defer expiryWatcher.Stop()

	allocationService := service.NewAllocationService(
		accountRepo, friendModeService, leaseService, expiryWatcher, guard, notifier, cfg,
	)
	bonusService := service.NewBonusService(accountRepo, leaseService, expiryWatcher, notifier, cfg)

	recoverCtx, recoverCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := expiryWatcher.Recover(recoverCtx); err != nil {
		log.Fatal().Err(err).Msg("failed to recover expiry watchers")
	}
	recoverCancel()

	authMiddleware := middleware.NewAuthMiddleware(operatorRepo)

	eventsHandler := handler.NewEventsHandler(
		accountRepo, allocationService, bonusService, friendModeService,
		gameNameService, rateLimiter, notifier,
	)
	adminHandler := handler.NewAdminHandler(
		accountRepo, leaseService, expiryWatcher, gameNameService, friendModeService,
	)

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
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/events", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Mount("/", eventsHandler.Routes())
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Mount("/", adminHandler.Routes())
	})

	cleanupJob := jobs.NewCleanupJob(friendModeService, config.CleanupJobInterval)
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

// bootstrapOperator creates the initial operator on an empty database and
// prints the token once. Further operators are added through the database.
func bootstrapOperator(operators repository.OperatorRepository) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := operators.Count(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to count operators")
	}
	if count > 0 {
		return
	}

	token, err := util.GenerateToken()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to generate operator token")
	}
	if _, err := operators.Create(ctx, "admin", util.HashToken(token)); err != nil {
		log.Fatal().Err(err).Msg("failed to create initial operator")
	}

	log.Info().Str("token", token).Msg("initial operator created, store this token now")
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
