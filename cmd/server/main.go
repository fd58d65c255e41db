package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/industrialcatalog/catalog-server/internal/config"
	"github.com/industrialcatalog/catalog-server/internal/database"
	"github.com/industrialcatalog/catalog-server/internal/handler"
	"github.com/industrialcatalog/catalog-server/internal/jobs"
	"github.com/industrialcatalog/catalog-server/internal/metrics"
	"github.com/industrialcatalog/catalog-server/internal/middleware"
	"github.com/industrialcatalog/catalog-server/internal/notify"
	"github.com/industrialcatalog/catalog-server/internal/redis"
	"github.com/industrialcatalog/catalog-server/internal/repository"
	"github.com/industrialcatalog/catalog-server/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.IsProduction() {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

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
	log.Info().Str("dialect", string(db.Dialect())).Msg("database connected")

	if err := db.Migrate(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	reg := metrics.New()

	var (
		limiter     service.SignInLimiter
		ipLimit     func(http.Handler) http.Handler
		redisPinger handler.Pinger
	)
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewClient(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")

		rl := service.NewRateLimiter(redisClient.Client)
		limiter = rl
		ipLimit = middleware.NewIPRateLimitMiddleware(
			rl, config.AuthRequestsPerIP, config.AuthIPLimiterWindow, "auth", reg,
		).Handler
		redisPinger = redisClient
	} else {
		log.Warn().Msg("REDIS_URL not set, sign-in rate limits are per process")
		limiter = service.NewMemoryLimiter()
		ipLimit = httprate.LimitByIP(config.AuthRequestsPerIP, config.AuthIPLimiterWindow)
	}

	notifier, err := notify.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure mail transport")
	}

	adminRepo := repository.NewAdminRepository(db.DB)
	otpSessionRepo := repository.NewOTPSessionRepository(db.DB)

	otpService := service.NewOTPService(
		db, adminRepo, otpSessionRepo, notifier,
		service.OTPConfig{
			CodeTTL:         cfg.OTPTTL(),
			MaxMintAttempts: cfg.OTPMaxMintAttempts,
			TestEmail:       cfg.TestBypassEmail(),
			AppName:         cfg.AppName,
		},
		service.WithMetrics(reg),
	)
	tokenService := service.NewTokenService(cfg.AdminSessionSecret, cfg.AdminSessionTTL())

	authHandler := handler.NewAuthHandler(otpService, tokenService, adminRepo, limiter, reg, cfg.IsProduction())
	healthHandler := handler.NewHealthHandler(db, redisPinger, config.DBPingTimeout)

	r := newRouter(routerDeps{
		cfg:     cfg,
		metrics: reg,
		auth:    authHandler,
		health:  healthHandler,
		ipLimit: ipLimit,
	})

	cleanupJob := jobs.NewCleanupJob(otpSessionRepo, reg, config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("env", cfg.AppEnv).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
