// Command server runs the bot gateway: an HTTP ingest surface in front of
// the message pipeline (admission limiting, moderation escalation, cached
// reply generation, chunked delivery) backed by a SQLite violation ledger.
//
// Configuration is environment-driven; see internal/config. A .env file in
// the working directory is honored in development.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-bot-gateway/internal/cache"
	"github.com/tbourn/go-bot-gateway/internal/config"
	"github.com/tbourn/go-bot-gateway/internal/dispatch"
	httpapi "github.com/tbourn/go-bot-gateway/internal/http"
	"github.com/tbourn/go-bot-gateway/internal/http/handlers"
	"github.com/tbourn/go-bot-gateway/internal/moderation"
	"github.com/tbourn/go-bot-gateway/internal/observability"
	"github.com/tbourn/go-bot-gateway/internal/repo"
	"github.com/tbourn/go-bot-gateway/internal/retry"
	"github.com/tbourn/go-bot-gateway/internal/services"
	"github.com/tbourn/go-bot-gateway/internal/sysutil"
	"github.com/tbourn/go-bot-gateway/internal/throttle"
	"github.com/tbourn/go-bot-gateway/internal/upstream"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	logger := log.With().
		Str("service", "bot-gateway").
		Str("host", sysutil.Hostname()).
		Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.Setup(ctx, cfg.OTEL, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(cctx); err != nil {
			logger.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("migrate database failed")
	}

	// Pipeline components.
	store := &repo.Store{DB: db}
	limiter := throttle.NewLimiter(cfg.Rate.Window, cfg.Rate.Max)
	replyCache := cache.NewReplyCache(cfg.Cache.TTL)
	exec := retry.New(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay, cfg.Retry.AttemptTimeout)
	filter := moderation.NewFilter()
	escalator := moderation.NewEscalator(store, logger,
		cfg.Moderation.Timeouts, cfg.Moderation.BanThreshold, cfg.Moderation.BanDuration)
	serializer := dispatch.NewSerializer(logger)

	pipeline := services.NewPipeline(
		limiter, replyCache, exec, filter, escalator, serializer,
		upstream.NewWebhookEntitlement(cfg.Upstream.EntitlementURL),
		upstream.NewWebhookReplier(cfg.Upstream.GenerateURL),
		upstream.NewWebhookSender(cfg.Upstream.SendURL),
		cfg.Upstream.SystemContext,
		cfg.Chunk.MaxLen, cfg.Chunk.Delay,
		logger,
	)

	sweeper := &services.Sweeper{
		Limiter:       limiter,
		Cache:         replyCache,
		Serializer:    serializer,
		StoreInterval: cfg.Sweep.StoreInterval,
		LaneInterval:  cfg.Sweep.LaneInterval,
		Log:           logger,
	}
	go sweeper.Run(ctx)

	// HTTP surface.
	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, handlers.New(pipeline, store), cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
		return
	}

	// Give in-flight requests and queued lanes a moment to drain.
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("server stopped")
}
