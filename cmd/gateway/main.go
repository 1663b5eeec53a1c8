// Command gateway serves the WebSocket stream endpoint and the HTTP
// API that queues generation jobs.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/chatstream/gateway/config"
	"github.com/chatstream/gateway/src/admission"
	"github.com/chatstream/gateway/src/auth"
	"github.com/chatstream/gateway/src/chats"
	"github.com/chatstream/gateway/src/gateway"
	"github.com/chatstream/gateway/src/jobs"
	"github.com/chatstream/gateway/src/router"
	"github.com/chatstream/gateway/src/server"
)

func main() {
	logger := newLogger()
	cfg := config.FromEnv()

	if cfg.Auth.Secret == "" {
		logger.Fatal().Msg("JWT_SECRET is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	rt, err := router.New(cfg.Router.Kind, cfg.Router.Prefix, rdb, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("kind", cfg.Router.Kind).Msg("router init failed")
	}

	limiter := admission.NewLimiter(rdb, admission.Config{
		MaxPerUser: cfg.Limits.MaxConnectionsPerUser,
		AcquireTTL: cfg.Limits.AcquireTTL,
		ReleaseTTL: cfg.Limits.ReleaseTTL,
	})

	validator := auth.NewJWT(cfg.Auth.Secret)
	gw := gateway.New(validator, limiter, rt, gateway.Config{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		SendBuffer:      cfg.Server.SendBuffer,
		MaxInboundBytes: cfg.Server.MaxInboundBytes,
	}, logger)

	store := chats.NewStore(rdb)
	flags := jobs.NewStopFlags(rdb)

	// NATS is non-fatal here: without a broker the stream endpoint
	// still works and the generate API answers 503.
	var queue server.Enqueuer
	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name(cfg.NATS.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		logger.Warn().Err(err).Str("url", cfg.NATS.URL).Msg("nats unavailable, generate API disabled")
	} else {
		defer nc.Close()
		queue = jobs.NewQueue(nc, cfg.NATS.Subject, logger)
	}

	srv := server.New(gw, rt, validator, store, queue, flags, server.Config{
		ReadBufferSize:  cfg.Server.ReadBufferSize,
		WriteBufferSize: cfg.Server.WriteBufferSize,
	}, logger)

	httpSrv := &fasthttp.Server{
		Handler: srv.Handler(),
		Name:    "chatstream-gateway",
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("gateway listening")
		if err := httpSrv.ListenAndServe(cfg.Server.Addr); err != nil {
			logger.Fatal().Err(err).Msg("listener stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info().Msg("shutting down")
	if err := httpSrv.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
	if r, ok := rt.(*router.Redis); ok {
		if err := r.Stop(); err != nil {
			logger.Error().Err(err).Msg("router stop error")
		}
	}
	if err := rdb.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = zerolog.DebugLevel
	}
	return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
}
