// Command worker consumes generation jobs from NATS, calls the LLM
// upstream and streams results back through the router.
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

	"github.com/chatstream/gateway/config"
	"github.com/chatstream/gateway/src/chats"
	"github.com/chatstream/gateway/src/jobs"
	"github.com/chatstream/gateway/src/router"
)

func main() {
	logger := newLogger()
	cfg := config.FromEnv()

	if cfg.Jobs.UpstreamURL == "" {
		logger.Fatal().Msg("LLM_API_URL is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// The worker must publish through the same fabric the gateways
	// subscribe on, so the router kind has to match theirs.
	rt, err := router.New(cfg.Router.Kind, cfg.Router.Prefix, rdb, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("kind", cfg.Router.Kind).Msg("router init failed")
	}

	store := chats.NewStore(rdb)
	flags := jobs.NewStopFlags(rdb)
	gen := jobs.NewUpstream(cfg.Jobs.UpstreamURL, cfg.Jobs.GenerateTimeout, logger)

	var webhook *jobs.Webhook
	if cfg.Jobs.WebhookURL != "" {
		webhook = jobs.NewWebhook(cfg.Jobs.WebhookURL, logger)
	}

	runner := jobs.NewRunner(rt, store, gen, flags, webhook, logger)

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name(cfg.NATS.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		logger.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("nats connect failed")
	}
	defer nc.Close()

	worker := jobs.NewWorker(nc, cfg.NATS.Subject, cfg.NATS.Queue, runner, logger)
	if err := worker.Start(); err != nil {
		logger.Fatal().Err(err).Msg("worker start failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info().Msg("shutting down")
	if err := worker.Stop(); err != nil {
		logger.Error().Err(err).Msg("worker stop error")
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
