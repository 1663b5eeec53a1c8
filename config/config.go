package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full runtime configuration for the gateway and worker
// binaries. Values come from the environment with sensible defaults.
type Config struct {
	Server Server
	Redis  Redis
	Router Router
	NATS   NATS
	Auth   Auth
	Limits Limits
	Jobs   Jobs
}

// Server holds HTTP and WebSocket listener settings.
type Server struct {
	Addr            string   // listen address, default ":8000"
	AllowedOrigins  []string // origins accepted during the WebSocket handshake
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int // per-connection outbound queue length
	MaxInboundBytes int // cap on client messages in producer-only mode
}

// Redis holds connection settings for the shared Redis client.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// Router selects and configures the group router implementation.
type Router struct {
	Kind   string // "redis" or "memory"
	Prefix string // pub/sub channel prefix for the redis router
}

// NATS holds job queue settings.
type NATS struct {
	URL     string
	Subject string
	Queue   string
	Name    string
}

// Auth holds credential validation settings.
type Auth struct {
	Secret string // HMAC secret for access tokens
}

// Limits holds admission control settings.
type Limits struct {
	MaxConnectionsPerUser int
	AcquireTTL            time.Duration // lease lifetime while a connection is up
	ReleaseTTL            time.Duration // lease lifetime after a decrement
}

// Jobs holds generation worker settings.
type Jobs struct {
	UpstreamURL     string        // LLM upstream endpoint, required by the worker
	WebhookURL      string        // optional completion webhook
	GenerateTimeout time.Duration // per-job budget for the upstream call
}

// defaultOrigins are the development frontends accepted when
// WS_ALLOWED_ORIGINS is not set.
var defaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
	"http://localhost:8000",
	"http://127.0.0.1:8000",
}

// Default returns the configuration used when no environment is set.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:            ":8000",
			AllowedOrigins:  append([]string(nil), defaultOrigins...),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			SendBuffer:      256,
			MaxInboundBytes: 512,
		},
		Redis: Redis{
			Addr: "localhost:6379",
		},
		Router: Router{
			Kind:   "redis",
			Prefix: "chatstream:ws:",
		},
		NATS: NATS{
			URL:     "nats://127.0.0.1:4222",
			Subject: "jobs.generate",
			Queue:   "generators",
			Name:    "chatstream-worker",
		},
		Limits: Limits{
			MaxConnectionsPerUser: 3,
			AcquireTTL:            2 * time.Hour,
			ReleaseTTL:            5 * time.Minute,
		},
		Jobs: Jobs{
			GenerateTimeout: 2 * time.Minute,
		},
	}
}

// FromEnv loads configuration from environment variables.
// Falls back to defaults for any missing values.
func FromEnv() *Config {
	cfg := Default()

	cfg.Server.Addr = getEnv("LISTEN_ADDR", cfg.Server.Addr)
	if origins := os.Getenv("WS_ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = splitList(origins)
	}
	cfg.Server.SendBuffer = getEnvInt("WS_SEND_BUFFER", cfg.Server.SendBuffer)
	cfg.Server.MaxInboundBytes = getEnvInt("WS_MAX_INBOUND_BYTES", cfg.Server.MaxInboundBytes)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("REDIS_DB", cfg.Redis.DB)

	cfg.Router.Kind = getEnv("ROUTER_KIND", cfg.Router.Kind)
	cfg.Router.Prefix = getEnv("REDIS_WS_PREFIX", cfg.Router.Prefix)

	cfg.NATS.URL = getEnv("NATS_URL", cfg.NATS.URL)
	cfg.NATS.Subject = getEnv("JOBS_SUBJECT", cfg.NATS.Subject)
	cfg.NATS.Queue = getEnv("JOBS_QUEUE", cfg.NATS.Queue)
	cfg.NATS.Name = getEnv("NATS_NAME", cfg.NATS.Name)

	cfg.Auth.Secret = getEnv("JWT_SECRET", cfg.Auth.Secret)

	cfg.Limits.MaxConnectionsPerUser = getEnvInt("MAX_CONNECTIONS_PER_USER", cfg.Limits.MaxConnectionsPerUser)
	cfg.Limits.AcquireTTL = getEnvSeconds("CONNECTION_TTL_SECONDS", cfg.Limits.AcquireTTL)
	cfg.Limits.ReleaseTTL = getEnvSeconds("RELEASE_TTL_SECONDS", cfg.Limits.ReleaseTTL)

	cfg.Jobs.UpstreamURL = getEnv("LLM_API_URL", cfg.Jobs.UpstreamURL)
	cfg.Jobs.WebhookURL = getEnv("WEBHOOK_URL", cfg.Jobs.WebhookURL)
	cfg.Jobs.GenerateTimeout = getEnvSeconds("GENERATE_TIMEOUT_SECONDS", cfg.Jobs.GenerateTimeout)

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
