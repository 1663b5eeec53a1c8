package server

import (
	"context"
	"strings"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/chatstream/gateway/src/auth"
	"github.com/chatstream/gateway/src/gateway"
	"github.com/chatstream/gateway/src/jobs"
	"github.com/chatstream/gateway/src/router"
)

const wsPathPrefix = "/ws/chat-stream/"

// Enqueuer hands generation jobs to the worker pool. *jobs.Queue is
// the production implementation.
type Enqueuer interface {
	Enqueue(job jobs.Job) error
}

// Config tunes the HTTP and upgrade layer.
type Config struct {
	ReadBufferSize  int
	WriteBufferSize int
}

// Server terminates HTTP and WebSocket traffic for the stream gateway.
type Server struct {
	app      *fiber.App
	gw       *gateway.Gateway
	rt       router.Router
	auth     auth.Validator
	chats    jobs.ChatLookup
	queue    Enqueuer
	flags    *jobs.StopFlags
	upgrader websocket.FastHTTPUpgrader
	logger   zerolog.Logger
}

// New builds the server and registers its routes. queue and flags may
// be nil when the process runs without a job broker.
func New(gw *gateway.Gateway, rt router.Router, v auth.Validator, lookup jobs.ChatLookup, queue Enqueuer, flags *jobs.StopFlags, cfg Config, logger zerolog.Logger) *Server {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 1024
	}
	if cfg.WriteBufferSize <= 0 {
		cfg.WriteBufferSize = 1024
	}

	s := &Server{
		app:    fiber.New(),
		gw:     gw,
		rt:     rt,
		auth:   v,
		chats:  lookup,
		queue:  queue,
		flags:  flags,
		logger: logger.With().Str("component", "server").Logger(),
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
		},
	}

	s.app.Get("/healthz", s.handleHealth)
	s.app.Get("/ws/info", s.handleInfo)
	s.app.Post("/api/generate", s.handleGenerate)
	s.app.Post("/api/jobs/:id/stop", s.handleStop)
	return s
}

// Handler returns the root fasthttp handler. WebSocket upgrades are
// served directly because Fiber v3 does not expose *fasthttp.RequestCtx;
// everything else falls through to the Fiber app.
func (s *Server) Handler() fasthttp.RequestHandler {
	appHandler := s.app.Handler()
	return func(ctx *fasthttp.RequestCtx) {
		if strings.HasPrefix(string(ctx.Path()), wsPathPrefix) {
			s.handleWS(ctx)
			return
		}
		appHandler(ctx)
	}
}

func (s *Server) handleWS(ctx *fasthttp.RequestCtx) {
	upgrade := string(ctx.Request.Header.Peek("Upgrade"))
	if !strings.EqualFold(upgrade, "websocket") {
		ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
		return
	}

	req := gateway.ConnectRequest{
		UserID:     userIDFromPath(string(ctx.Path())),
		QueryToken: string(ctx.QueryArgs().Peek("token")),
		AuthHeader: string(ctx.Request.Header.Peek("Authorization")),
		Origin:     string(ctx.Request.Header.Peek("Origin")),
		ClientIP:   clientIP(ctx),
	}

	err := s.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		s.gw.Serve(context.Background(), &wsConn{conn: conn}, req)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("websocket upgrade failed")
	}
}

// userIDFromPath extracts the single path segment after the stream
// prefix. Extra segments make the id invalid; the gateway then closes
// the socket with the missing-user code.
func userIDFromPath(path string) string {
	id := strings.Trim(strings.TrimPrefix(path, wsPathPrefix), "/")
	if strings.ContainsRune(id, '/') {
		return ""
	}
	return id
}

// clientIP prefers proxy headers so logs show the real peer address.
func clientIP(ctx *fasthttp.RequestCtx) string {
	if fwd := string(ctx.Request.Header.Peek("X-Forwarded-For")); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	if real := string(ctx.Request.Header.Peek("X-Real-IP")); real != "" {
		return real
	}
	return ctx.RemoteIP().String()
}
