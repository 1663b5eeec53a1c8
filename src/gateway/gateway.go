package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chatstream/gateway/src/auth"
	"github.com/chatstream/gateway/src/router"
	"github.com/chatstream/gateway/src/types"
)

// Admitter is the admission-control seam. *admission.Limiter is the
// production implementation.
type Admitter interface {
	Check(ctx context.Context, userID string) (bool, error)
	Acquire(ctx context.Context, userID string) error
	Release(ctx context.Context, userID string) error
}

// ConnectRequest carries the handshake attributes the gateway needs to
// admit or reject a socket.
type ConnectRequest struct {
	UserID     string // path user id, "" when absent
	QueryToken string // token query parameter
	AuthHeader string // raw Authorization header value
	Origin     string // Origin header, "" when absent
	ClientIP   string
}

// credential resolves the bearer token: query parameter first, then
// the Authorization header.
func (r ConnectRequest) credential() string {
	if r.QueryToken != "" {
		return r.QueryToken
	}
	parts := strings.SplitN(r.AuthHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return ""
}

// Config tunes per-connection behaviour.
type Config struct {
	AllowedOrigins  []string
	SendBuffer      int
	MaxInboundBytes int
}

// Gateway arbitrates socket admission and enforces the producer-only
// traffic policy for every admitted connection.
type Gateway struct {
	auth     auth.Validator
	admitter Admitter
	router   router.Router
	origins  map[string]struct{}
	cfg      Config
	logger   zerolog.Logger

	mu    sync.RWMutex
	conns map[string]*connection
}

// New creates a gateway. Zero buffer settings fall back to defaults.
func New(v auth.Validator, a Admitter, r router.Router, cfg Config, logger zerolog.Logger) *Gateway {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.MaxInboundBytes <= 0 {
		cfg.MaxInboundBytes = 512
	}
	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[o] = struct{}{}
	}
	return &Gateway{
		auth:     v,
		admitter: a,
		router:   r,
		origins:  origins,
		cfg:      cfg,
		logger:   logger.With().Str("component", "gateway").Logger(),
		conns:    make(map[string]*connection),
	}
}

// Serve runs one socket through the admission state machine and, once
// active, its read loop. It blocks until the connection terminates and
// always runs the same teardown regardless of the exit path.
func (g *Gateway) Serve(ctx context.Context, sock types.Conn, req ConnectRequest) {
	c := newConnection(uuid.New().String(), sock, req.ClientIP, g.cfg.SendBuffer)
	defer g.teardown(c)

	log := g.logger.With().
		Str("connection_id", c.id).
		Str("client_ip", c.clientIP).
		Logger()

	c.setState(StateAuthenticating)
	token := req.credential()
	if token == "" {
		log.Warn().Msg("connection rejected: no authentication token")
		g.reject(c, types.CloseUnauthorized, "authentication required")
		return
	}
	ident, err := g.auth.Validate(token)
	if err != nil {
		log.Warn().Err(err).Msg("connection rejected: invalid credential")
		g.reject(c, types.CloseUnauthorized, "authentication failed")
		return
	}

	c.setState(StateAuthorizing)
	if req.UserID == "" {
		log.Warn().Msg("connection rejected: no user id in path")
		g.reject(c, types.CloseBadRequest, "user id required")
		return
	}
	if ident.UserID != req.UserID {
		log.Warn().
			Str("authenticated", ident.UserID).
			Str("requested", req.UserID).
			Msg("connection rejected: identity mismatch")
		g.reject(c, types.CloseForbidden, "forbidden")
		return
	}
	c.userID = req.UserID
	c.group = router.GroupFor(req.UserID)

	c.setState(StateAdmissionCheck)
	ok, err := g.admitter.Check(ctx, c.userID)
	if err != nil {
		// Fail closed: an unreachable counter must not admit anyone.
		log.Error().Err(err).Msg("admission check failed, rejecting")
		g.reject(c, types.CloseTooManyConns, "admission unavailable")
		return
	}
	if !ok {
		log.Warn().Str("user_id", c.userID).Msg("connection rejected: too many connections")
		g.reject(c, types.CloseTooManyConns, "connection limit reached")
		return
	}

	c.setState(StateOriginCheck)
	if !g.originAllowed(req.Origin) {
		log.Warn().Str("origin", req.Origin).Msg("connection rejected: origin not allowed")
		g.reject(c, types.CloseOriginRejected, "origin not allowed")
		return
	}

	g.router.Subscribe(c.group, c)
	c.subscribed = true
	if err := g.admitter.Acquire(ctx, c.userID); err != nil {
		log.Error().Err(err).Msg("lease acquire failed, rejecting")
		g.reject(c, types.CloseTooManyConns, "admission unavailable")
		return
	}
	c.leased = true
	c.setState(StateSubscribed)

	// The system message goes out before the pump starts, so it is the
	// first frame on the wire even if a producer is already publishing.
	system := types.Message{
		Type:      types.TypeSystem,
		Status:    "connected",
		Message:   "WebSocket connection established",
		Timestamp: types.Timestamp(),
	}
	if err := sock.WriteJSON(system); err != nil {
		log.Warn().Err(err).Msg("handshake write failed")
		return
	}

	g.track(c)
	go c.writePump()
	c.setState(StateActive)
	log.Info().Str("user_id", c.userID).Msg("connection established")

	g.readLoop(c)
}

// teardown is the single cleanup routine for every exit path. Each
// step is idempotent, so an abnormal closure cannot leak a group
// membership or a lease.
func (g *Gateway) teardown(c *connection) {
	if c.subscribed {
		g.router.Unsubscribe(c.group, c)
	}
	if c.leased {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := g.admitter.Release(ctx, c.userID); err != nil {
			g.logger.Error().Err(err).Str("user_id", c.userID).Msg("lease release failed")
		}
		cancel()
	}
	g.untrack(c)
	c.close()
	c.setState(StateClosed)
	g.logger.Info().
		Str("connection_id", c.id).
		Str("user_id", c.userID).
		Msg("connection closed")
}

// reject closes the socket with a rejection code. The connection never
// reached ACTIVE, so there is no pump to stop.
func (g *Gateway) reject(c *connection, code int, reason string) {
	c.setState(StateRejected)
	if err := c.conn.CloseWithCode(code, reason); err != nil {
		g.logger.Debug().Err(err).Int("close_code", code).Msg("close frame not delivered")
	}
}

// readLoop enforces the producer-only inbound policy until the socket
// closes. Violations get an error reply; the connection stays open.
func (g *Gateway) readLoop(c *connection) {
	for {
		data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		g.handleInbound(c, data)
	}
}

// handleInbound processes one client message. Only health checks are
// accepted; nothing a client sends ever reaches a job or mutates
// application state.
func (g *Gateway) handleInbound(c *connection, data []byte) {
	if len(data) > g.cfg.MaxInboundBytes {
		g.sendError(c, "Message too large")
		return
	}

	var in types.Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		g.sendError(c, "Invalid JSON format")
		return
	}

	switch in.Type {
	case types.TypePing:
		ts := in.Timestamp
		if ts == "" {
			ts = types.Timestamp()
		}
		c.Deliver(types.Message{
			Type:       types.TypePong,
			Timestamp:  ts,
			ServerTime: types.Timestamp(),
			UserID:     c.userID,
		})
	case types.TypeHeartbeat:
		c.Deliver(types.Message{
			Type:      types.TypeHeartbeatAck,
			Timestamp: types.Timestamp(),
			Status:    "connected",
		})
	default:
		g.sendError(c, fmt.Sprintf("Message type '%s' not supported in producer-only mode", in.Type))
	}
}

// sendError replies to an inbound violation without closing the socket.
func (g *Gateway) sendError(c *connection, message string) {
	c.Deliver(types.Message{
		Type:      types.TypeError,
		Message:   message,
		Timestamp: types.Timestamp(),
	})
}

// originAllowed applies the allow-list. A missing Origin header is
// treated as same-origin and allowed.
func (g *Gateway) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	_, ok := g.origins[origin]
	return ok
}

func (g *Gateway) track(c *connection) {
	g.mu.Lock()
	g.conns[c.id] = c
	g.mu.Unlock()
}

func (g *Gateway) untrack(c *connection) {
	g.mu.Lock()
	delete(g.conns, c.id)
	g.mu.Unlock()
}

// ActiveConnections returns the number of live admitted connections.
func (g *Gateway) ActiveConnections() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

// Connections snapshots metadata for every live connection.
func (g *Gateway) Connections() []types.ConnectionInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]types.ConnectionInfo, 0, len(g.conns))
	for _, c := range g.conns {
		out = append(out, c.info())
	}
	return out
}
