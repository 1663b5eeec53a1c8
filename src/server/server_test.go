package server

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"

	"github.com/chatstream/gateway/src/auth"
	"github.com/chatstream/gateway/src/chats"
	"github.com/chatstream/gateway/src/gateway"
	"github.com/chatstream/gateway/src/router"
)

type stubAdmitter struct{}

func (stubAdmitter) Check(context.Context, string) (bool, error) { return true, nil }
func (stubAdmitter) Acquire(context.Context, string) error       { return nil }
func (stubAdmitter) Release(context.Context, string) error       { return nil }

type stubLookup struct{}

func (stubLookup) Get(context.Context, string, string) (*chats.Record, error) {
	return nil, chats.ErrNotFound
}

func testServer() *Server {
	rt := router.NewMemory(zerolog.Nop())
	gw := gateway.New(auth.NewJWT("secret"), stubAdmitter{}, rt, gateway.Config{}, zerolog.Nop())
	return New(gw, rt, auth.NewJWT("secret"), stubLookup{}, nil, nil, Config{}, zerolog.Nop())
}

func TestUserIDFromPath(t *testing.T) {
	cases := map[string]string{
		"/ws/chat-stream/user-1":  "user-1",
		"/ws/chat-stream/user-1/": "user-1",
		"/ws/chat-stream/":        "",
		"/ws/chat-stream/a/b":     "",
	}
	for path, want := range cases {
		assert.Equal(t, want, userIDFromPath(path), "path %q", path)
	}
}

func TestStreamPathRequiresUpgrade(t *testing.T) {
	s := testServer()
	h := s.Handler()

	var ctx fasthttp.RequestCtx
	ctx.Request.SetRequestURI("/ws/chat-stream/user-1")
	h(&ctx)

	assert.Equal(t, fasthttp.StatusUpgradeRequired, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "upgrade_required")
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	ctx.Request.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "203.0.113.7", clientIP(&ctx))
}

func TestClientIPSingleForwardedFor(t *testing.T) {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.Set("X-Forwarded-For", "203.0.113.7")
	assert.Equal(t, "203.0.113.7", clientIP(&ctx))
}

func TestClientIPRealIPFallback(t *testing.T) {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", clientIP(&ctx))
}

func TestClientIPRemoteFallback(t *testing.T) {
	var ctx fasthttp.RequestCtx
	assert.Equal(t, "0.0.0.0", clientIP(&ctx))
}
