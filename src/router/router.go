package router

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/chatstream/gateway/src/types"
)

// Router kinds understood by New.
const (
	KindMemory = "memory"
	KindRedis  = "redis"
)

// Sink receives messages delivered to a subscribed group member.
// Deliver must not block; it reports false when the message was dropped.
type Sink interface {
	Deliver(msg types.Message) bool
}

// Router fans published messages out to every sink subscribed to a group.
type Router interface {
	Subscribe(group string, s Sink)
	Unsubscribe(group string, s Sink)
	Publish(ctx context.Context, group string, msg types.Message) error
}

// StatsProvider is implemented by routers that can report group occupancy.
type StatsProvider interface {
	Groups() map[string]int
}

// GroupFor returns the broadcast group owned by a user.
func GroupFor(userID string) string {
	return "user_" + userID
}

// New builds the configured router implementation. The redis kind is
// started before it is returned.
func New(kind, prefix string, client *redis.Client, logger zerolog.Logger) (Router, error) {
	switch kind {
	case KindMemory:
		return NewMemory(logger), nil
	case KindRedis:
		r := NewRedis(client, prefix, logger)
		if err := r.Start(); err != nil {
			return nil, fmt.Errorf("start redis router: %w", err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown router kind %q", kind)
	}
}
