package router

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/chatstream/gateway/src/types"
)

// envelope wraps a published message with the originating instance ID
// so a node can skip its own broadcasts coming back from Redis.
type envelope struct {
	InstanceID string        `json:"instance_id"`
	Group      string        `json:"group"`
	Message    types.Message `json:"message"`
}

// Redis relays published messages between gateway instances over a
// single Redis pub/sub channel. Local sinks are served by an embedded
// Memory router; remote envelopes are delivered locally only, never
// re-published.
type Redis struct {
	client     *redis.Client
	prefix     string
	instanceID string
	local      *Memory
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active bool
}

// NewRedis creates a router that uses Redis pub/sub for cross-instance
// fan-out. The client is shared with the caller and is not closed by Stop.
func NewRedis(client *redis.Client, prefix string, logger zerolog.Logger) *Redis {
	ctx, cancel := context.WithCancel(context.Background())
	return &Redis{
		client:     client,
		prefix:     prefix,
		instanceID: uuid.New().String(),
		local:      NewMemory(logger),
		logger:     logger.With().Str("component", "redis-router").Logger(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (r *Redis) channel() string { return r.prefix + "broadcast" }

// Start subscribes to the broadcast channel and begins relaying.
func (r *Redis) Start() error {
	if err := r.client.Ping(r.ctx).Err(); err != nil {
		return err
	}

	sub := r.client.Subscribe(r.ctx, r.channel())

	// Wait for subscription confirmation.
	if _, err := sub.Receive(r.ctx); err != nil {
		return err
	}

	r.mu.Lock()
	r.active = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.listen(sub)

	r.logger.Info().
		Str("instance_id", r.instanceID).
		Str("channel", r.channel()).
		Msg("redis router started")
	return nil
}

// Subscribe adds a local sink to a group.
func (r *Redis) Subscribe(group string, s Sink) { r.local.Subscribe(group, s) }

// Unsubscribe removes a local sink from a group.
func (r *Redis) Unsubscribe(group string, s Sink) { r.local.Unsubscribe(group, s) }

// Publish delivers msg to local subscribers and relays it to other
// instances. Local delivery happens even when the relay fails; the
// returned error reports the relay outcome.
func (r *Redis) Publish(ctx context.Context, group string, msg types.Message) error {
	_ = r.local.Publish(ctx, group, msg)

	env := envelope{InstanceID: r.instanceID, Group: group, Message: msg}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel(), data).Err()
}

// Groups returns local group occupancy.
func (r *Redis) Groups() map[string]int { return r.local.Groups() }

// Stop halts the relay. Local subscriptions are left to their owners.
func (r *Redis) Stop() error {
	r.mu.Lock()
	r.active = false
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	return nil
}

// Available reports whether the relay is running.
func (r *Redis) Available() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// listen reads envelopes from the subscription and forwards non-self
// messages to local sinks.
func (r *Redis) listen(sub *redis.PubSub) {
	defer r.wg.Done()
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handle(msg)
		case <-r.ctx.Done():
			return
		}
	}
}

// handle decodes an envelope and delivers non-self messages locally.
func (r *Redis) handle(msg *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		r.logger.Error().Err(err).Msg("failed to decode relay envelope")
		return
	}

	// Skip messages that originated from this instance.
	if env.InstanceID == r.instanceID {
		return
	}

	r.logger.Debug().
		Str("from_instance", env.InstanceID).
		Str("group", env.Group).
		Msg("relaying message from redis")

	_ = r.local.Publish(r.ctx, env.Group, env.Message)
}
