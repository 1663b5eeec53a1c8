package router

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/chatstream/gateway/src/types"
)

// Memory is the in-process router: it fans messages out to local sinks
// only. It backs single-node deployments and tests, and serves as the
// local delivery leg of the redis router.
type Memory struct {
	mu     sync.RWMutex
	groups map[string]map[Sink]struct{}
	logger zerolog.Logger
}

// NewMemory creates an empty in-process router.
func NewMemory(logger zerolog.Logger) *Memory {
	return &Memory{
		groups: make(map[string]map[Sink]struct{}),
		logger: logger.With().Str("component", "router").Logger(),
	}
}

// Subscribe adds a sink to a group.
func (m *Memory) Subscribe(group string, s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.groups[group] == nil {
		m.groups[group] = make(map[Sink]struct{})
	}
	m.groups[group][s] = struct{}{}
}

// Unsubscribe removes a sink from a group. Removing the last sink
// removes the group.
func (m *Memory) Unsubscribe(group string, s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs, ok := m.groups[group]
	if !ok {
		return
	}
	delete(subs, s)
	if len(subs) == 0 {
		delete(m.groups, group)
	}
}

// Publish delivers msg to every sink currently subscribed to group.
// Delivery order follows publish order for a single caller.
func (m *Memory) Publish(_ context.Context, group string, msg types.Message) error {
	m.mu.RLock()
	subs, ok := m.groups[group]
	if !ok {
		m.mu.RUnlock()
		return nil
	}
	// Copy sinks to avoid holding the lock during delivery.
	sinks := make([]Sink, 0, len(subs))
	for s := range subs {
		sinks = append(sinks, s)
	}
	m.mu.RUnlock()

	for _, s := range sinks {
		if !s.Deliver(msg) {
			m.logger.Warn().Str("group", group).Str("type", msg.Type).Msg("sink full, dropping")
		}
	}
	return nil
}

// Groups returns group names with their subscriber counts.
func (m *Memory) Groups() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int, len(m.groups))
	for g, subs := range m.groups {
		out[g] = len(subs)
	}
	return out
}
