package producer

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/chatstream/gateway/src/router"
	"github.com/chatstream/gateway/src/types"
)

// requiredFields lists the payload keys every producer event type must
// carry before it is published.
var requiredFields = map[string][]string{
	types.TypeLLMFrame:    {"frame", "user_id", "chat_id"},
	types.TypeLLMResponse: {"data", "user_id", "chat_id"},
	types.TypeLLMError:    {"error", "user_id", "chat_id"},
	types.TypeLLMStatus:   {"status", "user_id", "chat_id"},
}

// Streamer is the only path by which background jobs reach connected
// clients. It is bound to one (user, chat) pair for the duration of one
// job and validates every event before handing it to the router.
type Streamer struct {
	userID string
	chatID string
	group  string
	router router.Router
	logger zerolog.Logger

	mu        sync.RWMutex
	connected bool
}

// New creates a streamer bound to a user's broadcast group.
func New(r router.Router, userID, chatID string, logger zerolog.Logger) *Streamer {
	s := &Streamer{
		userID: userID,
		chatID: chatID,
		group:  router.GroupFor(userID),
		router: r,
		logger: logger.With().
			Str("component", "streamer").
			Str("user_id", userID).
			Str("chat_id", chatID).
			Logger(),
		connected: true,
	}
	s.logger.Info().Msg("streamer initialized")
	return s
}

// Start marks the streamer ready to publish.
func (s *Streamer) Start() {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	s.logger.Info().Msg("streamer ready")
}

// Stop disconnects the streamer. Every publish after Stop is a logged
// no-op, so a job that outlives its streaming intent cannot leak
// messages to a stale target.
func (s *Streamer) Stop() {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	s.logger.Info().Msg("streamer stopped")
}

// Connected reports whether the streamer will still publish.
func (s *Streamer) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Publish validates a producer event and sends it to the bound group.
// Failures are logged and reported as false, never raised into the
// caller's job logic.
func (s *Streamer) Publish(ctx context.Context, eventType string, payload map[string]any) bool {
	if !s.Connected() {
		s.logger.Warn().Str("type", eventType).Msg("streamer stopped, dropping event")
		return false
	}

	required, ok := requiredFields[eventType]
	if !ok {
		s.logger.Error().Str("type", eventType).Msg("unknown producer event type")
		return false
	}
	for _, field := range required {
		if _, present := payload[field]; !present {
			s.logger.Error().
				Str("type", eventType).
				Str("field", field).
				Msg("producer event missing required field")
			return false
		}
	}
	if uid, _ := payload["user_id"].(string); uid != s.userID {
		s.logger.Warn().
			Str("type", eventType).
			Str("expected", s.userID).
			Interface("got", payload["user_id"]).
			Msg("producer event user_id mismatch")
		return false
	}

	msg := s.shape(eventType, payload)
	if err := s.router.Publish(ctx, s.group, msg); err != nil {
		s.logger.Error().Err(err).Str("type", eventType).Msg("publish failed")
		return false
	}
	s.logger.Debug().Str("type", eventType).Msg("event published")
	return true
}

// shape maps a validated payload onto the wire envelope for its type.
// The timestamp is assigned here, at send time.
func (s *Streamer) shape(eventType string, payload map[string]any) types.Message {
	msg := types.Message{
		Type:      eventType,
		UserID:    s.userID,
		ChatID:    stringField(payload, "chat_id"),
		Timestamp: types.Timestamp(),
	}
	switch eventType {
	case types.TypeLLMFrame:
		msg.Frame = mapField(payload, "frame")
	case types.TypeLLMResponse:
		msg.Data = mapField(payload, "data")
	case types.TypeLLMError:
		msg.Error = stringField(payload, "error")
	case types.TypeLLMStatus:
		msg.Status = stringField(payload, "status")
		msg.Message = stringField(payload, "message")
	}
	return msg
}

// SendFrame sends a progress frame to the bound user.
func (s *Streamer) SendFrame(ctx context.Context, frame map[string]any) bool {
	return s.Publish(ctx, types.TypeLLMFrame, map[string]any{
		"frame":   frame,
		"user_id": s.userID,
		"chat_id": s.chatID,
	})
}

// SendResponse sends the final result payload to the bound user.
func (s *Streamer) SendResponse(ctx context.Context, data map[string]any) bool {
	return s.Publish(ctx, types.TypeLLMResponse, map[string]any{
		"data":    data,
		"user_id": s.userID,
		"chat_id": s.chatID,
	})
}

// SendError sends an error notification to the bound user.
func (s *Streamer) SendError(ctx context.Context, errMsg string) bool {
	return s.Publish(ctx, types.TypeLLMError, map[string]any{
		"error":   errMsg,
		"user_id": s.userID,
		"chat_id": s.chatID,
	})
}

// SendStatus sends a lifecycle status update to the bound user.
func (s *Streamer) SendStatus(ctx context.Context, status, message string) bool {
	return s.Publish(ctx, types.TypeLLMStatus, map[string]any{
		"status":  status,
		"message": message,
		"user_id": s.userID,
		"chat_id": s.chatID,
	})
}

// SendProcessingStatus reports that the request is being worked on.
func (s *Streamer) SendProcessingStatus(ctx context.Context, message string) bool {
	if message == "" {
		message = "Processing your request..."
	}
	return s.SendStatus(ctx, "processing", message)
}

// SendCompletion reports successful completion.
func (s *Streamer) SendCompletion(ctx context.Context) bool {
	return s.SendStatus(ctx, "completed", "Response generation completed successfully")
}

// NotifyTaskStarted reports that the job has begun processing a prompt.
func (s *Streamer) NotifyTaskStarted(ctx context.Context, prompt string) bool {
	return s.SendStatus(ctx, "started", "Processing prompt: "+truncate(prompt, 50)+"...")
}

// NotifyLLMThinking reports that the model is working, with no
// progress figure yet.
func (s *Streamer) NotifyLLMThinking(ctx context.Context) bool {
	return s.SendFrame(ctx, map[string]any{
		"status":   "thinking",
		"message":  "LLM is generating response...",
		"progress": "indeterminate",
	})
}

// NotifyStreamingStarted reports that response streaming has begun.
func (s *Streamer) NotifyStreamingStarted(ctx context.Context) bool {
	return s.SendFrame(ctx, map[string]any{
		"status":   "streaming",
		"message":  "Response is being streamed...",
		"progress": 0,
	})
}

// SendPartialResponse streams a chunk of the response. progress may be
// nil when the caller has no completion estimate.
func (s *Streamer) SendPartialResponse(ctx context.Context, text string, progress any) bool {
	frame := map[string]any{
		"status":           "streaming",
		"partial_response": text,
		"message":          "Receiving response...",
	}
	if progress != nil {
		frame["progress"] = progress
	}
	return s.SendFrame(ctx, frame)
}

// NotifyTaskCompleted publishes the final response and then the
// completed status. It succeeds only when both events are published;
// the completion status is not attempted after a failed response.
func (s *Streamer) NotifyTaskCompleted(ctx context.Context, finalResponse string) bool {
	ok := s.SendResponse(ctx, map[string]any{
		"event":        "response_generated",
		"user_id":      s.userID,
		"chat_id":      s.chatID,
		"response":     finalResponse,
		"completed_at": types.Timestamp(),
	})
	if !ok {
		return false
	}
	return s.SendCompletion(ctx)
}

// NotifyTaskFailed reports a job failure as an error event followed by
// a failed status.
func (s *Streamer) NotifyTaskFailed(ctx context.Context, errMsg string) bool {
	ok := s.SendError(ctx, errMsg)
	return s.SendStatus(ctx, "failed", "Task failed: "+errMsg) && ok
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func stringField(payload map[string]any, key string) string {
	v, _ := payload[key].(string)
	return v
}

func mapField(payload map[string]any, key string) map[string]any {
	v, _ := payload[key].(map[string]any)
	return v
}
