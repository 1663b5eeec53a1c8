package producer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatstream/gateway/src/router"
	"github.com/chatstream/gateway/src/types"
)

// fakeRouter records published messages and can fail on demand.
type fakeRouter struct {
	mu       sync.Mutex
	groups   []string
	msgs     []types.Message
	err      error
	attempts int
}

func (f *fakeRouter) Subscribe(string, router.Sink)   {}
func (f *fakeRouter) Unsubscribe(string, router.Sink) {}

func (f *fakeRouter) Publish(_ context.Context, group string, msg types.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.err != nil {
		return f.err
	}
	f.groups = append(f.groups, group)
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeRouter) published() []types.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]types.Message, len(f.msgs))
	copy(cp, f.msgs)
	return cp
}

func newTestStreamer() (*Streamer, *fakeRouter) {
	rt := &fakeRouter{}
	return New(rt, "user-1", "chat-1", zerolog.Nop()), rt
}

func TestSendStatusShape(t *testing.T) {
	s, rt := newTestStreamer()

	ok := s.SendStatus(context.Background(), "processing", "working on it")
	require.True(t, ok)

	msgs := rt.published()
	require.Len(t, msgs, 1)
	assert.Equal(t, types.TypeLLMStatus, msgs[0].Type)
	assert.Equal(t, "user-1", msgs[0].UserID)
	assert.Equal(t, "chat-1", msgs[0].ChatID)
	assert.Equal(t, "processing", msgs[0].Status)
	assert.Equal(t, "working on it", msgs[0].Message)
	assert.NotEmpty(t, msgs[0].Timestamp)
	assert.Equal(t, "user_user-1", rt.groups[0])
}

func TestSendErrorShape(t *testing.T) {
	s, rt := newTestStreamer()

	require.True(t, s.SendError(context.Background(), "model exploded"))

	msgs := rt.published()
	require.Len(t, msgs, 1)
	assert.Equal(t, types.TypeLLMError, msgs[0].Type)
	assert.Equal(t, "model exploded", msgs[0].Error)
}

func TestPublishRejectsUnknownType(t *testing.T) {
	s, rt := newTestStreamer()

	ok := s.Publish(context.Background(), "telemetry", map[string]any{
		"user_id": "user-1", "chat_id": "chat-1",
	})
	assert.False(t, ok)
	assert.Empty(t, rt.published())
}

func TestPublishRejectsMissingRequiredField(t *testing.T) {
	s, rt := newTestStreamer()

	// llm_error without its error field.
	ok := s.Publish(context.Background(), types.TypeLLMError, map[string]any{
		"user_id": "user-1", "chat_id": "chat-1",
	})
	assert.False(t, ok)
	assert.Empty(t, rt.published())
}

func TestPublishRejectsForeignUser(t *testing.T) {
	s, rt := newTestStreamer()

	ok := s.Publish(context.Background(), types.TypeLLMStatus, map[string]any{
		"status": "started", "user_id": "someone-else", "chat_id": "chat-1",
	})
	assert.False(t, ok)
	assert.Empty(t, rt.published())
}

func TestStoppedStreamerDropsEverything(t *testing.T) {
	s, rt := newTestStreamer()
	s.Stop()

	assert.False(t, s.Connected())
	assert.False(t, s.SendStatus(context.Background(), "started", "x"))
	assert.False(t, s.SendError(context.Background(), "x"))
	assert.Empty(t, rt.published())

	s.Start()
	assert.True(t, s.Connected())
	assert.True(t, s.SendStatus(context.Background(), "started", "x"))
	assert.Len(t, rt.published(), 1)
}

func TestNotifyLLMThinkingFrame(t *testing.T) {
	s, rt := newTestStreamer()

	require.True(t, s.NotifyLLMThinking(context.Background()))

	msgs := rt.published()
	require.Len(t, msgs, 1)
	assert.Equal(t, types.TypeLLMFrame, msgs[0].Type)
	require.NotNil(t, msgs[0].Frame)
	assert.Equal(t, "thinking", msgs[0].Frame["status"])
	assert.Equal(t, "indeterminate", msgs[0].Frame["progress"])
}

func TestNotifyStreamingStartedKeepsZeroProgress(t *testing.T) {
	s, rt := newTestStreamer()

	require.True(t, s.NotifyStreamingStarted(context.Background()))

	msgs := rt.published()
	require.Len(t, msgs, 1)
	assert.Equal(t, "streaming", msgs[0].Frame["status"])
	assert.Equal(t, 0, msgs[0].Frame["progress"])
}

func TestSendPartialResponseOmitsNilProgress(t *testing.T) {
	s, rt := newTestStreamer()

	require.True(t, s.SendPartialResponse(context.Background(), "hel", nil))
	require.True(t, s.SendPartialResponse(context.Background(), "hello", 42))

	msgs := rt.published()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hel", msgs[0].Frame["partial_response"])
	_, hasProgress := msgs[0].Frame["progress"]
	assert.False(t, hasProgress)
	assert.Equal(t, 42, msgs[1].Frame["progress"])
}

func TestNotifyTaskStartedTruncatesLongPrompt(t *testing.T) {
	s, rt := newTestStreamer()

	long := strings.Repeat("a", 60)
	require.True(t, s.NotifyTaskStarted(context.Background(), long))

	msgs := rt.published()
	require.Len(t, msgs, 1)
	assert.Equal(t, "started", msgs[0].Status)
	assert.Equal(t, "Processing prompt: "+strings.Repeat("a", 50)+"...", msgs[0].Message)
}

func TestNotifyTaskStartedShortPrompt(t *testing.T) {
	s, rt := newTestStreamer()

	require.True(t, s.NotifyTaskStarted(context.Background(), "hi"))
	assert.Equal(t, "Processing prompt: hi...", rt.published()[0].Message)
}

func TestNotifyTaskCompletedSequence(t *testing.T) {
	s, rt := newTestStreamer()

	require.True(t, s.NotifyTaskCompleted(context.Background(), "the answer"))

	msgs := rt.published()
	require.Len(t, msgs, 2)

	assert.Equal(t, types.TypeLLMResponse, msgs[0].Type)
	require.NotNil(t, msgs[0].Data)
	assert.Equal(t, "response_generated", msgs[0].Data["event"])
	assert.Equal(t, "the answer", msgs[0].Data["response"])
	assert.Equal(t, "user-1", msgs[0].Data["user_id"])
	assert.NotEmpty(t, msgs[0].Data["completed_at"])

	assert.Equal(t, types.TypeLLMStatus, msgs[1].Type)
	assert.Equal(t, "completed", msgs[1].Status)
	assert.Equal(t, "Response generation completed successfully", msgs[1].Message)
}

func TestNotifyTaskCompletedStopsAfterFailedResponse(t *testing.T) {
	rt := &fakeRouter{err: errors.New("relay down")}
	s := New(rt, "user-1", "chat-1", zerolog.Nop())

	ok := s.NotifyTaskCompleted(context.Background(), "the answer")
	assert.False(t, ok)
	// The completion status must not be attempted after the response
	// publish failed.
	assert.Equal(t, 1, rt.attempts)
}

func TestNotifyTaskFailedSequence(t *testing.T) {
	s, rt := newTestStreamer()

	require.True(t, s.NotifyTaskFailed(context.Background(), "boom"))

	msgs := rt.published()
	require.Len(t, msgs, 2)
	assert.Equal(t, types.TypeLLMError, msgs[0].Type)
	assert.Equal(t, "boom", msgs[0].Error)
	assert.Equal(t, types.TypeLLMStatus, msgs[1].Type)
	assert.Equal(t, "failed", msgs[1].Status)
	assert.Equal(t, "Task failed: boom", msgs[1].Message)
}

func TestSendProcessingStatusDefaultMessage(t *testing.T) {
	s, rt := newTestStreamer()

	require.True(t, s.SendProcessingStatus(context.Background(), ""))
	assert.Equal(t, "Processing your request...", rt.published()[0].Message)
}
