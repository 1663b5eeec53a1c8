package chats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no record exists for a (user, chat) pair.
var ErrNotFound = errors.New("chat not found")

// LLMObject is the model configuration attached to a chat.
type LLMObject struct {
	APIKey        string `json:"api_key"`
	SelectedModel string `json:"selected_model"`
}

// Record is one chat session. Records live in Redis hashes keyed by
// llmChat:<user_id>:<chat_id>; the llm_object field holds JSON.
type Record struct {
	UserID string
	ChatID string
	Title  string
	LLM    LLMObject
}

// Store reads chat records.
type Store struct {
	client *redis.Client
}

// NewStore creates a store backed by the given Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func key(userID, chatID string) string {
	return fmt.Sprintf("llmChat:%s:%s", userID, chatID)
}

// Get fetches one chat record. A missing record is ErrNotFound.
func (s *Store) Get(ctx context.Context, userID, chatID string) (*Record, error) {
	data, err := s.client.HGetAll(ctx, key(userID, chatID)).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch chat %s/%s: %w", userID, chatID, err)
	}
	if len(data) == 0 {
		return nil, ErrNotFound
	}

	rec := &Record{
		UserID: userID,
		ChatID: chatID,
		Title:  data["title"],
	}
	raw, ok := data["llm_object"]
	if !ok {
		return nil, fmt.Errorf("chat %s/%s has no llm_object", userID, chatID)
	}
	if err := json.Unmarshal([]byte(raw), &rec.LLM); err != nil {
		return nil, fmt.Errorf("decode llm_object for chat %s/%s: %w", userID, chatID, err)
	}
	return rec, nil
}
