package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatstream/gateway/src/chats"
)

// Generator produces the final response for a prompt. It is the
// boundary to the external LLM service.
type Generator interface {
	Generate(ctx context.Context, rec *chats.Record, prompt string) (string, error)
}

// Upstream calls a completion endpoint over HTTP using the chat's own
// model selection and credentials.
type Upstream struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewUpstream creates a generator against the given endpoint. The
// timeout bounds the whole request including response streaming.
func NewUpstream(url string, timeout time.Duration, logger zerolog.Logger) *Upstream {
	return &Upstream{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "llm-upstream").Logger(),
	}
}

type upstreamRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type upstreamResponse struct {
	Response string `json:"response"`
}

// Generate posts the prompt and returns the completed response text.
func (u *Upstream) Generate(ctx context.Context, rec *chats.Record, prompt string) (string, error) {
	body, err := json.Marshal(upstreamRequest{Model: rec.LLM.SelectedModel, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("encode upstream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if rec.LLM.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+rec.LLM.APIKey)
	}

	started := time.Now()
	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upstream call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upstream returned %d", resp.StatusCode)
	}

	var out upstreamResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upstream response: %w", err)
	}

	u.logger.Debug().
		Str("model", rec.LLM.SelectedModel).
		Dur("elapsed", time.Since(started)).
		Msg("generation finished")
	return out.Response, nil
}
