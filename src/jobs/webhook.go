package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const webhookTimeout = 5 * time.Second

// Webhook posts job results to a configured callback URL.
type Webhook struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhook creates a notifier for the given URL.
func NewWebhook(url string, logger zerolog.Logger) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: webhookTimeout},
		logger: logger.With().Str("component", "webhook").Logger(),
	}
}

// Send posts the payload as JSON and fails on any non-2xx status.
func (w *Webhook) Send(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	w.logger.Debug().Str("url", w.url).Msg("webhook delivered")
	return nil
}
