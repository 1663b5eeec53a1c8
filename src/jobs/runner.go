package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatstream/gateway/src/chats"
	"github.com/chatstream/gateway/src/producer"
	"github.com/chatstream/gateway/src/router"
	"github.com/chatstream/gateway/src/types"
)

// ErrStopped marks a job abandoned because its stop flag was set.
var ErrStopped = errors.New("job stopped")

// ChatLookup resolves chat records. *chats.Store is the production
// implementation.
type ChatLookup interface {
	Get(ctx context.Context, userID, chatID string) (*chats.Record, error)
}

// Flags is the stop-request seam. *StopFlags is the production
// implementation.
type Flags interface {
	IsSet(ctx context.Context, jobID string) (bool, error)
	Clear(ctx context.Context, jobID string) error
}

// Runner executes one generation job end to end: streamer lifecycle,
// chat lookup, upstream call, client notification and webhook.
type Runner struct {
	router  router.Router
	chats   ChatLookup
	gen     Generator
	flags   Flags
	webhook *Webhook // nil when no webhook URL is configured

	base   zerolog.Logger // streamers derive their own component field
	logger zerolog.Logger
}

// NewRunner wires a runner. flags and webhook may be nil.
func NewRunner(rt router.Router, lookup ChatLookup, gen Generator, flags Flags, webhook *Webhook, logger zerolog.Logger) *Runner {
	return &Runner{
		router:  rt,
		chats:   lookup,
		gen:     gen,
		flags:   flags,
		webhook: webhook,
		base:    logger,
		logger:  logger.With().Str("component", "job-runner").Logger(),
	}
}

// Run processes one job. Failures are reported to the client before
// the error is returned; the returned error is the supervision signal
// and does not depend on whether that delivery succeeded.
func (r *Runner) Run(ctx context.Context, job Job) error {
	log := r.logger.With().
		Str("job_id", job.ID).
		Str("user_id", job.UserID).
		Str("chat_id", job.ChatID).
		Logger()

	streamer := producer.New(r.router, job.UserID, job.ChatID, r.base)
	streamer.Start()
	defer func() {
		if r.flags != nil {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := r.flags.Clear(cleanupCtx, job.ID); err != nil {
				log.Warn().Err(err).Msg("stop flag cleanup failed")
			}
			cancel()
		}
		streamer.Stop()
	}()

	streamer.NotifyTaskStarted(ctx, job.Prompt)

	rec, err := r.chats.Get(ctx, job.UserID, job.ChatID)
	if err != nil {
		streamer.NotifyTaskFailed(ctx, fmt.Sprintf("chat lookup failed: %v", err))
		return fmt.Errorf("job %s: chat lookup: %w", job.ID, err)
	}

	if r.flags != nil {
		stopped, err := r.flags.IsSet(ctx, job.ID)
		if err != nil {
			log.Warn().Err(err).Msg("stop flag check failed")
		} else if stopped {
			streamer.NotifyTaskFailed(ctx, "task stopped before generation")
			return fmt.Errorf("job %s: %w", job.ID, ErrStopped)
		}
	}

	streamer.NotifyLLMThinking(ctx)

	response, err := r.gen.Generate(ctx, rec, job.Prompt)
	if err != nil {
		log.Error().Err(err).Str("model", rec.LLM.SelectedModel).Msg("generation failed")
		streamer.NotifyTaskFailed(ctx, fmt.Sprintf("LLM processing failed: %v", err))
		return fmt.Errorf("job %s: generate: %w", job.ID, err)
	}

	if streamer.NotifyTaskCompleted(ctx, response) {
		log.Info().Int("response_length", len(response)).Msg("response delivered")
	} else {
		log.Warn().Msg("response delivery incomplete")
	}

	if r.webhook != nil {
		payload := map[string]any{
			"event":   "response_generated",
			"user_id": job.UserID,
			"chat_id": job.ChatID,
			"data": map[string]any{
				"prompt":    job.Prompt,
				"response":  response,
				"model":     rec.LLM.SelectedModel,
				"timestamp": types.Timestamp(),
			},
		}
		if err := r.webhook.Send(ctx, payload); err != nil {
			log.Error().Err(err).Msg("webhook delivery failed")
		}
	}

	return nil
}
