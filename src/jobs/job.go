package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Job is one queued generation request.
type Job struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	ChatID string `json:"chat_id"`
	Prompt string `json:"prompt"`
}

// Queue publishes generation jobs for the worker pool.
type Queue struct {
	nc      *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewQueue creates a publisher on the given subject.
func NewQueue(nc *nats.Conn, subject string, logger zerolog.Logger) *Queue {
	return &Queue{
		nc:      nc,
		subject: subject,
		logger:  logger.With().Str("component", "job-queue").Logger(),
	}
}

// Enqueue publishes a job to the generation subject.
func (q *Queue) Enqueue(job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if err := q.nc.Publish(q.subject, data); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	q.logger.Debug().Str("job_id", job.ID).Str("user_id", job.UserID).Msg("job queued")
	return nil
}
