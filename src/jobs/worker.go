package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Worker consumes generation jobs from a NATS queue group. Workers
// sharing a group split the subject between them, so each job runs on
// exactly one instance.
type Worker struct {
	nc      *nats.Conn
	subject string
	queue   string
	runner  *Runner
	logger  zerolog.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

// NewWorker creates a consumer bound to subject and queue group.
func NewWorker(nc *nats.Conn, subject, queue string, runner *Runner, logger zerolog.Logger) *Worker {
	return &Worker{
		nc:      nc,
		subject: subject,
		queue:   queue,
		runner:  runner,
		logger:  logger.With().Str("component", "worker").Logger(),
	}
}

// Start subscribes to the jobs subject.
func (w *Worker) Start() error {
	sub, err := w.nc.QueueSubscribe(w.subject, w.queue, w.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", w.subject, err)
	}
	w.mu.Lock()
	w.sub = sub
	w.mu.Unlock()
	w.logger.Info().Str("subject", w.subject).Str("queue", w.queue).Msg("worker started")
	return nil
}

func (w *Worker) handle(msg *nats.Msg) {
	var job Job
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		w.logger.Error().Err(err).Msg("discarding undecodable job")
		return
	}
	if err := w.runner.Run(context.Background(), job); err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("job failed")
	}
}

// Stop drains the subscription so in-flight jobs finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sub == nil {
		return nil
	}
	if err := w.sub.Drain(); err != nil {
		return err
	}
	w.sub = nil
	w.logger.Info().Msg("worker stopped")
	return nil
}
