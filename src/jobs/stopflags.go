package jobs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const stopKeyPrefix = "stop_task_"

// stopFlagTTL bounds how long an unconsumed stop request lingers.
const stopFlagTTL = time.Hour

// StopFlags records cancellation requests for in-flight jobs. A set
// flag asks the worker to abandon the job before it calls the LLM.
type StopFlags struct {
	client *redis.Client
}

// NewStopFlags creates a flag store on the shared Redis client.
func NewStopFlags(client *redis.Client) *StopFlags {
	return &StopFlags{client: client}
}

func stopKey(jobID string) string {
	return stopKeyPrefix + jobID
}

// Set requests that the worker running jobID stop.
func (f *StopFlags) Set(ctx context.Context, jobID string) error {
	return f.client.Set(ctx, stopKey(jobID), "1", stopFlagTTL).Err()
}

// IsSet reports whether a stop was requested for jobID.
func (f *StopFlags) IsSet(ctx context.Context, jobID string) (bool, error) {
	n, err := f.client.Exists(ctx, stopKey(jobID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Clear removes the flag. Workers call this on every job exit path so
// a stale flag cannot cancel a later job that reuses the id.
func (f *StopFlags) Clear(ctx context.Context, jobID string) error {
	return f.client.Del(ctx, stopKey(jobID)).Err()
}
