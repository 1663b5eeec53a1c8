package jobs

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatstream/gateway/src/chats"
)

// testNATS connects to a live NATS server or skips the test.
func testNATS(t *testing.T) *nats.Conn {
	t.Helper()
	url := os.Getenv("TEST_NATS_URL")
	if url == "" {
		t.Skip("TEST_NATS_URL not set, skipping live nats test")
	}
	nc, err := nats.Connect(url)
	if err != nil {
		t.Skipf("nats not reachable at %s: %v", url, err)
	}
	t.Cleanup(nc.Close)
	return nc
}

// countingGenerator is safe to read while the worker goroutine runs.
type countingGenerator struct {
	mu    sync.Mutex
	calls int
}

func (c *countingGenerator) Generate(context.Context, *chats.Record, string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return "ok", nil
}

func (c *countingGenerator) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestQueueToWorkerDelivery(t *testing.T) {
	nc := testNATS(t)
	subject := "test.jobs." + uuid.New().String()

	gen := &countingGenerator{}
	runner := NewRunner(&captureRouter{}, &fakeLookup{rec: testRecord()}, gen, nil, nil, zerolog.Nop())
	w := NewWorker(nc, subject, "test-generators", runner, zerolog.Nop())
	require.NoError(t, w.Start())
	t.Cleanup(func() { w.Stop() })

	q := NewQueue(nc, subject, zerolog.Nop())
	require.NoError(t, q.Enqueue(testJob()))

	assert.Eventually(t, func() bool { return gen.count() == 1 },
		2*time.Second, 20*time.Millisecond, "queued job should reach the worker")
}

func TestWorkerDiscardsUndecodableJob(t *testing.T) {
	nc := testNATS(t)
	subject := "test.jobs." + uuid.New().String()

	gen := &countingGenerator{}
	runner := NewRunner(&captureRouter{}, &fakeLookup{rec: testRecord()}, gen, nil, nil, zerolog.Nop())
	w := NewWorker(nc, subject, "test-generators", runner, zerolog.Nop())
	require.NoError(t, w.Start())
	t.Cleanup(func() { w.Stop() })

	require.NoError(t, nc.Publish(subject, []byte("not a job")))

	q := NewQueue(nc, subject, zerolog.Nop())
	require.NoError(t, q.Enqueue(testJob()))

	// The garbage message is dropped; the valid one still runs.
	assert.Eventually(t, func() bool { return gen.count() == 1 },
		2*time.Second, 20*time.Millisecond)
}

func TestWorkerStopWithoutStart(t *testing.T) {
	w := NewWorker(nil, "subject", "queue", nil, zerolog.Nop())
	assert.NoError(t, w.Stop())
}
