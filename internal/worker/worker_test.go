package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datastack-br/perfil-pipeline/internal/model"
	"github.com/datastack-br/perfil-pipeline/internal/queue"
)

type stubHandler struct {
	calls   int32
	handled chan model.QueueEntry
	err     error
	delay   time.Duration
}

func (h *stubHandler) Handle(ctx context.Context, entry model.QueueEntry) error {
	atomic.AddInt32(&h.calls, 1)
	if h.delay > 0 {
		select {
		case <-time.After(h.delay):
		case <-ctx.Done():
		}
	}
	if h.handled != nil {
		h.handled <- entry
	}
	return h.err
}

func newTestQueue() *queue.MemoryQueue {
	return queue.NewMemoryQueue(queue.DefaultVisibilityTimeout, queue.DefaultMaxAttempts, queue.DefaultBackoffConfig())
}

func TestWorker_ClaimsHandlesAndCompletes(t *testing.T) {
	q := newTestQueue()
	_, _, err := q.Enqueue(context.Background(), model.CompanyKey("acme-co"))
	require.NoError(t, err)

	handled := make(chan model.QueueEntry, 1)
	h := &stubHandler{handled: handled}
	w := New("discovery", q, h)
	w.EmptyClaimSleep = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	select {
	case entry := <-handled:
		assert.Equal(t, model.CompanyKey("acme-co"), entry.Key)
	case <-time.After(time.Second):
		t.Fatal("handler was never called")
	}

	cancel()
	w.Shutdown()

	metrics, err := q.Metrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.Done)
}

func TestWorker_HandlerErrorRetriesEntry(t *testing.T) {
	q := newTestQueue()
	_, _, err := q.Enqueue(context.Background(), model.CompanyKey("acme-co"))
	require.NoError(t, err)

	handled := make(chan model.QueueEntry, 1)
	h := &stubHandler{handled: handled, err: assertErr("transient failure")}
	w := New("discovery", q, h)
	w.EmptyClaimSleep = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("handler was never called")
	}

	cancel()
	w.Shutdown()

	metrics, err := q.Metrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.Queued)
	assert.Equal(t, 0, metrics.Done)
}

func TestWorker_ShutdownDrainsInFlightWork(t *testing.T) {
	q := newTestQueue()
	_, _, err := q.Enqueue(context.Background(), model.CompanyKey("acme-co"))
	require.NoError(t, err)

	started := make(chan struct{})
	h := &stubHandler{delay: 150 * time.Millisecond}
	wrapped := HandlerFunc(func(ctx context.Context, entry model.QueueEntry) error {
		close(started)
		return h.Handle(ctx, entry)
	})
	w := New("discovery", q, wrapped)
	w.EmptyClaimSleep = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	<-started
	cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Shutdown()
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not drain in-flight work in time")
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&h.calls))

	metrics, err := q.Metrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.Done)
}

func TestPool_StartAndShutdown(t *testing.T) {
	q := newTestQueue()
	for i := 0; i < 5; i++ {
		_, _, err := q.Enqueue(context.Background(), model.CompanyKey("company-"+string(rune('a'+i))))
		require.NoError(t, err)
	}

	h := &stubHandler{}
	pool := NewPool("discovery", 3, q, h)
	for _, w := range pool.workers {
		w.EmptyClaimSleep = 10 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	assert.Eventually(t, func() bool {
		metrics, err := q.Metrics(context.Background())
		require.NoError(t, err)
		return metrics.Done == 5
	}, time.Second, 10*time.Millisecond)

	cancel()
	pool.Shutdown()
}

func TestPool_SetTunablesOverridesBeforeStart(t *testing.T) {
	q := newTestQueue()
	h := &stubHandler{}
	pool := NewPool("profile", 2, q, h)

	pool.SetTunables(25, 5*time.Millisecond)

	for _, w := range pool.workers {
		assert.Equal(t, 25, w.BatchSize)
		assert.Equal(t, 5*time.Millisecond, w.EmptyClaimSleep)
	}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
