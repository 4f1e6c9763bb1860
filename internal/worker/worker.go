// Package worker implements the stage-worker loop: claim a small batch
// from a queue, run each entry through a stage handler, complete or retry,
// and drain in-flight work on shutdown.
package worker

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/datastack-br/perfil-pipeline/internal/model"
	"github.com/datastack-br/perfil-pipeline/internal/queue"
)

// Handler processes one claimed queue entry. A returned error causes
// fail_or_retry; nil causes complete.
type Handler interface {
	Handle(ctx context.Context, entry model.QueueEntry) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, entry model.QueueEntry) error

func (f HandlerFunc) Handle(ctx context.Context, entry model.QueueEntry) error {
	return f(ctx, entry)
}

// Worker is one claim-handle-complete loop instance.
type Worker struct {
	Name            string
	Queue           queue.Queue
	Handler         Handler
	BatchSize       int
	EmptyClaimSleep time.Duration
	cancel          context.CancelFunc
	inFlight        sync.WaitGroup
	stopped         chan struct{}
	stopOnce        sync.Once
}

// New builds a Worker with sane defaults for batch size and the
// empty-claim sleep interval.
func New(name string, q queue.Queue, handler Handler) *Worker {
	return &Worker{
		Name:            name,
		Queue:           q,
		Handler:         handler,
		BatchSize:       10,
		EmptyClaimSleep: time.Second,
		stopped:         make(chan struct{}),
	}
}

// Run starts the claim loop, blocking until ctx is cancelled or Shutdown
// is called. It stops claiming new batches on cancellation but lets
// in-flight handlers finish — callers should call Shutdown (or cancel ctx
// and then call Shutdown) to wait for that drain.
func (w *Worker) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	for {
		select {
		case <-runCtx.Done():
			close(w.stopped)
			return
		default:
		}

		entries, err := w.Queue.Claim(runCtx, w.Name, w.BatchSize)
		if err != nil {
			zap.L().Error("worker: claim failed", zap.String("worker", w.Name), zap.Error(err))
			w.sleep(runCtx)
			continue
		}

		if len(entries) == 0 {
			w.sleep(runCtx)
			continue
		}

		for _, entry := range entries {
			w.inFlight.Add(1)
			w.handleOne(ctx, entry)
			w.inFlight.Done()
		}
	}
}

func (w *Worker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.EmptyClaimSleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// handleOne runs the handler against one entry and resolves it. It uses
// the outer (un-cancelled-by-shutdown) context so an in-flight handler can
// finish its work even after Shutdown begins draining.
func (w *Worker) handleOne(ctx context.Context, entry model.QueueEntry) {
	err := w.Handler.Handle(ctx, entry)
	if err != nil {
		zap.L().Warn("worker: handler failed, retrying",
			zap.String("worker", w.Name),
			zap.String("entry_id", entry.ID),
			zap.Error(err),
		)
		if _, retryErr := w.Queue.FailOrRetry(ctx, entry.ID, err.Error()); retryErr != nil {
			zap.L().Error("worker: fail_or_retry failed",
				zap.String("worker", w.Name),
				zap.String("entry_id", entry.ID),
				zap.Error(retryErr),
			)
		}
		return
	}

	if err := w.Queue.Complete(ctx, entry.ID, entry.Owner); err != nil {
		zap.L().Error("worker: complete failed",
			zap.String("worker", w.Name),
			zap.String("entry_id", entry.ID),
			zap.Error(err),
		)
	}
}

// Shutdown stops the claim loop and waits for in-flight handlers to finish.
func (w *Worker) Shutdown() {
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
	})
	<-w.stopped
	w.inFlight.Wait()
}

// Pool runs N workers of the same kind concurrently, sharing one queue and
// handler, started as goroutines within one process.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
}

// NewPool builds count workers named "<name>-0".."<name>-(count-1)".
func NewPool(name string, count int, q queue.Queue, handler Handler) *Pool {
	p := &Pool{}
	for i := 0; i < count; i++ {
		w := New(workerName(name, i), q, handler)
		p.workers = append(p.workers, w)
	}
	return p
}

func workerName(base string, index int) string {
	return base + "-" + strconv.Itoa(index)
}

// SetTunables overrides the claim batch size and empty-claim sleep interval
// on every worker in the pool. Call before Start.
func (p *Pool) SetTunables(batchSize int, emptyClaimSleep time.Duration) {
	for _, w := range p.workers {
		if batchSize > 0 {
			w.BatchSize = batchSize
		}
		if emptyClaimSleep > 0 {
			w.EmptyClaimSleep = emptyClaimSleep
		}
	}
}

// Start launches every worker in the pool as its own goroutine.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Shutdown stops every worker in the pool and waits for them to drain.
func (p *Pool) Shutdown() {
	for _, w := range p.workers {
		w.Shutdown()
	}
	p.wg.Wait()
}
