package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/datastack-br/perfil-pipeline/internal/model"
)

// MemoryQueue is an in-process Queue implementation satisfying the same
// contract as the Postgres-backed one, for tests and for a single-process
// deployment that doesn't need durability across restarts.
type MemoryQueue struct {
	mu                sync.Mutex
	entries           map[string]*model.QueueEntry
	visibilityTimeout time.Duration
	maxAttempts       int
	backoff           BackoffConfig
	now               func() time.Time
}

// NewMemoryQueue builds a MemoryQueue with the given tunables.
func NewMemoryQueue(visibilityTimeout time.Duration, maxAttempts int, backoff BackoffConfig) *MemoryQueue {
	return &MemoryQueue{
		entries:           make(map[string]*model.QueueEntry),
		visibilityTimeout: visibilityTimeout,
		maxAttempts:       maxAttempts,
		backoff:           backoff,
		now:               time.Now,
	}
}

func (q *MemoryQueue) activeEntry(key model.CompanyKey) *model.QueueEntry {
	for _, e := range q.entries {
		if e.Key == key && (e.Status == model.StatusQueued || e.Status == model.StatusProcessing) {
			return e
		}
	}
	return nil
}

func (q *MemoryQueue) Enqueue(_ context.Context, key model.CompanyKey) (model.EnqueueOutcome, string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if existing := q.activeEntry(key); existing != nil {
		return model.AlreadyActive, existing.ID, nil
	}

	now := q.now()
	entry := &model.QueueEntry{
		ID:                uuid.NewString(),
		Key:               key,
		Status:            model.StatusQueued,
		MaxAttempts:       q.maxAttempts,
		EarliestAvailable: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	q.entries[entry.ID] = entry
	return model.Enqueued, entry.ID, nil
}

func (q *MemoryQueue) EnqueueBatch(ctx context.Context, keys []model.CompanyKey) (model.BatchEnqueueResult, error) {
	var result model.BatchEnqueueResult
	for _, k := range keys {
		outcome, _, err := q.Enqueue(ctx, k)
		if err != nil {
			return result, err
		}
		if outcome == model.Enqueued {
			result.Enqueued = append(result.Enqueued, k)
		} else {
			result.Skipped = append(result.Skipped, k)
		}
	}
	return result, nil
}

func (q *MemoryQueue) Claim(_ context.Context, owner string, batch int) ([]model.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var candidates []*model.QueueEntry
	for _, e := range q.entries {
		if e.Status == model.StatusQueued && !e.EarliestAvailable.After(now) {
			candidates = append(candidates, e)
			continue
		}
		if e.Status == model.StatusProcessing && e.LockedAt != nil && now.Sub(*e.LockedAt) > q.visibilityTimeout {
			candidates = append(candidates, e)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].EarliestAvailable.Equal(candidates[j].EarliestAvailable) {
			return candidates[i].EarliestAvailable.Before(candidates[j].EarliestAvailable)
		}
		return candidates[i].ID < candidates[j].ID
	})

	if batch <= 0 || batch > len(candidates) {
		batch = len(candidates)
	}

	claimed := make([]model.QueueEntry, 0, batch)
	for i := 0; i < batch; i++ {
		e := candidates[i]
		e.Status = model.StatusProcessing
		e.Owner = owner
		lockedAt := now
		e.LockedAt = &lockedAt
		e.UpdatedAt = now
		claimed = append(claimed, *e)
	}
	return claimed, nil
}

func (q *MemoryQueue) Complete(_ context.Context, entryID, owner string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[entryID]
	if !ok || e.Owner != owner {
		return nil
	}
	e.Status = model.StatusDone
	e.UpdatedAt = q.now()
	return nil
}

func (q *MemoryQueue) FailOrRetry(_ context.Context, entryID string, errText string) (model.RetryOutcome, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[entryID]
	if !ok {
		return model.Dead, nil
	}

	e.Attempts++
	e.LastError = errText
	now := q.now()
	e.UpdatedAt = now

	if e.Attempts < e.MaxAttempts {
		e.Status = model.StatusQueued
		e.EarliestAvailable = now.Add(q.backoff.delay(e.Attempts))
		e.LockedAt = nil
		e.Owner = ""
		return model.Retried, nil
	}

	e.Status = model.StatusFailed
	return model.Dead, nil
}

func (q *MemoryQueue) Metrics(_ context.Context) (model.QueueMetrics, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var m model.QueueMetrics
	for _, e := range q.entries {
		switch e.Status {
		case model.StatusQueued:
			m.Queued++
		case model.StatusProcessing:
			m.Processing++
		case model.StatusDone:
			m.Done++
		case model.StatusFailed:
			m.Failed++
		}
	}
	return m, nil
}
