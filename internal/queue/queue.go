// Package queue implements the durable work queue: atomic claim with
// visibility-timeout reclaim, exponential back-off retry, and the
// unique-active-per-key invariant, against either Postgres or an
// in-memory store sharing the same contract.
package queue

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/datastack-br/perfil-pipeline/internal/model"
)

// Queue is the durable work queue contract shared by every stage that
// defers work instead of running synchronously.
type Queue interface {
	// Enqueue inserts a new queued entry for key, or returns AlreadyActive
	// if key already has a row in {queued, processing}.
	Enqueue(ctx context.Context, key model.CompanyKey) (model.EnqueueOutcome, string, error)

	// EnqueueBatch enqueues each key independently, partitioning the
	// result into enqueued and skipped (already-active) keys.
	EnqueueBatch(ctx context.Context, keys []model.CompanyKey) (model.BatchEnqueueResult, error)

	// Claim atomically transitions up to batch queued-and-due entries (or
	// processing entries whose lock has expired past the visibility
	// timeout) to processing, owned by owner, and returns them.
	Claim(ctx context.Context, owner string, batch int) ([]model.QueueEntry, error)

	// Complete marks entryID done. A no-op if the entry is no longer
	// owned by owner (lock reclaimed by another worker).
	Complete(ctx context.Context, entryID, owner string) error

	// FailOrRetry records a failure. If attempts remain, the entry
	// returns to queued with an exponential-back-off delay; otherwise it
	// becomes failed.
	FailOrRetry(ctx context.Context, entryID string, errText string) (model.RetryOutcome, error)

	// Metrics returns a count-by-status snapshot.
	Metrics(ctx context.Context) (model.QueueMetrics, error)
}

// BackoffConfig controls the retry back-off formula: base * 2^(attempts-1),
// capped at Cap.
type BackoffConfig struct {
	Base time.Duration
	Cap  time.Duration
}

// DefaultBackoffConfig matches the documented defaults: 30s base, 10min cap.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{Base: 30 * time.Second, Cap: 10 * time.Minute}
}

// delay computes base*2^(attempts-1), capped, then adds up to 25% jitter so
// many simultaneously-failing entries don't all become due at once.
func (c BackoffConfig) delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := c.Base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= c.Cap {
			d = c.Cap
			break
		}
	}
	if d > c.Cap {
		d = c.Cap
	}
	jitter := time.Duration(rand.Float64() * float64(d) * 0.25)
	return d + jitter
}

// DefaultVisibilityTimeout is how long a claimed-but-unresolved entry
// stays invisible to other claimers before it's reclaimable.
const DefaultVisibilityTimeout = 10 * time.Minute

// DefaultMaxAttempts bounds retries before an entry becomes permanently
// failed.
const DefaultMaxAttempts = 5
