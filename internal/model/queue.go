package model

import "time"

// QueueKind names one of the two durable work queues. Search and scrape are
// synchronous stages and never get a queue.
type QueueKind string

const (
	QueueDiscovery QueueKind = "discovery"
	QueueProfile   QueueKind = "profile"
)

// QueueStatus is the lifecycle state of a QueueEntry.
type QueueStatus string

const (
	StatusQueued     QueueStatus = "queued"
	StatusProcessing QueueStatus = "processing"
	StatusDone       QueueStatus = "done"
	StatusFailed     QueueStatus = "failed"
)

// QueueEntry is a unit of work for an asynchronous stage. At most one entry
// per company key may be in {queued, processing} per queue at any time.
type QueueEntry struct {
	ID                string      `json:"id"`
	Key               CompanyKey  `json:"key"`
	Status            QueueStatus `json:"status"`
	Attempts          int         `json:"attempts"`
	MaxAttempts       int         `json:"max_attempts"`
	EarliestAvailable time.Time   `json:"earliest_available"`
	LockedAt          *time.Time  `json:"locked_at,omitempty"`
	Owner             string      `json:"owner,omitempty"`
	LastError         string      `json:"last_error,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// QueueMetrics is a count-by-status snapshot for one queue.
type QueueMetrics struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Done       int `json:"done"`
	Failed     int `json:"failed"`
}

// EnqueueOutcome distinguishes a fresh insert from a no-op against an
// already-active row, making enqueue idempotent and safe to retry.
type EnqueueOutcome string

const (
	Enqueued      EnqueueOutcome = "enqueued"
	AlreadyActive EnqueueOutcome = "already_active"
)

// BatchEnqueueResult reports per-key outcomes for enqueue_batch.
type BatchEnqueueResult struct {
	Enqueued []CompanyKey `json:"enqueued"`
	Skipped  []CompanyKey `json:"skipped"`
}

// RetryOutcome reports what fail_or_retry did with an entry.
type RetryOutcome string

const (
	Retried RetryOutcome = "retried"
	Dead    RetryOutcome = "dead"
)
