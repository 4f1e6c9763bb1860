package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/datastack-br/perfil-pipeline/internal/db"
	"github.com/datastack-br/perfil-pipeline/internal/model"
)

// PostgresQueue persists one of the two durable queues (discovery,
// profile) in Postgres, using SELECT ... FOR UPDATE SKIP LOCKED for
// atomic, fair claiming across concurrent workers.
type PostgresQueue struct {
	pool              db.Pool
	kind              model.QueueKind
	table             string
	visibilityTimeout time.Duration
	maxAttempts       int
	backoff           BackoffConfig
}

// NewPostgresQueue builds a PostgresQueue for the given kind, backed by
// table (expected schema: id, key, status, attempts, max_attempts,
// earliest_available, locked_at, owner, last_error, created_at, updated_at).
func NewPostgresQueue(pool db.Pool, kind model.QueueKind, table string, visibilityTimeout time.Duration, maxAttempts int, backoff BackoffConfig) *PostgresQueue {
	return &PostgresQueue{
		pool:              pool,
		kind:              kind,
		table:             table,
		visibilityTimeout: visibilityTimeout,
		maxAttempts:       maxAttempts,
		backoff:           backoff,
	}
}

func (q *PostgresQueue) Enqueue(ctx context.Context, key model.CompanyKey) (model.EnqueueOutcome, string, error) {
	id := uuid.NewString()

	sql := `
WITH existing AS (
	SELECT id FROM ` + q.table + `
	WHERE key = $2 AND status IN ('queued', 'processing')
	LIMIT 1
)
INSERT INTO ` + q.table + ` (id, key, status, attempts, max_attempts, earliest_available, created_at, updated_at)
SELECT $1, $2, 'queued', 0, $3, now(), now(), now()
WHERE NOT EXISTS (SELECT 1 FROM existing)
RETURNING id`

	var returnedID string
	err := q.pool.QueryRow(ctx, sql, id, string(key), q.maxAttempts).Scan(&returnedID)
	if errors.Is(err, pgx.ErrNoRows) {
		var existingID string
		lookupErr := q.pool.QueryRow(ctx,
			`SELECT id FROM `+q.table+` WHERE key = $1 AND status IN ('queued', 'processing') LIMIT 1`,
			string(key),
		).Scan(&existingID)
		if lookupErr != nil {
			return "", "", eris.Wrap(lookupErr, "queue: enqueue: lookup existing active entry")
		}
		return model.AlreadyActive, existingID, nil
	}
	if err != nil {
		return "", "", eris.Wrap(err, "queue: enqueue")
	}
	return model.Enqueued, returnedID, nil
}

func (q *PostgresQueue) EnqueueBatch(ctx context.Context, keys []model.CompanyKey) (model.BatchEnqueueResult, error) {
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

func (q *PostgresQueue) Claim(ctx context.Context, owner string, batch int) ([]model.QueueEntry, error) {
	sql := `
UPDATE ` + q.table + ` SET
	status = 'processing',
	owner = $1,
	locked_at = now(),
	updated_at = now()
WHERE id IN (
	SELECT id FROM ` + q.table + `
	WHERE (status = 'queued' AND earliest_available <= now())
	   OR (status = 'processing' AND locked_at < now() - ($2 || ' seconds')::interval)
	ORDER BY earliest_available, id
	LIMIT $3
	FOR UPDATE SKIP LOCKED
)
RETURNING id, key, status, attempts, max_attempts, earliest_available, locked_at, owner, last_error, created_at, updated_at`

	rows, err := q.pool.Query(ctx, sql, owner, int(q.visibilityTimeout.Seconds()), batch)
	if err != nil {
		return nil, eris.Wrap(err, "queue: claim")
	}
	defer rows.Close()

	var entries []model.QueueEntry
	for rows.Next() {
		var e model.QueueEntry
		var key string
		if err := rows.Scan(&e.ID, &key, &e.Status, &e.Attempts, &e.MaxAttempts, &e.EarliestAvailable, &e.LockedAt, &e.Owner, &e.LastError, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "queue: claim: scan")
		}
		e.Key = model.CompanyKey(key)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "queue: claim: rows")
	}
	return entries, nil
}

func (q *PostgresQueue) Complete(ctx context.Context, entryID, owner string) error {
	sql := `UPDATE ` + q.table + ` SET status = 'done', updated_at = now() WHERE id = $1 AND status = 'processing' AND owner = $2`
	if _, err := q.pool.Exec(ctx, sql, entryID, owner); err != nil {
		return eris.Wrap(err, "queue: complete")
	}
	return nil
}

func (q *PostgresQueue) FailOrRetry(ctx context.Context, entryID string, errText string) (model.RetryOutcome, error) {
	var attempts, maxAttempts int
	lookupSQL := `SELECT attempts, max_attempts FROM ` + q.table + ` WHERE id = $1`
	if err := q.pool.QueryRow(ctx, lookupSQL, entryID).Scan(&attempts, &maxAttempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Dead, nil
		}
		return "", eris.Wrap(err, "queue: fail_or_retry: lookup")
	}

	attempts++

	if attempts < maxAttempts {
		delay := q.backoff.delay(attempts)
		sql := `
UPDATE ` + q.table + ` SET
	status = 'queued',
	attempts = $2,
	last_error = $3,
	earliest_available = now() + ($4 || ' milliseconds')::interval,
	locked_at = NULL,
	owner = '',
	updated_at = now()
WHERE id = $1`
		if _, err := q.pool.Exec(ctx, sql, entryID, attempts, errText, delay.Milliseconds()); err != nil {
			return "", eris.Wrap(err, "queue: fail_or_retry: requeue")
		}
		return model.Retried, nil
	}

	sql := `UPDATE ` + q.table + ` SET status = 'failed', attempts = $2, last_error = $3, updated_at = now() WHERE id = $1`
	if _, err := q.pool.Exec(ctx, sql, entryID, attempts, errText); err != nil {
		return "", eris.Wrap(err, "queue: fail_or_retry: mark failed")
	}
	return model.Dead, nil
}

func (q *PostgresQueue) Metrics(ctx context.Context) (model.QueueMetrics, error) {
	sql := `SELECT status, count(*) FROM ` + q.table + ` GROUP BY status`
	rows, err := q.pool.Query(ctx, sql)
	if err != nil {
		return model.QueueMetrics{}, eris.Wrap(err, "queue: metrics")
	}
	defer rows.Close()

	var m model.QueueMetrics
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return model.QueueMetrics{}, eris.Wrap(err, "queue: metrics: scan")
		}
		switch model.QueueStatus(status) {
		case model.StatusQueued:
			m.Queued = count
		case model.StatusProcessing:
			m.Processing = count
		case model.StatusDone:
			m.Done = count
		case model.StatusFailed:
			m.Failed = count
		}
	}
	return m, rows.Err()
}
