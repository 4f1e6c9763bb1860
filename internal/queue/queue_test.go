package queue

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datastack-br/perfil-pipeline/internal/model"
)

func TestBackoffConfig_Delay_Progression(t *testing.T) {
	cfg := BackoffConfig{Base: 10 * time.Second, Cap: 100 * time.Second}

	d1 := cfg.delay(1)
	assert.GreaterOrEqual(t, d1, 10*time.Second)
	assert.LessOrEqual(t, d1, 13*time.Second)

	d3 := cfg.delay(3)
	assert.GreaterOrEqual(t, d3, 40*time.Second)
	assert.LessOrEqual(t, d3, 50*time.Second)

	d10 := cfg.delay(10)
	assert.LessOrEqual(t, d10, 125*time.Second)
}

func TestMemoryQueue_EnqueueIdempotent(t *testing.T) {
	q := NewMemoryQueue(DefaultVisibilityTimeout, DefaultMaxAttempts, DefaultBackoffConfig())
	ctx := context.Background()

	outcome, id1, err := q.Enqueue(ctx, "acme-co")
	require.NoError(t, err)
	assert.Equal(t, model.Enqueued, outcome)

	outcome2, id2, err := q.Enqueue(ctx, "acme-co")
	require.NoError(t, err)
	assert.Equal(t, model.AlreadyActive, outcome2)
	assert.Equal(t, id1, id2)
}

func TestMemoryQueue_EnqueueBatch_PartitionsResults(t *testing.T) {
	q := NewMemoryQueue(DefaultVisibilityTimeout, DefaultMaxAttempts, DefaultBackoffConfig())
	ctx := context.Background()

	_, _, err := q.Enqueue(ctx, "already-queued")
	require.NoError(t, err)

	result, err := q.EnqueueBatch(ctx, []model.CompanyKey{"already-queued", "fresh-co"})
	require.NoError(t, err)
	assert.Equal(t, []model.CompanyKey{"fresh-co"}, result.Enqueued)
	assert.Equal(t, []model.CompanyKey{"already-queued"}, result.Skipped)
}

func TestMemoryQueue_Claim_OrdersByEarliestAvailableThenID(t *testing.T) {
	q := NewMemoryQueue(DefaultVisibilityTimeout, DefaultMaxAttempts, DefaultBackoffConfig())
	ctx := context.Background()

	_, _, err := q.Enqueue(ctx, "co-a")
	require.NoError(t, err)
	_, _, err = q.Enqueue(ctx, "co-b")
	require.NoError(t, err)

	claimed, err := q.Claim(ctx, "worker-1", 10)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)
	for _, e := range claimed {
		assert.Equal(t, model.StatusProcessing, e.Status)
		assert.Equal(t, "worker-1", e.Owner)
	}

	// A second claim finds nothing left queued.
	claimed2, err := q.Claim(ctx, "worker-2", 10)
	require.NoError(t, err)
	assert.Empty(t, claimed2)
}

func TestMemoryQueue_Claim_ReclaimsExpiredLock(t *testing.T) {
	q := NewMemoryQueue(50*time.Millisecond, DefaultMaxAttempts, DefaultBackoffConfig())
	ctx := context.Background()

	_, id, err := q.Enqueue(ctx, "co-a")
	require.NoError(t, err)

	claimed, err := q.Claim(ctx, "worker-1", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, id, claimed[0].ID)

	time.Sleep(75 * time.Millisecond)

	reclaimed, err := q.Claim(ctx, "worker-2", 10)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, "worker-2", reclaimed[0].Owner)
}

func TestMemoryQueue_Claim_RespectsBatchLimit(t *testing.T) {
	q := NewMemoryQueue(DefaultVisibilityTimeout, DefaultMaxAttempts, DefaultBackoffConfig())
	ctx := context.Background()

	for _, k := range []model.CompanyKey{"a", "b", "c"} {
		_, _, err := q.Enqueue(ctx, k)
		require.NoError(t, err)
	}

	claimed, err := q.Claim(ctx, "worker-1", 2)
	require.NoError(t, err)
	assert.Len(t, claimed, 2)
}

func TestMemoryQueue_Complete_MarksDone(t *testing.T) {
	q := NewMemoryQueue(DefaultVisibilityTimeout, DefaultMaxAttempts, DefaultBackoffConfig())
	ctx := context.Background()

	_, id, err := q.Enqueue(ctx, "co-a")
	require.NoError(t, err)
	_, err = q.Claim(ctx, "worker-1", 10)
	require.NoError(t, err)

	require.NoError(t, q.Complete(ctx, id, "worker-1"))

	metrics, err := q.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.Done)
	assert.Equal(t, 0, metrics.Processing)
}

func TestMemoryQueue_Complete_IgnoredAfterReclaim(t *testing.T) {
	q := NewMemoryQueue(50*time.Millisecond, DefaultMaxAttempts, DefaultBackoffConfig())
	ctx := context.Background()

	_, id, err := q.Enqueue(ctx, "co-a")
	require.NoError(t, err)

	claimed, err := q.Claim(ctx, "worker-1", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	time.Sleep(75 * time.Millisecond)

	reclaimed, err := q.Claim(ctx, "worker-2", 10)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	assert.Equal(t, "worker-2", reclaimed[0].Owner)

	// worker-1 finally finishes its stale claim and calls Complete, but it
	// no longer owns the entry — this must not corrupt worker-2's claim.
	require.NoError(t, q.Complete(ctx, id, "worker-1"))

	metrics, err := q.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, metrics.Done)
	assert.Equal(t, 1, metrics.Processing)

	require.NoError(t, q.Complete(ctx, id, "worker-2"))
	metrics2, err := q.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics2.Done)
}

func TestMemoryQueue_FailOrRetry_RequeuesUntilMaxAttempts(t *testing.T) {
	q := NewMemoryQueue(DefaultVisibilityTimeout, 2, BackoffConfig{Base: time.Millisecond, Cap: 10 * time.Millisecond})
	ctx := context.Background()

	_, id, err := q.Enqueue(ctx, "co-a")
	require.NoError(t, err)
	_, err = q.Claim(ctx, "worker-1", 10)
	require.NoError(t, err)

	outcome, err := q.FailOrRetry(ctx, id, "boom")
	require.NoError(t, err)
	assert.Equal(t, model.Retried, outcome)

	metrics, err := q.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.Queued)

	time.Sleep(15 * time.Millisecond)
	_, err = q.Claim(ctx, "worker-2", 10)
	require.NoError(t, err)

	outcome2, err := q.FailOrRetry(ctx, id, "boom again")
	require.NoError(t, err)
	assert.Equal(t, model.Dead, outcome2)

	metrics2, err := q.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics2.Failed)
}

func TestMemoryQueue_FailOrRetry_UnknownEntry(t *testing.T) {
	q := NewMemoryQueue(DefaultVisibilityTimeout, DefaultMaxAttempts, DefaultBackoffConfig())
	outcome, err := q.FailOrRetry(context.Background(), "nonexistent", "boom")
	require.NoError(t, err)
	assert.Equal(t, model.Dead, outcome)
}

func TestMemoryQueue_Metrics_CountsByStatus(t *testing.T) {
	q := NewMemoryQueue(DefaultVisibilityTimeout, DefaultMaxAttempts, DefaultBackoffConfig())
	ctx := context.Background()

	for _, k := range []model.CompanyKey{"a", "b"} {
		_, _, err := q.Enqueue(ctx, k)
		require.NoError(t, err)
	}
	_, err := q.Claim(ctx, "worker-1", 1)
	require.NoError(t, err)

	metrics, err := q.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.Queued)
	assert.Equal(t, 1, metrics.Processing)
}

func TestPostgresQueue_Enqueue_Fresh(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO discovery_queue").
		WithArgs(pgxmock.AnyArg(), "acme-co", DefaultMaxAttempts).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("entry-1"))

	q := NewPostgresQueue(mock, model.QueueDiscovery, "discovery_queue", DefaultVisibilityTimeout, DefaultMaxAttempts, DefaultBackoffConfig())
	outcome, id, err := q.Enqueue(context.Background(), "acme-co")
	require.NoError(t, err)
	assert.Equal(t, model.Enqueued, outcome)
	assert.Equal(t, "entry-1", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueue_Enqueue_AlreadyActive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO discovery_queue").
		WithArgs(pgxmock.AnyArg(), "acme-co", DefaultMaxAttempts).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	mock.ExpectQuery("SELECT id FROM discovery_queue").
		WithArgs("acme-co").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("existing-entry"))

	q := NewPostgresQueue(mock, model.QueueDiscovery, "discovery_queue", DefaultVisibilityTimeout, DefaultMaxAttempts, DefaultBackoffConfig())
	outcome, id, err := q.Enqueue(context.Background(), "acme-co")
	require.NoError(t, err)
	assert.Equal(t, model.AlreadyActive, outcome)
	assert.Equal(t, "existing-entry", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueue_Complete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE discovery_queue SET status = 'done'").
		WithArgs("entry-1", "worker-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	q := NewPostgresQueue(mock, model.QueueDiscovery, "discovery_queue", DefaultVisibilityTimeout, DefaultMaxAttempts, DefaultBackoffConfig())
	require.NoError(t, q.Complete(context.Background(), "entry-1", "worker-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueue_Complete_OwnerMismatchAffectsNoRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// The owner predicate is pushed into the WHERE clause, so a stale
	// caller's Complete affects zero rows instead of erroring.
	mock.ExpectExec("UPDATE discovery_queue SET status = 'done'").
		WithArgs("entry-1", "worker-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	q := NewPostgresQueue(mock, model.QueueDiscovery, "discovery_queue", DefaultVisibilityTimeout, DefaultMaxAttempts, DefaultBackoffConfig())
	require.NoError(t, q.Complete(context.Background(), "entry-1", "worker-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueue_FailOrRetry_Retries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT attempts, max_attempts FROM discovery_queue").
		WithArgs("entry-1").
		WillReturnRows(pgxmock.NewRows([]string{"attempts", "max_attempts"}).AddRow(0, 5))
	mock.ExpectExec("UPDATE discovery_queue SET").
		WithArgs("entry-1", 1, "boom", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	q := NewPostgresQueue(mock, model.QueueDiscovery, "discovery_queue", DefaultVisibilityTimeout, 5, DefaultBackoffConfig())
	outcome, err := q.FailOrRetry(context.Background(), "entry-1", "boom")
	require.NoError(t, err)
	assert.Equal(t, model.Retried, outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueue_FailOrRetry_DeadLettersAtMaxAttempts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT attempts, max_attempts FROM discovery_queue").
		WithArgs("entry-1").
		WillReturnRows(pgxmock.NewRows([]string{"attempts", "max_attempts"}).AddRow(4, 5))
	mock.ExpectExec("UPDATE discovery_queue SET status = 'failed'").
		WithArgs("entry-1", 5, "boom").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	q := NewPostgresQueue(mock, model.QueueDiscovery, "discovery_queue", DefaultVisibilityTimeout, 5, DefaultBackoffConfig())
	outcome, err := q.FailOrRetry(context.Background(), "entry-1", "boom")
	require.NoError(t, err)
	assert.Equal(t, model.Dead, outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueue_Metrics(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT status, count\\(\\*\\) FROM discovery_queue").
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("queued", 3).
			AddRow("processing", 1).
			AddRow("done", 10).
			AddRow("failed", 2))

	q := NewPostgresQueue(mock, model.QueueDiscovery, "discovery_queue", DefaultVisibilityTimeout, DefaultMaxAttempts, DefaultBackoffConfig())
	metrics, err := q.Metrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.QueueMetrics{Queued: 3, Processing: 1, Done: 10, Failed: 2}, metrics)
	assert.NoError(t, mock.ExpectationsWereMet())
}
