package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// writeJob is a unit of work submitted to the single-writer actor. Each
// job runs fn against a transaction and reports its result back over
// done. Design note: "introduce a single-writer actor that owns the
// write connection and receives jobs over a channel".
type writeJob struct {
	fn   func(ctx context.Context, tx *sql.Tx) error
	done chan error
}

// writer is the sole owner of the write connection. It batches eligible
// jobs inside one transaction up to messageBatchCeiling before
// committing (spec §4.1).
type writer struct {
	db      *sql.DB
	jobs    chan writeJob
	closeCh chan struct{}
	doneCh  chan struct{}
}

// messageBatchCeiling is the soft limit on write jobs batched into one
// transaction (spec §4.1 "50 messages per transaction").
const messageBatchCeiling = 50

func newWriter(db *sql.DB) *writer {
	w := &writer{
		db:      db,
		jobs:    make(chan writeJob, 1024),
		closeCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *writer) run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.closeCh:
			w.drain()
			return
		case job := <-w.jobs:
			w.runBatch(job)
		}
	}
}

// drain flushes any jobs still queued when stop() is called, so a
// shutdown never silently drops a submitted write.
func (w *writer) drain() {
	for {
		select {
		case job := <-w.jobs:
			w.runBatch(job)
		default:
			return
		}
	}
}

func (w *writer) runBatch(first writeJob) {
	batch := []writeJob{first}
collect:
	for len(batch) < messageBatchCeiling {
		select {
		case job := <-w.jobs:
			batch = append(batch, job)
		default:
			break collect
		}
	}

	ctx := context.Background()
	err := w.runBatchWithRetry(ctx, batch)
	for _, job := range batch {
		job.done <- err
	}
}

// runBatchWithRetry commits all jobs in one transaction, retrying the
// whole batch up to 3 times with exponential backoff on failure (spec
// §4.1 writer failure semantics).
func (w *writer) runBatchWithRetry(ctx context.Context, batch []writeJob) error {
	const maxAttempts = 3
	backoff := 100 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}

		tx, err := w.db.BeginTx(ctx, nil)
		if err != nil {
			lastErr = fmt.Errorf("begin transaction: %w", err)
			continue
		}

		failed := false
		for _, job := range batch {
			if err := job.fn(ctx, tx); err != nil {
				lastErr = err
				failed = true
				break
			}
		}
		if failed {
			_ = tx.Rollback()
			continue
		}
		if err := tx.Commit(); err != nil {
			lastErr = fmt.Errorf("commit: %w", err)
			continue
		}
		return nil
	}
	return lastErr
}

// submit enqueues fn to run inside the writer's next transaction and
// blocks until it completes.
func (w *writer) submit(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	job := writeJob{fn: fn, done: make(chan error, 1)}
	select {
	case w.jobs <- job:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *writer) stop() {
	close(w.closeCh)
	<-w.doneCh
}
