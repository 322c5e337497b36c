// Package queue provides the generic claim-loop shape shared by the
// pipeline's per-item workers. Each of the parser, transformer, and
// matcher loops differs only in its claim predicate and item handler (the
// embedding worker batches a whole claim and runs its own loop); the queue
// itself is always a table, never an in-process buffer, so any number of
// worker processes can run the same loop concurrently.
package queue

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ClaimFunc atomically claims up to limit items and returns them. It is
// responsible for the "UPDATE ... WHERE ... FOR UPDATE SKIP LOCKED
// RETURNING" discipline described in spec.md §5 — no two callers of
// ClaimFunc concurrently receive the same item.
type ClaimFunc[T any] func(ctx context.Context, limit int) ([]T, error)

// HandleFunc processes one claimed item. A returned error is logged
// against that item; it never aborts the surrounding run.
type HandleFunc[T any] func(ctx context.Context, item T) error

// RunOnce claims up to batchSize items and handles each one, continuing
// past per-item errors. It returns the number of items claimed.
func RunOnce[T any](ctx context.Context, logger *zap.Logger, claim ClaimFunc[T], handle HandleFunc[T], batchSize int) (int, error) {
	items, err := claim(ctx, batchSize)
	if err != nil {
		return 0, err
	}
	for _, item := range items {
		if ctx.Err() != nil {
			return len(items), ctx.Err()
		}
		if err := handle(ctx, item); err != nil {
			logger.Error("queue: item handler failed", zap.Error(err))
		}
	}
	return len(items), nil
}

// RunLoop polls claim/handle on interval until ctx is cancelled. It
// yields between batches per spec.md §5 by always waiting at least one
// tick, even when a batch was full, so a single busy loop cannot starve
// other workers of database connections.
func RunLoop[T any](ctx context.Context, logger *zap.Logger, interval time.Duration, batchSize int, claim ClaimFunc[T], handle HandleFunc[T]) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := RunOnce(ctx, logger, claim, handle, batchSize)
			if err != nil && ctx.Err() == nil {
				logger.Error("queue: claim failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("queue: processed batch", zap.Int("count", n))
			}
		}
	}
}
