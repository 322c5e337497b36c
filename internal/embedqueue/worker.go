// Package embedqueue drives the embedding queue worker: it claims
// pending embedding_tasks, sends their text to the embedding provider
// in a single batch request, and writes the resulting vectors back onto
// the owning row, per spec.md §4.7.
package embedqueue

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadpipeline/leadpipe/internal/model"
	"github.com/leadpipeline/leadpipe/pkg/embedprovider"
)

// Store is the persistence surface the worker needs.
type Store interface {
	ClaimEmbeddingTasks(ctx context.Context, limit, maxAttempts int) ([]*model.EmbeddingTask, error)
	CompleteEmbeddingTask(ctx context.Context, id string) error
	RetryEmbeddingTask(ctx context.Context, id, lastError string, maxAttempts int) error
	SetEmbeddingTarget(ctx context.Context, tableName, recordID string, embedding []float32, text string) error
}

// Worker batches claimed tasks into one provider request per run.
type Worker struct {
	store       Store
	client      embedprovider.Client
	model       string
	maxAttempts int
	logger      *zap.Logger
}

// New builds a Worker. model names the embedding model to request;
// maxAttempts bounds how many times a failing task is retried before it
// is left failed.
func New(store Store, client embedprovider.Client, model string, maxAttempts int, logger *zap.Logger) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{store: store, client: client, model: model, maxAttempts: maxAttempts, logger: logger}
}

// Claim fulfills queue.ClaimFunc, batching up to embedprovider.MaxBatchSize
// tasks per run.
func (w *Worker) Claim(ctx context.Context, limit int) ([]*model.EmbeddingTask, error) {
	if limit > embedprovider.MaxBatchSize {
		limit = embedprovider.MaxBatchSize
	}
	return w.store.ClaimEmbeddingTasks(ctx, limit, w.maxAttempts)
}

// RunBatch embeds and writes back a claimed batch of tasks in one
// provider request. A whole-batch failure retries every task
// individually so one bad request never wedges the queue; a
// per-task write-back failure after a successful embed is retried on
// its own.
func (w *Worker) RunBatch(ctx context.Context, tasks []*model.EmbeddingTask) error {
	if len(tasks) == 0 {
		return nil
	}

	inputs := make([]string, len(tasks))
	for i, t := range tasks {
		inputs[i] = t.TextToEmbed
	}

	vectors, err := w.client.Embed(ctx, w.model, inputs)
	if err != nil {
		w.logger.Error("embedqueue: batch embed failed", zap.Int("size", len(tasks)), zap.Error(err))
		for _, t := range tasks {
			if rerr := w.store.RetryEmbeddingTask(ctx, t.ID, err.Error(), w.maxAttempts); rerr != nil {
				w.logger.Error("embedqueue: retry after batch failure", zap.String("task_id", t.ID), zap.Error(rerr))
			}
		}
		return eris.Wrap(err, "embedqueue: batch embed")
	}

	for i, t := range tasks {
		if err := w.writeBack(ctx, t, vectors[i]); err != nil {
			w.logger.Error("embedqueue: task failed", zap.String("task_id", t.ID), zap.Error(err))
		}
	}
	return nil
}

// Run claims one batch and embeds it, returning the number of tasks
// claimed. The embedding worker batches by nature, so it does not use
// queue.RunOnce's per-item HandleFunc shape directly; RunLoop-style
// polling belongs to the caller.
func (w *Worker) Run(ctx context.Context, batchSize int) (int, error) {
	tasks, err := w.Claim(ctx, batchSize)
	if err != nil {
		return 0, eris.Wrap(err, "embedqueue: claim tasks")
	}
	if len(tasks) == 0 {
		return 0, nil
	}
	if err := w.RunBatch(ctx, tasks); err != nil {
		return len(tasks), err
	}
	return len(tasks), nil
}

func (w *Worker) writeBack(ctx context.Context, t *model.EmbeddingTask, vector []float32) error {
	if err := w.store.SetEmbeddingTarget(ctx, t.TableName, t.RecordID, vector, t.TextToEmbed); err != nil {
		if rerr := w.store.RetryEmbeddingTask(ctx, t.ID, err.Error(), w.maxAttempts); rerr != nil {
			return eris.Wrap(rerr, "embedqueue: retry after write-back failure")
		}
		return eris.Wrap(err, "embedqueue: set embedding target")
	}
	if err := w.store.CompleteEmbeddingTask(ctx, t.ID); err != nil {
		return eris.Wrap(err, "embedqueue: complete task")
	}
	return nil
}
