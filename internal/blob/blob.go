// Package blob writes ingested CSV bytes to content-addressed storage.
// Uploads are write-once: an object that already exists at the target
// name is left untouched, matching file_hash-based batch deduplication
// one layer down.
package blob

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

// Store writes ingestion bytes under a bucket at
// "ingestions/<epoch_ms>_<filename>".
type Store struct {
	bucket *storage.BucketHandle
	logger *zap.Logger
}

// New wraps a GCS bucket handle.
func New(bucket *storage.BucketHandle, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{bucket: bucket, logger: logger}
}

// ObjectName builds the well-known content-addressed path for one
// ingestion, matching spec.md §6's "ingestions/<epoch_ms>_<filename>".
func ObjectName(epochMs int64, filename string) string {
	return fmt.Sprintf("ingestions/%d_%s", epochMs, filename)
}

// PutIfAbsent writes data to objectName only if no object exists there
// yet. A pre-existing object (the GCS "DoesNotExist" precondition
// failing with 412) is treated as success, not an error — the caller
// already deduplicated on file_hash and is re-staging the same bytes.
func (s *Store) PutIfAbsent(ctx context.Context, objectName string, data []byte) error {
	w := s.bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = "text/csv"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		if isPreconditionFailed(err) {
			s.logger.Debug("blob: object already exists, skipping", zap.String("object", objectName))
			return nil
		}
		return eris.Wrapf(err, "blob: write %s", objectName)
	}

	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			s.logger.Debug("blob: object already exists, skipping", zap.String("object", objectName))
			return nil
		}
		return eris.Wrapf(err, "blob: finalize %s", objectName)
	}
	return nil
}

// Get reads back an ingested object's bytes.
func (s *Store) Get(ctx context.Context, objectName string) ([]byte, error) {
	r, err := s.bucket.Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "blob: open %s", objectName)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	return data, eris.Wrapf(err, "blob: read %s", objectName)
}

func isPreconditionFailed(err error) bool {
	gerr, ok := err.(*googleapi.Error)
	return ok && gerr.Code == 412
}
