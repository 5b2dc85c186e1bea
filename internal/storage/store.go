// Package storage keeps uploaded document blobs in an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"snd-backend/internal/config"

	"go.uber.org/zap"
)

var ErrNotFound = errors.New("object not found")

type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Get returns ErrNotFound when the key does not exist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// New picks MinIO when an endpoint is configured, otherwise an in-process store.
func New(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	if cfg.Endpoint == "" {
		zap.L().Warn("S3_ENDPOINT not set, documents are kept in memory and lost on restart")
		return NewMemory(cfg.Bucket), nil
	}

	store, err := NewMinio(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// ReadAll fetches a whole object.
func ReadAll(ctx context.Context, store ObjectStore, key string) ([]byte, error) {
	rc, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
