// Package storage keeps rendered brief artifacts on disk or in S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jimdaga/mediecho/internal/config"
)

// ErrNotFound is returned when an artifact does not exist
var ErrNotFound = errors.New("artifact not found")

// Store saves and retrieves artifacts by location.
// Locations are opaque strings returned by Save.
type Store interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
	Open(ctx context.Context, location string) (io.ReadCloser, error)
	Delete(ctx context.Context, location string) error
}

// New returns the backend selected by cfg.StorageBackend
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StorageBackend {
	case "", "local":
		return NewLocalStore(cfg.UploadsDir)
	case "s3":
		return NewS3Store(ctx, cfg.S3Bucket, cfg.S3Prefix)
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.StorageBackend)
	}
}
