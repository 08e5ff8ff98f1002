// Package blob is the entry point for artifact storage. Callers depend on the
// Store interface and obtain one from Open; the drivers live under
// internal/infra/blob.
package blob

import (
	"context"
	"fmt"

	"poemhub/internal/blob/core"
	"poemhub/internal/config"
	"poemhub/internal/infra/blob/fs"
	"poemhub/internal/infra/blob/memory"
	"poemhub/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// SignedURLOptions configures URL pre-signing.
	SignedURLOptions = core.SignedURLOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrUnsupported = core.ErrUnsupported
	ErrNotFound    = core.ErrNotFound
	ErrExists      = core.ErrExists
	ErrInvalidKey  = core.ErrInvalidKey
)

// Open builds the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.Blob) (Store, error) {
	switch Driver(cfg.Driver) {
	case DriverFilesystem, "":
		store, err := fs.New(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("open fs blob store: %w", err)
		}
		return store, nil
	case DriverMemory:
		return memory.New(), nil
	case DriverS3:
		store, err := s3.New(ctx, s3.Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			PathStyle:       cfg.S3PathStyle,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("open s3 blob store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
