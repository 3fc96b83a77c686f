package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/feichai0017/document-tables/pkg/logger"
	"github.com/feichai0017/document-tables/pkg/storage/local"
	"github.com/feichai0017/document-tables/pkg/storage/minio"
	"github.com/feichai0017/document-tables/pkg/storage/s3"
)

// StorageType selects a blob backend
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
)

// Storage holds uploaded document bytes under slash-separated keys
type Storage interface {
	// Store writes reader under key, creating any containing location, and returns the key
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	// Get opens the blob stored under key
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the blob stored under key
	Delete(ctx context.Context, key string) error
}

type Options struct {
	// LocalRoot is the directory keys are resolved against for the local backend
	LocalRoot string
}

// NewStorage creates the configured backend
func NewStorage(storageType StorageType, opts Options, log logger.Logger) (Storage, error) {
	switch storageType {
	case StorageTypeLocal, "":
		return local.NewLocalStorage(opts.LocalRoot, log)
	case StorageTypeS3:
		return s3.GetClient(log)
	case StorageTypeMinio:
		return minio.GetClient(log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
