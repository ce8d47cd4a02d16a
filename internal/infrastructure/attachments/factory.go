package attachments

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mobistudy/mobistudy-api/internal/core/ports"
)

// Supported drivers.
const (
	DriverGridFS = "gridfs"
	DriverS3     = "s3"
	DriverGCS    = "gcs"
	DriverMemory = "memory"
)

// Config selects and configures an attachment backend.
type Config struct {
	Driver string
	Bucket string
	S3     S3Config
	GCS    GCSConfig
}

// Open builds the configured store. The returned close function releases any
// client the store owns and is never nil.
func Open(ctx context.Context, cfg Config, db *mongo.Database) (ports.AttachmentStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Driver {
	case "", DriverGridFS:
		if db == nil {
			return nil, noop, fmt.Errorf("attachments: gridfs driver needs a mongo database")
		}
		return NewGridFSStore(db, cfg.Bucket), noop, nil
	case DriverS3:
		s3cfg := cfg.S3
		s3cfg.Bucket = cfg.Bucket
		store, err := NewS3Store(ctx, s3cfg)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	case DriverGCS:
		gcscfg := cfg.GCS
		gcscfg.Bucket = cfg.Bucket
		store, err := NewGCSStore(ctx, gcscfg)
		if err != nil {
			return nil, noop, err
		}
		return store, store.Close, nil
	case DriverMemory:
		return NewMemoryStore(), noop, nil
	default:
		return nil, noop, fmt.Errorf("attachments: unknown driver %q", cfg.Driver)
	}
}
