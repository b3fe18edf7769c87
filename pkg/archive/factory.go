package archive

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendNone = "none"
	BackendFS   = "fs"
	BackendS3   = "s3"
	BackendGCS  = "gcs"
)

// Config selects and configures an archive backend.
type Config struct {
	Backend string
	Dir     string
	S3      S3Config
	// GCS requires a build with -tags gcp.
	GCSBucket string
	GCSPrefix string
}

// Open builds the configured Store. BackendNone (or empty) returns nil, nil.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendFS:
		return NewFileStore(cfg.Dir)
	case BackendS3:
		return NewS3Store(ctx, cfg.S3)
	case BackendGCS:
		return openGCS(ctx, cfg.GCSBucket, cfg.GCSPrefix)
	default:
		return nil, fmt.Errorf("unsupported archive backend: %s", cfg.Backend)
	}
}
