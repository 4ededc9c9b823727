package blob

import (
	"context"
	"fmt"

	"marketml/internal/config"
)

// Type names a remote backend.
type Type string

const (
	TypeNone  Type = ""
	TypeFS    Type = "fs"
	TypeS3    Type = "s3"
	TypeGCS   Type = "gcs"
	TypeRedis Type = "redis"
)

// New builds the Store selected by cfg. An empty type yields Nop.
func New(ctx context.Context, cfg config.Remote) (Store, error) {
	switch Type(cfg.Type) {
	case TypeNone, "none":
		return Nop{}, nil
	case TypeFS:
		if cfg.Dir == "" {
			return nil, fmt.Errorf("storage.remote.dir is required for fs storage")
		}
		return NewFileStore(cfg.Dir)
	case TypeS3:
		return NewS3Store(ctx, S3Config{
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
		})
	case TypeGCS:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("storage.remote.bucket is required for gcs storage")
		}
		return newGCSStore(ctx, cfg.Bucket)
	case TypeRedis:
		addr := cfg.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		return NewRedisStore(ctx, addr, 0)
	default:
		return nil, fmt.Errorf("unsupported remote storage type: %s", cfg.Type)
	}
}
