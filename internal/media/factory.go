package media

import (
	"context"
	"fmt"

	"redtrack/internal/config"
)

// NewStoreFromConfig creates a MediaStore implementation based on the media
// config type.
func NewStoreFromConfig(ctx context.Context, cfg config.MediaConfig) (MediaStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "s3":
		return NewS3Store(ctx, cfg)
	case "filesystem":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("filesystem media store requires dir to be set")
		}
		return NewFileSystemStore(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown media store type: %s", cfg.Type)
	}
}
