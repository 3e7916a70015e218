// AngelaMos | 2026
// store.go

package artifact

import (
	"context"
	"fmt"

	"github.com/carterperez-dev/templates/imagegate/internal/config"
)

const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// New selects the storage backend named in cfg.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", BackendLocal:
		return NewLocalStore(cfg.Dir)
	case BackendS3:
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
