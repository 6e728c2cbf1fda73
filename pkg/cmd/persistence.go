package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/relay/pkg/persistence"
	"github.com/dukex/relay/pkg/persistence/file"
	"github.com/dukex/relay/pkg/persistence/postgresql"
	"github.com/dukex/relay/pkg/persistence/redis"
	"github.com/dukex/relay/pkg/services"
)

const lockPrefix = "relay:lock:"

// NewPersistence selects the store from the URL scheme: postgres:// or
// postgresql://, redis://, file:// or a bare directory path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "redis":
		return redis.NewPersistence(ctx, logger, databaseURL)
	default:
		root := strings.TrimPrefix(databaseURL, "file://")
		if root == "" {
			return nil, fmt.Errorf("empty file persistence path")
		}

		return file.NewPersistence(root), nil
	}
}

// NewLocker returns a distributed execution lock when the store supports one.
// Other stores rely on the single-worker deployment.
func NewLocker(p persistence.Persistence) services.Locker {
	if r, ok := p.(*redis.Persistence); ok {
		return redis.NewLocker(r.Client(), lockPrefix)
	}

	return nil
}

func parsePersistenceProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	switch scheme {
	case "postgres", "postgresql":
		return "postgresql"
	case "redis", "rediss":
		return "redis"
	default:
		return "file"
	}
}
