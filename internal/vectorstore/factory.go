package vectorstore

import (
	"fmt"

	redisv9 "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Backend names accepted by the factory.
const (
	BackendQdrant = "qdrant"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// FactoryOptions selects and configures the concrete provider. The
// selection happens once at startup; everything downstream depends only
// on the Provider interface.
type FactoryOptions struct {
	Backend    string
	Qdrant     QdrantConfig
	SQLitePath string
	Redis      *redisv9.Client
}

func NewProvider(opts FactoryOptions, log *logrus.Logger) (Provider, error) {
	switch opts.Backend {
	case BackendQdrant:
		return NewQdrantProvider(opts.Qdrant, log), nil
	case BackendMemory:
		return NewMemoryProvider(), nil
	case BackendSQLite:
		return NewSQLiteProvider(opts.SQLitePath, log)
	case BackendRedis:
		if opts.Redis == nil {
			return nil, fmt.Errorf("redis backend selected but no redis client configured")
		}
		return NewRedisProvider(opts.Redis, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
