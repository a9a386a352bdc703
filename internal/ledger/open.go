package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Backends holds the shared connections a run may need.
type Backends struct {
	DB       *pgxpool.Pool
	Cache    *redis.Client
	RedisTTL time.Duration
}

// Open returns a fresh ledger of the named backend scoped to runID.
func Open(ctx context.Context, backend string, b Backends, runID uuid.UUID) (Ledger, error) {
	switch backend {
	case "", BackendMemory:
		return NewInMemory(), nil
	case BackendRedis:
		if b.Cache == nil {
			return nil, fmt.Errorf("ledger backend %q requires a redis client", backend)
		}
		return NewRedisLedger(b.Cache, runID.String(), b.RedisTTL), nil
	case BackendPostgres:
		if b.DB == nil {
			return nil, fmt.Errorf("ledger backend %q requires a database pool", backend)
		}
		l := NewPostgresLedger(b.DB, runID)
		if err := l.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", backend)
	}
}
