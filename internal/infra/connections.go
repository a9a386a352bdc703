package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/accountant/internal/config"
	"github.com/congo-pay/accountant/internal/ledger"
)

// Connections holds the optional Postgres pool and Redis client. Either may be nil.
type Connections struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
}

// Connect opens every backend that has a URL configured and verifies it.
func Connect(ctx context.Context, cfg config.Config) (*Connections, error) {
	conns := &Connections{}

	if cfg.DatabaseURL != "" {
		db, err := NewPostgresPool(ctx, cfg.DatabaseURL, cfg.Workers)
		if err != nil {
			return nil, err
		}
		conns.DB = db
	}

	if cfg.RedisURL != "" {
		cache, err := NewRedisClient(ctx, cfg.RedisURL, cfg.Workers)
		if err != nil {
			conns.Close()
			return nil, err
		}
		conns.Cache = cache
	}

	return conns, nil
}

// Backends exposes the connections to the ledger factory.
func (c *Connections) Backends(redisTTL time.Duration) ledger.Backends {
	return ledger.Backends{DB: c.DB, Cache: c.Cache, RedisTTL: redisTTL}
}

// Ping checks every open connection and reports failures per backend.
func (c *Connections) Ping(ctx context.Context) map[string]error {
	status := make(map[string]error)
	if c.DB != nil {
		status["postgres"] = c.DB.Ping(ctx)
	}
	if c.Cache != nil {
		status["redis"] = c.Cache.Ping(ctx).Err()
	}
	return status
}

// Close releases every open connection.
func (c *Connections) Close() error {
	var errs []error
	if c.DB != nil {
		c.DB.Close()
	}
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// NewPostgresPool configures and returns a PostgreSQL connection pool sized
// for the given number of engine workers.
func NewPostgresPool(ctx context.Context, url string, workers int) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is required")
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if n := int32(workers) + 2; n > cfg.MaxConns {
		cfg.MaxConns = n
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// NewRedisClient configures a Redis client and verifies connectivity.
func NewRedisClient(ctx context.Context, url string, workers int) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if workers > opt.PoolSize {
		opt.PoolSize = workers
	}

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
