package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/accountant/internal/transaction"
)

const (
	redisKeyPrefix = "accountant:"
	// DefaultRedisTTL bounds how long a run's keys survive if Close is never reached.
	DefaultRedisTTL = time.Hour
)

// RedisLedger stores one JSON value per transaction id under keys scoped to a run.
type RedisLedger struct {
	cache *redis.Client
	runID string
	ttl   time.Duration
}

// NewRedisLedger builds a Redis-backed index for the run identified by runID.
func NewRedisLedger(cache *redis.Client, runID string, ttl time.Duration) *RedisLedger {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisLedger{cache: cache, runID: runID, ttl: ttl}
}

func (l *RedisLedger) key(txID uint32) string {
	return redisKeyPrefix + l.runID + ":tx:" + strconv.FormatUint(uint64(txID), 10)
}

// Get fetches and decodes the record stored under txID.
func (l *RedisLedger) Get(ctx context.Context, txID uint32) (transaction.Record, error) {
	payload, err := l.cache.Get(ctx, l.key(txID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return transaction.Record{}, ErrNotFound
		}
		return transaction.Record{}, fmt.Errorf("redis get tx %d: %w", txID, err)
	}
	var rec transaction.Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return transaction.Record{}, fmt.Errorf("decode tx %d: %w", txID, err)
	}
	return rec, nil
}

// Append writes rec with SETNX so the first record under an id wins.
func (l *RedisLedger) Append(ctx context.Context, rec transaction.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode tx %d: %w", rec.TxID, err)
	}
	stored, err := l.cache.SetNX(ctx, l.key(rec.TxID), payload, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx tx %d: %w", rec.TxID, err)
	}
	if !stored {
		return ErrDuplicateTransaction
	}
	return nil
}

// Close deletes every key written by the run.
func (l *RedisLedger) Close(ctx context.Context) error {
	pattern := redisKeyPrefix + l.runID + ":tx:*"
	iter := l.cache.Scan(ctx, 0, pattern, 500).Iterator()
	batch := make([]string, 0, 500)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := l.cache.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis cleanup: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(batch) > 0 {
		if err := l.cache.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis cleanup: %w", err)
		}
	}
	return nil
}
