package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "accountant:idempotency:v1:"
	inProgressMarker     = "__in_progress__"
	idempotencyTimeout   = 2 * time.Second
)

type storedResponse struct {
	Fingerprint string            `json:"fingerprint"`
	Status      int               `json:"status"`
	Body        string            `json:"body"`
	Headers     map[string]string `json:"headers"`
}

type idempotencyStore struct {
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// Idempotency replays the stored response when an unsafe request repeats an
// Idempotency-Key. Requests without the header pass through. Reusing a key
// with a different body is rejected with 422.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	store := &idempotencyStore{cache: cache, ttl: ttl, logger: logger}

	return func(c *fiber.Ctx) error {
		switch strings.ToUpper(c.Method()) {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := strings.TrimSpace(c.Get(idempotencyKeyHeader))
		if key == "" {
			return c.Next()
		}
		cacheKey := idempotencyPrefix + c.Path() + ":" + key
		fingerprint := fingerprintOf(c.Body())

		stored, found, err := store.lookup(c.UserContext(), cacheKey)
		if err != nil {
			logger.Error("idempotency lookup failed", slog.String("key", key), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
		}
		if found {
			return store.replay(c, key, stored, fingerprint)
		}

		reserved, err := store.reserve(c.UserContext(), cacheKey)
		if err != nil {
			logger.Error("idempotency reservation failed", slog.String("key", key), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency reservation failure")
		}
		if !reserved {
			return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
		}

		if err := c.Next(); err != nil {
			store.release(cacheKey)
			return err
		}

		resp := storedResponse{
			Fingerprint: fingerprint,
			Status:      c.Response().StatusCode(),
			Body:        string(c.Response().Body()),
			Headers:     map[string]string{},
		}
		c.Response().Header.VisitAll(func(k, v []byte) {
			resp.Headers[string(k)] = string(v)
		})

		if err := store.persist(cacheKey, resp); err != nil {
			logger.Error("failed to persist idempotent response", slog.String("key", key), slog.Any("error", err))
			store.release(cacheKey)
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency persistence failure")
		}
		return nil
	}
}

func fingerprintOf(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// lookup returns the stored response; an in-flight reservation is reported as
// found with a zero Status.
func (s *idempotencyStore) lookup(ctx context.Context, cacheKey string) (storedResponse, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, idempotencyTimeout)
	defer cancel()

	cached, err := s.cache.Get(ctx, cacheKey).Result()
	if errors.Is(err, redis.Nil) {
		return storedResponse{}, false, nil
	}
	if err != nil {
		return storedResponse{}, false, err
	}
	if cached == inProgressMarker {
		return storedResponse{}, true, nil
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(cached), &stored); err != nil {
		s.logger.Warn("failed to decode stored idempotent response", slog.String("cache_key", cacheKey), slog.Any("error", err))
		return storedResponse{Status: fiber.StatusConflict}, true, nil
	}
	return stored, true, nil
}

func (s *idempotencyStore) replay(c *fiber.Ctx, key string, stored storedResponse, fingerprint string) error {
	switch {
	case stored.Status == 0:
		return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
	case stored.Fingerprint == "":
		return fiber.NewError(fiber.StatusConflict, "duplicate request")
	case stored.Fingerprint != fingerprint:
		s.logger.Warn("idempotency key reused with a different body", slog.String("key", key))
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Idempotency-Key reused with a different request body")
	}

	for header, value := range stored.Headers {
		if strings.EqualFold(header, fiber.HeaderContentLength) || strings.EqualFold(header, requestIDHeader) {
			continue
		}
		c.Set(header, value)
	}
	return c.Status(stored.Status).SendString(stored.Body)
}

func (s *idempotencyStore) reserve(ctx context.Context, cacheKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, idempotencyTimeout)
	defer cancel()
	return s.cache.SetNX(ctx, cacheKey, inProgressMarker, s.ttl).Result()
}

func (s *idempotencyStore) persist(cacheKey string, resp storedResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyTimeout)
	defer cancel()
	return s.cache.Set(ctx, cacheKey, payload, s.ttl).Err()
}

// release drops a reservation so the client may retry. Best effort.
func (s *idempotencyStore) release(cacheKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyTimeout)
	defer cancel()
	if err := s.cache.Del(ctx, cacheKey).Err(); err != nil {
		s.logger.Warn("failed to release idempotency key", slog.String("cache_key", cacheKey), slog.Any("error", err))
	}
}
