package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/accountant/internal/logging"
)

func setupTestApp(t *testing.T) (*fiber.App, *miniredis.Miniredis, *atomic.Int64) {
	t.Helper()
	mr := miniredis.RunT(t)

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	var calls atomic.Int64
	app := fiber.New()
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/batches", func(c *fiber.Ctx) error {
		n := calls.Add(1)
		c.Set(fiber.HeaderContentType, "text/csv")
		return c.Status(fiber.StatusOK).SendString("client,available\n1," + strings.Repeat("I", int(n)) + "\n")
	})
	app.Post("/fail", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusBadRequest, "bad batch")
	})

	return app, mr, &calls
}

func post(t *testing.T, app *fiber.App, path, key, body string) (int, string, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, "text/csv")
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(payload), resp.Header.Get(fiber.HeaderContentType)
}

func TestIdempotencyWithoutHeaderPassesThrough(t *testing.T) {
	app, _, calls := setupTestApp(t)

	post(t, app, "/batches", "", "a")
	post(t, app, "/batches", "", "a")

	if calls.Load() != 2 {
		t.Fatalf("expected handler to run twice, ran %d times", calls.Load())
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, _, calls := setupTestApp(t)

	status, body, _ := post(t, app, "/batches", "abc123", "type,client,tx,amount\n")
	if status != fiber.StatusOK {
		t.Fatalf("expected status %d got %d", fiber.StatusOK, status)
	}

	// Second request should return the cached response without invoking handler again.
	status2, body2, contentType := post(t, app, "/batches", "abc123", "type,client,tx,amount\n")
	if status2 != fiber.StatusOK {
		t.Fatalf("expected cached status %d got %d", fiber.StatusOK, status2)
	}
	if body2 != body {
		t.Fatalf("expected cached payload %q got %q", body, body2)
	}
	if contentType != "text/csv" {
		t.Fatalf("expected cached content type, got %q", contentType)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls.Load())
	}
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	app, _, _ := setupTestApp(t)

	post(t, app, "/batches", "k1", "first")
	status, _, _ := post(t, app, "/batches", "k1", "second")
	if status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected %d got %d", fiber.StatusUnprocessableEntity, status)
	}
}

func TestIdempotencyInProgress(t *testing.T) {
	app, mr, calls := setupTestApp(t)

	if err := mr.Set(idempotencyPrefix+"/batches:busy", inProgressMarker); err != nil {
		t.Fatalf("seed: %v", err)
	}
	status, _, _ := post(t, app, "/batches", "busy", "x")
	if status != fiber.StatusConflict {
		t.Fatalf("expected %d got %d", fiber.StatusConflict, status)
	}
	if calls.Load() != 0 {
		t.Fatalf("handler must not run while a request is in flight")
	}
}

func TestIdempotencyReleasesKeyOnError(t *testing.T) {
	app, mr, _ := setupTestApp(t)

	status, _, _ := post(t, app, "/fail", "retry-me", "x")
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, status)
	}
	if mr.Exists(idempotencyPrefix + "/fail:retry-me") {
		t.Fatalf("expected reservation to be released after a failed request")
	}
}
