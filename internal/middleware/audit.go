package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RunIDLocal is the fiber.Ctx local under which handlers publish the id of the
// engine run serving the request.
const RunIDLocal = "run_id"

// Audit emits one structured log line per request once the response is known.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}

		attrs := []slog.Attr{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Int("bytes_in", len(c.Body())),
			slog.Duration("duration", time.Since(start)),
		}
		if reqID := RequestIDFrom(c); reqID != "" {
			attrs = append(attrs, slog.String("request_id", reqID))
		}
		if runID, ok := c.Locals(RunIDLocal).(string); ok && runID != "" {
			attrs = append(attrs, slog.String("run_id", runID))
		}

		ctx := c.UserContext()
		switch {
		case err != nil && status >= fiber.StatusInternalServerError:
			attrs = append(attrs, slog.Any("error", err))
			logger.LogAttrs(ctx, slog.LevelError, "request completed", attrs...)
		case err != nil:
			attrs = append(attrs, slog.Any("error", err))
			logger.LogAttrs(ctx, slog.LevelWarn, "request completed", attrs...)
		default:
			logger.LogAttrs(ctx, slog.LevelInfo, "request completed", attrs...)
		}
		return err
	}
}
