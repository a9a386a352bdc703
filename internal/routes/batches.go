package routes

import (
	"bytes"
	"encoding/csv"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/accountant/internal/batch"
	"github.com/congo-pay/accountant/internal/engine"
	"github.com/congo-pay/accountant/internal/ingest"
	"github.com/congo-pay/accountant/internal/middleware"
	"github.com/congo-pay/accountant/internal/report"
)

const mimeTextCSV = "text/csv"

// RegisterBatchRoutes exposes batch processing under the given router.
func RegisterBatchRoutes(r fiber.Router, runner *batch.Runner) {
	r.Post("/batches", func(c *fiber.Ctx) error {
		res, err := runner.Run(c.UserContext(), bytes.NewReader(c.Body()))
		c.Locals(middleware.RunIDLocal, res.RunID.String())
		c.Set("X-Run-ID", res.RunID.String())
		if err != nil {
			return batchError(err)
		}

		if c.Accepts(mimeTextCSV, fiber.MIMEApplicationJSON) == fiber.MIMEApplicationJSON {
			return c.JSON(fiber.Map{
				"run_id":   res.RunID.String(),
				"summary":  res.Summary,
				"accounts": report.Rows(res.Accounts),
			})
		}

		var buf bytes.Buffer
		if err := report.WriteCSV(&buf, res.Accounts); err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, mimeTextCSV)
		return c.Status(http.StatusOK).Send(buf.Bytes())
	})
}

func batchError(err error) error {
	var parseErr *csv.ParseError
	switch {
	case errors.Is(err, ingest.ErrMissingColumn), errors.As(err, &parseErr):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrLedgerUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, "ledger unavailable")
	default:
		return err
	}
}
