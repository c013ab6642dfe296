package http

import (
	"bytes"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/prometheus/client_golang/prometheus"

	"trackmaster/internal/metrics"
)

var errNoConnection = errors.New("database connection unavailable")

// MetricsIndexAction serves the ingestion metrics in the Prometheus text format.
func MetricsIndexAction(ctx *cartridge.Context) error {
	metrics.Default()

	var buf bytes.Buffer
	if err := metrics.WriteText(&buf, prometheus.DefaultGatherer, metrics.Namespace()); err != nil {
		ctx.Logger.Error("Failed to encode metrics", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).SendString("failed to gather metrics")
	}

	ctx.Set("Content-Type", metrics.ContentType())
	ctx.Set("Cache-Control", "no-store")
	return ctx.Send(buf.Bytes())
}
