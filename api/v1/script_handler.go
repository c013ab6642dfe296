package v1

import (
	"bytes"
	_ "embed"
	"log/slog"
	"text/template"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"trackmaster/internal/config"
)

//go:embed script.js
var scriptSource string

var scriptTemplate = template.Must(template.New("script.js").Parse(scriptSource))

// TrackEndpointPath is the ingestion path the tracking script posts to.
const TrackEndpointPath = "/x/api/v1/track"

// GetScriptAction renders the embeddable tracking script for the website
// named by the code query parameter.
func GetScriptAction(ctx *cartridge.Context) error {
	var buf bytes.Buffer
	data := map[string]any{
		"Endpoint":     ctx.BaseURL() + TrackEndpointPath,
		"TrackingCode": ctx.Query("code"),
		"IdleSeconds":  int64(config.GetConfig().GetSessionTimeout().Seconds()),
	}
	if err := scriptTemplate.Execute(&buf, data); err != nil {
		ctx.Logger.Error("Failed to render tracking script", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
	}

	content := buf.Bytes()
	etag := generateETag(content)

	if ctx.Get("If-None-Match") == etag {
		ctx.Logger.Debug("ETag match, returning 304",
			slog.String("etag", etag),
			slog.String("path", ctx.Path()))
		return ctx.Status(fiber.StatusNotModified).Send(nil)
	}

	ctx.Set("Content-Type", "application/javascript")
	ctx.Set("Cache-Control", "public, max-age=3600")
	ctx.Set("ETag", etag)
	ctx.Set("Cross-Origin-Resource-Policy", "cross-origin")
	return ctx.Send(content)
}
