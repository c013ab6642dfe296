package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "trackmaster/api/v1"
	"trackmaster/internal/config"
	"trackmaster/internal/http"
)

// publicCORSConfig is shared by every endpoint the tracking script calls from
// third-party pages.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

func noContent(ctx *cartridge.Context) error {
	return ctx.SendStatus(fiber.StatusNoContent)
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	cfg := config.GetConfig()

	// Rate limiting only applies in production; it would get in the way of
	// tests and local development.
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(cfg.GetRateLimitPerMinute()),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Ingestion: rate limit, CORS, and the global Sec-Fetch-Site check.
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	scriptConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	if cfg.MetricsEnabled {
		srv.Get("/metrics", http.MetricsIndexAction, &cartridge.RouteConfig{
			EnableSecFetchSite: cartridge.Bool(false),
		})
	}

	for _, path := range []string{"/api/track", v1.TrackEndpointPath} {
		srv.Post(path, v1.CreateTrackAction, publicAPIConfig)
		srv.Options(path, noContent, publicAPIConfig)
	}

	srv.Get("/api/track/script.js", v1.GetScriptAction, scriptConfig)
}
