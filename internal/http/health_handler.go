package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"

	"trackmaster/internal/pkg/geoip"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	DBStatus  string    `json:"db_status"`
	GeoIP     bool      `json:"geoip"`
}

const healthPingTimeout = 2 * time.Second

// HealthIndexAction reports liveness. The service is degraded when the
// database does not answer a ping; a missing GeoIP database is not an error.
func HealthIndexAction(ctx *cartridge.Context) error {
	health := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		DBStatus:  "ok",
		GeoIP:     geoip.Default().Enabled(),
	}

	if err := pingDatabase(ctx); err != nil {
		ctx.Logger.Error("Database health check failed", slog.Any("error", err))
		health.Status = "degraded"
		health.DBStatus = "error"
	}

	return ctx.JSON(health)
}

func pingDatabase(ctx *cartridge.Context) error {
	db := ctx.DBManager.GetConnection()
	if db == nil {
		return errNoConnection
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	pingCtx, cancel := context.WithTimeout(ctx.UserContext(), healthPingTimeout)
	defer cancel()
	return sqlDB.PingContext(pingCtx)
}
