// Package jobs runs periodic maintenance: closing idle visits and picking up
// GeoLite2 database updates.
package jobs

import (
	"log/slog"

	"trackmaster/internal/pkg/geoip"
)

// Jobs is the scheduler the application registers as its background worker.
type Jobs = Scheduler

// NewJobs creates the scheduler for the application's database and GeoIP reader.
func NewJobs(conn Connector, reader *geoip.Reader, logger *slog.Logger) (*Jobs, error) {
	return NewScheduler(conn, reader, logger)
}
