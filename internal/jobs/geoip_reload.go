package jobs

import (
	"log/slog"
	"os"
	"time"

	"trackmaster/internal/pkg/geoip"
)

// GeoIPReloadInterval is how often the GeoLite2 file is checked for changes.
const GeoIPReloadInterval = time.Hour

// GeoIPReloadJob swaps in a new GeoLite2 database when the file on disk
// changes, for deployments that refresh it with geoipupdate.
type GeoIPReloadJob struct {
	reader  *geoip.Reader
	path    string
	logger  *slog.Logger
	modTime time.Time
}

func NewGeoIPReloadJob(reader *geoip.Reader, path string, logger *slog.Logger) *GeoIPReloadJob {
	j := &GeoIPReloadJob{reader: reader, path: path, logger: logger}
	if info, err := os.Stat(path); err == nil {
		j.modTime = info.ModTime()
	}
	return j
}

// Run reloads the database if its modification time moved.
func (j *GeoIPReloadJob) Run() error {
	if j.path == "" {
		return nil
	}

	info, err := os.Stat(j.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if !info.ModTime().After(j.modTime) {
		return nil
	}

	j.logger.Info("GeoLite2 database changed on disk, reloading",
		slog.String("path", j.path),
		slog.Time("modified_at", info.ModTime()))
	j.reader.Reload(j.path)
	j.modTime = info.ModTime()
	return nil
}
