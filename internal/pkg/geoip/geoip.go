package geoip

import (
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// Location is the coarse geography attached to a visitor.
type Location struct {
	Country  string // ISO 3166-1 alpha-2, upper case
	City     string
	Region   string
	Timezone string
}

// Locator resolves an IP address to a Location. Implementations return the
// zero Location when the address cannot be resolved.
type Locator interface {
	Lookup(ip string) Location
}

// Reader is a Locator backed by a GeoLite2/GeoIP2 City database. A Reader
// without a database resolves every address to the zero Location.
type Reader struct {
	mu     sync.RWMutex
	db     *geoip2.Reader
	logger *slog.Logger
}

// Open loads the database at path. GeoIP is optional: a missing or unreadable
// file yields a Reader that resolves nothing.
func Open(path string, logger *slog.Logger) *Reader {
	r := &Reader{logger: logger}
	r.db = r.load(path)
	return r
}

func (r *Reader) load(path string) *geoip2.Reader {
	if path == "" {
		r.logger.Debug("GeoIP database path not configured - GeoIP features disabled")
		return nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		r.logger.Info("GeoLite2 database not found - GeoIP features disabled",
			slog.String("path", path),
			slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		return nil
	} else if err != nil {
		r.logger.Warn("Error checking GeoLite2 database file",
			slog.String("path", path),
			slog.Any("error", err))
		return nil
	}

	db, err := geoip2.Open(path)
	if err != nil {
		r.logger.Error("Failed to open GeoLite2 database",
			slog.String("path", path),
			slog.Any("error", err))
		return nil
	}

	r.logger.Info("GeoLite2 database initialized successfully", slog.String("path", path))
	return db
}

// Reload swaps in the database at path, closing the previous one.
func (r *Reader) Reload(path string) {
	db := r.load(path)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db != nil {
		r.db.Close()
	}
	r.db = db
}

// Enabled reports whether a database is loaded.
func (r *Reader) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.db != nil
}

// Lookup implements Locator.
func (r *Reader) Lookup(ipAddress string) Location {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.db == nil {
		return Location{}
	}

	ip := net.ParseIP(strings.TrimSpace(ipAddress))
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return Location{}
	}

	record, err := r.db.City(ip)
	if err != nil {
		r.logger.Debug("GeoIP lookup failed",
			slog.String("ip_address", ipAddress),
			slog.Any("error", err))
		return Location{}
	}

	loc := Location{
		City:     record.City.Names["en"],
		Timezone: record.Location.TimeZone,
	}
	if code := record.Country.IsoCode; code != "" && code != "--" {
		loc.Country = strings.ToUpper(code)
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].Names["en"]
	}
	return loc
}

// Close releases the underlying database.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

var (
	defaultMu     sync.RWMutex
	defaultReader *Reader
)

// SetDefault installs r as the process-wide reader used by request handlers.
func SetDefault(r *Reader) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultReader = r
}

// Default returns the process-wide reader, or a reader without a database
// when none was installed.
func Default() *Reader {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	if defaultReader == nil {
		return &Reader{logger: slog.Default()}
	}
	return defaultReader
}
