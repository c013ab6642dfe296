package tracking_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"trackmaster/internal/events"
	"trackmaster/internal/testsupport"
	"trackmaster/internal/tracking"
	"trackmaster/internal/visitors"
	"trackmaster/internal/visits"
	"trackmaster/internal/websites"
)

const (
	chromeUA  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.109 Safari/537.36"
	firefoxUA = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	testIP    = "1.2.3.4"
	window    = 30 * time.Minute
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeClock is a settable clock shared by a tracker and its test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: baseTime}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTracker(db *gorm.DB, clock *fakeClock) *tracking.Tracker {
	logger := testsupport.GetLogger()
	return tracking.NewTracker(tracking.NewGormStore(db, logger), logger, tracking.Options{
		SessionTimeout: window,
		Clock:          clock.Now,
	})
}

func pageview(url string) *tracking.Beacon {
	return &tracking.Beacon{
		URL:       url,
		IPAddress: testIP,
		UserAgent: chromeUA,
	}
}

func reloadWebsite(t *testing.T, db *gorm.DB, id uint) websites.Website {
	t.Helper()
	w, err := websites.GetWebsiteByID(db, id)
	require.NoError(t, err)
	return w
}

func reloadVisitor(t *testing.T, db *gorm.DB, id string) *visitors.Visitor {
	t.Helper()
	v, err := visitors.FindByID(db, id)
	require.NoError(t, err)
	return v
}

func reloadVisit(t *testing.T, db *gorm.DB, id string) *visits.Visit {
	t.Helper()
	v, err := visits.FindByID(db, id)
	require.NoError(t, err)
	return v
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func countActiveVisits(t *testing.T, db *gorm.DB, visitorID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&visits.Visit{}).
		Where("visitor_id = ? AND is_active = ?", visitorID, true).
		Count(&n).Error)
	return n
}

func pageviewsOf(t *testing.T, db *gorm.DB, visitID string) []events.Pageview {
	t.Helper()
	out, err := events.ListByVisit(db, visitID)
	require.NoError(t, err)
	return out
}
