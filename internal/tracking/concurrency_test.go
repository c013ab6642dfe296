package tracking_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"trackmaster/internal/events"
	"trackmaster/internal/testsupport"
	"trackmaster/internal/tracking"
	"trackmaster/internal/visitors"
	"trackmaster/internal/visits"
)

func TestConcurrentBeaconsShareOneVisitorAndVisit(t *testing.T) {
	db := testsupport.SetupFileTestDB(t)
	website := testsupport.CreateTestWebsite(t, db, "example.com")
	tracker := newTracker(db, newFakeClock())

	const beacons = 16
	var (
		mu         sync.Mutex
		visitorIDs = make(map[string]bool)
		visitIDs   = make(map[string]bool)
	)

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < beacons; i++ {
		g.Go(func() error {
			b := pageview(fmt.Sprintf("https://example.com/p/%d", i))
			b.TrackingCode = website.TrackingCode
			result, err := tracker.Track(ctx, b)
			if err != nil {
				return err
			}
			mu.Lock()
			visitorIDs[result.VisitorID] = true
			visitIDs[result.VisitID] = true
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.Len(t, visitorIDs, 1)
	assert.Len(t, visitIDs, 1)

	var visitorID string
	for id := range visitorIDs {
		visitorID = id
	}
	assert.Equal(t, int64(1), countActiveVisits(t, db, visitorID))
	assert.Equal(t, int64(1), reloadVisitor(t, db, visitorID).VisitCount)

	w := reloadWebsite(t, db, website.ID)
	assert.Equal(t, int64(1), w.VisitorCount)
	assert.Equal(t, int64(beacons), w.PageviewCount)
	assert.Equal(t, int64(beacons), countRows(t, db, &events.Pageview{}))
}

func TestConcurrentPageviewsKeepCounterExact(t *testing.T) {
	db := testsupport.SetupFileTestDB(t)
	website := testsupport.CreateTestWebsite(t, db, "example.com")
	tracker := newTracker(db, newFakeClock())

	// Distinct visitors so the writes spread over many visits.
	const concurrent = 24
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < concurrent; i++ {
		g.Go(func() error {
			b := &tracking.Beacon{
				TrackingCode: website.TrackingCode,
				URL:          "https://example.com/",
				IPAddress:    fmt.Sprintf("198.51.100.%d", i+1),
				UserAgent:    chromeUA,
			}
			_, err := tracker.Track(ctx, b)
			return err
		})
	}
	require.NoError(t, g.Wait())

	w := reloadWebsite(t, db, website.ID)
	assert.Equal(t, int64(concurrent), w.PageviewCount)
	assert.Equal(t, int64(concurrent), w.VisitorCount)
	assert.Equal(t, int64(concurrent), countRows(t, db, &visitors.Visitor{}))
}

func TestConcurrentResolveAfterIdleOpensOneVisit(t *testing.T) {
	db := testsupport.SetupFileTestDB(t)
	clock := newFakeClock()
	tracker := newTracker(db, clock)

	first, err := tracker.Track(context.Background(), pageview("https://example.com/"))
	require.NoError(t, err)

	clock.Advance(window + time.Minute)

	// Every goroutine sees the idle visit and races to close it and open
	// the next one.
	const racers = 12
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < racers; i++ {
		g.Go(func() error {
			_, err := tracker.Track(ctx, pageview("https://example.com/again"))
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(1), countActiveVisits(t, db, first.VisitorID))
	assert.Equal(t, int64(2), countRows(t, db, &visits.Visit{}))
	assert.False(t, reloadVisit(t, db, first.VisitID).IsActive)
	assert.Equal(t, int64(2), reloadVisitor(t, db, first.VisitorID).VisitCount)
}

func TestConcurrentSweepAndResolveAgree(t *testing.T) {
	db := testsupport.SetupFileTestDB(t)
	clock := newFakeClock()
	tracker := newTracker(db, clock)

	first, err := tracker.Track(context.Background(), pageview("https://example.com/"))
	require.NoError(t, err)
	clock.Advance(window + time.Minute)

	var swept int
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		n, err := tracker.Expirer().Sweep(ctx, clock.Now(), 10)
		swept = n
		return err
	})
	g.Go(func() error {
		_, err := tracker.Track(ctx, pageview("https://example.com/"))
		return err
	})
	require.NoError(t, g.Wait())

	assert.LessOrEqual(t, swept, 1)
	assert.Equal(t, int64(1), countActiveVisits(t, db, first.VisitorID))

	closed := reloadVisit(t, db, first.VisitID)
	assert.False(t, closed.IsActive)
	require.NotNil(t, closed.Duration)
	assert.Zero(t, *closed.Duration)
}
