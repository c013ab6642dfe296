package tracking_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"trackmaster/internal/testsupport"
	"trackmaster/internal/tracking"
	"trackmaster/internal/visitors"
	"trackmaster/internal/visits"
)

func TestSweepClosesIdleVisitsAtLastActivity(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	clock := newFakeClock()
	tracker := newTracker(db, clock)
	ctx := context.Background()

	first, err := tracker.Track(ctx, pageview("https://example.com/"))
	require.NoError(t, err)
	clock.Advance(90 * time.Second)
	_, err = tracker.Track(ctx, pageview("https://example.com/docs"))
	require.NoError(t, err)

	// A second visitor stays active.
	clock.Advance(window)
	other := pageview("https://example.com/")
	other.UserAgent = firefoxUA
	second, err := tracker.Track(ctx, other)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	closed, err := tracker.Expirer().Sweep(ctx, clock.Now(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	visit := reloadVisit(t, db, first.VisitID)
	assert.False(t, visit.IsActive)
	require.NotNil(t, visit.EndedAt)
	assert.True(t, visit.EndedAt.Equal(baseTime.Add(90*time.Second)))
	require.NotNil(t, visit.Duration)
	assert.Equal(t, int64(90), *visit.Duration)
	require.NotNil(t, visit.ExitPage)
	assert.Equal(t, "https://example.com/docs", *visit.ExitPage)

	assert.True(t, reloadVisit(t, db, second.VisitID).IsActive)
}

func TestSweepIsIdempotent(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	clock := newFakeClock()
	tracker := newTracker(db, clock)
	ctx := context.Background()

	_, err := tracker.Track(ctx, pageview("https://example.com/"))
	require.NoError(t, err)
	clock.Advance(window + time.Second)

	n, err := tracker.Expirer().Sweep(ctx, clock.Now(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = tracker.Expirer().Sweep(ctx, clock.Now(), 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepWorksInBatches(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	clock := newFakeClock()
	tracker := newTracker(db, clock)
	ctx := context.Background()

	ips := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5"}
	for _, ip := range ips {
		b := pageview("https://example.com/")
		b.IPAddress = ip
		_, err := tracker.Track(ctx, b)
		require.NoError(t, err)
	}
	clock.Advance(window + time.Minute)

	n, err := tracker.Expirer().Sweep(ctx, clock.Now(), 2)
	require.NoError(t, err)
	assert.Equal(t, len(ips), n)

	var active int64
	require.NoError(t, db.Model(&visits.Visit{}).Where("is_active = ?", true).Count(&active).Error)
	assert.Zero(t, active)
}

func TestVisitExactlyAtWindowIsNotIdle(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	clock := newFakeClock()
	tracker := newTracker(db, clock)

	first, err := tracker.Track(context.Background(), pageview("https://example.com/"))
	require.NoError(t, err)

	clock.Advance(window)
	visit := reloadVisit(t, db, first.VisitID)
	assert.False(t, tracker.Expirer().IsIdle(visit, clock.Now()))

	clock.Advance(time.Second)
	assert.True(t, tracker.Expirer().IsIdle(visit, clock.Now()))
}

func TestCloseIdleSkipsVisitTouchedSinceRead(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	clock := newFakeClock()
	tracker := newTracker(db, clock)
	ctx := context.Background()

	first, err := tracker.Track(ctx, pageview("https://example.com/"))
	require.NoError(t, err)
	stale := reloadVisit(t, db, first.VisitID)

	clock.Advance(10 * time.Minute)
	_, err = tracker.Track(ctx, pageview("https://example.com/later"))
	require.NoError(t, err)

	// The stale copy still looks idle, but the row has moved on.
	clock.Advance(window - time.Minute)
	closed, err := tracker.Expirer().CloseIdle(ctx, stale, clock.Now())
	require.NoError(t, err)
	assert.False(t, closed)
	assert.True(t, reloadVisit(t, db, first.VisitID).IsActive)
}

func TestVisitCanOnlyBeClosedOnce(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	clock := newFakeClock()
	tracker := newTracker(db, clock)
	ctx := context.Background()

	first, err := tracker.Track(ctx, pageview("https://example.com/"))
	require.NoError(t, err)
	clock.Advance(window + time.Minute)

	visit := reloadVisit(t, db, first.VisitID)
	closed, err := tracker.Expirer().CloseIdle(ctx, visit, clock.Now())
	require.NoError(t, err)
	assert.True(t, closed)

	again := reloadVisit(t, db, first.VisitID)
	again.IsActive = true
	closed, err = tracker.Expirer().CloseOnExit(ctx, again, clock.Now(), "")
	require.NoError(t, err)
	assert.False(t, closed)

	// The first closure stands.
	final := reloadVisit(t, db, first.VisitID)
	require.NotNil(t, final.Duration)
	assert.Zero(t, *final.Duration)
}

// conflictStore simulates a store that keeps reporting a duplicate visitor
// without ever returning the row that caused it.
type conflictStore struct {
	tracking.Store
}

func (conflictStore) FindVisitorByFingerprint(context.Context, string) (*visitors.Visitor, error) {
	return nil, tracking.ErrNotFound
}

func (conflictStore) CreateVisitor(context.Context, *visitors.Visitor) error {
	return gorm.ErrDuplicatedKey
}

func TestUnresolvedVisitorRaceIsConflict(t *testing.T) {
	logger := testsupport.GetLogger()
	store := conflictStore{}
	tracker := tracking.NewTracker(store, logger, tracking.Options{Clock: newFakeClock().Now})

	_, err := tracker.Track(context.Background(), pageview("https://example.com/"))
	require.Error(t, err)
	assert.ErrorIs(t, err, tracking.ErrConflict)
	assert.False(t, tracking.IsValidationError(err))
}

func TestClosedDatabaseIsStoreUnavailable(t *testing.T) {
	db := testsupport.SetupFileTestDB(t)
	tracker := newTracker(db, newFakeClock())

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = tracker.Track(context.Background(), pageview("https://example.com/"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, tracking.ErrStoreUnavailable), "got %v", err)
}

func TestDefaultSessionTimeout(t *testing.T) {
	e := tracking.NewExpirer(nil, 0, testsupport.GetLogger(), nil)
	assert.Equal(t, tracking.DefaultSessionTimeout, e.Window())
}
