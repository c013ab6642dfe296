package events_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"trackmaster/internal/events"
	"trackmaster/internal/testsupport"
)

var viewedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func pageview(visitID, url string, at time.Time) *events.Pageview {
	return &events.Pageview{VisitID: visitID, VisitorID: "visitor-1", URL: url, ViewedAt: at}
}

func TestInsertPageviewBackfillsPrevious(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	require.NoError(t, events.InsertPageview(db, pageview("v1", "/", viewedAt)))
	require.NoError(t, events.InsertPageview(db, pageview("v1", "/docs", viewedAt.Add(42*time.Second))))
	// Another visit is unaffected.
	require.NoError(t, events.InsertPageview(db, pageview("v2", "/", viewedAt.Add(time.Hour))))

	list, err := events.ListByVisit(db, "v1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.NotNil(t, list[0].TimeOnPage)
	assert.Equal(t, int64(42), *list[0].TimeOnPage)
	assert.Nil(t, list[1].TimeOnPage)
}

func TestBackfillNeverGoesNegative(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	require.NoError(t, events.InsertPageview(db, pageview("v1", "/", viewedAt)))
	require.NoError(t, events.BackfillTimeOnPage(db, "v1", viewedAt.Add(-time.Minute)))

	last, err := events.LastPageview(db, "v1")
	require.NoError(t, err)
	require.NotNil(t, last.TimeOnPage)
	assert.Zero(t, *last.TimeOnPage)

	// Already filled in, so a later backfill leaves it alone.
	require.NoError(t, events.BackfillTimeOnPage(db, "v1", viewedAt.Add(time.Hour)))
	last, err = events.LastPageview(db, "v1")
	require.NoError(t, err)
	assert.Zero(t, *last.TimeOnPage)
}

func TestMarkExit(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	p, err := events.MarkExit(db, "empty", viewedAt)
	require.NoError(t, err)
	assert.Nil(t, p)

	require.NoError(t, events.InsertPageview(db, pageview("v1", "/", viewedAt)))
	require.NoError(t, events.InsertPageview(db, pageview("v1", "/pricing", viewedAt.Add(30*time.Second))))

	p, err = events.MarkExit(db, "v1", viewedAt.Add(50*time.Second))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "/pricing", p.URL)
	assert.True(t, p.IsExit)
	assert.Equal(t, int64(20), *p.TimeOnPage)

	list, err := events.ListByVisit(db, "v1")
	require.NoError(t, err)
	assert.False(t, list[0].IsExit)
	assert.True(t, list[1].IsExit)
}

func TestInsertEventKeepsMetadata(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	e := &events.Event{
		VisitID:       "v1",
		VisitorID:     "visitor-1",
		EventType:     events.EventTypeClick,
		EventCategory: events.CategoryInteraction,
		OccurredAt:    viewedAt,
		Metadata:      datatypes.JSONMap{"button": "signup", "position": float64(2)},
	}
	require.NoError(t, events.InsertEvent(db, e))
	require.NotZero(t, e.ID)

	list, err := events.ListEventsByVisit(db, "v1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "signup", list[0].Metadata["button"])
	assert.Equal(t, float64(2), list[0].Metadata["position"])
}
