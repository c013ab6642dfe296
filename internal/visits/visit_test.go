package visits_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackmaster/internal/testsupport"
	"trackmaster/internal/visits"
)

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newVisit(id string) *visits.Visit {
	return &visits.Visit{
		ID:             id,
		VisitorID:      "visitor-" + id,
		StartedAt:      start,
		LastActivityAt: start,
		IsActive:       true,
		EntryPage:      "https://example.com/",
		LastPage:       "https://example.com/",
	}
}

func TestApplyUTM(t *testing.T) {
	v := &visits.Visit{}
	v.ApplyUTM("https://example.com/?utm_source=news&utm_medium=email&utm_campaign=spring&utm_term=shoes&utm_content=hero")

	assert.Equal(t, "news", v.UTMSource)
	assert.Equal(t, "email", v.UTMMedium)
	assert.Equal(t, "spring", v.UTMCampaign)
	assert.Equal(t, "shoes", v.UTMTerm)
	assert.Equal(t, "hero", v.UTMContent)

	plain := &visits.Visit{}
	plain.ApplyUTM("::not a url")
	assert.Empty(t, plain.UTMSource)
}

func TestDurationSeconds(t *testing.T) {
	assert.Equal(t, int64(90), visits.DurationSeconds(start, start.Add(90*time.Second+500*time.Millisecond)))
	assert.Zero(t, visits.DurationSeconds(start, start.Add(-time.Minute)))
}

func TestTouchOnlyMovesForward(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	v := newVisit("touch")
	require.NoError(t, visits.Create(db, v))

	require.NoError(t, visits.Touch(db, v.ID, start.Add(5*time.Minute), "https://example.com/a"))
	require.NoError(t, visits.Touch(db, v.ID, start.Add(2*time.Minute), "https://example.com/b"))
	require.NoError(t, visits.Touch(db, v.ID, start.Add(6*time.Minute), ""))

	got, err := visits.FindByID(db, v.ID)
	require.NoError(t, err)
	assert.True(t, got.LastActivityAt.Equal(start.Add(6*time.Minute)))
	assert.Equal(t, "https://example.com/b", got.LastPage)
}

func TestCloseIsConditional(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	v := newVisit("close")
	require.NoError(t, visits.Create(db, v))

	closed, err := visits.Close(db, v, visits.Closure{EndedAt: start.Add(-time.Hour), ExitPage: "https://example.com/bye"})
	require.NoError(t, err)
	require.True(t, closed)

	// An end before the start is clamped to the start.
	require.NotNil(t, v.Duration)
	assert.Zero(t, *v.Duration)
	assert.True(t, v.EndedAt.Equal(start))

	closed, err = visits.Close(db, newVisit("close"), visits.Closure{EndedAt: start.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, closed)

	got, err := visits.FindByID(db, v.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.ExitPage)
	assert.Equal(t, "https://example.com/bye", *got.ExitPage)
	assert.Zero(t, *got.Duration)
}

func TestListIdleAndActive(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	idle := newVisit("idle")
	busy := newVisit("busy")
	busy.LastActivityAt = start.Add(time.Hour)
	require.NoError(t, visits.Create(db, idle))
	require.NoError(t, visits.Create(db, busy))

	list, err := visits.ListIdle(db, start.Add(30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "idle", list[0].ID)

	active, err := visits.ListActive(db, nil, 10)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "busy", active[0].ID)

	_, err = visits.FindActive(db, "visitor-nobody")
	assert.Error(t, err)
}
