package database_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackmaster/internal/database"
	"trackmaster/internal/testsupport"
	"trackmaster/internal/visits"
)

func TestMigrateIsIdempotent(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.Migrate(db))

	for _, table := range []string{"websites", "visitors", "visits", "pageviews", "events"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestOneActiveVisitPerVisitor(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	now := time.Now().UTC()

	first := &visits.Visit{ID: "visit-1", VisitorID: "visitor-1", StartedAt: now, LastActivityAt: now, IsActive: true}
	require.NoError(t, visits.Create(db, first))

	second := &visits.Visit{ID: "visit-2", VisitorID: "visitor-1", StartedAt: now, LastActivityAt: now, IsActive: true}
	err := visits.Create(db, second)
	require.Error(t, err, "a second active visit must be rejected")
	assert.Contains(t, err.Error(), "UNIQUE constraint failed")

	closed, err := visits.Close(db, first, visits.Closure{EndedAt: now.Add(time.Minute)})
	require.NoError(t, err)
	require.True(t, closed)

	require.NoError(t, visits.Create(db, second), "a new visit is allowed once the previous one is closed")

	other := &visits.Visit{ID: "visit-3", VisitorID: "visitor-2", StartedAt: now, LastActivityAt: now, IsActive: true}
	assert.NoError(t, visits.Create(db, other), "other visitors are unaffected")
}
