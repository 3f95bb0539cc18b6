package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"example.com/notehub/internal/events"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// One named in-memory database per test so parallel packages and
	// repeated opens never share state.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&UserEvent{}, &NoteEvent{}, &UserStatistics{}))
	return db
}

func loadStats(t *testing.T, db *gorm.DB, userID uint) UserStatistics {
	t.Helper()
	var stats UserStatistics
	require.NoError(t, db.Where("user_id = ?", userID).First(&stats).Error)
	return stats
}

func TestApplyNoteCreatedThenDeleted(t *testing.T) {
	db := newTestDB(t)
	p := NewProcessor(db)
	ctx := context.Background()

	t1 := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	require.NoError(t, p.Apply(ctx, events.NewNoteCreated(1, 7, "x", t1)))
	require.NoError(t, p.Apply(ctx, events.NewNoteDeleted(1, 7, t2)))

	stats := loadStats(t, db, 7)
	require.Equal(t, 0, stats.TotalNotes)
	require.Equal(t, 1, stats.TotalNotesCreated)
	require.Equal(t, 1, stats.TotalNotesDeleted)
	require.NotNil(t, stats.LastActivity)
	require.True(t, stats.LastActivity.Equal(t2))
}

func TestApplyTwoLogins(t *testing.T) {
	db := newTestDB(t)
	p := NewProcessor(db)
	ctx := context.Background()

	t1 := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	t2 := t1.Add(2 * time.Hour)

	require.NoError(t, p.Apply(ctx, events.NewUserLoggedIn(7, "alice", t1)))
	require.NoError(t, p.Apply(ctx, events.NewUserLoggedIn(7, "alice", t2)))

	stats := loadStats(t, db, 7)
	require.Equal(t, 2, stats.TotalLogins)
	require.NotNil(t, stats.LastLogin)
	require.True(t, stats.LastLogin.Equal(t2))
	require.True(t, stats.LastActivity.Equal(t2))
}

func TestApplyRegisteredSetsRegisteredAt(t *testing.T) {
	db := newTestDB(t)
	p := NewProcessor(db)

	ts := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, p.Apply(context.Background(),
		events.NewUserRegistered(3, "bob", "bob@example.com", ts)))

	stats := loadStats(t, db, 3)
	require.NotNil(t, stats.RegisteredAt)
	require.True(t, stats.RegisteredAt.Equal(ts))
	require.True(t, stats.LastActivity.Equal(ts))
	require.Zero(t, stats.TotalLogins)
	require.Zero(t, stats.TotalNotes)
}

// Redelivering the same event must leave the aggregate unchanged.
func TestApplyIsIdempotentUnderRedelivery(t *testing.T) {
	db := newTestDB(t)
	p := NewProcessor(db)
	ctx := context.Background()

	ev := events.NewNoteCreated(1, 7, "x", time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	require.NoError(t, p.Apply(ctx, ev))

	err := p.Apply(ctx, ev)
	require.True(t, errors.Is(err, ErrDuplicateEvent))

	stats := loadStats(t, db, 7)
	require.Equal(t, 1, stats.TotalNotes)
	require.Equal(t, 1, stats.TotalNotesCreated)

	var rows int64
	require.NoError(t, db.Model(&NoteEvent{}).Count(&rows).Error)
	require.EqualValues(t, 1, rows)
}

// HandleEvent treats a duplicate as a recognized no-op so the dispatcher
// acknowledges the redelivery instead of dropping it as a failure.
func TestHandleEventSwallowsDuplicates(t *testing.T) {
	db := newTestDB(t)
	p := NewProcessor(db)
	ctx := context.Background()

	ev := events.NewUserLoggedIn(7, "alice", time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC))
	require.NoError(t, p.HandleEvent(ctx, ev))
	require.NoError(t, p.HandleEvent(ctx, ev))

	stats := loadStats(t, db, 7)
	require.Equal(t, 1, stats.TotalLogins)
}

// total_notes == total_notes_created - total_notes_deleted across a mixed,
// duplicate-free stream.
func TestNoteCountInvariant(t *testing.T) {
	db := newTestDB(t)
	p := NewProcessor(db)
	ctx := context.Background()

	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	stream := []events.Event{
		events.NewNoteCreated(1, 7, "a", base),
		events.NewNoteCreated(2, 7, "b", base.Add(1*time.Minute)),
		events.NewNoteUpdated(1, 7, "a2", base.Add(2*time.Minute)),
		events.NewNoteDeleted(2, 7, base.Add(3*time.Minute)),
		events.NewNoteCreated(3, 7, "c", base.Add(4*time.Minute)),
	}
	for _, ev := range stream {
		require.NoError(t, p.Apply(ctx, ev))
	}

	stats := loadStats(t, db, 7)
	require.Equal(t, stats.TotalNotesCreated-stats.TotalNotesDeleted, stats.TotalNotes)
	require.Equal(t, 2, stats.TotalNotes)
	require.Equal(t, 1, stats.TotalNotesUpdated)
}

// The users-queue and notes-queue consumers write the same aggregate row.
// Each kind's upsert must touch only its own columns through relative
// increments, never write back a full row, so one kind's apply cannot
// overwrite what another kind wrote.
func TestAdjustmentsTouchOnlyTheirOwnColumns(t *testing.T) {
	db := newTestDB(t)
	p := NewProcessor(db)
	ctx := context.Background()

	t1 := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	t3 := t2.Add(time.Minute)

	require.NoError(t, p.Apply(ctx, events.NewUserRegistered(7, "alice", "alice@example.com", t1)))
	require.NoError(t, p.Apply(ctx, events.NewNoteCreated(1, 7, "x", t2)))
	require.NoError(t, p.Apply(ctx, events.NewUserLoggedIn(7, "alice", t3)))

	stats := loadStats(t, db, 7)
	require.Equal(t, 1, stats.TotalNotes)
	require.Equal(t, 1, stats.TotalNotesCreated)
	require.Equal(t, 1, stats.TotalLogins)
	require.NotNil(t, stats.RegisteredAt)
	require.True(t, stats.RegisteredAt.Equal(t1))
	require.NotNil(t, stats.LastLogin)
	require.True(t, stats.LastLogin.Equal(t3))
	require.True(t, stats.LastActivity.Equal(t3))
}

// The first event for a user may arrive on either queue; the upsert must
// create the row with the adjustment already applied, not a zero row.
func TestFirstEventInsertsAdjustedRow(t *testing.T) {
	db := newTestDB(t)
	p := NewProcessor(db)

	ts := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, p.Apply(context.Background(), events.NewNoteCreated(1, 9, "x", ts)))

	stats := loadStats(t, db, 9)
	require.Equal(t, 1, stats.TotalNotes)
	require.Equal(t, 1, stats.TotalNotesCreated)
	require.Zero(t, stats.TotalLogins)
	require.Nil(t, stats.RegisteredAt)
}

func TestApplyRecordsRawEventLog(t *testing.T) {
	db := newTestDB(t)
	p := NewProcessor(db)
	ctx := context.Background()

	ts := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, p.Apply(ctx, events.NewUserRegistered(7, "alice", "alice@example.com", ts)))
	require.NoError(t, p.Apply(ctx, events.NewNoteCreated(1, 7, "x", ts.Add(time.Minute))))

	var userRow UserEvent
	require.NoError(t, db.First(&userRow).Error)
	require.Equal(t, events.KindUserRegistered, userRow.EventType)
	require.Equal(t, "alice", userRow.Username)
	require.Equal(t, "alice@example.com", userRow.Email)

	var noteRow NoteEvent
	require.NoError(t, db.First(&noteRow).Error)
	require.Equal(t, events.KindNoteCreated, noteRow.EventType)
	require.EqualValues(t, 1, noteRow.NoteID)
	require.Equal(t, "x", noteRow.Title)
}

// Distinct events for the same note are not duplicates of each other.
func TestDedupKeyDistinguishesKindsAndTimestamps(t *testing.T) {
	db := newTestDB(t)
	p := NewProcessor(db)
	ctx := context.Background()

	ts := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, p.Apply(ctx, events.NewNoteCreated(1, 7, "x", ts)))
	require.NoError(t, p.Apply(ctx, events.NewNoteUpdated(1, 7, "x2", ts)))
	require.NoError(t, p.Apply(ctx, events.NewNoteUpdated(1, 7, "x3", ts.Add(time.Second))))

	stats := loadStats(t, db, 7)
	require.Equal(t, 1, stats.TotalNotes)
	require.Equal(t, 2, stats.TotalNotesUpdated)
}
