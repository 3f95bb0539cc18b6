package analytics

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/notehub/internal/events"
)

// ErrDuplicateEvent marks a redelivered event that was already applied. It
// is a recognized no-op, not a failure: the dispatcher acknowledges the
// delivery as if it had been processed.
var ErrDuplicateEvent = errors.New("duplicate event")

// Processor applies domain events to the per-user statistics aggregate. The
// raw event insert and the aggregate adjustment happen in one transaction,
// and the raw event's natural identity deduplicates redeliveries, so
// applying the same event twice leaves the aggregate unchanged.
type Processor struct {
	db *gorm.DB
}

func NewProcessor(db *gorm.DB) *Processor {
	return &Processor{db: db}
}

// HandleEvent is the consumer handler. Duplicates are logged and swallowed
// so the delivery is acknowledged; every other error propagates and the
// delivery is rejected without requeue.
func (p *Processor) HandleEvent(ctx context.Context, event events.Event) error {
	err := p.Apply(ctx, event)
	if errors.Is(err, ErrDuplicateEvent) {
		log.Info().
			Str("event_type", event.Kind()).
			Uint("user_id", event.Subject()).
			Msg("Duplicate event ignored")
		return nil
	}
	if err != nil {
		return err
	}

	log.Info().
		Str("event_type", event.Kind()).
		Uint("user_id", event.Subject()).
		Msg("Processed event")
	return nil
}

// Apply records the event and adjusts the subject's aggregate in one
// transaction. Returns ErrDuplicateEvent when the event was applied before.
func (p *Processor) Apply(ctx context.Context, event events.Event) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch e := event.(type) {
		case events.UserRegistered:
			row := UserEvent{
				EventType: e.EventType,
				UserID:    e.UserID,
				Username:  e.Username,
				Email:     e.Email,
				Timestamp: e.Timestamp,
			}
			return p.applyUserEvent(tx, row, statsAdjustment{setRegisteredAt: true})

		case events.UserLoggedIn:
			row := UserEvent{
				EventType: e.EventType,
				UserID:    e.UserID,
				Username:  e.Username,
				Timestamp: e.Timestamp,
			}
			return p.applyUserEvent(tx, row, statsAdjustment{logins: 1, setLastLogin: true})

		case events.NoteCreated:
			row := NoteEvent{
				EventType: e.EventType,
				NoteID:    e.NoteID,
				UserID:    e.UserID,
				Title:     e.Title,
				Timestamp: e.Timestamp,
			}
			return p.applyNoteEvent(tx, row, statsAdjustment{totalNotes: 1, notesCreated: 1})

		case events.NoteUpdated:
			row := NoteEvent{
				EventType: e.EventType,
				NoteID:    e.NoteID,
				UserID:    e.UserID,
				Title:     e.Title,
				Timestamp: e.Timestamp,
			}
			return p.applyNoteEvent(tx, row, statsAdjustment{notesUpdated: 1})

		case events.NoteDeleted:
			row := NoteEvent{
				EventType: e.EventType,
				NoteID:    e.NoteID,
				UserID:    e.UserID,
				Timestamp: e.Timestamp,
			}
			return p.applyNoteEvent(tx, row, statsAdjustment{totalNotes: -1, notesDeleted: 1})

		default:
			return errors.Errorf("no aggregation rule for event type %q", event.Kind())
		}
	})
}

// statsAdjustment is the aggregate delta for one event kind. Counter fields
// are relative increments; each kind touches only its own columns.
type statsAdjustment struct {
	totalNotes   int
	notesCreated int
	notesUpdated int
	notesDeleted int
	logins       int

	setLastLogin    bool
	setRegisteredAt bool
}

func (p *Processor) applyUserEvent(tx *gorm.DB, row UserEvent, adj statsAdjustment) error {
	var count int64
	if err := tx.Model(&UserEvent{}).
		Where("event_type = ? AND user_id = ? AND timestamp = ?", row.EventType, row.UserID, row.Timestamp).
		Count(&count).Error; err != nil {
		return errors.Wrap(err, "checking user event identity")
	}
	if count > 0 {
		return ErrDuplicateEvent
	}

	if err := tx.Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEvent
		}
		return errors.Wrap(err, "recording user event")
	}

	return p.adjustStatistics(tx, row.UserID, row.Timestamp, adj)
}

func (p *Processor) applyNoteEvent(tx *gorm.DB, row NoteEvent, adj statsAdjustment) error {
	var count int64
	if err := tx.Model(&NoteEvent{}).
		Where("event_type = ? AND note_id = ? AND user_id = ? AND timestamp = ?",
			row.EventType, row.NoteID, row.UserID, row.Timestamp).
		Count(&count).Error; err != nil {
		return errors.Wrap(err, "checking note event identity")
	}
	if count > 0 {
		return ErrDuplicateEvent
	}

	if err := tx.Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEvent
		}
		return errors.Wrap(err, "recording note event")
	}

	return p.adjustStatistics(tx, row.UserID, row.Timestamp, adj)
}

// adjustStatistics upserts the subject's aggregate row in a single
// statement and stamps last_activity with the event's timestamp. On the
// first event for a user the row is inserted with the adjustment already
// applied; afterwards the counter columns change through relative SQL
// expressions and the conflict clause, so the users-queue and notes-queue
// consumers can adjust the same row concurrently without one transaction
// overwriting the other's increment.
func (p *Processor) adjustStatistics(tx *gorm.DB, userID uint, ts time.Time, adj statsAdjustment) error {
	activity := ts
	row := UserStatistics{
		UserID:            userID,
		TotalNotes:        adj.totalNotes,
		TotalNotesCreated: adj.notesCreated,
		TotalNotesUpdated: adj.notesUpdated,
		TotalNotesDeleted: adj.notesDeleted,
		TotalLogins:       adj.logins,
		LastActivity:      &activity,
	}

	assignments := map[string]interface{}{
		"last_activity": ts,
		"updated_at":    time.Now().UTC(),
	}
	if adj.totalNotes != 0 {
		assignments["total_notes"] = gorm.Expr("total_notes + ?", adj.totalNotes)
	}
	if adj.notesCreated != 0 {
		assignments["total_notes_created"] = gorm.Expr("total_notes_created + ?", adj.notesCreated)
	}
	if adj.notesUpdated != 0 {
		assignments["total_notes_updated"] = gorm.Expr("total_notes_updated + ?", adj.notesUpdated)
	}
	if adj.notesDeleted != 0 {
		assignments["total_notes_deleted"] = gorm.Expr("total_notes_deleted + ?", adj.notesDeleted)
	}
	if adj.logins != 0 {
		assignments["total_logins"] = gorm.Expr("total_logins + ?", adj.logins)
	}
	if adj.setLastLogin {
		row.LastLogin = &activity
		assignments["last_login"] = ts
	}
	if adj.setRegisteredAt {
		row.RegisteredAt = &activity
		assignments["registered_at"] = ts
	}

	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&row).Error
	if err != nil {
		return errors.Wrap(err, "upserting statistics row")
	}
	return nil
}
