package analytics

import (
	"time"
)

// UserEvent is one accepted user-domain event, recorded verbatim before the
// aggregate is touched. Rows are append-only and never updated or deleted.
// The composite unique index is the event's natural identity and is what
// makes redelivered events no-ops.
type UserEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventType string    `gorm:"size:50;not null;index;uniqueIndex:uniq_user_event_identity" json:"event_type"`
	UserID    uint      `gorm:"not null;index;uniqueIndex:uniq_user_event_identity" json:"user_id"`
	Username  string    `gorm:"size:50;not null" json:"username"`
	Email     string    `gorm:"size:100" json:"email,omitempty"`
	Timestamp time.Time `gorm:"not null;index;uniqueIndex:uniq_user_event_identity" json:"timestamp"`
}

// NoteEvent is one accepted note-domain event, append-only like UserEvent.
type NoteEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventType string    `gorm:"size:50;not null;index;uniqueIndex:uniq_note_event_identity" json:"event_type"`
	NoteID    uint      `gorm:"not null;index;uniqueIndex:uniq_note_event_identity" json:"note_id"`
	UserID    uint      `gorm:"not null;index;uniqueIndex:uniq_note_event_identity" json:"user_id"`
	Title     string    `gorm:"size:100" json:"title,omitempty"`
	Timestamp time.Time `gorm:"not null;index;uniqueIndex:uniq_note_event_identity" json:"timestamp"`
}

// UserStatistics is the per-user aggregate derived from the event stream.
// It is created lazily on the first event for a user and owned exclusively
// by the Processor; nothing else writes to it. With duplicate-free
// processing, TotalNotes == TotalNotesCreated - TotalNotesDeleted.
type UserStatistics struct {
	UserID            uint       `gorm:"primaryKey" json:"user_id"`
	TotalNotes        int        `gorm:"not null;default:0" json:"total_notes"`
	TotalNotesCreated int        `gorm:"not null;default:0" json:"total_notes_created"`
	TotalNotesUpdated int        `gorm:"not null;default:0" json:"total_notes_updated"`
	TotalNotesDeleted int        `gorm:"not null;default:0" json:"total_notes_deleted"`
	TotalLogins       int        `gorm:"not null;default:0" json:"total_logins"`
	LastActivity      *time.Time `json:"last_activity"`
	LastLogin         *time.Time `json:"last_login"`
	RegisteredAt      *time.Time `json:"registered_at"`
	UpdatedAt         time.Time  `json:"-"`
}

// SystemStatistics is the public, cross-user rollup.
type SystemStatistics struct {
	TotalUsers        int64 `json:"total_users"`
	TotalNotesCreated int64 `json:"total_notes_created"`
	TotalNotesUpdated int64 `json:"total_notes_updated"`
	TotalNotesDeleted int64 `json:"total_notes_deleted"`
	TotalLogins       int64 `json:"total_logins"`
	ActiveUsersToday  int64 `json:"active_users_today"`
}
