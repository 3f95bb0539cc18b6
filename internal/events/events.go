package events

import (
	"time"
)

// Exchange names. Both are declared as durable fanout exchanges, so every
// bound queue receives every message and routing keys are unused.
const (
	UsersExchange = "users.events"
	NotesExchange = "notes.events"
)

// Queue names consumed by the analytics service.
const (
	AnalyticsUsersQueue = "analytics.users.queue"
	AnalyticsNotesQueue = "analytics.notes.queue"
)

// Event kind tags carried in the event_type field of every message.
const (
	KindUserRegistered = "user.registered"
	KindUserLoggedIn   = "user.logged_in"
	KindNoteCreated    = "note.created"
	KindNoteUpdated    = "note.updated"
	KindNoteDeleted    = "note.deleted"
)

// ContentType identifies the wire encoding of published events.
const ContentType = "application/json"

// Event is one immutable domain event. Events are append-only: once
// published they are never mutated or retracted.
type Event interface {
	// Kind returns the event_type tag.
	Kind() string
	// Subject returns the user the event is about.
	Subject() uint
	// OccurredAt returns the UTC instant of the originating mutation,
	// not of publication.
	OccurredAt() time.Time
}

// UserRegistered is published after a new user account is committed.
type UserRegistered struct {
	EventType string    `json:"event_type"`
	UserID    uint      `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Timestamp time.Time `json:"timestamp"`
}

// UserLoggedIn is published after a successful login.
type UserLoggedIn struct {
	EventType string    `json:"event_type"`
	UserID    uint      `json:"user_id"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// NoteCreated is published after a note insert is committed.
type NoteCreated struct {
	EventType string    `json:"event_type"`
	NoteID    uint      `json:"note_id"`
	UserID    uint      `json:"user_id"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
}

// NoteUpdated is published after a note update is committed.
type NoteUpdated struct {
	EventType string    `json:"event_type"`
	NoteID    uint      `json:"note_id"`
	UserID    uint      `json:"user_id"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
}

// NoteDeleted is published after a note delete is committed. It carries no
// title; the aggregate adjustment does not need one.
type NoteDeleted struct {
	EventType string    `json:"event_type"`
	NoteID    uint      `json:"note_id"`
	UserID    uint      `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewUserRegistered(userID uint, username, email string, ts time.Time) UserRegistered {
	return UserRegistered{
		EventType: KindUserRegistered,
		UserID:    userID,
		Username:  username,
		Email:     email,
		Timestamp: ts.UTC(),
	}
}

func NewUserLoggedIn(userID uint, username string, ts time.Time) UserLoggedIn {
	return UserLoggedIn{
		EventType: KindUserLoggedIn,
		UserID:    userID,
		Username:  username,
		Timestamp: ts.UTC(),
	}
}

func NewNoteCreated(noteID, userID uint, title string, ts time.Time) NoteCreated {
	return NoteCreated{
		EventType: KindNoteCreated,
		NoteID:    noteID,
		UserID:    userID,
		Title:     title,
		Timestamp: ts.UTC(),
	}
}

func NewNoteUpdated(noteID, userID uint, title string, ts time.Time) NoteUpdated {
	return NoteUpdated{
		EventType: KindNoteUpdated,
		NoteID:    noteID,
		UserID:    userID,
		Title:     title,
		Timestamp: ts.UTC(),
	}
}

func NewNoteDeleted(noteID, userID uint, ts time.Time) NoteDeleted {
	return NoteDeleted{
		EventType: KindNoteDeleted,
		NoteID:    noteID,
		UserID:    userID,
		Timestamp: ts.UTC(),
	}
}

func (e UserRegistered) Kind() string          { return KindUserRegistered }
func (e UserRegistered) Subject() uint         { return e.UserID }
func (e UserRegistered) OccurredAt() time.Time { return e.Timestamp }

func (e UserLoggedIn) Kind() string          { return KindUserLoggedIn }
func (e UserLoggedIn) Subject() uint         { return e.UserID }
func (e UserLoggedIn) OccurredAt() time.Time { return e.Timestamp }

func (e NoteCreated) Kind() string          { return KindNoteCreated }
func (e NoteCreated) Subject() uint         { return e.UserID }
func (e NoteCreated) OccurredAt() time.Time { return e.Timestamp }

func (e NoteUpdated) Kind() string          { return KindNoteUpdated }
func (e NoteUpdated) Subject() uint         { return e.UserID }
func (e NoteUpdated) OccurredAt() time.Time { return e.Timestamp }

func (e NoteDeleted) Kind() string          { return KindNoteDeleted }
func (e NoteDeleted) Subject() uint         { return e.UserID }
func (e NoteDeleted) OccurredAt() time.Time { return e.Timestamp }
