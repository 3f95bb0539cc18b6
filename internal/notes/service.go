package notes

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/notehub/internal/events"
	"example.com/notehub/internal/messaging"
)

// Note belongs to exactly one user; every query is scoped by user_id so a
// foreign note is indistinguishable from a missing one.
type Note struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"size:100;not null" json:"title"`
	Content   string    `gorm:"type:text" json:"content"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var ErrNotFound = errors.New("note not found")

// Service owns note CRUD and publishes note events after its own commits.
// Publish failures are logged and swallowed: the mutation has already
// committed and must not fail because telemetry could not be emitted.
type Service struct {
	db        *gorm.DB
	publisher messaging.Publisher
}

func NewService(db *gorm.DB, publisher messaging.Publisher) *Service {
	return &Service{db: db, publisher: publisher}
}

// UpdateParams carries optional note changes; nil fields are untouched.
type UpdateParams struct {
	Title   *string
	Content *string
}

// Create inserts a note and publishes note.created.
func (s *Service) Create(ctx context.Context, userID uint, title, content string) (*Note, error) {
	note := Note{Title: title, Content: content, UserID: userID}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		return nil, errors.Wrap(err, "creating note")
	}

	s.publish(ctx, events.NewNoteCreated(note.ID, userID, note.Title, time.Now().UTC()))
	return &note, nil
}

// List returns the user's notes with offset pagination.
func (s *Service) List(ctx context.Context, userID uint, skip, limit int) ([]Note, error) {
	var list []Note
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Offset(skip).
		Limit(limit).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, errors.Wrap(err, "listing notes")
	}
	return list, nil
}

// Get returns one of the user's notes.
func (s *Service) Get(ctx context.Context, userID, noteID uint) (*Note, error) {
	var note Note
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", noteID, userID).
		First(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading note")
	}
	return &note, nil
}

// Update applies the provided changes and publishes note.updated.
func (s *Service) Update(ctx context.Context, userID, noteID uint, params UpdateParams) (*Note, error) {
	note, err := s.Get(ctx, userID, noteID)
	if err != nil {
		return nil, err
	}

	if params.Title != nil {
		note.Title = *params.Title
	}
	if params.Content != nil {
		note.Content = *params.Content
	}

	if err := s.db.WithContext(ctx).Save(note).Error; err != nil {
		return nil, errors.Wrap(err, "updating note")
	}

	s.publish(ctx, events.NewNoteUpdated(note.ID, userID, note.Title, time.Now().UTC()))
	return note, nil
}

// Delete removes the note and publishes note.deleted.
func (s *Service) Delete(ctx context.Context, userID, noteID uint) error {
	note, err := s.Get(ctx, userID, noteID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(note).Error; err != nil {
		return errors.Wrap(err, "deleting note")
	}

	s.publish(ctx, events.NewNoteDeleted(note.ID, userID, time.Now().UTC()))
	return nil
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if err := s.publisher.Publish(ctx, events.NotesExchange, ev); err != nil {
		log.Error().
			Err(err).
			Str("event_type", ev.Kind()).
			Uint("user_id", ev.Subject()).
			Msg("Failed to publish note event")
	}
}
