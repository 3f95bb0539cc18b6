package notes

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"example.com/notehub/internal/events"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, exchange string, ev events.Event) error {
	args := m.Called(ctx, exchange, ev)
	return args.Error(0)
}

func newTestService(t *testing.T) (*Service, *mockPublisher) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Note{}))

	pub := new(mockPublisher)
	return NewService(db, pub), pub
}

func TestCreatePublishesNoteCreated(t *testing.T) {
	svc, pub := newTestService(t)
	pub.On("Publish", mock.Anything, events.NotesExchange, mock.AnythingOfType("events.NoteCreated")).Return(nil).Once()

	note, err := svc.Create(context.Background(), 7, "shopping", "milk, eggs")
	require.NoError(t, err)
	require.NotZero(t, note.ID)
	require.EqualValues(t, 7, note.UserID)

	pub.AssertExpectations(t)

	published := pub.Calls[0].Arguments.Get(2).(events.NoteCreated)
	require.Equal(t, note.ID, published.NoteID)
	require.Equal(t, "shopping", published.Title)
}

func TestOwnershipScoping(t *testing.T) {
	svc, pub := newTestService(t)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	note, err := svc.Create(context.Background(), 7, "mine", "private")
	require.NoError(t, err)

	// Another user cannot see, update, or delete it.
	_, err = svc.Get(context.Background(), 8, note.ID)
	require.True(t, errors.Is(err, ErrNotFound))

	title := "stolen"
	_, err = svc.Update(context.Background(), 8, note.ID, UpdateParams{Title: &title})
	require.True(t, errors.Is(err, ErrNotFound))

	require.True(t, errors.Is(svc.Delete(context.Background(), 8, note.ID), ErrNotFound))

	list, err := svc.List(context.Background(), 8, 0, 100)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestUpdatePublishesNoteUpdated(t *testing.T) {
	svc, pub := newTestService(t)
	pub.On("Publish", mock.Anything, events.NotesExchange, mock.AnythingOfType("events.NoteCreated")).Return(nil).Once()
	pub.On("Publish", mock.Anything, events.NotesExchange, mock.AnythingOfType("events.NoteUpdated")).Return(nil).Once()

	note, err := svc.Create(context.Background(), 7, "draft", "wip")
	require.NoError(t, err)

	title := "final"
	updated, err := svc.Update(context.Background(), 7, note.ID, UpdateParams{Title: &title})
	require.NoError(t, err)
	require.Equal(t, "final", updated.Title)
	require.Equal(t, "wip", updated.Content)

	pub.AssertExpectations(t)
}

func TestDeletePublishesNoteDeleted(t *testing.T) {
	svc, pub := newTestService(t)
	pub.On("Publish", mock.Anything, events.NotesExchange, mock.AnythingOfType("events.NoteCreated")).Return(nil).Once()
	pub.On("Publish", mock.Anything, events.NotesExchange, mock.AnythingOfType("events.NoteDeleted")).Return(nil).Once()

	note, err := svc.Create(context.Background(), 7, "old", "gone soon")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), 7, note.ID))

	_, err = svc.Get(context.Background(), 7, note.ID)
	require.True(t, errors.Is(err, ErrNotFound))

	pub.AssertExpectations(t)
}

// A publish failure must not undo the committed mutation.
func TestCreateSucceedsWhenPublishFails(t *testing.T) {
	svc, pub := newTestService(t)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("broker unavailable"))

	note, err := svc.Create(context.Background(), 7, "kept", "despite broker outage")
	require.NoError(t, err)

	loaded, err := svc.Get(context.Background(), 7, note.ID)
	require.NoError(t, err)
	require.Equal(t, "kept", loaded.Title)
}

func TestListPagination(t *testing.T) {
	svc, pub := newTestService(t)
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	for i := 0; i < 5; i++ {
		_, err := svc.Create(context.Background(), 7, fmt.Sprintf("note %d", i), "body")
		require.NoError(t, err)
	}

	page, err := svc.List(context.Background(), 7, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "note 2", page[0].Title)
}
