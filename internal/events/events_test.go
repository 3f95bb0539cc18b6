package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 10, 12, 30, 0, 0, time.UTC)

	cases := []Event{
		NewUserRegistered(7, "alice", "alice@example.com", ts),
		NewUserLoggedIn(7, "alice", ts),
		NewNoteCreated(1, 7, "shopping list", ts),
		NewNoteUpdated(1, 7, "shopping list v2", ts),
		NewNoteDeleted(1, 7, ts),
	}

	for _, ev := range cases {
		body, err := Encode(ev)
		require.NoError(t, err)

		decoded, err := Decode(body)
		require.NoError(t, err)
		require.Equal(t, ev, decoded)
		require.Equal(t, ev.Kind(), decoded.Kind())
		require.Equal(t, uint(7), decoded.Subject())
		require.True(t, decoded.OccurredAt().Equal(ts))
	}
}

func TestEncodeSetsEventTypeTag(t *testing.T) {
	body, err := Encode(NewNoteCreated(1, 7, "x", time.Now()))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	require.Equal(t, "note.created", raw["event_type"])
}

func TestDecodeInvalidJSON(t *testing.T) {
	_, err := Decode([]byte("not json at all"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrMalformedDelivery))
}

func TestDecodeUnknownEventType(t *testing.T) {
	_, err := Decode([]byte(`{"event_type":"user.promoted","user_id":1}`))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrMalformedDelivery))
}

func TestDecodeMissingRequiredFields(t *testing.T) {
	cases := []string{
		`{"event_type":"user.registered","username":"alice","timestamp":"2024-03-10T12:30:00Z"}`,
		`{"event_type":"user.logged_in","user_id":7}`,
		`{"event_type":"note.created","note_id":1,"user_id":7,"timestamp":"2024-03-10T12:30:00Z"}`,
		`{"event_type":"note.deleted","user_id":7,"timestamp":"2024-03-10T12:30:00Z"}`,
	}

	for _, body := range cases {
		_, err := Decode([]byte(body))
		require.Error(t, err, body)
		require.True(t, errors.Is(err, ErrMalformedDelivery), body)
	}
}

func TestDecodeEmptyBody(t *testing.T) {
	_, err := Decode(nil)
	require.True(t, errors.Is(err, ErrMalformedDelivery))
}
