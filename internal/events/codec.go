package events

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrMalformedDelivery marks a message body that cannot be decoded into any
// known event variant. Consumers reject such deliveries without requeue so a
// poison message cannot loop forever.
var ErrMalformedDelivery = errors.New("malformed delivery")

type envelope struct {
	EventType string `json:"event_type"`
}

// Encode serializes an event to its JSON wire form.
func Encode(e Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "encoding event")
	}
	return body, nil
}

// Decode parses a message body into the typed variant named by its
// event_type tag. Unknown tags, invalid JSON, and missing required fields
// all return ErrMalformedDelivery.
func Decode(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Wrapf(ErrMalformedDelivery, "invalid JSON: %v", err)
	}

	switch env.EventType {
	case KindUserRegistered:
		var e UserRegistered
		if err := json.Unmarshal(body, &e); err != nil {
			return nil, errors.Wrapf(ErrMalformedDelivery, "decoding %s: %v", env.EventType, err)
		}
		if e.UserID == 0 || e.Username == "" || e.Email == "" || e.Timestamp.IsZero() {
			return nil, errors.Wrapf(ErrMalformedDelivery, "%s: missing required fields", env.EventType)
		}
		return e, nil

	case KindUserLoggedIn:
		var e UserLoggedIn
		if err := json.Unmarshal(body, &e); err != nil {
			return nil, errors.Wrapf(ErrMalformedDelivery, "decoding %s: %v", env.EventType, err)
		}
		if e.UserID == 0 || e.Username == "" || e.Timestamp.IsZero() {
			return nil, errors.Wrapf(ErrMalformedDelivery, "%s: missing required fields", env.EventType)
		}
		return e, nil

	case KindNoteCreated:
		var e NoteCreated
		if err := json.Unmarshal(body, &e); err != nil {
			return nil, errors.Wrapf(ErrMalformedDelivery, "decoding %s: %v", env.EventType, err)
		}
		if e.NoteID == 0 || e.UserID == 0 || e.Title == "" || e.Timestamp.IsZero() {
			return nil, errors.Wrapf(ErrMalformedDelivery, "%s: missing required fields", env.EventType)
		}
		return e, nil

	case KindNoteUpdated:
		var e NoteUpdated
		if err := json.Unmarshal(body, &e); err != nil {
			return nil, errors.Wrapf(ErrMalformedDelivery, "decoding %s: %v", env.EventType, err)
		}
		if e.NoteID == 0 || e.UserID == 0 || e.Title == "" || e.Timestamp.IsZero() {
			return nil, errors.Wrapf(ErrMalformedDelivery, "%s: missing required fields", env.EventType)
		}
		return e, nil

	case KindNoteDeleted:
		var e NoteDeleted
		if err := json.Unmarshal(body, &e); err != nil {
			return nil, errors.Wrapf(ErrMalformedDelivery, "decoding %s: %v", env.EventType, err)
		}
		if e.NoteID == 0 || e.UserID == 0 || e.Timestamp.IsZero() {
			return nil, errors.Wrapf(ErrMalformedDelivery, "%s: missing required fields", env.EventType)
		}
		return e, nil

	default:
		return nil, errors.Wrapf(ErrMalformedDelivery, "unknown event type %q", env.EventType)
	}
}
