// Package notify keeps the operator's unread notifications in sync with the
// claims API live channel.
package notify

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"

	"github.com/agchavez/interlace/internal/models"
)

// EventType names a live channel message shape
type EventType string

// Live channel message shapes
const (
	EventNew      EventType = "new_notification"
	EventSnapshot EventType = "notifications"
	EventRead     EventType = "notification_read"
	EventAllRead  EventType = "notifications_read"
)

// ErrUnknownEvent is returned for envelopes with an unrecognized type
var ErrUnknownEvent = errors.New("unknown notification event")

// Envelope is one message received on the live channel
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a raw websocket frame
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, errors.Wrap(err, "failed to decode notification envelope")
	}
	if env.Type == "" {
		return Envelope{}, errors.New("notification envelope without type")
	}
	return env, nil
}

// Notification decodes the data of a new_notification envelope
func (e Envelope) Notification() (models.Notification, error) {
	var n models.Notification
	if err := json.Unmarshal(e.Data, &n); err != nil {
		return n, errors.Wrap(err, "failed to decode notification")
	}
	return n, nil
}

// Snapshot decodes the data of a notifications envelope
func (e Envelope) Snapshot() ([]models.Notification, error) {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil, nil
	}
	var list []models.Notification
	if err := json.Unmarshal(e.Data, &list); err != nil {
		return nil, errors.Wrap(err, "failed to decode notification snapshot")
	}
	return list, nil
}

// ReadID extracts the notification ID from a notification_read envelope.
// The data is either the notification, an {"id": n} object or a bare ID.
func (e Envelope) ReadID() (int, error) {
	var obj struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(e.Data, &obj); err == nil && len(obj.ID) > 0 {
		return parseID(obj.ID)
	}
	return parseID(e.Data)
}

func parseID(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n, nil
		}
	}
	return 0, errors.Errorf("invalid notification id %s", string(raw))
}
