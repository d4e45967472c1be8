package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"Tunehub/core/presence"
)

// Event names the frames exchanged with clients.
type Event string

const (
	// 客户端 -> 服务端
	EventUpdateActivity Event = "update_activity"
	EventSendMessage    Event = "send_message"

	// 服务端 -> 客户端
	EventUsersOnline     Event = "users_online"
	EventActivities      Event = "activities"
	EventActivityUpdated Event = "activity_updated"
	EventReceiveMessage  Event = "receive_message"
	EventMessageSent     Event = "message_sent"
	EventNewActivity     Event = "new_activity"
	EventError           Event = "error"
)

// Fixed texts carried by error events.
const (
	ErrTextMissingUserID  = "userId is required"
	ErrTextAuthRequired   = "authentication required"
	ErrTextInvalidToken   = "invalid token"
	ErrTextUserIDMismatch = "userId does not match token"
	ErrTextSendFailed     = "failed to send message"
	ErrTextInvalidMessage = "invalid message payload"
)

var (
	// ErrUnknownEvent is returned for frames whose type is not a client event.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrMalformed is returned when a known event carries an unusable payload.
	ErrMalformed = errors.New("malformed payload")
)

// Envelope is the JSON frame on the wire.
type Envelope struct {
	Type      Event           `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Inbound is the closed set of payloads a client may send.
type Inbound interface {
	event() Event
}

// UpdateActivity is the client's new activity label.
type UpdateActivity struct {
	Activity string `json:"activity"`
}

func (UpdateActivity) event() Event { return EventUpdateActivity }

// Label returns the activity, with an empty one meaning idle.
func (u UpdateActivity) Label() string {
	if strings.TrimSpace(u.Activity) == "" {
		return presence.DefaultActivity
	}
	return u.Activity
}

// SendMessage asks the relay to persist and deliver a direct message. Ids are
// internal user ids.
type SendMessage struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

func (SendMessage) event() Event { return EventSendMessage }

// Validate checks the required fields. The sender is only required when the
// relay trusts the client's claim of who is sending.
func (m SendMessage) Validate(requireSender bool) error {
	if requireSender && strings.TrimSpace(m.SenderID) == "" {
		return fmt.Errorf("%w: senderId is required", ErrMalformed)
	}
	if strings.TrimSpace(m.ReceiverID) == "" {
		return fmt.Errorf("%w: receiverId is required", ErrMalformed)
	}
	if m.Content == "" {
		return fmt.Errorf("%w: content is required", ErrMalformed)
	}
	return nil
}

// ActivityUpdated is broadcast when someone changes their activity.
type ActivityUpdated struct {
	UserID   string `json:"userId"`
	Activity string `json:"activity"`
}

// Decode parses a client frame into its typed payload. The event is returned
// even when the payload is malformed so callers can react per event.
func Decode(raw []byte) (Event, Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case EventUpdateActivity:
		var p UpdateActivity
		if err := unmarshalData(env.Data, &p); err != nil {
			return env.Type, nil, err
		}
		return env.Type, p, nil
	case EventSendMessage:
		var p SendMessage
		if err := unmarshalData(env.Data, &p); err != nil {
			return env.Type, nil, err
		}
		return env.Type, p, nil
	default:
		return env.Type, nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

// unmarshalData accepts a missing or null payload as the zero value.
func unmarshalData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Encode builds a server frame.
func Encode(event Event, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Type: event, Data: data, Timestamp: time.Now().UnixMilli()})
}
