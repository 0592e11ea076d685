package events

import (
	"encoding/json"
	"strings"
	"time"
)

const SubjectPrefix = "events."

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the notification type code (e.g. "NEW_APPLICATION").
	EventType() string
	Payload() map[string]interface{}
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// Subject maps an event type to its bus subject.
func Subject(eventType string) string {
	return SubjectPrefix + eventType
}

// TypeFromSubject strips the stream prefix from a bus subject.
func TypeFromSubject(subject string) string {
	return strings.TrimPrefix(subject, SubjectPrefix)
}

// envelope is the wire format on the bus.
type envelope struct {
	Type       string                 `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data"`
}

func Marshal(e Event) ([]byte, error) {
	return json.Marshal(envelope{
		Type:       e.EventType(),
		OccurredAt: e.Timestamp(),
		Data:       e.Payload(),
	})
}

// Unmarshal decodes an envelope. Missing type or timestamp fall back to the
// subject and now, so plain JSON payloads from older producers still parse.
func Unmarshal(subject string, raw []byte) (BaseEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return BaseEvent{}, err
	}
	if env.Data == nil && env.Type == "" {
		// Not an envelope: the whole document is the payload.
		if err := json.Unmarshal(raw, &env.Data); err != nil {
			return BaseEvent{}, err
		}
	}
	if env.Type == "" {
		env.Type = TypeFromSubject(subject)
	}
	if env.OccurredAt.IsZero() {
		env.OccurredAt = time.Now()
	}
	return BaseEvent{Type: env.Type, Data: env.Data, OccurredAt: env.OccurredAt}, nil
}
