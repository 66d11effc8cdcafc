package realtime

import (
	"encoding/json"
	"fmt"
)

type EventType uint8

const (
	EventMessageSent EventType = iota
	EventMessageUpdated
	EventMessageDeleted
	EventMessageRead
	EventReactionAdded
	EventReactionRemoved
	EventConversationCreated
	EventConversationUpdated
	EventConversationDeleted
	EventParticipantAdded
	EventParticipantRemoved
	EventUserOnline
	EventUserOffline
	EventUserTyping
)

// Closed name table: adding an event means adding a row here, and unknown
// names fail decoding instead of passing through as free-form strings.
var eventNames = map[EventType]string{
	EventMessageSent:         "message.sent",
	EventMessageUpdated:      "message.updated",
	EventMessageDeleted:      "message.deleted",
	EventMessageRead:         "message.read",
	EventReactionAdded:       "reaction.added",
	EventReactionRemoved:     "reaction.removed",
	EventConversationCreated: "conversation.created",
	EventConversationUpdated: "conversation.updated",
	EventConversationDeleted: "conversation.deleted",
	EventParticipantAdded:    "participant.added",
	EventParticipantRemoved:  "participant.removed",
	EventUserOnline:          "user.online",
	EventUserOffline:         "user.offline",
	EventUserTyping:          "user.typing",
}

var eventTypes = func() map[string]EventType {
	m := make(map[string]EventType, len(eventNames))
	for t, name := range eventNames {
		m[name] = t
	}
	return m
}()

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return "unknown"
}

// Event is one fanout unit. Payload carries the type-specific fields
// (message body, reaction type, read timestamp and so on).
type Event struct {
	Type           EventType
	ConversationID string
	ActorID        uint64
	Payload        map[string]any
}

type envelope struct {
	Event          string         `json:"event"`
	ConversationID string         `json:"conversation_id,omitempty"`
	ActorID        uint64         `json:"actor_id,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
}

func (e Event) Encode() ([]byte, error) {
	name, ok := eventNames[e.Type]
	if !ok {
		return nil, fmt.Errorf("unknown event type %d", e.Type)
	}
	return json.Marshal(envelope{
		Event:          name,
		ConversationID: e.ConversationID,
		ActorID:        e.ActorID,
		Data:           e.Payload,
	})
}

func DecodeEvent(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, err
	}
	typ, ok := eventTypes[env.Event]
	if !ok {
		return Event{}, fmt.Errorf("unknown event name %q", env.Event)
	}
	return Event{
		Type:           typ,
		ConversationID: env.ConversationID,
		ActorID:        env.ActorID,
		Payload:        env.Data,
	}, nil
}
