package realtime

import (
	"encoding/json"

	"chatserver/internal/clog"
)

type RecipientMode uint8

const (
	// ToActiveParticipants delivers to every active participant of the
	// conversation except the actor.
	ToActiveParticipants RecipientMode = iota
	// ToAllParticipants delivers to every membership row, active or not.
	// Used for deletion notices.
	ToAllParticipants
	// ToUser delivers point-to-point to a single user's connections.
	ToUser
	// ToUserSet delivers to an explicit, pre-resolved id set. Used when the
	// membership rows backing the other modes may be gone by publish time.
	ToUserSet
)

// Recipients selects who a published event goes to. ExcludeConn, when set,
// suppresses the actor's originating connection without hiding the event from
// their other devices.
type Recipients struct {
	Mode           RecipientMode `json:"mode"`
	ConversationID string        `json:"conversation_id,omitempty"`
	UserID         uint64        `json:"user_id,omitempty"`
	UserIDs        []uint64      `json:"user_ids,omitempty"`
	ExcludeConn    Connection    `json:"-"`
}

// ParticipantSource is how the broadcaster consults conversation state.
// Satisfied by the conversation repository.
type ParticipantSource interface {
	ParticipantIDs(conversationID string, activeOnly bool) ([]uint64, error)
	ActiveConversationIDs(userID uint64) ([]string, error)
}

// Publisher is the slice of the broadcaster the services depend on.
type Publisher interface {
	Publish(ev Event, to Recipients)
	PublishToUserConversations(ev Event)
}

// Relay forwards serialized frames to peer instances. Implemented by the zmq
// bridge; nil when running standalone.
type Relay interface {
	Forward(frame []byte)
}

// Broadcaster resolves recipient sets against conversation state and pushes
// serialized events through the registry. Delivery is best-effort and
// at-most-once per connection: the durable write is the source of truth and a
// disconnected client resyncs from history, so push failures only evict the
// dead connection and never fail the originating operation.
type Broadcaster struct {
	registry     *Registry
	participants ParticipantSource
	logger       clog.Logger
	relay        Relay
}

func NewBroadcaster(registry *Registry, participants ParticipantSource, logger clog.Logger) *Broadcaster {
	return &Broadcaster{
		registry:     registry,
		participants: participants,
		logger:       logger,
	}
}

func (b *Broadcaster) SetRelay(relay Relay) {
	b.relay = relay
}

func (b *Broadcaster) Logf(format string, v ...any) {
	b.logger.Logf(format, v...)
}

type relayFrame struct {
	To    Recipients      `json:"to"`
	Event json.RawMessage `json:"event"`
}

func (b *Broadcaster) Publish(ev Event, to Recipients) {
	payload, err := ev.Encode()
	if err != nil {
		b.Logf("Dropping unencodable event {%v}", err)
		return
	}

	b.deliver(ev, to, payload)

	if b.relay != nil {
		frame, err := json.Marshal(relayFrame{To: to, Event: payload})
		if err == nil {
			b.relay.Forward(frame)
		}
	}
}

// PublishToUserConversations fans a presence transition out to every
// conversation the actor currently participates in.
func (b *Broadcaster) PublishToUserConversations(ev Event) {
	conversationIDs, err := b.participants.ActiveConversationIDs(ev.ActorID)
	if err != nil {
		b.Logf("Could not resolve conversations for user %d {%v}", ev.ActorID, err)
		return
	}
	for _, conversationID := range conversationIDs {
		ev.ConversationID = conversationID
		b.Publish(ev, Recipients{Mode: ToActiveParticipants, ConversationID: conversationID})
	}
}

// DeliverLocal pushes an already-relayed event to local connections only.
// Called by the bridge for frames arriving from peers; never re-relays.
func (b *Broadcaster) DeliverLocal(ev Event, to Recipients) {
	payload, err := ev.Encode()
	if err != nil {
		return
	}
	b.deliver(ev, to, payload)
}

func (b *Broadcaster) recipientIDs(ev Event, to Recipients) ([]uint64, error) {
	switch to.Mode {
	case ToActiveParticipants:
		ids, err := b.participants.ParticipantIDs(to.ConversationID, true)
		if err != nil {
			return nil, err
		}
		filtered := ids[:0]
		for _, id := range ids {
			if id != ev.ActorID {
				filtered = append(filtered, id)
			}
		}
		return filtered, nil
	case ToAllParticipants:
		return b.participants.ParticipantIDs(to.ConversationID, false)
	case ToUserSet:
		return to.UserIDs, nil
	default:
		return []uint64{to.UserID}, nil
	}
}

func (b *Broadcaster) deliver(ev Event, to Recipients, payload []byte) {
	userIDs, err := b.recipientIDs(ev, to)
	if err != nil {
		b.Logf("Could not resolve recipients for %s {%v}", ev.Type, err)
		return
	}

	for _, userID := range userIDs {
		for _, conn := range b.registry.ConnectionsFor(userID) {
			if conn == to.ExcludeConn {
				continue
			}
			if err := conn.Send(payload); err != nil {
				// A dead connection only triggers cleanup; the durable
				// write already succeeded.
				b.Logf("Evicting dead connection for user %d {%v}", userID, err)
				b.registry.Unregister(conn)
				conn.Close()
			}
		}
	}
}
