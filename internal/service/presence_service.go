package service

import (
	"fmt"
	"time"

	"chatserver/internal/clog"
	"chatserver/internal/presence"
	"chatserver/internal/realtime"
	"chatserver/internal/repository"
)

// PresenceService wraps the TTL tracker and fans state transitions out to the
// conversations the user participates in. Heartbeats that merely refresh an
// existing online entry do not re-broadcast.
type PresenceService interface {
	SetOnline(userID uint64) error
	SetOffline(userID uint64) error
	SetTyping(userID uint64, conversationID string, typing bool, origin realtime.Connection) error
	IsOnline(userID uint64) (bool, error)
	IsTyping(userID uint64, conversationID string) (bool, error)
	LastSeen(userID uint64) (*time.Time, error)
}

type localPresenceService struct {
	tracker   presence.Tracker
	store     *repository.Store
	publisher realtime.Publisher
	logger    clog.Logger
}

func NewPresenceService(tracker presence.Tracker, store *repository.Store, publisher realtime.Publisher, logger clog.Logger) PresenceService {
	return &localPresenceService{
		tracker:   tracker,
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

func (p *localPresenceService) Logf(format string, v ...any) {
	p.logger.Logf(format, v...)
}

func (p *localPresenceService) SetOnline(userID uint64) error {
	wasOnline, err := p.tracker.IsOnline(userID)
	if err != nil {
		return err
	}
	if err := p.tracker.SetOnline(userID); err != nil {
		return err
	}
	if wasOnline {
		return nil
	}

	p.Logf("User %d came online", userID)
	p.publisher.PublishToUserConversations(realtime.Event{
		Type:    realtime.EventUserOnline,
		ActorID: userID,
	})
	return nil
}

func (p *localPresenceService) SetOffline(userID uint64) error {
	wasOnline, err := p.tracker.IsOnline(userID)
	if err != nil {
		return err
	}
	if err := p.tracker.SetOffline(userID); err != nil {
		return err
	}
	if !wasOnline {
		return nil
	}

	lastSeen, _ := p.tracker.LastSeen(userID)
	payload := map[string]any{}
	if lastSeen != nil {
		payload["last_seen"] = lastSeen
	}

	p.Logf("User %d went offline", userID)
	p.publisher.PublishToUserConversations(realtime.Event{
		Type:    realtime.EventUserOffline,
		ActorID: userID,
		Payload: payload,
	})
	return nil
}

// SetTyping renews or clears the typing entry and notifies the conversation.
// The origin connection, when known, is excluded so the typing device does
// not echo its own signal while the user's other devices still see it.
func (p *localPresenceService) SetTyping(userID uint64, conversationID string, typing bool, origin realtime.Connection) error {
	part, err := p.store.Conversations.GetParticipant(conversationID, userID)
	if isRecordNotFound(err) || (err == nil && !part.IsActive) {
		return fmt.Errorf("%w: user %d is not an active participant", ErrUnauthorized, userID)
	}
	if err != nil {
		return err
	}

	wasTyping, err := p.tracker.IsTyping(userID, conversationID)
	if err != nil {
		return err
	}
	if err := p.tracker.SetTyping(userID, conversationID, typing); err != nil {
		return err
	}
	if !typing && !wasTyping {
		return nil
	}

	p.publisher.Publish(realtime.Event{
		Type:           realtime.EventUserTyping,
		ConversationID: conversationID,
		ActorID:        userID,
		Payload:        map[string]any{"typing": typing},
	}, realtime.Recipients{
		Mode:           realtime.ToActiveParticipants,
		ConversationID: conversationID,
		ExcludeConn:    origin,
	})
	return nil
}

func (p *localPresenceService) IsOnline(userID uint64) (bool, error) {
	return p.tracker.IsOnline(userID)
}

func (p *localPresenceService) IsTyping(userID uint64, conversationID string) (bool, error) {
	return p.tracker.IsTyping(userID, conversationID)
}

func (p *localPresenceService) LastSeen(userID uint64) (*time.Time, error) {
	return p.tracker.LastSeen(userID)
}
