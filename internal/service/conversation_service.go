package service

import (
	"fmt"
	"time"

	"chatserver/internal/clog"
	"chatserver/internal/entity"
	"chatserver/internal/realtime"
	"chatserver/internal/repository"
)

// ConversationService owns conversation and participant state. Every mutation
// runs in one store transaction and only publishes after commit.
type ConversationService interface {
	CreateOrReuseDirect(creatorID, peerID uint64, metadata map[string]any) (*entity.Conversation, error)
	CreateGroup(creatorID uint64, participantIDs []uint64, name string, metadata map[string]any) (*entity.Conversation, error)
	UpdateConversation(conversationID string, actorID uint64, name string, metadata map[string]any) (*entity.Conversation, error)
	AddParticipants(conversationID string, actorID uint64, userIDs []uint64) error
	RemoveParticipant(conversationID string, actorID, userID uint64) error
	DeleteOrLeave(conversationID string, userID uint64) error

	IsActiveParticipant(conversationID string, userID uint64) (bool, error)
	GetForUser(conversationID string, userID uint64) (*entity.Conversation, error)
	ListForUser(userID uint64, limit int) ([]*entity.Conversation, error)
	OtherParticipant(conversationID string, userID uint64) (*entity.ConversationParticipant, error)
}

type localConversationService struct {
	store     *repository.Store
	publisher realtime.Publisher
	logger    clog.Logger
}

func NewConversationService(store *repository.Store, publisher realtime.Publisher, logger clog.Logger) ConversationService {
	return &localConversationService{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

func (c *localConversationService) Logf(format string, v ...any) {
	c.logger.Logf(format, v...)
}

// CreateOrReuseDirect returns the one direct conversation between the two
// users, creating it if absent and reactivating the caller if they had left.
// Repeated calls return the same conversation id: direct membership rows are
// reactivated, never re-created, and the unique key on the user pair makes
// concurrent creations collapse to one conversation on any store.
func (c *localConversationService) CreateOrReuseDirect(creatorID, peerID uint64, metadata map[string]any) (*entity.Conversation, error) {
	if creatorID == peerID {
		return nil, fmt.Errorf("%w: a direct conversation needs two distinct users", ErrInvalid)
	}

	var conv *entity.Conversation
	var created, reactivated bool

	attempt := func() error {
		conv = nil
		created, reactivated = false, false

		return c.store.Transaction(func(tx *repository.Store) error {
			existing, err := tx.Conversations.FindDirectBetween(creatorID, peerID)
			if err != nil && !isRecordNotFound(err) {
				return err
			}

			if existing != nil {
				part, err := tx.Conversations.GetParticipant(existing.ID, creatorID)
				if err != nil {
					return err
				}
				if !part.IsActive {
					now := time.Now()
					if err := tx.Conversations.SetParticipantActive(existing.ID, creatorID, true, now); err != nil {
						return err
					}
					// Messages sent while absent have no visibility row for
					// the caller; the backfill makes them visible again.
					if _, err := tx.Messages.BackfillVisibility(existing.ID, creatorID, true, now); err != nil {
						return err
					}
					reactivated = true
				}
				conv = existing
				return nil
			}

			now := time.Now()
			pairKey := entity.PairKey(creatorID, peerID)
			conv = &entity.Conversation{
				ID:        entity.NewID(),
				Type:      entity.ConversationDirect,
				CreatorID: creatorID,
				DirectKey: &pairKey,
				Metadata:  metadata,
			}
			participants := []entity.ConversationParticipant{
				{ConversationID: conv.ID, UserID: creatorID, Role: entity.RoleAdmin, JoinedAt: now, IsActive: true},
				{ConversationID: conv.ID, UserID: peerID, Role: entity.RoleMember, JoinedAt: now, IsActive: true},
			}
			created = true
			return tx.Conversations.Create(conv, participants)
		})
	}

	err := attempt()
	if err != nil {
		// A racing call may have committed the pair first: its insert wins
		// the unique direct key and ours rolls back. If the pair now
		// resolves, the retry lands on the reuse path.
		if _, ferr := c.store.Conversations.FindDirectBetween(creatorID, peerID); ferr == nil {
			err = attempt()
		}
	}
	if err != nil {
		return nil, err
	}

	if created {
		c.Logf("Direct conversation %s created between %d and %d", conv.ID, creatorID, peerID)
		c.publisher.Publish(realtime.Event{
			Type:           realtime.EventConversationCreated,
			ConversationID: conv.ID,
			ActorID:        creatorID,
			Payload:        map[string]any{"conversation": conv},
		}, realtime.Recipients{Mode: realtime.ToActiveParticipants, ConversationID: conv.ID})
	} else if reactivated {
		c.Logf("User %d reactivated in direct conversation %s", creatorID, conv.ID)
	}

	return conv, nil
}

func (c *localConversationService) CreateGroup(creatorID uint64, participantIDs []uint64, name string, metadata map[string]any) (*entity.Conversation, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: a group conversation needs a name", ErrInvalid)
	}

	now := time.Now()
	conv := &entity.Conversation{
		ID:        entity.NewID(),
		Type:      entity.ConversationGroup,
		Name:      name,
		CreatorID: creatorID,
		Metadata:  metadata,
	}

	participants := []entity.ConversationParticipant{
		{ConversationID: conv.ID, UserID: creatorID, Role: entity.RoleAdmin, JoinedAt: now, IsActive: true},
	}
	for _, userID := range participantIDs {
		if userID == creatorID {
			continue
		}
		participants = append(participants, entity.ConversationParticipant{
			ConversationID: conv.ID,
			UserID:         userID,
			Role:           entity.RoleMember,
			JoinedAt:       now,
			IsActive:       true,
		})
	}

	if err := c.store.Conversations.Create(conv, participants); err != nil {
		return nil, err
	}

	c.Logf("Group conversation %s (%s) created by %d with %d members", conv.ID, name, creatorID, len(participants))
	c.publisher.Publish(realtime.Event{
		Type:           realtime.EventConversationCreated,
		ConversationID: conv.ID,
		ActorID:        creatorID,
		Payload:        map[string]any{"conversation": conv},
	}, realtime.Recipients{Mode: realtime.ToActiveParticipants, ConversationID: conv.ID})

	return conv, nil
}

func (c *localConversationService) UpdateConversation(conversationID string, actorID uint64, name string, metadata map[string]any) (*entity.Conversation, error) {
	conv, err := c.getConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if err := c.requireActive(conversationID, actorID); err != nil {
		return nil, err
	}
	if name != "" && conv.IsGroup() && conv.CreatorID != actorID {
		return nil, fmt.Errorf("%w: only the creator can rename a group", ErrUnauthorized)
	}

	if name != "" {
		conv.Name = name
	}
	if metadata != nil {
		conv.Metadata = metadata
	}
	if err := c.store.Conversations.Update(conv); err != nil {
		return nil, err
	}

	c.publisher.Publish(realtime.Event{
		Type:           realtime.EventConversationUpdated,
		ConversationID: conv.ID,
		ActorID:        actorID,
		Payload:        map[string]any{"conversation": conv},
	}, realtime.Recipients{Mode: realtime.ToActiveParticipants, ConversationID: conv.ID})

	return conv, nil
}

// AddParticipants attaches new members to a group. Users with an inactive row
// are reactivated and their visibility gap backfilled instead of re-created.
func (c *localConversationService) AddParticipants(conversationID string, actorID uint64, userIDs []uint64) error {
	conv, err := c.getConversation(conversationID)
	if err != nil {
		return err
	}
	if conv.IsDirect() {
		return fmt.Errorf("%w: direct conversations have fixed membership", ErrInvalid)
	}
	if err := c.requireActive(conversationID, actorID); err != nil {
		return err
	}

	now := time.Now()
	var added []uint64

	err = c.store.Transaction(func(tx *repository.Store) error {
		for _, userID := range userIDs {
			part, err := tx.Conversations.GetParticipant(conversationID, userID)
			switch {
			case isRecordNotFound(err):
				row := []entity.ConversationParticipant{{
					ConversationID: conversationID,
					UserID:         userID,
					Role:           entity.RoleMember,
					JoinedAt:       now,
					IsActive:       true,
				}}
				if err := tx.Conversations.AddParticipants(row); err != nil {
					return err
				}
			case err != nil:
				return err
			case part.IsActive:
				continue
			default:
				if err := tx.Conversations.SetParticipantActive(conversationID, userID, true, now); err != nil {
					return err
				}
			}
			if _, err := tx.Messages.BackfillVisibility(conversationID, userID, true, now); err != nil {
				return err
			}
			added = append(added, userID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, userID := range added {
		c.publisher.Publish(realtime.Event{
			Type:           realtime.EventParticipantAdded,
			ConversationID: conversationID,
			ActorID:        actorID,
			Payload:        map[string]any{"user_id": userID},
		}, realtime.Recipients{Mode: realtime.ToActiveParticipants, ConversationID: conversationID})
	}
	return nil
}

// RemoveParticipant is the group kick: the membership row is hard-removed.
// Allowed to the creator, or to users removing themselves.
func (c *localConversationService) RemoveParticipant(conversationID string, actorID, userID uint64) error {
	conv, err := c.getConversation(conversationID)
	if err != nil {
		return err
	}
	if conv.IsDirect() {
		return fmt.Errorf("%w: direct conversations have fixed membership", ErrInvalid)
	}
	if conv.CreatorID != actorID && actorID != userID {
		return fmt.Errorf("%w: only the creator can remove other participants", ErrUnauthorized)
	}

	if _, err := c.store.Conversations.GetParticipant(conversationID, userID); err != nil {
		if isRecordNotFound(err) {
			return fmt.Errorf("%w: user %d is not a participant", ErrNotFound, userID)
		}
		return err
	}

	active, err := c.store.Conversations.CountActive(conversationID)
	if err != nil {
		return err
	}
	if active <= 1 {
		return fmt.Errorf("%w: a group keeps at least one active participant; delete it instead", ErrInvalid)
	}

	if err := c.store.Conversations.RemoveParticipant(conversationID, userID); err != nil {
		return err
	}

	c.publisher.Publish(realtime.Event{
		Type:           realtime.EventParticipantRemoved,
		ConversationID: conversationID,
		ActorID:        actorID,
		Payload:        map[string]any{"user_id": userID},
	}, realtime.Recipients{Mode: realtime.ToActiveParticipants, ConversationID: conversationID})
	return nil
}

// DeleteOrLeave deactivates the caller in a direct conversation, physically
// removing it once both sides have left. For groups only the creator may
// delete, which deactivates everyone and retracts their unseen history.
func (c *localConversationService) DeleteOrLeave(conversationID string, userID uint64) error {
	conv, err := c.getConversation(conversationID)
	if err != nil {
		return err
	}
	if _, err := c.store.Conversations.GetParticipant(conversationID, userID); err != nil {
		if isRecordNotFound(err) {
			return fmt.Errorf("%w: not a participant of this conversation", ErrUnauthorized)
		}
		return err
	}

	// Snapshot the ids before the delete: the direct both-sides-left path
	// removes the membership rows, so resolving the set at publish time
	// would come back empty and the notice would reach nobody.
	participantIDs, err := c.store.Conversations.ParticipantIDs(conversationID, false)
	if err != nil {
		return err
	}
	recipients := realtime.Recipients{
		Mode:           realtime.ToUserSet,
		ConversationID: conversationID,
		UserIDs:        participantIDs,
	}

	err = c.store.Transaction(func(tx *repository.Store) error {
		now := time.Now()

		if conv.IsDirect() {
			if err := tx.Conversations.SetParticipantActive(conversationID, userID, false, now); err != nil {
				return err
			}
			if _, err := tx.Messages.BackfillVisibility(conversationID, userID, false, now); err != nil {
				return err
			}

			active, err := tx.Conversations.CountActive(conversationID)
			if err != nil {
				return err
			}
			if active == 0 {
				if err := tx.Conversations.SoftDelete(conversationID); err != nil {
					return err
				}
				return tx.Conversations.HardDelete(conversationID)
			}
			return nil
		}

		if conv.CreatorID != userID {
			return fmt.Errorf("%w: only the creator can delete a group conversation", ErrUnauthorized)
		}

		participantIDs, err := tx.Conversations.ParticipantIDs(conversationID, false)
		if err != nil {
			return err
		}
		if err := tx.Conversations.DeactivateAll(conversationID, now); err != nil {
			return err
		}
		for _, participantID := range participantIDs {
			if _, err := tx.Messages.BackfillVisibility(conversationID, participantID, false, now); err != nil {
				return err
			}
		}
		return tx.Conversations.SoftDelete(conversationID)
	})
	if err != nil {
		return err
	}

	c.Logf("User %d left or deleted conversation %s", userID, conversationID)
	c.publisher.Publish(realtime.Event{
		Type:           realtime.EventConversationDeleted,
		ConversationID: conversationID,
		ActorID:        userID,
	}, recipients)
	return nil
}

// IsActiveParticipant is the authorization gate for every conversation and
// message operation. A missing row reads as "not authorized", not an error.
func (c *localConversationService) IsActiveParticipant(conversationID string, userID uint64) (bool, error) {
	part, err := c.store.Conversations.GetParticipant(conversationID, userID)
	if isRecordNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return part.IsActive, nil
}

func (c *localConversationService) GetForUser(conversationID string, userID uint64) (*entity.Conversation, error) {
	conv, err := c.getConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if err := c.requireActive(conversationID, userID); err != nil {
		return nil, err
	}
	return conv, nil
}

func (c *localConversationService) ListForUser(userID uint64, limit int) ([]*entity.Conversation, error) {
	return c.store.Conversations.ListForUser(userID, limit)
}

func (c *localConversationService) OtherParticipant(conversationID string, userID uint64) (*entity.ConversationParticipant, error) {
	conv, err := c.getConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.IsDirect() {
		return nil, fmt.Errorf("%w: not a direct conversation", ErrInvalid)
	}
	parts, err := c.store.Conversations.Participants(conversationID, false)
	if err != nil {
		return nil, err
	}
	for _, part := range parts {
		if part.UserID != userID {
			return part, nil
		}
	}
	return nil, fmt.Errorf("%w: peer participant", ErrNotFound)
}

func (c *localConversationService) getConversation(conversationID string) (*entity.Conversation, error) {
	conv, err := c.store.Conversations.GetByID(conversationID)
	if isRecordNotFound(err) {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (c *localConversationService) requireActive(conversationID string, userID uint64) error {
	active, err := c.IsActiveParticipant(conversationID, userID)
	if err != nil {
		return err
	}
	if !active {
		return fmt.Errorf("%w: user %d is not an active participant", ErrUnauthorized, userID)
	}
	return nil
}
