package service

import (
	"fmt"
	"time"

	"chatserver/internal/clog"
	"chatserver/internal/entity"
	"chatserver/internal/realtime"
	"chatserver/internal/repository"
)

// SendInput carries everything a send needs. Attachment entries hold file
// metadata only; the bytes live in external storage.
type SendInput struct {
	ConversationID  string
	SenderID        uint64
	Content         string
	Type            string
	Metadata        map[string]any
	ParentMessageID *string
	Attachments     []entity.MessageAttachment
}

// Page is one slice of a conversation history. NextCursor is the bound to
// pass back in to continue; zero means the history is exhausted.
type Page struct {
	Messages   []*entity.Message
	NextCursor uint64
}

type MessageService interface {
	Send(in SendInput) (*entity.Message, error)
	ListPage(conversationID string, requesterID uint64, beforeCursor uint64, pageSize int) (*Page, error)
	Search(conversationID string, requesterID uint64, term string, beforeCursor uint64, pageSize int) (*Page, error)
	Edit(messageID string, requesterID uint64, newContent string, metadata map[string]any) (*entity.Message, error)
	Delete(messageID string, requesterID uint64, forEveryone bool) error
	MarkRead(conversationID string, userID uint64) (int, error)
	React(messageID string, userID uint64, reactionType string) error
	Unreact(messageID string, userID uint64, reactionType string) error
	UpdateVisibility(conversationID string, userID uint64, visible bool) error

	IsReadBy(messageID string, userID uint64) (bool, error)
	HasReaction(messageID string, userID uint64, reactionType string) (bool, error)
	ReactionCount(messageID string, reactionType string) (int64, error)
	IsVisibleTo(messageID string, userID uint64) (bool, error)
	LatestCursor() uint64
}

type localMessageService struct {
	store     *repository.Store
	publisher realtime.Publisher
	logger    clog.Logger
}

func NewMessageService(store *repository.Store, publisher realtime.Publisher, logger clog.Logger) MessageService {
	return &localMessageService{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

func (m *localMessageService) Logf(format string, v ...any) {
	m.logger.Logf(format, v...)
}

const defaultMessageType = "text"

// Send persists the message, its cursor, one visibility row per active
// participant and the conversation's last-message pointer in one transaction,
// then hands the committed message to fanout. The push is an optimization:
// if it is lost, the row is the source of truth and clients resync.
func (m *localMessageService) Send(in SendInput) (*entity.Message, error) {
	if in.Content == "" && len(in.Attachments) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrInvalid)
	}

	if err := m.requireActive(in.ConversationID, in.SenderID); err != nil {
		return nil, err
	}

	if in.ParentMessageID != nil {
		parent, err := m.getMessage(*in.ParentMessageID)
		if err != nil {
			return nil, err
		}
		if parent.ConversationID != in.ConversationID {
			return nil, fmt.Errorf("%w: parent message belongs to another conversation", ErrInvalid)
		}
	}

	recipients, err := m.store.Conversations.ParticipantIDs(in.ConversationID, true)
	if err != nil {
		return nil, err
	}

	msgType := in.Type
	if msgType == "" {
		msgType = defaultMessageType
	}
	msg := &entity.Message{
		ID:              entity.NewID(),
		ConversationID:  in.ConversationID,
		SenderID:        in.SenderID,
		Content:         in.Content,
		Type:            msgType,
		Metadata:        in.Metadata,
		ParentMessageID: in.ParentMessageID,
	}
	for i := range in.Attachments {
		if in.Attachments[i].ID == "" {
			in.Attachments[i].ID = entity.NewID()
		}
	}

	if err := m.store.Messages.Create(msg, recipients, in.Attachments); err != nil {
		return nil, err
	}
	m.store.UpdateCursorCache(msg.CursorID)

	m.Logf("Message %s (cursor %d) sent in conversation %s", msg.ID, msg.CursorID, msg.ConversationID)
	m.publisher.Publish(realtime.Event{
		Type:           realtime.EventMessageSent,
		ConversationID: msg.ConversationID,
		ActorID:        msg.SenderID,
		Payload:        map[string]any{"message": msg},
	}, realtime.Recipients{Mode: realtime.ToActiveParticipants, ConversationID: msg.ConversationID})

	return msg, nil
}

// ListPage pages the requester's visible history strictly by cursor: repeated
// calls with the returned bound never skip or repeat a message, regardless of
// concurrent sends.
func (m *localMessageService) ListPage(conversationID string, requesterID uint64, beforeCursor uint64, pageSize int) (*Page, error) {
	if err := m.requireActive(conversationID, requesterID); err != nil {
		return nil, err
	}
	msgs, err := m.store.Messages.PageVisible(conversationID, requesterID, beforeCursor, pageSize)
	if err != nil {
		return nil, err
	}
	return newPage(msgs, pageSize), nil
}

func (m *localMessageService) Search(conversationID string, requesterID uint64, term string, beforeCursor uint64, pageSize int) (*Page, error) {
	if err := m.requireActive(conversationID, requesterID); err != nil {
		return nil, err
	}
	msgs, err := m.store.Messages.SearchVisible(conversationID, requesterID, term, beforeCursor, pageSize)
	if err != nil {
		return nil, err
	}
	return newPage(msgs, pageSize), nil
}

func (m *localMessageService) Edit(messageID string, requesterID uint64, newContent string, metadata map[string]any) (*entity.Message, error) {
	msg, err := m.getMessage(messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != requesterID {
		return nil, fmt.Errorf("%w: only the sender can edit a message", ErrUnauthorized)
	}

	msg.Content = newContent
	if metadata != nil {
		msg.Metadata = metadata
	}
	msg.IsEdited = true
	if err := m.store.Messages.Update(msg); err != nil {
		return nil, err
	}

	m.publisher.Publish(realtime.Event{
		Type:           realtime.EventMessageUpdated,
		ConversationID: msg.ConversationID,
		ActorID:        requesterID,
		Payload:        map[string]any{"message": msg},
	}, realtime.Recipients{Mode: realtime.ToActiveParticipants, ConversationID: msg.ConversationID})

	return msg, nil
}

// Delete soft-deletes for the sender, or removes the message outright when
// forEveryone is requested by the sender or a conversation admin. If the
// victim was the conversation's last message the pointer is recomputed to the
// next highest surviving cursor.
func (m *localMessageService) Delete(messageID string, requesterID uint64, forEveryone bool) error {
	msg, err := m.getMessage(messageID)
	if err != nil {
		return err
	}

	if msg.SenderID != requesterID {
		if !forEveryone {
			return fmt.Errorf("%w: only the sender can delete a message", ErrUnauthorized)
		}
		part, err := m.store.Conversations.GetParticipant(msg.ConversationID, requesterID)
		if err != nil || part.Role != entity.RoleAdmin {
			return fmt.Errorf("%w: deleting for everyone needs the sender or an admin", ErrUnauthorized)
		}
	}

	// Resolved before the rows go away, per the deletion-notice rule.
	recipients := realtime.Recipients{Mode: realtime.ToActiveParticipants, ConversationID: msg.ConversationID}
	if forEveryone {
		recipients.Mode = realtime.ToAllParticipants
	}

	err = m.store.Transaction(func(tx *repository.Store) error {
		conv, err := tx.Conversations.GetByID(msg.ConversationID)
		if err != nil {
			return err
		}
		wasLast := conv.LastMessageID != nil && *conv.LastMessageID == msg.ID

		if forEveryone {
			if err := tx.Messages.HardDelete(msg.ID); err != nil {
				return err
			}
		} else {
			if err := tx.Messages.SoftDelete(msg.ID); err != nil {
				return err
			}
		}

		if !wasLast {
			return nil
		}
		next, err := tx.Messages.LatestAlive(msg.ConversationID)
		if isRecordNotFound(err) {
			conv.LastMessageID = nil
			conv.LastMessageAt = nil
			return tx.Conversations.Update(conv)
		}
		if err != nil {
			return err
		}
		conv.LastMessageID = &next.ID
		conv.LastMessageAt = &next.CreatedAt
		return tx.Conversations.Update(conv)
	})
	if err != nil {
		return err
	}

	m.publisher.Publish(realtime.Event{
		Type:           realtime.EventMessageDeleted,
		ConversationID: msg.ConversationID,
		ActorID:        requesterID,
		Payload:        map[string]any{"message_id": msg.ID, "for_everyone": forEveryone},
	}, recipients)
	return nil
}

// MarkRead advances the participant's watermark and records a read-status row
// for every message that arrived since the previous one. One event is emitted
// for the whole batch, not one per message. Returns how many were marked.
func (m *localMessageService) MarkRead(conversationID string, userID uint64) (int, error) {
	part, err := m.store.Conversations.GetParticipant(conversationID, userID)
	if isRecordNotFound(err) {
		return 0, fmt.Errorf("%w: not a participant of this conversation", ErrUnauthorized)
	}
	if err != nil {
		return 0, err
	}

	watermark := part.JoinedAt
	if part.LastReadAt != nil {
		watermark = *part.LastReadAt
	}

	now := time.Now()
	var marked int
	err = m.store.Transaction(func(tx *repository.Store) error {
		unread, err := tx.Messages.UnreadAfter(conversationID, userID, watermark)
		if err != nil {
			return err
		}
		if len(unread) == 0 {
			return nil
		}
		if err := tx.Conversations.SetLastRead(conversationID, userID, now); err != nil {
			return err
		}
		if err := tx.Messages.MarkRead(unread, userID, now); err != nil {
			return err
		}
		marked = len(unread)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if marked > 0 {
		m.publisher.Publish(realtime.Event{
			Type:           realtime.EventMessageRead,
			ConversationID: conversationID,
			ActorID:        userID,
			Payload:        map[string]any{"read_at": now, "count": marked},
		}, realtime.Recipients{Mode: realtime.ToActiveParticipants, ConversationID: conversationID})
	}
	return marked, nil
}

func (m *localMessageService) React(messageID string, userID uint64, reactionType string) error {
	if reactionType == "" {
		return fmt.Errorf("%w: empty reaction type", ErrInvalid)
	}
	msg, err := m.getMessage(messageID)
	if err != nil {
		return err
	}
	if _, err := m.store.Conversations.GetParticipant(msg.ConversationID, userID); err != nil {
		if isRecordNotFound(err) {
			return fmt.Errorf("%w: not a participant of this conversation", ErrUnauthorized)
		}
		return err
	}

	err = m.store.Messages.AddReaction(&entity.MessageReaction{
		MessageID:    messageID,
		UserID:       userID,
		ReactionType: reactionType,
	})
	if err == repository.ErrDuplicate {
		return fmt.Errorf("%w: reaction %q", ErrConflict, reactionType)
	}
	if err != nil {
		return err
	}

	m.publisher.Publish(realtime.Event{
		Type:           realtime.EventReactionAdded,
		ConversationID: msg.ConversationID,
		ActorID:        userID,
		Payload:        map[string]any{"message_id": messageID, "reaction_type": reactionType},
	}, realtime.Recipients{Mode: realtime.ToActiveParticipants, ConversationID: msg.ConversationID})
	return nil
}

// Unreact removes the triple if present. Removing a reaction that does not
// exist is a no-op, not an error.
func (m *localMessageService) Unreact(messageID string, userID uint64, reactionType string) error {
	msg, err := m.getMessage(messageID)
	if err != nil {
		return err
	}

	removed, err := m.store.Messages.RemoveReaction(messageID, userID, reactionType)
	if err != nil {
		return err
	}
	if !removed {
		return nil
	}

	m.publisher.Publish(realtime.Event{
		Type:           realtime.EventReactionRemoved,
		ConversationID: msg.ConversationID,
		ActorID:        userID,
		Payload:        map[string]any{"message_id": messageID, "reaction_type": reactionType},
	}, realtime.Recipients{Mode: realtime.ToActiveParticipants, ConversationID: msg.ConversationID})
	return nil
}

// UpdateVisibility backfills visibility rows for the user's coverage gap.
// Invoked by the conversation lifecycle on leave and rejoin.
func (m *localMessageService) UpdateVisibility(conversationID string, userID uint64, visible bool) error {
	_, err := m.store.Messages.BackfillVisibility(conversationID, userID, visible, time.Now())
	return err
}

func (m *localMessageService) IsReadBy(messageID string, userID uint64) (bool, error) {
	return m.store.Messages.IsReadBy(messageID, userID)
}

func (m *localMessageService) HasReaction(messageID string, userID uint64, reactionType string) (bool, error) {
	return m.store.Messages.HasReaction(messageID, userID, reactionType)
}

func (m *localMessageService) ReactionCount(messageID string, reactionType string) (int64, error) {
	return m.store.Messages.ReactionCount(messageID, reactionType)
}

func (m *localMessageService) IsVisibleTo(messageID string, userID uint64) (bool, error) {
	return m.store.Messages.IsVisibleTo(messageID, userID)
}

// LatestCursor is the resync watermark clients compare against after a
// reconnect.
func (m *localMessageService) LatestCursor() uint64 {
	return m.store.CachedCursor()
}

func (m *localMessageService) getMessage(messageID string) (*entity.Message, error) {
	msg, err := m.store.Messages.GetByID(messageID)
	if isRecordNotFound(err) {
		return nil, fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (m *localMessageService) requireActive(conversationID string, userID uint64) error {
	if _, err := m.store.Conversations.GetByID(conversationID); err != nil {
		if isRecordNotFound(err) {
			return fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
		}
		return err
	}
	part, err := m.store.Conversations.GetParticipant(conversationID, userID)
	if isRecordNotFound(err) || (err == nil && !part.IsActive) {
		return fmt.Errorf("%w: user %d is not an active participant", ErrUnauthorized, userID)
	}
	return err
}

func newPage(msgs []*entity.Message, pageSize int) *Page {
	page := &Page{Messages: msgs}
	if len(msgs) == pageSize && pageSize > 0 {
		page.NextCursor = msgs[len(msgs)-1].CursorID
	}
	return page
}
