package repository

import (
	"time"

	"chatserver/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MessageRepository interface {
	Create(msg *entity.Message, recipients []uint64, attachments []entity.MessageAttachment) error
	GetByID(id string) (*entity.Message, error)
	Update(msg *entity.Message) error
	SoftDelete(id string) error
	HardDelete(id string) error
	LatestAlive(conversationID string) (*entity.Message, error)

	PageVisible(conversationID string, userID uint64, beforeCursor uint64, limit int) ([]*entity.Message, error)
	SearchVisible(conversationID string, userID uint64, term string, beforeCursor uint64, limit int) ([]*entity.Message, error)
	IsVisibleTo(messageID string, userID uint64) (bool, error)
	BackfillVisibility(conversationID string, userID uint64, visible bool, at time.Time) (int, error)

	UnreadAfter(conversationID string, userID uint64, after time.Time) ([]*entity.Message, error)
	MarkRead(messages []*entity.Message, userID uint64, at time.Time) error
	IsReadBy(messageID string, userID uint64) (bool, error)

	AddReaction(reaction *entity.MessageReaction) error
	RemoveReaction(messageID string, userID uint64, reactionType string) (bool, error)
	HasReaction(messageID string, userID uint64, reactionType string) (bool, error)
	ReactionCount(messageID string, reactionType string) (int64, error)
}

type SQLiteMessageRepository struct {
	db *gorm.DB
}

func NewSQLiteMessageRepository(db *gorm.DB) MessageRepository {
	return &SQLiteMessageRepository{db}
}

// Create assigns the next cursor under a row lock and writes the message, one
// visibility row per recipient, the attachment metadata and the conversation's
// last-message pointer in a single transaction. Nothing is pushed to live
// connections until this commits.
func (repo *SQLiteMessageRepository) Create(msg *entity.Message, recipients []uint64, attachments []entity.MessageAttachment) error {
	return repo.db.Transaction(func(tx *gorm.DB) error {
		cursor, err := nextCursor(tx)
		if err != nil {
			return err
		}
		msg.CursorID = cursor

		if err := tx.Create(msg).Error; err != nil {
			return err
		}

		if len(recipients) > 0 {
			now := time.Now()
			rows := make([]entity.MessageVisibility, 0, len(recipients))
			for _, userID := range recipients {
				rows = append(rows, entity.MessageVisibility{
					MessageID: msg.ID,
					UserID:    userID,
					IsVisible: true,
					CreatedAt: now,
					UpdatedAt: now,
				})
			}
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}

		if len(attachments) > 0 {
			for i := range attachments {
				attachments[i].MessageID = msg.ID
			}
			if err := tx.Create(&attachments).Error; err != nil {
				return err
			}
		}

		return tx.Model(&entity.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Updates(map[string]any{"last_message_id": msg.ID, "last_message_at": msg.CreatedAt}).Error
	})
}

func (repo *SQLiteMessageRepository) GetByID(id string) (*entity.Message, error) {
	var msg entity.Message
	err := repo.db.Where("id = ?", id).First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (repo *SQLiteMessageRepository) Update(msg *entity.Message) error {
	return repo.db.Save(msg).Error
}

func (repo *SQLiteMessageRepository) SoftDelete(id string) error {
	return repo.db.Where("id = ?", id).Delete(&entity.Message{}).Error
}

// HardDelete removes the message and its dependent rows for "delete for
// everyone". Reactions and visibility have no FK cascade, so they go here too.
func (repo *SQLiteMessageRepository) HardDelete(id string) error {
	return repo.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", id).Delete(&entity.MessageVisibility{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", id).Delete(&entity.MessageReaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", id).Delete(&entity.MessageReadStatus{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id = ?", id).Delete(&entity.MessageAttachment{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Where("id = ?", id).Delete(&entity.Message{}).Error
	})
}

// LatestAlive returns the non-deleted message with the highest cursor, used to
// recompute a conversation's last-message pointer after a delete.
func (repo *SQLiteMessageRepository) LatestAlive(conversationID string) (*entity.Message, error) {
	var msg entity.Message
	err := repo.db.Where("conversation_id = ?", conversationID).
		Order("cursor_id DESC").
		First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (repo *SQLiteMessageRepository) visibleQuery(conversationID string, userID uint64, beforeCursor uint64) *gorm.DB {
	q := repo.db.Model(&entity.Message{}).
		Joins("JOIN message_visibilities ON message_visibilities.message_id = messages.id AND message_visibilities.user_id = ? AND message_visibilities.is_visible = ?", userID, true).
		Where("messages.conversation_id = ?", conversationID)
	if beforeCursor > 0 {
		q = q.Where("messages.cursor_id < ?", beforeCursor)
	}
	return q
}

// PageVisible is strict cursor pagination over the requester's visible
// history: cursor_id descending, bounded above by beforeCursor (0 = unbounded).
func (repo *SQLiteMessageRepository) PageVisible(conversationID string, userID uint64, beforeCursor uint64, limit int) ([]*entity.Message, error) {
	var msgs []*entity.Message
	err := repo.visibleQuery(conversationID, userID, beforeCursor).
		Order("messages.cursor_id DESC").
		Limit(limit).
		Preload("Reactions").
		Preload("Attachments").
		Find(&msgs).Error
	return msgs, err
}

func (repo *SQLiteMessageRepository) SearchVisible(conversationID string, userID uint64, term string, beforeCursor uint64, limit int) ([]*entity.Message, error) {
	var msgs []*entity.Message
	err := repo.visibleQuery(conversationID, userID, beforeCursor).
		Where("messages.content LIKE ?", "%"+term+"%").
		Order("messages.cursor_id DESC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

func (repo *SQLiteMessageRepository) IsVisibleTo(messageID string, userID uint64) (bool, error) {
	var n int64
	err := repo.db.Model(&entity.MessageVisibility{}).
		Where("message_id = ? AND user_id = ? AND is_visible = ?", messageID, userID, true).
		Count(&n).Error
	return n > 0, err
}

// BackfillVisibility inserts a visibility row for every message in the
// conversation the user has no row for yet. Existing rows are left alone:
// history seen before a leave stays visible, and the gap from the absence is
// filled with the given visibility on rejoin. Returns how many rows were added.
func (repo *SQLiteMessageRepository) BackfillVisibility(conversationID string, userID uint64, visible bool, at time.Time) (int, error) {
	var inserted int
	err := repo.db.Transaction(func(tx *gorm.DB) error {
		covered := tx.Model(&entity.MessageVisibility{}).
			Select("message_id").
			Where("user_id = ?", userID)

		var messageIDs []string
		if err := tx.Model(&entity.Message{}).
			Where("conversation_id = ?", conversationID).
			Where("id NOT IN (?)", covered).
			Pluck("id", &messageIDs).Error; err != nil {
			return err
		}
		if len(messageIDs) == 0 {
			return nil
		}

		var hiddenAt *time.Time
		if !visible {
			hiddenAt = &at
		}
		rows := make([]entity.MessageVisibility, 0, len(messageIDs))
		for _, id := range messageIDs {
			rows = append(rows, entity.MessageVisibility{
				MessageID: id,
				UserID:    userID,
				IsVisible: visible,
				HiddenAt:  hiddenAt,
				CreatedAt: at,
				UpdatedAt: at,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}
		inserted = len(rows)
		return nil
	})
	return inserted, err
}

func (repo *SQLiteMessageRepository) UnreadAfter(conversationID string, userID uint64, after time.Time) ([]*entity.Message, error) {
	var msgs []*entity.Message
	err := repo.db.
		Joins("JOIN message_visibilities ON message_visibilities.message_id = messages.id AND message_visibilities.user_id = ? AND message_visibilities.is_visible = ?", userID, true).
		Where("messages.conversation_id = ?", conversationID).
		Where("messages.created_at > ?", after).
		Find(&msgs).Error
	return msgs, err
}

// MarkRead records one read-status row per message. Re-reads are no-ops.
func (repo *SQLiteMessageRepository) MarkRead(messages []*entity.Message, userID uint64, at time.Time) error {
	if len(messages) == 0 {
		return nil
	}
	rows := make([]entity.MessageReadStatus, 0, len(messages))
	for _, msg := range messages {
		rows = append(rows, entity.MessageReadStatus{
			MessageID: msg.ID,
			UserID:    userID,
			ReadAt:    at,
		})
	}
	return repo.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func (repo *SQLiteMessageRepository) IsReadBy(messageID string, userID uint64) (bool, error) {
	var n int64
	err := repo.db.Model(&entity.MessageReadStatus{}).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		Count(&n).Error
	return n > 0, err
}

func (repo *SQLiteMessageRepository) AddReaction(reaction *entity.MessageReaction) error {
	return repo.db.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&entity.MessageReaction{}).
			Where("message_id = ? AND user_id = ? AND reaction_type = ?",
				reaction.MessageID, reaction.UserID, reaction.ReactionType).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicate
		}
		return tx.Create(reaction).Error
	})
}

func (repo *SQLiteMessageRepository) RemoveReaction(messageID string, userID uint64, reactionType string) (bool, error) {
	res := repo.db.Where("message_id = ? AND user_id = ? AND reaction_type = ?",
		messageID, userID, reactionType).
		Delete(&entity.MessageReaction{})
	return res.RowsAffected > 0, res.Error
}

func (repo *SQLiteMessageRepository) HasReaction(messageID string, userID uint64, reactionType string) (bool, error) {
	var n int64
	err := repo.db.Model(&entity.MessageReaction{}).
		Where("message_id = ? AND user_id = ? AND reaction_type = ?", messageID, userID, reactionType).
		Count(&n).Error
	return n > 0, err
}

func (repo *SQLiteMessageRepository) ReactionCount(messageID string, reactionType string) (int64, error) {
	var n int64
	err := repo.db.Model(&entity.MessageReaction{}).
		Where("message_id = ? AND reaction_type = ?", messageID, reactionType).
		Count(&n).Error
	return n, err
}
