package repository

import (
	"time"

	"chatserver/internal/entity"

	"gorm.io/gorm"
)

type ConversationRepository interface {
	Create(conv *entity.Conversation, participants []entity.ConversationParticipant) error
	GetByID(id string) (*entity.Conversation, error)
	Update(conv *entity.Conversation) error
	SoftDelete(id string) error
	HardDelete(id string) error
	ListForUser(userID uint64, limit int) ([]*entity.Conversation, error)

	FindDirectBetween(userA, userB uint64) (*entity.Conversation, error)

	GetParticipant(conversationID string, userID uint64) (*entity.ConversationParticipant, error)
	Participants(conversationID string, activeOnly bool) ([]*entity.ConversationParticipant, error)
	ParticipantIDs(conversationID string, activeOnly bool) ([]uint64, error)
	ActiveConversationIDs(userID uint64) ([]string, error)
	CountActive(conversationID string) (int64, error)

	AddParticipants(participants []entity.ConversationParticipant) error
	RemoveParticipant(conversationID string, userID uint64) error
	SetParticipantActive(conversationID string, userID uint64, active bool, at time.Time) error
	DeactivateAll(conversationID string, at time.Time) error
	SetLastRead(conversationID string, userID uint64, at time.Time) error
}

type SQLiteConversationRepository struct {
	db *gorm.DB
}

func NewSQLiteConversationRepository(db *gorm.DB) ConversationRepository {
	return &SQLiteConversationRepository{db}
}

// Create writes the conversation and its participant rows in one transaction.
func (repo *SQLiteConversationRepository) Create(conv *entity.Conversation, participants []entity.ConversationParticipant) error {
	return repo.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		if len(participants) > 0 {
			if err := tx.Create(&participants).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (repo *SQLiteConversationRepository) GetByID(id string) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := repo.db.Where("id = ?", id).First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (repo *SQLiteConversationRepository) Update(conv *entity.Conversation) error {
	return repo.db.Save(conv).Error
}

func (repo *SQLiteConversationRepository) SoftDelete(id string) error {
	return repo.db.Where("id = ?", id).Delete(&entity.Conversation{}).Error
}

// HardDelete physically removes the conversation and its membership rows, so
// a later direct conversation between the same pair starts from scratch.
func (repo *SQLiteConversationRepository) HardDelete(id string) error {
	return repo.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&entity.ConversationParticipant{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Where("id = ?", id).Delete(&entity.Conversation{}).Error
	})
}

func (repo *SQLiteConversationRepository) ListForUser(userID uint64, limit int) ([]*entity.Conversation, error) {
	active := repo.db.Model(&entity.ConversationParticipant{}).
		Select("conversation_id").
		Where("user_id = ? AND is_active = ?", userID, true)

	var convs []*entity.Conversation
	err := repo.db.Where("id IN (?)", active).
		Order("last_message_at DESC").
		Limit(limit).
		Find(&convs).Error
	return convs, err
}

// FindDirectBetween locates the direct conversation for the pair, whatever
// the membership state. There is at most one: the unique direct key holds
// that at the store, and rows are reactivated rather than re-created.
func (repo *SQLiteConversationRepository) FindDirectBetween(userA, userB uint64) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := repo.db.Where("direct_key = ?", entity.PairKey(userA, userB)).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (repo *SQLiteConversationRepository) GetParticipant(conversationID string, userID uint64) (*entity.ConversationParticipant, error) {
	var part entity.ConversationParticipant
	err := repo.db.Where("conversation_id = ? AND user_id = ?", conversationID, userID).First(&part).Error
	if err != nil {
		return nil, err
	}
	return &part, nil
}

func (repo *SQLiteConversationRepository) Participants(conversationID string, activeOnly bool) ([]*entity.ConversationParticipant, error) {
	q := repo.db.Where("conversation_id = ?", conversationID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var parts []*entity.ConversationParticipant
	err := q.Find(&parts).Error
	return parts, err
}

func (repo *SQLiteConversationRepository) ParticipantIDs(conversationID string, activeOnly bool) ([]uint64, error) {
	q := repo.db.Model(&entity.ConversationParticipant{}).Where("conversation_id = ?", conversationID)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var ids []uint64
	err := q.Pluck("user_id", &ids).Error
	return ids, err
}

func (repo *SQLiteConversationRepository) ActiveConversationIDs(userID uint64) ([]string, error) {
	var ids []string
	err := repo.db.Model(&entity.ConversationParticipant{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Pluck("conversation_id", &ids).Error
	return ids, err
}

func (repo *SQLiteConversationRepository) CountActive(conversationID string) (int64, error) {
	var n int64
	err := repo.db.Model(&entity.ConversationParticipant{}).
		Where("conversation_id = ? AND is_active = ?", conversationID, true).
		Count(&n).Error
	return n, err
}

func (repo *SQLiteConversationRepository) AddParticipants(participants []entity.ConversationParticipant) error {
	return repo.db.Create(&participants).Error
}

// RemoveParticipant hard-deletes the membership row. Only used for group kicks;
// direct conversations keep their rows forever.
func (repo *SQLiteConversationRepository) RemoveParticipant(conversationID string, userID uint64) error {
	return repo.db.Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Delete(&entity.ConversationParticipant{}).Error
}

func (repo *SQLiteConversationRepository) SetParticipantActive(conversationID string, userID uint64, active bool, at time.Time) error {
	updates := map[string]any{"is_active": active}
	if active {
		updates["left_at"] = nil
	} else {
		updates["left_at"] = at
	}
	return repo.db.Model(&entity.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Updates(updates).Error
}

func (repo *SQLiteConversationRepository) DeactivateAll(conversationID string, at time.Time) error {
	return repo.db.Model(&entity.ConversationParticipant{}).
		Where("conversation_id = ? AND is_active = ?", conversationID, true).
		Updates(map[string]any{"is_active": false, "left_at": at}).Error
}

func (repo *SQLiteConversationRepository) SetLastRead(conversationID string, userID uint64, at time.Time) error {
	return repo.db.Model(&entity.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("last_read_at", at).Error
}
