package entity

import "time"

// MessageReaction has an independent lifecycle from its message.
// The composite key makes (message, user, reaction_type) unique at the store.
type MessageReaction struct {
	MessageID    string    `gorm:"primaryKey" json:"message_id"`
	UserID       uint64    `gorm:"primaryKey" json:"user_id"`
	ReactionType string    `gorm:"primaryKey" json:"reaction_type"`
	CreatedAt    time.Time `json:"created_at"`
}

func (MessageReaction) TableName() string { return "message_reactions" }
