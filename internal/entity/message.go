package entity

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Message struct {
	ID              string            `gorm:"primaryKey" json:"id"`
	ConversationID  string            `gorm:"not null;index" json:"conversation_id"`
	SenderID        uint64            `gorm:"not null;index" json:"sender_id"`
	Content         string            `gorm:"not null" json:"content"`
	Type            string            `gorm:"not null;default:text" json:"type"`
	Metadata        datatypes.JSONMap `json:"metadata,omitempty"`
	ParentMessageID *string           `json:"parent_message_id,omitempty"`

	// CursorID is the sole pagination key: globally unique, strictly increasing
	// in commit order, independent of wall clock. CreatedAt is informational only.
	CursorID uint64 `gorm:"not null;uniqueIndex" json:"cursor_id"`

	IsEdited  bool           `gorm:"not null;default:false" json:"is_edited"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Reactions   []MessageReaction   `gorm:"foreignKey:MessageID;references:ID" json:"reactions,omitempty"`
	Attachments []MessageAttachment `gorm:"foreignKey:MessageID;references:ID" json:"attachments,omitempty"`
}

func (Message) TableName() string { return "messages" }
