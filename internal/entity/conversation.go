package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// NewID returns a time-sortable random identifier.
// Random so ids are not enumerable, sortable so creation order survives merges.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// PairKey is the canonical "<low>:<high>" form of a user pair, the value
// stored in Conversation.DirectKey.
func PairKey(a, b uint64) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

type Conversation struct {
	ID   string           `gorm:"primaryKey" json:"id"`
	Type ConversationType `gorm:"not null;index" json:"type"`
	Name string           `json:"name,omitempty"`

	// DirectKey holds PairKey of the two members for direct conversations,
	// nil for groups. The unique index is what collapses two concurrent
	// creations for the same pair into one conversation; the transaction
	// alone cannot, since each insert is consistent on its own.
	DirectKey *string `gorm:"uniqueIndex" json:"-"`

	CreatorID     uint64            `gorm:"not null;index" json:"creator_id"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty"`
	LastMessageID *string           `json:"last_message_id,omitempty"`
	LastMessageAt *time.Time        `gorm:"index" json:"last_message_at,omitempty"`
	CreatedAt     time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	DeletedAt     gorm.DeletedAt    `gorm:"index" json:"-"`

	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID;references:ID" json:"participants,omitempty"`
}

func (Conversation) TableName() string { return "conversations" }

func (c *Conversation) IsDirect() bool { return c.Type == ConversationDirect }
func (c *Conversation) IsGroup() bool  { return c.Type == ConversationGroup }
