package entity

import "time"

type ParticipantRole string

const (
	RoleAdmin  ParticipantRole = "admin"
	RoleMember ParticipantRole = "member"
)

// ConversationParticipant is the membership row joining a user to a conversation.
// Rows are deactivated on leave, never deleted, except for group kicks.
type ConversationParticipant struct {
	ConversationID string          `gorm:"primaryKey" json:"conversation_id"`
	UserID         uint64          `gorm:"primaryKey" json:"user_id"`
	Role           ParticipantRole `gorm:"not null;default:member" json:"role"`
	JoinedAt       time.Time       `gorm:"not null" json:"joined_at"`
	LeftAt         *time.Time      `json:"left_at,omitempty"`
	LastReadAt     *time.Time      `json:"last_read_at,omitempty"`
	IsActive       bool            `gorm:"not null;index" json:"is_active"`
}

func (ConversationParticipant) TableName() string { return "conversation_participants" }
