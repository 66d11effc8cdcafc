package entity

import "time"

// MessageVisibility controls whether a message appears in one user's history.
// A row is written for every active participant at send time; a user who left
// gets no row for messages sent while absent and the rejoin backfill fills the
// gap. A message is listed for a user iff a row exists with IsVisible true.
type MessageVisibility struct {
	MessageID string     `gorm:"primaryKey" json:"message_id"`
	UserID    uint64     `gorm:"primaryKey" json:"user_id"`
	IsVisible bool       `gorm:"not null;index" json:"is_visible"`
	HiddenAt  *time.Time `json:"hidden_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (MessageVisibility) TableName() string { return "message_visibilities" }
