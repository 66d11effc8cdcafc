package entity

import "time"

type MessageReadStatus struct {
	MessageID string    `gorm:"primaryKey" json:"message_id"`
	UserID    uint64    `gorm:"primaryKey" json:"user_id"`
	ReadAt    time.Time `gorm:"not null" json:"read_at"`
}

func (MessageReadStatus) TableName() string { return "message_read_status" }
