package entity

import "time"

// MessageAttachment stores file metadata only. The bytes live in external
// storage; upload and validation happen outside this core.
type MessageAttachment struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	MessageID string    `gorm:"not null;index" json:"message_id"`
	FileName  string    `gorm:"not null" json:"file_name"`
	FilePath  string    `gorm:"not null" json:"file_path"`
	FileType  string    `json:"file_type,omitempty"`
	FileSize  int64     `json:"file_size,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (MessageAttachment) TableName() string { return "message_attachments" }
