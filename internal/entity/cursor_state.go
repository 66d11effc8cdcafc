package entity

// Cursor state, represented by the couple (ID, LastCursor).
// ID exists only to have a unique record; LastCursor is the highest message
// cursor handed out so far and is bumped under a row lock on every send.
type CursorState struct {
	ID         uint64 `gorm:"primaryKey"`
	LastCursor uint64 `gorm:"not null;default:0"`
}

func (CursorState) TableName() string { return "cursor_state" }
