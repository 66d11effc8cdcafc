package repository

import (
	"sync/atomic"

	"chatserver/internal/entity"

	"gorm.io/gorm"
)

// Store gathers all the repositories needed for the chat core in a single
// container and keeps a cached copy of the last assigned cursor so reads do
// not hit the DB for the resync watermark.
type Store struct {
	db *gorm.DB

	lastCursor *atomic.Uint64

	Conversations ConversationRepository
	Messages      MessageRepository
	Cursor        CursorRepository
}

func NewStore(db *gorm.DB) (*Store, error) {
	s := &Store{
		db:            db,
		lastCursor:    &atomic.Uint64{},
		Conversations: NewSQLiteConversationRepository(db),
		Messages:      NewSQLiteMessageRepository(db),
		Cursor:        NewSQLiteCursorRepository(db),
	}

	if err := s.Cursor.Ensure(); err != nil {
		return nil, err
	}
	cursor, err := s.Cursor.LastCursor()
	if err != nil {
		return nil, err
	}
	s.lastCursor.Store(cursor)

	return s, nil
}

// Migrate creates the schema for every chat entity.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.Conversation{},
		&entity.ConversationParticipant{},
		&entity.Message{},
		&entity.MessageVisibility{},
		&entity.MessageReaction{},
		&entity.MessageAttachment{},
		&entity.MessageReadStatus{},
		&entity.CursorState{},
	)
}

// Transaction runs fn with every repository rebound to one transaction, so a
// failure mid-sequence rolls back all rows touched by the callback.
func (s *Store) Transaction(fn func(tx *Store) error) error {
	return s.db.Transaction(func(txdb *gorm.DB) error {
		tx := &Store{
			db:            txdb,
			lastCursor:    s.lastCursor,
			Conversations: NewSQLiteConversationRepository(txdb),
			Messages:      NewSQLiteMessageRepository(txdb),
			Cursor:        NewSQLiteCursorRepository(txdb),
		}
		return fn(tx)
	})
}

func (s *Store) UpdateCursorCache(cursor uint64) {
	for {
		current := s.lastCursor.Load()
		if cursor <= current || s.lastCursor.CompareAndSwap(current, cursor) {
			return
		}
	}
}

func (s *Store) CachedCursor() uint64 {
	return s.lastCursor.Load()
}
