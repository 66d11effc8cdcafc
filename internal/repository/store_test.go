package repository

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"chatserver/internal/entity"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, Migrate(db))

	store, err := NewStore(db)
	require.NoError(t, err)
	return store
}

func seedConversation(t *testing.T, s *Store, convType entity.ConversationType, userIDs ...uint64) *entity.Conversation {
	t.Helper()

	now := time.Now()
	conv := &entity.Conversation{
		ID:        entity.NewID(),
		Type:      convType,
		CreatorID: userIDs[0],
	}
	if convType == entity.ConversationDirect && len(userIDs) == 2 {
		pairKey := entity.PairKey(userIDs[0], userIDs[1])
		conv.DirectKey = &pairKey
	}
	participants := make([]entity.ConversationParticipant, 0, len(userIDs))
	for i, userID := range userIDs {
		role := entity.RoleMember
		if i == 0 {
			role = entity.RoleAdmin
		}
		participants = append(participants, entity.ConversationParticipant{
			ConversationID: conv.ID,
			UserID:         userID,
			Role:           role,
			JoinedAt:       now,
			IsActive:       true,
		})
	}
	require.NoError(t, s.Conversations.Create(conv, participants))
	return conv
}

func sendMessage(t *testing.T, s *Store, convID string, senderID uint64, content string, recipients []uint64) *entity.Message {
	t.Helper()

	msg := &entity.Message{
		ID:             entity.NewID(),
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
		Type:           "text",
	}
	require.NoError(t, s.Messages.Create(msg, recipients, nil))
	return msg
}

func TestCursorsAreUniqueAndIncreasing(t *testing.T) {
	s := newTestStore(t)
	conv := seedConversation(t, s, entity.ConversationDirect, 1, 2)

	var prev uint64
	for i := 0; i < 10; i++ {
		msg := sendMessage(t, s, conv.ID, 1, fmt.Sprintf("msg %d", i), []uint64{1, 2})
		require.Greater(t, msg.CursorID, prev, "cursor must strictly increase in commit order")
		prev = msg.CursorID
	}

	last, err := s.Cursor.LastCursor()
	require.NoError(t, err)
	require.Equal(t, uint64(10), last)
}

func TestConcurrentSendsNeverShareACursor(t *testing.T) {
	s := newTestStore(t)
	conv := seedConversation(t, s, entity.ConversationGroup, 1, 2, 3)

	const workers, perWorker = 4, 5

	var wg sync.WaitGroup
	cursors := make(chan uint64, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				msg := &entity.Message{
					ID:             entity.NewID(),
					ConversationID: conv.ID,
					SenderID:       uint64(w + 1),
					Content:        "race",
					Type:           "text",
				}
				if err := s.Messages.Create(msg, []uint64{1, 2, 3}, nil); err != nil {
					t.Errorf("create failed: %v", err)
					return
				}
				cursors <- msg.CursorID
			}
		}(w)
	}
	wg.Wait()
	close(cursors)

	seen := make(map[uint64]bool)
	for cursor := range cursors {
		require.False(t, seen[cursor], "cursor %d handed out twice", cursor)
		seen[cursor] = true
	}
	require.Len(t, seen, workers*perWorker)
}

func TestUpdateCursorCacheIsMonotonic(t *testing.T) {
	s := newTestStore(t)

	s.UpdateCursorCache(7)
	require.Equal(t, uint64(7), s.CachedCursor())

	s.UpdateCursorCache(3)
	require.Equal(t, uint64(7), s.CachedCursor(), "stale value must not regress the cache")

	s.UpdateCursorCache(9)
	require.Equal(t, uint64(9), s.CachedCursor())
}

func TestNewStoreSeedsCacheFromState(t *testing.T) {
	s := newTestStore(t)
	conv := seedConversation(t, s, entity.ConversationDirect, 1, 2)
	sendMessage(t, s, conv.ID, 1, "hello", []uint64{1, 2})
	sendMessage(t, s, conv.ID, 2, "hi", []uint64{1, 2})

	reopened, err := NewStore(s.db)
	require.NoError(t, err)
	require.Equal(t, uint64(2), reopened.CachedCursor())
}
