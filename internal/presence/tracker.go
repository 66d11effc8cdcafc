package presence

import (
	"sync"
	"time"
)

const (
	OnlineTTL = 5 * time.Minute
	TypingTTL = 10 * time.Second
)

// Tracker holds ephemeral online/typing state with TTL expiry. Nothing here
// is persisted: an entry that is not renewed simply lapses. Reads tolerate
// TTL-grained staleness; no stronger consistency is promised.
type Tracker interface {
	SetOnline(userID uint64) error
	SetOffline(userID uint64) error
	SetTyping(userID uint64, conversationID string, typing bool) error
	IsOnline(userID uint64) (bool, error)
	IsTyping(userID uint64, conversationID string) (bool, error)
	LastSeen(userID uint64) (*time.Time, error)
}

type typingKey struct {
	userID         uint64
	conversationID string
}

// MemoryTracker keeps presence in locked maps, expiring entries on read and
// sweeping on write. Used when no redis address is configured.
type MemoryTracker struct {
	lock sync.RWMutex
	now  func() time.Time

	online   map[uint64]time.Time // expiry per user
	lastSeen map[uint64]time.Time // last heartbeat, survives expiry
	typing   map[typingKey]time.Time
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		now:      time.Now,
		online:   make(map[uint64]time.Time),
		lastSeen: make(map[uint64]time.Time),
		typing:   make(map[typingKey]time.Time),
	}
}

func (t *MemoryTracker) SetOnline(userID uint64) error {
	now := t.now()
	t.lock.Lock()
	defer t.lock.Unlock()

	t.sweepLocked(now)
	t.online[userID] = now.Add(OnlineTTL)
	t.lastSeen[userID] = now
	return nil
}

func (t *MemoryTracker) SetOffline(userID uint64) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if _, ok := t.online[userID]; ok {
		delete(t.online, userID)
		t.lastSeen[userID] = t.now()
	}
	return nil
}

func (t *MemoryTracker) SetTyping(userID uint64, conversationID string, typing bool) error {
	now := t.now()
	key := typingKey{userID, conversationID}

	t.lock.Lock()
	defer t.lock.Unlock()

	t.sweepLocked(now)
	if typing {
		t.typing[key] = now.Add(TypingTTL)
	} else {
		// Explicit stop removes the entry immediately instead of waiting
		// for the TTL, so the remote UI clears promptly.
		delete(t.typing, key)
	}
	return nil
}

func (t *MemoryTracker) IsOnline(userID uint64) (bool, error) {
	t.lock.RLock()
	defer t.lock.RUnlock()

	expiry, ok := t.online[userID]
	return ok && t.now().Before(expiry), nil
}

func (t *MemoryTracker) IsTyping(userID uint64, conversationID string) (bool, error) {
	t.lock.RLock()
	defer t.lock.RUnlock()

	expiry, ok := t.typing[typingKey{userID, conversationID}]
	return ok && t.now().Before(expiry), nil
}

func (t *MemoryTracker) LastSeen(userID uint64) (*time.Time, error) {
	t.lock.RLock()
	defer t.lock.RUnlock()

	seen, ok := t.lastSeen[userID]
	if !ok {
		return nil, nil
	}
	return &seen, nil
}

func (t *MemoryTracker) sweepLocked(now time.Time) {
	for userID, expiry := range t.online {
		if !now.Before(expiry) {
			delete(t.online, userID)
		}
	}
	for key, expiry := range t.typing {
		if !now.Before(expiry) {
			delete(t.typing, key)
		}
	}
}
