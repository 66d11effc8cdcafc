package presence

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func newRedisTestTracker(t *testing.T) (*RedisTracker, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)
	tracker := NewRedisTrackerFromClient(redis.NewClient(&redis.Options{Addr: srv.Addr()}))
	t.Cleanup(func() { tracker.Close() })
	return tracker, srv
}

func TestRedisOnlineLifecycle(t *testing.T) {
	tracker, srv := newRedisTestTracker(t)

	if err := tracker.SetOnline(7); err != nil {
		t.Fatalf("SetOnline failed: %v", err)
	}
	if online, _ := tracker.IsOnline(7); !online {
		t.Error("expected user to be online")
	}

	// The key TTL does the expiry; no sweeper involved.
	srv.FastForward(OnlineTTL + time.Second)
	if online, _ := tracker.IsOnline(7); online {
		t.Error("expected the online key to expire")
	}

	seen, err := tracker.LastSeen(7)
	if err != nil {
		t.Fatalf("LastSeen failed: %v", err)
	}
	if seen == nil {
		t.Error("last seen must survive the online key expiring")
	}
}

func TestRedisSetOfflineDeletesTheKey(t *testing.T) {
	tracker, _ := newRedisTestTracker(t)

	tracker.SetOnline(7)
	if err := tracker.SetOffline(7); err != nil {
		t.Fatalf("SetOffline failed: %v", err)
	}
	if online, _ := tracker.IsOnline(7); online {
		t.Error("expected user to be offline immediately")
	}
	if seen, _ := tracker.LastSeen(7); seen == nil {
		t.Error("expected a last seen timestamp after disconnect")
	}
}

func TestRedisTypingExpiry(t *testing.T) {
	tracker, srv := newRedisTestTracker(t)

	tracker.SetTyping(7, "conv", true)
	if typing, _ := tracker.IsTyping(7, "conv"); !typing {
		t.Error("expected typing right after the signal")
	}

	srv.FastForward(TypingTTL + time.Second)
	if typing, _ := tracker.IsTyping(7, "conv"); typing {
		t.Error("expected the typing key to expire")
	}

	tracker.SetTyping(7, "conv", true)
	tracker.SetTyping(7, "conv", false)
	if typing, _ := tracker.IsTyping(7, "conv"); typing {
		t.Error("an explicit stop deletes the key immediately")
	}
}

func TestRedisLastSeenUnknownUser(t *testing.T) {
	tracker, _ := newRedisTestTracker(t)

	seen, err := tracker.LastSeen(42)
	if err != nil {
		t.Fatalf("LastSeen failed: %v", err)
	}
	if seen != nil {
		t.Errorf("never-seen user has no last seen, got %v", seen)
	}
}
