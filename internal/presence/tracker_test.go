package presence

import (
	"testing"
	"time"
)

// fakeClock lets the tests move time instead of sleeping.
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time          { return c.current }
func (c *fakeClock) advance(d time.Duration) { c.current = c.current.Add(d) }

func newFakeTracker() (*MemoryTracker, *fakeClock) {
	clock := &fakeClock{current: time.Unix(1_700_000_000, 0)}
	tracker := NewMemoryTracker()
	tracker.now = clock.now
	return tracker, clock
}

func TestOnlineExpiresAfterTTL(t *testing.T) {
	tracker, clock := newFakeTracker()

	if err := tracker.SetOnline(7); err != nil {
		t.Fatalf("SetOnline failed: %v", err)
	}

	online, _ := tracker.IsOnline(7)
	if !online {
		t.Error("expected user to be online right after the heartbeat")
	}

	clock.advance(OnlineTTL - time.Second)
	if online, _ = tracker.IsOnline(7); !online {
		t.Error("expected user to still be online inside the TTL")
	}

	clock.advance(2 * time.Second)
	if online, _ = tracker.IsOnline(7); online {
		t.Error("expected the entry to lapse after the TTL")
	}
}

func TestHeartbeatRenewsTheTTL(t *testing.T) {
	tracker, clock := newFakeTracker()

	tracker.SetOnline(7)
	clock.advance(OnlineTTL - time.Second)
	tracker.SetOnline(7)
	clock.advance(OnlineTTL - time.Second)

	if online, _ := tracker.IsOnline(7); !online {
		t.Error("a renewed heartbeat must restart the TTL window")
	}
}

func TestLastSeenSurvivesExpiry(t *testing.T) {
	tracker, clock := newFakeTracker()

	tracker.SetOnline(7)
	heartbeat := clock.current
	clock.advance(OnlineTTL + time.Minute)

	if online, _ := tracker.IsOnline(7); online {
		t.Fatal("expected the online entry to be gone")
	}
	seen, _ := tracker.LastSeen(7)
	if seen == nil || !seen.Equal(heartbeat) {
		t.Errorf("expected last seen %v, got %v", heartbeat, seen)
	}
}

func TestExplicitOfflineRecordsLastSeen(t *testing.T) {
	tracker, clock := newFakeTracker()

	tracker.SetOnline(7)
	clock.advance(time.Minute)
	tracker.SetOffline(7)

	if online, _ := tracker.IsOnline(7); online {
		t.Error("expected user to be offline immediately")
	}
	seen, _ := tracker.LastSeen(7)
	if seen == nil || !seen.Equal(clock.current) {
		t.Errorf("expected last seen at the disconnect, got %v", seen)
	}
}

func TestTypingExpiresOnItsOwnTTL(t *testing.T) {
	tracker, clock := newFakeTracker()

	tracker.SetTyping(7, "conv", true)
	if typing, _ := tracker.IsTyping(7, "conv"); !typing {
		t.Error("expected typing right after the signal")
	}
	if typing, _ := tracker.IsTyping(7, "other"); typing {
		t.Error("typing is scoped per conversation")
	}

	clock.advance(TypingTTL + time.Second)
	if typing, _ := tracker.IsTyping(7, "conv"); typing {
		t.Error("expected the typing entry to lapse")
	}
}

func TestExplicitTypingStopClearsImmediately(t *testing.T) {
	tracker, _ := newFakeTracker()

	tracker.SetTyping(7, "conv", true)
	tracker.SetTyping(7, "conv", false)

	if typing, _ := tracker.IsTyping(7, "conv"); typing {
		t.Error("an explicit stop must not wait for the TTL")
	}
}

func TestUnknownUserReadsAsAbsent(t *testing.T) {
	tracker, _ := newFakeTracker()

	if online, _ := tracker.IsOnline(99); online {
		t.Error("never-seen user must read as offline")
	}
	if seen, _ := tracker.LastSeen(99); seen != nil {
		t.Errorf("never-seen user has no last seen, got %v", seen)
	}
}
