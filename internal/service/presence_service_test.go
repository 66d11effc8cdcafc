package service

import (
	"testing"

	"chatserver/internal/clog"
	"chatserver/internal/presence"
	"chatserver/internal/realtime"

	"github.com/stretchr/testify/require"
)

func newPresenceFixture(t *testing.T) (*fixture, PresenceService) {
	t.Helper()

	f := newFixture(t)
	tracker := presence.NewMemoryTracker()
	return f, NewPresenceService(tracker, f.store, f.publisher, clog.Nop())
}

func TestOnlineBroadcastsOnlyOnTransition(t *testing.T) {
	f, presenceService := newPresenceFixture(t)

	_, err := f.conversations.CreateOrReuseDirect(1, 2, nil)
	require.NoError(t, err)
	f.publisher.reset()

	require.NoError(t, presenceService.SetOnline(1))
	require.Len(t, f.publisher.ofType(realtime.EventUserOnline), 1)

	// A heartbeat renews the TTL without re-announcing.
	require.NoError(t, presenceService.SetOnline(1))
	require.Len(t, f.publisher.ofType(realtime.EventUserOnline), 1)

	online, err := presenceService.IsOnline(1)
	require.NoError(t, err)
	require.True(t, online)
}

func TestOfflineCarriesLastSeen(t *testing.T) {
	f, presenceService := newPresenceFixture(t)

	_, err := f.conversations.CreateOrReuseDirect(1, 2, nil)
	require.NoError(t, err)

	require.NoError(t, presenceService.SetOnline(1))
	f.publisher.reset()

	require.NoError(t, presenceService.SetOffline(1))

	offline := f.publisher.ofType(realtime.EventUserOffline)
	require.Len(t, offline, 1)
	require.Contains(t, offline[0].Event.Payload, "last_seen")

	// Going offline while already offline stays silent.
	require.NoError(t, presenceService.SetOffline(1))
	require.Len(t, f.publisher.ofType(realtime.EventUserOffline), 1)
}

func TestTypingRequiresActiveParticipant(t *testing.T) {
	f, presenceService := newPresenceFixture(t)

	conv, err := f.conversations.CreateOrReuseDirect(1, 2, nil)
	require.NoError(t, err)

	require.ErrorIs(t, presenceService.SetTyping(3, conv.ID, true, nil), ErrUnauthorized)

	require.NoError(t, f.conversations.DeleteOrLeave(conv.ID, 2))
	require.ErrorIs(t, presenceService.SetTyping(2, conv.ID, true, nil), ErrUnauthorized)
}

func TestTypingStopWithoutStartStaysSilent(t *testing.T) {
	f, presenceService := newPresenceFixture(t)

	conv, err := f.conversations.CreateOrReuseDirect(1, 2, nil)
	require.NoError(t, err)
	f.publisher.reset()

	require.NoError(t, presenceService.SetTyping(1, conv.ID, false, nil))
	require.Empty(t, f.publisher.ofType(realtime.EventUserTyping))

	require.NoError(t, presenceService.SetTyping(1, conv.ID, true, nil))
	require.NoError(t, presenceService.SetTyping(1, conv.ID, false, nil))
	require.Len(t, f.publisher.ofType(realtime.EventUserTyping), 2)

	typing, err := presenceService.IsTyping(1, conv.ID)
	require.NoError(t, err)
	require.False(t, typing)
}
