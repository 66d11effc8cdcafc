package repository

import (
	"testing"
	"time"

	"chatserver/internal/entity"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestFindDirectBetweenIgnoresMembershipState(t *testing.T) {
	s := newTestStore(t)
	conv := seedConversation(t, s, entity.ConversationDirect, 1, 2)

	// An inactive side must still resolve to the same conversation.
	require.NoError(t, s.Conversations.SetParticipantActive(conv.ID, 2, false, time.Now()))

	found, err := s.Conversations.FindDirectBetween(2, 1)
	require.NoError(t, err)
	require.Equal(t, conv.ID, found.ID)

	_, err = s.Conversations.FindDirectBetween(1, 3)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestFindDirectBetweenSkipsGroups(t *testing.T) {
	s := newTestStore(t)
	seedConversation(t, s, entity.ConversationGroup, 1, 2)

	_, err := s.Conversations.FindDirectBetween(1, 2)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDirectPairKeyIsUniqueAtTheStore(t *testing.T) {
	s := newTestStore(t)
	seedConversation(t, s, entity.ConversationDirect, 1, 2)

	// A second row for the same pair must be rejected by the store itself,
	// not just by the lookup in the service. The key is canonical, so the
	// reversed pair collides too.
	pairKey := entity.PairKey(2, 1)
	dupe := &entity.Conversation{
		ID:        entity.NewID(),
		Type:      entity.ConversationDirect,
		CreatorID: 2,
		DirectKey: &pairKey,
	}
	err := s.Conversations.Create(dupe, []entity.ConversationParticipant{
		{ConversationID: dupe.ID, UserID: 2, Role: entity.RoleAdmin, JoinedAt: time.Now(), IsActive: true},
		{ConversationID: dupe.ID, UserID: 1, Role: entity.RoleMember, JoinedAt: time.Now(), IsActive: true},
	})
	require.Error(t, err)

	// Groups carry no key, so any number of them may share the same members.
	seedConversation(t, s, entity.ConversationGroup, 1, 2)
	seedConversation(t, s, entity.ConversationGroup, 1, 2)
}

func TestParticipantIDsFiltersByActivity(t *testing.T) {
	s := newTestStore(t)
	conv := seedConversation(t, s, entity.ConversationGroup, 1, 2, 3)

	require.NoError(t, s.Conversations.SetParticipantActive(conv.ID, 3, false, time.Now()))

	active, err := s.Conversations.ParticipantIDs(conv.ID, true)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{1, 2}, active)

	all, err := s.Conversations.ParticipantIDs(conv.ID, false)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint64{1, 2, 3}, all)
}

func TestDeactivateAllAndCountActive(t *testing.T) {
	s := newTestStore(t)
	conv := seedConversation(t, s, entity.ConversationGroup, 1, 2, 3)

	n, err := s.Conversations.CountActive(conv.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	require.NoError(t, s.Conversations.DeactivateAll(conv.ID, time.Now()))

	n, err = s.Conversations.CountActive(conv.ID)
	require.NoError(t, err)
	require.Zero(t, n)

	part, err := s.Conversations.GetParticipant(conv.ID, 2)
	require.NoError(t, err)
	require.NotNil(t, part.LeftAt)
}

func TestHardDeleteRemovesMembershipRows(t *testing.T) {
	s := newTestStore(t)
	conv := seedConversation(t, s, entity.ConversationDirect, 1, 2)

	require.NoError(t, s.Conversations.HardDelete(conv.ID))

	_, err := s.Conversations.GetByID(conv.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = s.Conversations.GetParticipant(conv.ID, 1)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// A fresh direct conversation between the pair starts from scratch.
	_, err = s.Conversations.FindDirectBetween(1, 2)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestListForUserOnlyShowsActiveMemberships(t *testing.T) {
	s := newTestStore(t)
	stays := seedConversation(t, s, entity.ConversationDirect, 1, 2)
	left := seedConversation(t, s, entity.ConversationDirect, 1, 3)

	require.NoError(t, s.Conversations.SetParticipantActive(left.ID, 1, false, time.Now()))

	convs, err := s.Conversations.ListForUser(1, 10)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, stays.ID, convs[0].ID)
}

func TestSetLastReadAdvancesWatermark(t *testing.T) {
	s := newTestStore(t)
	conv := seedConversation(t, s, entity.ConversationDirect, 1, 2)

	at := time.Now().Truncate(time.Second)
	require.NoError(t, s.Conversations.SetLastRead(conv.ID, 2, at))

	part, err := s.Conversations.GetParticipant(conv.ID, 2)
	require.NoError(t, err)
	require.NotNil(t, part.LastReadAt)
	require.WithinDuration(t, at, *part.LastReadAt, time.Second)
}
