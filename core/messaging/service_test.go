package messaging_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/messaging"
	"github.com/nexscholar/nexscholar/core/notification"
	"github.com/nexscholar/nexscholar/core/user"
	logsvc "github.com/nexscholar/nexscholar/services/logger"
	inmemdb "github.com/nexscholar/nexscholar/storage/database/inmem"
	testutil "github.com/nexscholar/nexscholar/tests"
)

func setup(t *testing.T) (*messaging.Service, *notification.Service, *testutil.Clock, []user.User) {
	t.Helper()
	conf := core.NewTestConfig()
	logger := logsvc.NewDiscardLogger()
	db := inmemdb.Open()
	userRepo := inmemdb.NewUserRepository(db)
	usrSvc := user.NewService(nil, userRepo, nil, conf)
	clock := testutil.NewClock(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC))

	notifSvc := notification.NewService(inmemdb.NewNotificationRepository(db), usrSvc, nil, logger)
	svc := messaging.NewService(nil, inmemdb.NewMessagingRepository(db), usrSvc, notifSvc, logger).WithClock(clock.Now)

	users := []user.User{
		testutil.CreateUser(t, userRepo, "Nur Aina", "nuraina", "nuraina@example.com", "", []string{user.RolePostgraduate}, true),
		testutil.CreateUser(t, userRepo, "Dr. Aisyah", "aisyah", "aisyah@example.com", "", []string{user.RoleAcademician}, true),
		testutil.CreateUser(t, userRepo, "Lim Wei", "limwei", "limwei@example.com", "", []string{user.RoleUndergraduate}, true),
		testutil.CreateUser(t, userRepo, "Gone", "gone", "gone@example.com", "", []string{user.RoleUndergraduate}, false),
	}
	return svc, notifSvc, clock, users
}

func TestService_Start(t *testing.T) {
	ctx := context.Background()
	svc, _, _, users := setup(t)
	aina, aisyah, _, gone := users[0], users[1], users[2], users[3]

	c, err := svc.Start(ctx, aina, aisyah.ID)
	require.NoError(t, err)
	assert.Equal(t, messaging.Participants(aina.ID, aisyah.ID), c.ParticipantIDs)
	assert.Nil(t, c.LastMessageAt)

	again, err := svc.Start(ctx, aisyah, aina.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID, "one conversation per pair")

	tests := []struct {
		name string
		id   string
	}{
		{"self", aina.ID},
		{"unknown", "2b4c2b6e-1c1a-4c33-9d69-0f4ae0e7b7c1"},
		{"inactive", gone.ID},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Start(ctx, aina, tc.id)
			verr, ok := err.(*core.ValidationError)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, "participant_id", verr.Fields[0].Field)
		})
	}
}

func TestService_Send(t *testing.T) {
	ctx := context.Background()
	svc, notifSvc, clock, users := setup(t)
	aina, aisyah, wei := users[0], users[1], users[2]

	c, err := svc.Start(ctx, aina, aisyah.ID)
	require.NoError(t, err)

	_, err = svc.Send(ctx, wei, c.ID, messaging.NewMessage{Body: "hi"})
	assert.Equal(t, core.ErrPermissionDenied, err)
	_, err = svc.Send(ctx, aina, "missing", messaging.NewMessage{Body: "hi"})
	assert.True(t, core.IsNotFound(err))

	long := strings.Repeat("a", 150)
	m, err := svc.Send(ctx, aina, c.ID, messaging.NewMessage{Body: long})
	require.NoError(t, err)
	assert.Equal(t, aina.ID, m.SenderID)
	assert.False(t, m.IsRead())

	ns, _, err := notifSvc.List(ctx, aisyah.ID, notification.QueryFilter{}, core.Pagination{})
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, messaging.TopicMessageReceived, ns[0].Topic)
	assert.Equal(t, "New message from Nur Aina", ns[0].Title)
	assert.Equal(t, strings.Repeat("a", 100)+"…", ns[0].Body)
	assert.Equal(t, c.ID, ns[0].Data["conversation_id"])

	c, err = svc.Get(ctx, aisyah, c.ID)
	require.NoError(t, err)
	require.NotNil(t, c.LastMessageAt)
	assert.Equal(t, clock.Now(), *c.LastMessageAt)

	_, err = svc.Get(ctx, wei, c.ID)
	assert.Equal(t, core.ErrPermissionDenied, err)
}

func TestService_ListAndRead(t *testing.T) {
	ctx := context.Background()
	svc, _, clock, users := setup(t)
	aina, aisyah, wei := users[0], users[1], users[2]

	withAisyah, err := svc.Start(ctx, aina, aisyah.ID)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	withWei, err := svc.Start(ctx, aina, wei.ID)
	require.NoError(t, err)

	convs, total, err := svc.ListConversations(ctx, aina, core.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, withWei.ID, convs[0].ID, "newest first")

	for i, body := range []string{"Hello Dr.", "About my proposal", "Are you free on Monday?"} {
		clock.Advance(time.Minute)
		sender := aina
		if i == 1 {
			sender = aisyah
		}
		_, err = svc.Send(ctx, sender, withAisyah.ID, messaging.NewMessage{Body: body})
		require.NoError(t, err)
	}

	convs, _, err = svc.ListConversations(ctx, aina, core.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, withAisyah.ID, convs[0].ID, "the latest activity comes first")

	msgs, total, err := svc.ListMessages(ctx, aisyah, withAisyah.ID, core.Pagination{Page: 1, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Are you free on Monday?", msgs[0].Body)
	assert.Equal(t, "About my proposal", msgs[1].Body)

	_, _, err = svc.ListMessages(ctx, wei, withAisyah.ID, core.Pagination{})
	assert.Equal(t, core.ErrPermissionDenied, err)

	count, err := svc.UnreadCount(ctx, aisyah)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	count, err = svc.UnreadCount(ctx, aina)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	changed, err := svc.MarkRead(ctx, aisyah, withAisyah.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)
	count, err = svc.UnreadCount(ctx, aisyah)
	require.NoError(t, err)
	assert.Zero(t, count)

	changed, err = svc.MarkRead(ctx, aisyah, withAisyah.ID)
	require.NoError(t, err)
	assert.Zero(t, changed)
}
