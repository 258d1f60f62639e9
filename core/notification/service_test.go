package notification_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/notification"
	"github.com/nexscholar/nexscholar/core/user"
	emailsvc "github.com/nexscholar/nexscholar/services/email"
	logsvc "github.com/nexscholar/nexscholar/services/logger"
	inmemdb "github.com/nexscholar/nexscholar/storage/database/inmem"
	testutil "github.com/nexscholar/nexscholar/tests"
)

func setup(t *testing.T) (*notification.Service, user.User, *testutil.Clock) {
	t.Helper()
	conf := core.NewTestConfig()
	logger := logsvc.NewDiscardLogger()
	core.ParseEmailTemplates(conf, logger)
	emailsvc.ResetSentMessages()

	db := inmemdb.Open()
	userRepo := inmemdb.NewUserRepository(db)
	mailer := emailsvc.NewConsoleServiceMock(conf, logger)
	usrSvc := user.NewService(nil, userRepo, mailer, conf)
	usr := testutil.CreateUser(t, userRepo, "Nur Aina", "nuraina", "aina@example.com", "", []string{user.RolePostgraduate}, true)

	clock := testutil.NewClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := notification.NewService(inmemdb.NewNotificationRepository(db), usrSvc, mailer, logger).WithClock(clock.Now)
	return svc, usr, clock
}

func TestService_Notify(t *testing.T) {
	ctx := context.Background()
	svc, usr, _ := setup(t)

	n, err := svc.Notify(ctx, notification.NewNotification{
		RecipientID: usr.ID,
		Topic:       "supervision.request.offered",
		Title:       "You received an offer",
		Body:        "Dr. Aisyah offered to supervise you.",
		Data:        notification.Data{"request_id": "r1"},
		DedupeKey:   "offer:r1",
		Email:       true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.IsRead())

	sent := emailsvc.GetSentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "aina@example.com", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "Dr. Aisyah offered to supervise you.")

	dup, err := svc.Notify(ctx, notification.NewNotification{
		RecipientID: usr.ID,
		Topic:       "supervision.request.offered",
		Title:       "You received an offer",
		DedupeKey:   "offer:r1",
		Email:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, n.ID, dup.ID)
	assert.Len(t, emailsvc.GetSentMessages(), 1, "a duplicate must not be emailed again")

	count, err := svc.UnreadCount(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestService_ReadAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, usr, clock := setup(t)

	ids := make([]string, 3)
	for i := range ids {
		n, err := svc.Notify(ctx, notification.NewNotification{RecipientID: usr.ID, Topic: "board.task.assigned", Title: "Task"})
		require.NoError(t, err)
		ids[i] = n.ID
		clock.Advance(time.Minute)
	}

	list, total, err := svc.List(ctx, usr.ID, notification.QueryFilter{}, core.Pagination{PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, list, 2)
	assert.Equal(t, ids[2], list[0].ID, "newest first")

	n, err := svc.MarkRead(ctx, usr.ID, ids[0])
	require.NoError(t, err)
	assert.True(t, n.IsRead())

	_, total, err = svc.List(ctx, usr.ID, notification.QueryFilter{UnreadOnly: true}, core.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	_, err = svc.MarkRead(ctx, "someone-else", ids[1])
	assert.True(t, core.IsNotFound(err))

	changed, err := svc.MarkAllRead(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	count, err := svc.UnreadCount(ctx, usr.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	assert.True(t, core.IsNotFound(svc.Delete(ctx, "someone-else", ids[1])))
	require.NoError(t, svc.Delete(ctx, usr.ID, ids[1]))
	_, total, err = svc.List(ctx, usr.ID, notification.QueryFilter{}, core.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}
