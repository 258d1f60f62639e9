package board_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/board"
	"github.com/nexscholar/nexscholar/core/notification"
	"github.com/nexscholar/nexscholar/core/user"
	logsvc "github.com/nexscholar/nexscholar/services/logger"
	inmemdb "github.com/nexscholar/nexscholar/storage/database/inmem"
	testutil "github.com/nexscholar/nexscholar/tests"
)

type fixture struct {
	svc      *board.Service
	notifSvc *notification.Service

	owner, member, outsider user.User
}

func setup(t *testing.T) fixture {
	t.Helper()
	logger := logsvc.NewDiscardLogger()
	db := inmemdb.Open()
	userRepo := inmemdb.NewUserRepository(db)
	usrSvc := user.NewService(nil, userRepo, nil, core.NewTestConfig())
	clock := testutil.NewClock(time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC))
	notifSvc := notification.NewService(inmemdb.NewNotificationRepository(db), usrSvc, nil, logger)

	return fixture{
		svc:      board.NewService(nil, inmemdb.NewBoardRepository(db), usrSvc, notifSvc, logger).WithClock(clock.Now),
		notifSvc: notifSvc,
		owner:    testutil.CreateUser(t, userRepo, "Dr. Aisyah", "aisyah", "aisyah@example.com", "", []string{user.RoleAcademician}, true),
		member:   testutil.CreateUser(t, userRepo, "Nur Aina", "nuraina", "nuraina@example.com", "", []string{user.RolePostgraduate}, true),
		outsider: testutil.CreateUser(t, userRepo, "Lim Wei", "limwei", "limwei@example.com", "", []string{user.RoleUndergraduate}, true),
	}
}

func (f fixture) workspace(t *testing.T) board.Workspace {
	t.Helper()
	ctx := context.Background()
	ws, err := f.svc.CreateWorkspace(ctx, f.owner, board.WorkspaceInput{Name: "Thesis lab"})
	require.NoError(t, err)
	ws, err = f.svc.AddMember(ctx, f.owner, ws.ID, board.Member{UserID: f.member.ID})
	require.NoError(t, err)
	return ws
}

func taskTitles(tasks []board.Task) []string {
	titles := make([]string, len(tasks))
	for i, t := range tasks {
		titles[i] = t.Title
	}
	return titles
}

func TestService_Workspace(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	ws := f.workspace(t)
	assert.Equal(t, []string{f.owner.ID, f.member.ID}, ws.MemberIDs)

	ns, _, err := f.notifSvc.List(ctx, f.member.ID, notification.QueryFilter{}, core.Pagination{})
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, board.TopicMemberAdded, ns[0].Topic)

	ws, err = f.svc.AddMember(ctx, f.owner, ws.ID, board.Member{UserID: f.member.ID})
	require.NoError(t, err)
	assert.Len(t, ws.MemberIDs, 2, "adding twice is a no-op")

	_, err = f.svc.AddMember(ctx, f.member, ws.ID, board.Member{UserID: f.outsider.ID})
	assert.Equal(t, core.ErrPermissionDenied, err, "only the owner manages members")
	_, err = f.svc.AddMember(ctx, f.owner, ws.ID, board.Member{UserID: "4f1c8a50-8d59-4cf3-9b49-3d0a1a5fe0a4"})
	_, ok := err.(*core.ValidationError)
	assert.True(t, ok)

	_, err = f.svc.GetWorkspace(ctx, f.outsider, ws.ID)
	assert.Equal(t, core.ErrPermissionDenied, err)
	_, err = f.svc.UpdateWorkspace(ctx, f.member, ws.ID, board.WorkspaceInput{Name: "Mine"})
	assert.Equal(t, core.ErrPermissionDenied, err)
	ws, err = f.svc.UpdateWorkspace(ctx, f.owner, ws.ID, board.WorkspaceInput{Name: "Thesis lab 2024", Description: "Weekly goals"})
	require.NoError(t, err)
	assert.Equal(t, "Thesis lab 2024", ws.Name)

	list, err := f.svc.ListWorkspaces(ctx, f.member)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = f.svc.ListWorkspaces(ctx, f.outsider)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.svc.RemoveMember(ctx, f.owner, ws.ID, f.owner.ID)
	assert.True(t, core.IsTransition(err), "the owner cannot leave")
	_, err = f.svc.RemoveMember(ctx, f.outsider, ws.ID, f.member.ID)
	assert.Equal(t, core.ErrPermissionDenied, err)

	assert.Equal(t, core.ErrPermissionDenied, f.svc.DeleteWorkspace(ctx, f.member, ws.ID))
	require.NoError(t, f.svc.DeleteWorkspace(ctx, f.owner, ws.ID))
	_, err = f.svc.GetWorkspace(ctx, f.owner, ws.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestService_BoardAndLists(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	ws := f.workspace(t)

	_, err := f.svc.CreateBoard(ctx, f.outsider, ws.ID, board.BoardInput{Name: "x"})
	assert.Equal(t, core.ErrPermissionDenied, err)

	b, err := f.svc.CreateBoard(ctx, f.member, ws.ID, board.BoardInput{Name: "Chapter 3"})
	require.NoError(t, err)

	var ids []string
	for _, name := range []string{"To do", "Doing", "Done"} {
		l, err := f.svc.CreateList(ctx, f.member, b.ID, board.ListInput{Name: name})
		require.NoError(t, err)
		assert.Equal(t, len(ids), l.Position)
		ids = append(ids, l.ID)
	}

	_, err = f.svc.ReorderLists(ctx, f.member, b.ID, board.ListOrder{ListIDs: ids[:2]})
	_, ok := err.(*core.ValidationError)
	assert.True(t, ok, "every list must be named")
	_, err = f.svc.ReorderLists(ctx, f.member, b.ID, board.ListOrder{ListIDs: []string{ids[0], ids[0], ids[1]}})
	_, ok = err.(*core.ValidationError)
	assert.True(t, ok, "each list once")

	lists, err := f.svc.ReorderLists(ctx, f.member, b.ID, board.ListOrder{ListIDs: []string{ids[2], ids[0], ids[1]}})
	require.NoError(t, err)
	assert.Equal(t, "Done", lists[0].Name)

	detail, err := f.svc.GetBoard(ctx, f.owner, b.ID)
	require.NoError(t, err)
	require.Len(t, detail.Lists, 3)
	assert.Equal(t, []string{"Done", "To do", "Doing"}, []string{detail.Lists[0].Name, detail.Lists[1].Name, detail.Lists[2].Name})

	require.NoError(t, f.svc.DeleteList(ctx, f.member, ids[0]))
	detail, err = f.svc.GetBoard(ctx, f.owner, b.ID)
	require.NoError(t, err)
	require.Len(t, detail.Lists, 2)
	assert.Equal(t, 0, detail.Lists[0].Position)
	assert.Equal(t, 1, detail.Lists[1].Position, "positions stay contiguous")

	l, err := f.svc.RenameList(ctx, f.owner, ids[1], board.ListInput{Name: "In progress"})
	require.NoError(t, err)
	assert.Equal(t, "In progress", l.Name)

	boards, err := f.svc.ListBoards(ctx, f.owner, ws.ID)
	require.NoError(t, err)
	assert.Len(t, boards, 1)

	other, err := f.svc.CreateBoard(ctx, f.owner, ws.ID, board.BoardInput{Name: "Admin"})
	require.NoError(t, err)
	assert.Equal(t, core.ErrPermissionDenied, f.svc.DeleteBoard(ctx, f.member, other.ID), "neither creator nor owner")
	require.NoError(t, f.svc.DeleteBoard(ctx, f.owner, b.ID), "the owner may delete any board")
	_, err = f.svc.RenameList(ctx, f.owner, ids[1], board.ListInput{Name: "x"})
	assert.True(t, core.IsNotFound(err), "lists go with their board")
}

func TestService_Tasks(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	ws := f.workspace(t)
	b, err := f.svc.CreateBoard(ctx, f.owner, ws.ID, board.BoardInput{Name: "Chapter 3"})
	require.NoError(t, err)
	todo, err := f.svc.CreateList(ctx, f.owner, b.ID, board.ListInput{Name: "To do"})
	require.NoError(t, err)
	done, err := f.svc.CreateList(ctx, f.owner, b.ID, board.ListInput{Name: "Done"})
	require.NoError(t, err)

	_, err = f.svc.CreateTask(ctx, f.owner, todo.ID, board.TaskInput{Title: "x", AssigneeID: f.outsider.ID})
	_, ok := err.(*core.ValidationError)
	assert.True(t, ok, "assignees must be members")

	var tasks []board.Task
	for _, title := range []string{"Literature review", "Draft methodology", "Collect data"} {
		task, err := f.svc.CreateTask(ctx, f.owner, todo.ID, board.TaskInput{Title: title, AssigneeID: f.member.ID})
		require.NoError(t, err)
		tasks = append(tasks, task)
	}
	assert.Equal(t, board.PriorityMedium, tasks[0].Priority)
	assert.Equal(t, 2, tasks[2].Position)

	ns, total, err := f.notifSvc.List(ctx, f.member.ID, notification.QueryFilter{}, core.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 4, total, "1 membership + 3 assignments")
	assert.Equal(t, board.TopicTaskAssigned, ns[0].Topic)

	// reorder within the list
	moved, err := f.svc.MoveTask(ctx, f.member, tasks[2].ID, board.TaskMove{ListID: todo.ID, Position: 0})
	require.NoError(t, err)
	assert.Equal(t, 0, moved.Position)
	detail, err := f.svc.GetBoard(ctx, f.member, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Collect data", "Literature review", "Draft methodology"}, taskTitles(detail.Lists[0].Tasks))

	// across lists, position clamped
	moved, err = f.svc.MoveTask(ctx, f.member, tasks[0].ID, board.TaskMove{ListID: done.ID, Position: 10})
	require.NoError(t, err)
	assert.Equal(t, done.ID, moved.ListID)
	assert.Equal(t, 0, moved.Position)
	detail, err = f.svc.GetBoard(ctx, f.member, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Collect data", "Draft methodology"}, taskTitles(detail.Lists[0].Tasks))
	assert.Equal(t, 1, detail.Lists[0].Tasks[1].Position)
	assert.Equal(t, []string{"Literature review"}, taskTitles(detail.Lists[1].Tasks))

	otherBoard, err := f.svc.CreateBoard(ctx, f.owner, ws.ID, board.BoardInput{Name: "Other"})
	require.NoError(t, err)
	otherList, err := f.svc.CreateList(ctx, f.owner, otherBoard.ID, board.ListInput{Name: "Backlog"})
	require.NoError(t, err)
	_, err = f.svc.MoveTask(ctx, f.member, tasks[1].ID, board.TaskMove{ListID: otherList.ID})
	_, ok = err.(*core.ValidationError)
	assert.True(t, ok, "tasks stay on their board")

	// completion
	due := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	updated, err := f.svc.UpdateTask(ctx, f.member, tasks[0].ID, board.TaskInput{
		Title: "Literature review", Priority: board.PriorityHigh, Completed: true, DueDate: &due, AssigneeID: f.member.ID,
	})
	require.NoError(t, err)
	assert.True(t, updated.Completed)
	assert.NotNil(t, updated.CompletedAt)
	assert.Equal(t, board.PriorityHigh, updated.Priority)
	assert.Equal(t, done.ID, updated.ListID, "updates keep the list")

	_, err = f.svc.GetTask(ctx, f.outsider, tasks[0].ID)
	assert.Equal(t, core.ErrPermissionDenied, err)

	// leaving unassigns
	_, err = f.svc.RemoveMember(ctx, f.member, ws.ID, f.member.ID)
	require.NoError(t, err)
	task, err := f.svc.GetTask(ctx, f.owner, tasks[1].ID)
	require.NoError(t, err)
	assert.Empty(t, task.AssigneeID)

	require.NoError(t, f.svc.DeleteTask(ctx, f.owner, tasks[2].ID))
	detail, err = f.svc.GetBoard(ctx, f.owner, b.ID)
	require.NoError(t, err)
	require.Len(t, detail.Lists[0].Tasks, 1)
	assert.Equal(t, 0, detail.Lists[0].Tasks[0].Position)
}
