package board

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/notification"
	"github.com/nexscholar/nexscholar/core/user"
)

var (
	// errors
	ErrWorkspaceNotFound = core.NewNotFoundError("workspace")
	ErrBoardNotFound     = core.NewNotFoundError("board")
	ErrListNotFound      = core.NewNotFoundError("list")
	ErrTaskNotFound      = core.NewNotFoundError("task")
)

const (
	TopicMemberAdded  = "board.workspace.member_added"
	TopicTaskAssigned = "board.task.assigned"
)

type (
	Repository interface {
		CreateWorkspace(ctx context.Context, ws Workspace, exec ...core.DBExecutor) (Workspace, error)
		GetWorkspaceByID(ctx context.Context, id string, exec ...core.DBExecutor) (Workspace, error)
		// ListWorkspaces returns the workspaces `memberID` belongs to, by name.
		ListWorkspaces(ctx context.Context, memberID string, exec ...core.DBExecutor) ([]Workspace, error)
		UpdateWorkspace(ctx context.Context, ws Workspace, exec ...core.DBExecutor) (Workspace, error)
		// DeleteWorkspace deletes the workspace with its boards, lists and tasks.
		DeleteWorkspace(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateBoard(ctx context.Context, b Board, exec ...core.DBExecutor) (Board, error)
		GetBoardByID(ctx context.Context, id string, exec ...core.DBExecutor) (Board, error)
		// ListBoards returns the boards of a workspace, by name.
		ListBoards(ctx context.Context, workspaceID string, exec ...core.DBExecutor) ([]Board, error)
		UpdateBoard(ctx context.Context, b Board, exec ...core.DBExecutor) (Board, error)
		DeleteBoard(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateList(ctx context.Context, l List, exec ...core.DBExecutor) (List, error)
		GetListByID(ctx context.Context, id string, exec ...core.DBExecutor) (List, error)
		// ListLists returns the lists of a board by position.
		ListLists(ctx context.Context, boardID string, exec ...core.DBExecutor) ([]List, error)
		UpdateList(ctx context.Context, l List, exec ...core.DBExecutor) (List, error)
		SetListPosition(ctx context.Context, id string, position int, exec ...core.DBExecutor) error
		DeleteList(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateTask(ctx context.Context, t Task, exec ...core.DBExecutor) (Task, error)
		GetTaskByID(ctx context.Context, id string, exec ...core.DBExecutor) (Task, error)
		// ListTasks returns the tasks of a list by position.
		ListTasks(ctx context.Context, listID string, exec ...core.DBExecutor) ([]Task, error)
		UpdateTask(ctx context.Context, t Task, exec ...core.DBExecutor) (Task, error)
		SetTaskPosition(ctx context.Context, id, listID string, position int, exec ...core.DBExecutor) error
		DeleteTask(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Notifier interface {
		Notify(ctx context.Context, nn notification.NewNotification, exec ...core.DBExecutor) (notification.Notification, error)
	}

	Service struct {
		db       core.DB
		repo     Repository
		users    UserGetter
		notifier Notifier
		logger   core.Logger
		now      func() time.Time
	}
)

func NewService(db core.DB, repo Repository, users UserGetter, notifier Notifier, logger core.Logger) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		users:    users,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

func (svc *Service) WithClock(now func() time.Time) *Service {
	svc.now = now
	return svc
}

func (svc *Service) notify(ctx context.Context, nn notification.NewNotification) {
	if svc.notifier == nil {
		return
	}
	if _, err := svc.notifier.Notify(ctx, nn); err != nil {
		svc.logger.Error(fmt.Sprintf("board.notify(%s): %v", nn.Topic, err), err)
	}
}

// Access helpers: every read and write goes through the workspace membership.

func (svc *Service) memberWorkspace(ctx context.Context, actor user.User, id string, exec ...core.DBExecutor) (Workspace, error) {
	ws, err := svc.repo.GetWorkspaceByID(ctx, id, exec...)
	if err != nil {
		return Workspace{}, err
	}
	if !ws.IsMember(actor.ID) {
		return Workspace{}, core.ErrPermissionDenied
	}
	return ws, nil
}

func (svc *Service) memberBoard(ctx context.Context, actor user.User, id string, exec ...core.DBExecutor) (Board, Workspace, error) {
	b, err := svc.repo.GetBoardByID(ctx, id, exec...)
	if err != nil {
		return Board{}, Workspace{}, err
	}
	ws, err := svc.memberWorkspace(ctx, actor, b.WorkspaceID, exec...)
	if err != nil {
		return Board{}, Workspace{}, err
	}
	return b, ws, nil
}

func (svc *Service) memberList(ctx context.Context, actor user.User, id string, exec ...core.DBExecutor) (List, Workspace, error) {
	l, err := svc.repo.GetListByID(ctx, id, exec...)
	if err != nil {
		return List{}, Workspace{}, err
	}
	_, ws, err := svc.memberBoard(ctx, actor, l.BoardID, exec...)
	if err != nil {
		return List{}, Workspace{}, err
	}
	return l, ws, nil
}

func (svc *Service) memberTask(ctx context.Context, actor user.User, id string, exec ...core.DBExecutor) (Task, List, Workspace, error) {
	t, err := svc.repo.GetTaskByID(ctx, id, exec...)
	if err != nil {
		return Task{}, List{}, Workspace{}, err
	}
	l, ws, err := svc.memberList(ctx, actor, t.ListID, exec...)
	if err != nil {
		return Task{}, List{}, Workspace{}, err
	}
	return t, l, ws, nil
}

// Workspaces

// CreateWorkspace creates a workspace owned by `actor`, its first member.
func (svc *Service) CreateWorkspace(ctx context.Context, actor user.User, in WorkspaceInput) (Workspace, error) {
	now := svc.now().UTC()
	ws, err := svc.repo.CreateWorkspace(ctx, Workspace{
		OwnerID:     actor.ID,
		Name:        in.Name,
		Description: in.Description,
		MemberIDs:   []string{actor.ID},
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	return ws, errors.Wrap(err, "creating workspace")
}

func (svc *Service) GetWorkspace(ctx context.Context, actor user.User, id string) (Workspace, error) {
	return svc.memberWorkspace(ctx, actor, id)
}

func (svc *Service) ListWorkspaces(ctx context.Context, actor user.User) ([]Workspace, error) {
	return svc.repo.ListWorkspaces(ctx, actor.ID)
}

// UpdateWorkspace renames or redescribes a workspace; only its owner may.
func (svc *Service) UpdateWorkspace(ctx context.Context, actor user.User, id string, in WorkspaceInput) (Workspace, error) {
	ws, err := svc.memberWorkspace(ctx, actor, id)
	if err != nil {
		return Workspace{}, err
	}
	if !ws.IsOwner(actor.ID) {
		return Workspace{}, core.ErrPermissionDenied
	}
	ws.Name = in.Name
	ws.Description = in.Description
	ws.UpdatedAt = svc.now().UTC()
	return svc.repo.UpdateWorkspace(ctx, ws)
}

func (svc *Service) DeleteWorkspace(ctx context.Context, actor user.User, id string) error {
	ws, err := svc.memberWorkspace(ctx, actor, id)
	if err != nil {
		return err
	}
	if !ws.IsOwner(actor.ID) {
		return core.ErrPermissionDenied
	}
	return svc.repo.DeleteWorkspace(ctx, id)
}

// AddMember lets the owner bring an active user into the workspace.
func (svc *Service) AddMember(ctx context.Context, actor user.User, id string, m Member) (Workspace, error) {
	ws, err := svc.memberWorkspace(ctx, actor, id)
	if err != nil {
		return Workspace{}, err
	}
	if !ws.IsOwner(actor.ID) {
		return Workspace{}, core.ErrPermissionDenied
	}
	usr, err := svc.users.GetByID(ctx, m.UserID)
	if err != nil && !core.IsNotFound(err) {
		return Workspace{}, errors.Wrap(err, "finding user by ID")
	}
	if err != nil || !usr.IsActive {
		return Workspace{}, core.NewValidationError(nil, core.FieldError{Field: "user_id", Error: "unknown user"})
	}
	if ws.IsMember(usr.ID) {
		return ws, nil
	}

	ws.MemberIDs = append(ws.MemberIDs, usr.ID)
	ws.UpdatedAt = svc.now().UTC()
	if ws, err = svc.repo.UpdateWorkspace(ctx, ws); err != nil {
		return Workspace{}, errors.Wrap(err, "updating workspace")
	}
	svc.notify(ctx, notification.NewNotification{
		RecipientID: usr.ID,
		Topic:       TopicMemberAdded,
		Title:       "You joined a workspace",
		Body:        fmt.Sprintf("%s added you to %q.", actor.Name, ws.Name),
		Data:        notification.Data{"workspace_id": ws.ID},
	})
	return ws, nil
}

// RemoveMember takes `userID` out of the workspace: the owner may remove anybody but
// themselves, members may leave. Tasks assigned to the leaving member are unassigned.
func (svc *Service) RemoveMember(ctx context.Context, actor user.User, id, userID string) (Workspace, error) {
	var ws Workspace
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		if ws, err = svc.memberWorkspace(ctx, actor, id, exec); err != nil {
			return err
		}
		if !ws.IsOwner(actor.ID) && actor.ID != userID {
			return core.ErrPermissionDenied
		}
		if ws.IsOwner(userID) {
			return core.NewTransitionError("the owner cannot leave the workspace")
		}
		if !ws.IsMember(userID) {
			return nil
		}

		members := make([]string, 0, len(ws.MemberIDs)-1)
		for _, memberID := range ws.MemberIDs {
			if memberID != userID {
				members = append(members, memberID)
			}
		}
		ws.MemberIDs = members
		ws.UpdatedAt = svc.now().UTC()
		if ws, err = svc.repo.UpdateWorkspace(ctx, ws, exec); err != nil {
			return errors.Wrap(err, "updating workspace")
		}
		return svc.unassign(ctx, ws.ID, userID, exec)
	})
	if err != nil {
		return Workspace{}, err
	}
	return ws, nil
}

func (svc *Service) unassign(ctx context.Context, workspaceID, userID string, exec core.DBExecutor) error {
	boards, err := svc.repo.ListBoards(ctx, workspaceID, exec)
	if err != nil {
		return errors.Wrap(err, "listing boards")
	}
	for _, b := range boards {
		lists, err := svc.repo.ListLists(ctx, b.ID, exec)
		if err != nil {
			return errors.Wrap(err, "listing lists")
		}
		for _, l := range lists {
			tasks, err := svc.repo.ListTasks(ctx, l.ID, exec)
			if err != nil {
				return errors.Wrap(err, "listing tasks")
			}
			for _, t := range tasks {
				if t.AssigneeID != userID {
					continue
				}
				t.AssigneeID = ""
				t.UpdatedAt = svc.now().UTC()
				if _, err = svc.repo.UpdateTask(ctx, t, exec); err != nil {
					return errors.Wrap(err, "unassigning task")
				}
			}
		}
	}
	return nil
}

// Boards

func (svc *Service) CreateBoard(ctx context.Context, actor user.User, workspaceID string, in BoardInput) (Board, error) {
	if _, err := svc.memberWorkspace(ctx, actor, workspaceID); err != nil {
		return Board{}, err
	}
	now := svc.now().UTC()
	b, err := svc.repo.CreateBoard(ctx, Board{
		WorkspaceID: workspaceID,
		Name:        in.Name,
		Description: in.Description,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	return b, errors.Wrap(err, "creating board")
}

func (svc *Service) ListBoards(ctx context.Context, actor user.User, workspaceID string) ([]Board, error) {
	if _, err := svc.memberWorkspace(ctx, actor, workspaceID); err != nil {
		return nil, err
	}
	return svc.repo.ListBoards(ctx, workspaceID)
}

// GetBoard returns a board with its lists and their tasks, in position order.
func (svc *Service) GetBoard(ctx context.Context, actor user.User, id string) (BoardDetail, error) {
	b, _, err := svc.memberBoard(ctx, actor, id)
	if err != nil {
		return BoardDetail{}, err
	}
	lists, err := svc.repo.ListLists(ctx, b.ID)
	if err != nil {
		return BoardDetail{}, errors.Wrap(err, "listing lists")
	}
	detail := BoardDetail{Board: b, Lists: make([]ListWithTasks, 0, len(lists))}
	for _, l := range lists {
		tasks, err := svc.repo.ListTasks(ctx, l.ID)
		if err != nil {
			return BoardDetail{}, errors.Wrap(err, "listing tasks")
		}
		detail.Lists = append(detail.Lists, ListWithTasks{List: l, Tasks: tasks})
	}
	return detail, nil
}

func (svc *Service) UpdateBoard(ctx context.Context, actor user.User, id string, in BoardInput) (Board, error) {
	b, _, err := svc.memberBoard(ctx, actor, id)
	if err != nil {
		return Board{}, err
	}
	b.Name = in.Name
	b.Description = in.Description
	b.UpdatedAt = svc.now().UTC()
	return svc.repo.UpdateBoard(ctx, b)
}

// DeleteBoard deletes a board with its lists and tasks; its creator or the workspace owner may.
func (svc *Service) DeleteBoard(ctx context.Context, actor user.User, id string) error {
	b, ws, err := svc.memberBoard(ctx, actor, id)
	if err != nil {
		return err
	}
	if b.CreatedBy != actor.ID && !ws.IsOwner(actor.ID) {
		return core.ErrPermissionDenied
	}
	return svc.repo.DeleteBoard(ctx, id)
}
