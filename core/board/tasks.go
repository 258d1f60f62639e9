package board

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/notification"
	"github.com/nexscholar/nexscholar/core/user"
)

// Lists

// CreateList appends a list to the board.
func (svc *Service) CreateList(ctx context.Context, actor user.User, boardID string, in ListInput) (List, error) {
	var l List
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		b, _, err := svc.memberBoard(ctx, actor, boardID, exec)
		if err != nil {
			return err
		}
		lists, err := svc.repo.ListLists(ctx, b.ID, exec)
		if err != nil {
			return errors.Wrap(err, "listing lists")
		}
		now := svc.now().UTC()
		l, err = svc.repo.CreateList(ctx, List{
			BoardID:   b.ID,
			Name:      in.Name,
			Position:  len(lists),
			CreatedAt: now,
			UpdatedAt: now,
		}, exec)
		return errors.Wrap(err, "creating list")
	})
	if err != nil {
		return List{}, err
	}
	return l, nil
}

func (svc *Service) RenameList(ctx context.Context, actor user.User, id string, in ListInput) (List, error) {
	l, _, err := svc.memberList(ctx, actor, id)
	if err != nil {
		return List{}, err
	}
	l.Name = in.Name
	l.UpdatedAt = svc.now().UTC()
	return svc.repo.UpdateList(ctx, l)
}

// DeleteList deletes a list with its tasks and closes the gap in the board's positions.
func (svc *Service) DeleteList(ctx context.Context, actor user.User, id string) error {
	return core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		l, _, err := svc.memberList(ctx, actor, id, exec)
		if err != nil {
			return err
		}
		if err = svc.repo.DeleteList(ctx, l.ID, exec); err != nil {
			return errors.Wrap(err, "deleting list")
		}
		lists, err := svc.repo.ListLists(ctx, l.BoardID, exec)
		if err != nil {
			return errors.Wrap(err, "listing lists")
		}
		return svc.writeListPositions(ctx, lists, exec)
	})
}

func (svc *Service) writeListPositions(ctx context.Context, lists []List, exec core.DBExecutor) error {
	for pos, l := range lists {
		if l.Position == pos {
			continue
		}
		if err := svc.repo.SetListPosition(ctx, l.ID, pos, exec); err != nil {
			return errors.Wrap(err, "setting list position")
		}
	}
	return nil
}

// ReorderLists gives the board's lists the order of `order`, which must name each of them once.
func (svc *Service) ReorderLists(ctx context.Context, actor user.User, boardID string, order ListOrder) ([]List, error) {
	var lists []List
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		b, _, err := svc.memberBoard(ctx, actor, boardID, exec)
		if err != nil {
			return err
		}
		current, err := svc.repo.ListLists(ctx, b.ID, exec)
		if err != nil {
			return errors.Wrap(err, "listing lists")
		}

		byID := make(map[string]List, len(current))
		for _, l := range current {
			byID[l.ID] = l
		}
		invalid := core.NewValidationError(nil, core.FieldError{Field: "list_ids", Error: "must list every list of the board exactly once"})
		if len(order.ListIDs) != len(current) {
			return invalid
		}
		lists = make([]List, 0, len(current))
		for _, id := range order.ListIDs {
			l, ok := byID[id]
			if !ok {
				return invalid
			}
			delete(byID, id)
			lists = append(lists, l)
		}

		if err = svc.writeListPositions(ctx, lists, exec); err != nil {
			return err
		}
		for pos := range lists {
			lists[pos].Position = pos
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lists, nil
}

// Tasks

func (svc *Service) checkAssignee(ws Workspace, assigneeID string) error {
	if assigneeID != "" && !ws.IsMember(assigneeID) {
		return core.NewValidationError(nil, core.FieldError{Field: "assignee_id", Error: "the assignee must be a member of the workspace"})
	}
	return nil
}

func (svc *Service) notifyAssignee(ctx context.Context, actor user.User, t Task) {
	if t.AssigneeID == "" || t.AssigneeID == actor.ID {
		return
	}
	svc.notify(ctx, notification.NewNotification{
		RecipientID: t.AssigneeID,
		Topic:       TopicTaskAssigned,
		Title:       "A task was assigned to you",
		Body:        fmt.Sprintf("%s assigned you %q.", actor.Name, t.Title),
		Data:        notification.Data{"task_id": t.ID, "list_id": t.ListID},
	})
}

// CreateTask appends a task to the list.
func (svc *Service) CreateTask(ctx context.Context, actor user.User, listID string, in TaskInput) (Task, error) {
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	var t Task
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		l, ws, err := svc.memberList(ctx, actor, listID, exec)
		if err != nil {
			return err
		}
		if err = svc.checkAssignee(ws, in.AssigneeID); err != nil {
			return err
		}
		tasks, err := svc.repo.ListTasks(ctx, l.ID, exec)
		if err != nil {
			return errors.Wrap(err, "listing tasks")
		}
		now := svc.now().UTC()
		t = Task{
			ListID:      l.ID,
			Title:       in.Title,
			Description: in.Description,
			DueDate:     in.DueDate,
			AssigneeID:  in.AssigneeID,
			Priority:    in.Priority,
			Completed:   in.Completed,
			Position:    len(tasks),
			CreatedBy:   actor.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if t.Completed {
			t.CompletedAt = &now
		}
		t, err = svc.repo.CreateTask(ctx, t, exec)
		return errors.Wrap(err, "creating task")
	})
	if err != nil {
		return Task{}, err
	}
	svc.notifyAssignee(ctx, actor, t)
	return t, nil
}

func (svc *Service) GetTask(ctx context.Context, actor user.User, id string) (Task, error) {
	t, _, _, err := svc.memberTask(ctx, actor, id)
	return t, err
}

// UpdateTask replaces the editable fields of a task; its list and position are changed by MoveTask.
func (svc *Service) UpdateTask(ctx context.Context, actor user.User, id string, in TaskInput) (Task, error) {
	t, _, ws, err := svc.memberTask(ctx, actor, id)
	if err != nil {
		return Task{}, err
	}
	if err = svc.checkAssignee(ws, in.AssigneeID); err != nil {
		return Task{}, err
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}

	now := svc.now().UTC()
	reassigned := in.AssigneeID != t.AssigneeID
	switch {
	case in.Completed && !t.Completed:
		t.CompletedAt = &now
	case !in.Completed:
		t.CompletedAt = nil
	}
	t.Title = in.Title
	t.Description = in.Description
	t.DueDate = in.DueDate
	t.AssigneeID = in.AssigneeID
	t.Priority = in.Priority
	t.Completed = in.Completed
	t.UpdatedAt = now
	if t, err = svc.repo.UpdateTask(ctx, t); err != nil {
		return Task{}, errors.Wrap(err, "updating task")
	}
	if reassigned {
		svc.notifyAssignee(ctx, actor, t)
	}
	return t, nil
}

// DeleteTask deletes a task and closes the gap in its list's positions.
func (svc *Service) DeleteTask(ctx context.Context, actor user.User, id string) error {
	return core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		t, _, _, err := svc.memberTask(ctx, actor, id, exec)
		if err != nil {
			return err
		}
		if err = svc.repo.DeleteTask(ctx, t.ID, exec); err != nil {
			return errors.Wrap(err, "deleting task")
		}
		tasks, err := svc.repo.ListTasks(ctx, t.ListID, exec)
		if err != nil {
			return errors.Wrap(err, "listing tasks")
		}
		return svc.writeTaskPositions(ctx, t.ListID, tasks, exec)
	})
}

func (svc *Service) writeTaskPositions(ctx context.Context, listID string, tasks []Task, exec core.DBExecutor) error {
	for pos, t := range tasks {
		if t.Position == pos && t.ListID == listID {
			continue
		}
		if err := svc.repo.SetTaskPosition(ctx, t.ID, listID, pos, exec); err != nil {
			return errors.Wrap(err, "setting task position")
		}
	}
	return nil
}

// MoveTask moves a task within its list or to another list of the same board. The positions
// of both lists are rewritten in one transaction.
func (svc *Service) MoveTask(ctx context.Context, actor user.User, id string, mv TaskMove) (Task, error) {
	var t Task
	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var (
			from List
			err  error
		)
		if t, from, _, err = svc.memberTask(ctx, actor, id, exec); err != nil {
			return err
		}
		to := from
		if mv.ListID != from.ID {
			if to, err = svc.repo.GetListByID(ctx, mv.ListID, exec); err != nil {
				if core.IsNotFound(err) {
					return core.NewValidationError(nil, core.FieldError{Field: "list_id", Error: "unknown list"})
				}
				return err
			}
			if to.BoardID != from.BoardID {
				return core.NewValidationError(nil, core.FieldError{Field: "list_id", Error: "tasks can only move within their board"})
			}
		}

		source, err := svc.repo.ListTasks(ctx, from.ID, exec)
		if err != nil {
			return errors.Wrap(err, "listing tasks")
		}
		source = withoutTask(source, t.ID)

		target := source
		if to.ID != from.ID {
			if target, err = svc.repo.ListTasks(ctx, to.ID, exec); err != nil {
				return errors.Wrap(err, "listing tasks")
			}
			if err = svc.writeTaskPositions(ctx, from.ID, source, exec); err != nil {
				return err
			}
		}

		pos := mv.Position
		if pos > len(target) {
			pos = len(target)
		}
		target = append(target[:pos], append([]Task{t}, target[pos:]...)...)
		if err = svc.writeTaskPositions(ctx, to.ID, target, exec); err != nil {
			return err
		}
		t.ListID = to.ID
		t.Position = pos
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

func withoutTask(tasks []Task, id string) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}
