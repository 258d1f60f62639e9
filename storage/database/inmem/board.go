package inmemdb

import (
	"context"
	"strings"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/board"
)

// boardRepository locks its tables in the order workspace, board, list, task.
type boardRepository struct {
	workspace *table[board.Workspace]
	board     *table[board.Board]
	list      *table[board.List]
	task      *table[board.Task]
}

var _ board.Repository = (*boardRepository)(nil)

func NewBoardRepository(db *DB) board.Repository {
	return &boardRepository{
		workspace: db.workspace,
		board:     db.board,
		list:      db.list,
		task:      db.task,
	}
}

func byName[T any](name func(T) string) map[string]lessFunc[T] {
	return map[string]lessFunc[T]{
		"name": func(a, b T) int { return strings.Compare(strings.ToLower(name(a)), strings.ToLower(name(b))) },
	}
}

// Workspaces

func (repo *boardRepository) CreateWorkspace(_ context.Context, ws board.Workspace, _ ...core.DBExecutor) (board.Workspace, error) {
	repo.workspace.mutex.Lock()
	defer repo.workspace.mutex.Unlock()

	ws.ID = newID()
	ws.MemberIDs = append([]string(nil), ws.MemberIDs...)
	repo.workspace.insert(ws.ID, ws)
	return ws, nil
}

func (repo *boardRepository) GetWorkspaceByID(_ context.Context, id string, _ ...core.DBExecutor) (board.Workspace, error) {
	ws, err := get(repo.workspace, id, board.ErrWorkspaceNotFound)
	ws.MemberIDs = append([]string(nil), ws.MemberIDs...)
	return ws, err
}

func (repo *boardRepository) ListWorkspaces(_ context.Context, memberID string, _ ...core.DBExecutor) ([]board.Workspace, error) {
	repo.workspace.mutex.RLock()
	defer repo.workspace.mutex.RUnlock()

	rows := repo.workspace.filter(func(ws board.Workspace) bool { return ws.IsMember(memberID) })
	sortRows(rows, []orderField{{name: "name", asc: true}}, byName(func(ws board.Workspace) string { return ws.Name }))
	return rows, nil
}

func (repo *boardRepository) UpdateWorkspace(_ context.Context, ws board.Workspace, _ ...core.DBExecutor) (board.Workspace, error) {
	ws.MemberIDs = append([]string(nil), ws.MemberIDs...)
	return put(repo.workspace, ws.ID, ws, board.ErrWorkspaceNotFound)
}

func (repo *boardRepository) DeleteWorkspace(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.workspace.mutex.Lock()
	defer repo.workspace.mutex.Unlock()

	if _, ok := repo.workspace.rows[id]; !ok {
		return board.ErrWorkspaceNotFound
	}
	repo.workspace.remove(id)

	repo.board.mutex.Lock()
	defer repo.board.mutex.Unlock()
	var boardIDs []string
	for _, b := range repo.board.filter(func(b board.Board) bool { return b.WorkspaceID == id }) {
		boardIDs = append(boardIDs, b.ID)
	}
	repo.board.remove(boardIDs...)
	repo.cascadeBoards(boardIDs)
	return nil
}

// cascadeBoards removes the lists and tasks of the boards; the board lock must be held.
func (repo *boardRepository) cascadeBoards(boardIDs []string) {
	repo.list.mutex.Lock()
	defer repo.list.mutex.Unlock()

	var listIDs []string
	for _, l := range repo.list.filter(func(l board.List) bool { return core.StringInSlice(l.BoardID, boardIDs) }) {
		listIDs = append(listIDs, l.ID)
	}
	repo.list.remove(listIDs...)
	repo.cascadeLists(listIDs)
}

// cascadeLists removes the tasks of the lists; the list lock must be held.
func (repo *boardRepository) cascadeLists(listIDs []string) {
	repo.task.mutex.Lock()
	defer repo.task.mutex.Unlock()

	var taskIDs []string
	for _, t := range repo.task.filter(func(t board.Task) bool { return core.StringInSlice(t.ListID, listIDs) }) {
		taskIDs = append(taskIDs, t.ID)
	}
	repo.task.remove(taskIDs...)
}

// Boards

func (repo *boardRepository) CreateBoard(_ context.Context, b board.Board, _ ...core.DBExecutor) (board.Board, error) {
	repo.board.mutex.Lock()
	defer repo.board.mutex.Unlock()

	b.ID = newID()
	repo.board.insert(b.ID, b)
	return b, nil
}

func (repo *boardRepository) GetBoardByID(_ context.Context, id string, _ ...core.DBExecutor) (board.Board, error) {
	return get(repo.board, id, board.ErrBoardNotFound)
}

func (repo *boardRepository) ListBoards(_ context.Context, workspaceID string, _ ...core.DBExecutor) ([]board.Board, error) {
	repo.board.mutex.RLock()
	defer repo.board.mutex.RUnlock()

	rows := repo.board.filter(func(b board.Board) bool { return b.WorkspaceID == workspaceID })
	sortRows(rows, []orderField{{name: "name", asc: true}}, byName(func(b board.Board) string { return b.Name }))
	return rows, nil
}

func (repo *boardRepository) UpdateBoard(_ context.Context, b board.Board, _ ...core.DBExecutor) (board.Board, error) {
	return put(repo.board, b.ID, b, board.ErrBoardNotFound)
}

func (repo *boardRepository) DeleteBoard(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.board.mutex.Lock()
	defer repo.board.mutex.Unlock()

	if _, ok := repo.board.rows[id]; !ok {
		return board.ErrBoardNotFound
	}
	repo.board.remove(id)
	repo.cascadeBoards([]string{id})
	return nil
}

// Lists

var listOrder = map[string]lessFunc[board.List]{
	"position": func(a, b board.List) int { return a.Position - b.Position },
}

func (repo *boardRepository) CreateList(_ context.Context, l board.List, _ ...core.DBExecutor) (board.List, error) {
	repo.list.mutex.Lock()
	defer repo.list.mutex.Unlock()

	l.ID = newID()
	repo.list.insert(l.ID, l)
	return l, nil
}

func (repo *boardRepository) GetListByID(_ context.Context, id string, _ ...core.DBExecutor) (board.List, error) {
	return get(repo.list, id, board.ErrListNotFound)
}

func (repo *boardRepository) ListLists(_ context.Context, boardID string, _ ...core.DBExecutor) ([]board.List, error) {
	repo.list.mutex.RLock()
	defer repo.list.mutex.RUnlock()

	rows := repo.list.filter(func(l board.List) bool { return l.BoardID == boardID })
	sortRows(rows, []orderField{{name: "position", asc: true}}, listOrder)
	return rows, nil
}

func (repo *boardRepository) UpdateList(_ context.Context, l board.List, _ ...core.DBExecutor) (board.List, error) {
	return put(repo.list, l.ID, l, board.ErrListNotFound)
}

func (repo *boardRepository) SetListPosition(_ context.Context, id string, position int, _ ...core.DBExecutor) error {
	repo.list.mutex.Lock()
	defer repo.list.mutex.Unlock()

	l, ok := repo.list.rows[id]
	if !ok {
		return board.ErrListNotFound
	}
	l.Position = position
	repo.list.rows[id] = l
	return nil
}

func (repo *boardRepository) DeleteList(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.list.mutex.Lock()
	defer repo.list.mutex.Unlock()

	if _, ok := repo.list.rows[id]; !ok {
		return board.ErrListNotFound
	}
	repo.list.remove(id)
	repo.cascadeLists([]string{id})
	return nil
}

// Tasks

var taskOrder = map[string]lessFunc[board.Task]{
	"position": func(a, b board.Task) int { return a.Position - b.Position },
}

func (repo *boardRepository) CreateTask(_ context.Context, t board.Task, _ ...core.DBExecutor) (board.Task, error) {
	repo.task.mutex.Lock()
	defer repo.task.mutex.Unlock()

	t.ID = newID()
	repo.task.insert(t.ID, t)
	return t, nil
}

func (repo *boardRepository) GetTaskByID(_ context.Context, id string, _ ...core.DBExecutor) (board.Task, error) {
	return get(repo.task, id, board.ErrTaskNotFound)
}

func (repo *boardRepository) ListTasks(_ context.Context, listID string, _ ...core.DBExecutor) ([]board.Task, error) {
	repo.task.mutex.RLock()
	defer repo.task.mutex.RUnlock()

	rows := repo.task.filter(func(t board.Task) bool { return t.ListID == listID })
	sortRows(rows, []orderField{{name: "position", asc: true}}, taskOrder)
	return rows, nil
}

func (repo *boardRepository) UpdateTask(_ context.Context, t board.Task, _ ...core.DBExecutor) (board.Task, error) {
	return put(repo.task, t.ID, t, board.ErrTaskNotFound)
}

func (repo *boardRepository) SetTaskPosition(_ context.Context, id, listID string, position int, _ ...core.DBExecutor) error {
	repo.task.mutex.Lock()
	defer repo.task.mutex.Unlock()

	t, ok := repo.task.rows[id]
	if !ok {
		return board.ErrTaskNotFound
	}
	t.ListID = listID
	t.Position = position
	repo.task.rows[id] = t
	return nil
}

func (repo *boardRepository) DeleteTask(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.task.mutex.Lock()
	defer repo.task.mutex.Unlock()

	if _, ok := repo.task.rows[id]; !ok {
		return board.ErrTaskNotFound
	}
	repo.task.remove(id)
	return nil
}
