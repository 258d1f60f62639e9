package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/nexscholar/nexscholar/core"
	"github.com/nexscholar/nexscholar/core/board"
)

const (
	workspaceColumns = "id, owner_id, name, description, member_ids, created_at, updated_at"
	boardColumns     = "id, workspace_id, name, description, created_by, created_at, updated_at"
	listColumns      = "id, board_id, name, position, created_at, updated_at"
	taskColumns      = `id, list_id, title, description, due_date, assignee_id, priority, completed,
		completed_at, position, created_by, created_at, updated_at`
)

type workspaceRow struct {
	ID          string         `db:"id"`
	OwnerID     string         `db:"owner_id"`
	Name        string         `db:"name"`
	Description string         `db:"description"`
	MemberIDs   pq.StringArray `db:"member_ids"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func fromWorkspace(ws board.Workspace) workspaceRow {
	return workspaceRow{
		ID:          ws.ID,
		OwnerID:     ws.OwnerID,
		Name:        ws.Name,
		Description: ws.Description,
		MemberIDs:   orEmpty(ws.MemberIDs),
		CreatedAt:   ws.CreatedAt,
		UpdatedAt:   ws.UpdatedAt,
	}
}

func (r workspaceRow) toWorkspace() board.Workspace {
	return board.Workspace{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Name:        r.Name,
		Description: r.Description,
		MemberIDs:   orEmpty(r.MemberIDs),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type boardRow struct {
	ID          string    `db:"id"`
	WorkspaceID string    `db:"workspace_id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	CreatedBy   string    `db:"created_by"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r boardRow) toBoard() board.Board {
	return board.Board{
		ID:          r.ID,
		WorkspaceID: r.WorkspaceID,
		Name:        r.Name,
		Description: r.Description,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type listRow struct {
	ID        string    `db:"id"`
	BoardID   string    `db:"board_id"`
	Name      string    `db:"name"`
	Position  int       `db:"position"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r listRow) toList() board.List {
	return board.List{
		ID:        r.ID,
		BoardID:   r.BoardID,
		Name:      r.Name,
		Position:  r.Position,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type taskRow struct {
	ID          string      `db:"id"`
	ListID      string      `db:"list_id"`
	Title       string      `db:"title"`
	Description string      `db:"description"`
	DueDate     null.Time   `db:"due_date"`
	AssigneeID  null.String `db:"assignee_id"`
	Priority    string      `db:"priority"`
	Completed   bool        `db:"completed"`
	CompletedAt null.Time   `db:"completed_at"`
	Position    int         `db:"position"`
	CreatedBy   string      `db:"created_by"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func fromTask(t board.Task) taskRow {
	return taskRow{
		ID:          t.ID,
		ListID:      t.ListID,
		Title:       t.Title,
		Description: t.Description,
		DueDate:     nullTime(t.DueDate),
		AssigneeID:  nullString(t.AssigneeID),
		Priority:    string(t.Priority),
		Completed:   t.Completed,
		CompletedAt: nullTime(t.CompletedAt),
		Position:    t.Position,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func (r taskRow) toTask() board.Task {
	return board.Task{
		ID:          r.ID,
		ListID:      r.ListID,
		Title:       r.Title,
		Description: r.Description,
		DueDate:     timePtr(r.DueDate),
		AssigneeID:  r.AssigneeID.String,
		Priority:    board.Priority(r.Priority),
		Completed:   r.Completed,
		CompletedAt: timePtr(r.CompletedAt),
		Position:    r.Position,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type boardRepository struct {
	base
}

var _ board.Repository = (*boardRepository)(nil)

func NewBoardRepository(db *sqlx.DB) board.Repository {
	return &boardRepository{base{db: db}}
}

func (repo *boardRepository) delete(ctx context.Context, exec []core.DBExecutor, table, id string, nf error) error {
	if _, err := uuidOrNotFound(id, nf); err != nil {
		return err
	}
	res, err := repo.conn(exec).ExecContext(ctx, "DELETE FROM "+table+" WHERE id = $1", id)
	return mustAffect(res, err, nf)
}

// Workspaces

func (repo *boardRepository) CreateWorkspace(ctx context.Context, ws board.Workspace, exec ...core.DBExecutor) (board.Workspace, error) {
	ws.ID = newID()
	if err := repo.insert(ctx, exec, "workspaces", workspaceColumns, fromWorkspace(ws)); err != nil {
		return board.Workspace{}, err
	}
	return ws, nil
}

func (repo *boardRepository) GetWorkspaceByID(ctx context.Context, id string, exec ...core.DBExecutor) (board.Workspace, error) {
	var row workspaceRow
	if err := repo.getByID(ctx, exec, &row, "workspaces", workspaceColumns, id, board.ErrWorkspaceNotFound); err != nil {
		return board.Workspace{}, err
	}
	return row.toWorkspace(), nil
}

func (repo *boardRepository) ListWorkspaces(ctx context.Context, memberID string, exec ...core.DBExecutor) ([]board.Workspace, error) {
	memberID, ok := parseID(memberID)
	if !ok {
		return nil, nil
	}
	var rows []workspaceRow
	err := repo.conn(exec).SelectContext(ctx, &rows, `
		SELECT `+workspaceColumns+` FROM workspaces
		WHERE member_ids @> ARRAY[$1]::uuid[]
		ORDER BY lower(name)`, memberID)
	if err != nil {
		return nil, errors.Wrap(err, "selecting workspaces")
	}
	workspaces := make([]board.Workspace, len(rows))
	for i, r := range rows {
		workspaces[i] = r.toWorkspace()
	}
	return workspaces, nil
}

func (repo *boardRepository) UpdateWorkspace(ctx context.Context, ws board.Workspace, exec ...core.DBExecutor) (board.Workspace, error) {
	if err := repo.update(ctx, exec, "workspaces", workspaceColumns, fromWorkspace(ws), board.ErrWorkspaceNotFound); err != nil {
		return board.Workspace{}, err
	}
	return ws, nil
}

func (repo *boardRepository) DeleteWorkspace(ctx context.Context, id string, exec ...core.DBExecutor) error {
	return repo.delete(ctx, exec, "workspaces", id, board.ErrWorkspaceNotFound)
}

// Boards

func (repo *boardRepository) CreateBoard(ctx context.Context, b board.Board, exec ...core.DBExecutor) (board.Board, error) {
	b.ID = newID()
	_, err := repo.conn(exec).ExecContext(ctx, `
		INSERT INTO boards (`+boardColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.WorkspaceID, b.Name, b.Description, b.CreatedBy, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return board.Board{}, errors.Wrap(err, "inserting board")
	}
	return b, nil
}

func (repo *boardRepository) GetBoardByID(ctx context.Context, id string, exec ...core.DBExecutor) (board.Board, error) {
	var row boardRow
	if err := repo.getByID(ctx, exec, &row, "boards", boardColumns, id, board.ErrBoardNotFound); err != nil {
		return board.Board{}, err
	}
	return row.toBoard(), nil
}

func (repo *boardRepository) ListBoards(ctx context.Context, workspaceID string, exec ...core.DBExecutor) ([]board.Board, error) {
	workspaceID, ok := parseID(workspaceID)
	if !ok {
		return nil, nil
	}
	var rows []boardRow
	err := repo.conn(exec).SelectContext(ctx, &rows,
		"SELECT "+boardColumns+" FROM boards WHERE workspace_id = $1 ORDER BY lower(name)", workspaceID)
	if err != nil {
		return nil, errors.Wrap(err, "selecting boards")
	}
	boards := make([]board.Board, len(rows))
	for i, r := range rows {
		boards[i] = r.toBoard()
	}
	return boards, nil
}

func (repo *boardRepository) UpdateBoard(ctx context.Context, b board.Board, exec ...core.DBExecutor) (board.Board, error) {
	res, err := repo.conn(exec).ExecContext(ctx,
		"UPDATE boards SET name = $1, description = $2, updated_at = $3 WHERE id = $4",
		b.Name, b.Description, b.UpdatedAt, b.ID)
	if err = mustAffect(res, err, board.ErrBoardNotFound); err != nil {
		return board.Board{}, err
	}
	return b, nil
}

func (repo *boardRepository) DeleteBoard(ctx context.Context, id string, exec ...core.DBExecutor) error {
	return repo.delete(ctx, exec, "boards", id, board.ErrBoardNotFound)
}

// Lists

func (repo *boardRepository) CreateList(ctx context.Context, l board.List, exec ...core.DBExecutor) (board.List, error) {
	l.ID = newID()
	_, err := repo.conn(exec).ExecContext(ctx, `
		INSERT INTO board_lists (`+listColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		l.ID, l.BoardID, l.Name, l.Position, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return board.List{}, errors.Wrap(err, "inserting list")
	}
	return l, nil
}

func (repo *boardRepository) GetListByID(ctx context.Context, id string, exec ...core.DBExecutor) (board.List, error) {
	var row listRow
	if err := repo.getByID(ctx, exec, &row, "board_lists", listColumns, id, board.ErrListNotFound); err != nil {
		return board.List{}, err
	}
	return row.toList(), nil
}

func (repo *boardRepository) ListLists(ctx context.Context, boardID string, exec ...core.DBExecutor) ([]board.List, error) {
	boardID, ok := parseID(boardID)
	if !ok {
		return nil, nil
	}
	var rows []listRow
	err := repo.conn(exec).SelectContext(ctx, &rows,
		"SELECT "+listColumns+" FROM board_lists WHERE board_id = $1 ORDER BY position, created_at", boardID)
	if err != nil {
		return nil, errors.Wrap(err, "selecting lists")
	}
	lists := make([]board.List, len(rows))
	for i, r := range rows {
		lists[i] = r.toList()
	}
	return lists, nil
}

func (repo *boardRepository) UpdateList(ctx context.Context, l board.List, exec ...core.DBExecutor) (board.List, error) {
	res, err := repo.conn(exec).ExecContext(ctx,
		"UPDATE board_lists SET name = $1, position = $2, updated_at = $3 WHERE id = $4",
		l.Name, l.Position, l.UpdatedAt, l.ID)
	if err = mustAffect(res, err, board.ErrListNotFound); err != nil {
		return board.List{}, err
	}
	return l, nil
}

func (repo *boardRepository) SetListPosition(ctx context.Context, id string, position int, exec ...core.DBExecutor) error {
	res, err := repo.conn(exec).ExecContext(ctx, "UPDATE board_lists SET position = $1 WHERE id = $2", position, id)
	return mustAffect(res, err, board.ErrListNotFound)
}

func (repo *boardRepository) DeleteList(ctx context.Context, id string, exec ...core.DBExecutor) error {
	return repo.delete(ctx, exec, "board_lists", id, board.ErrListNotFound)
}

// Tasks

func (repo *boardRepository) CreateTask(ctx context.Context, t board.Task, exec ...core.DBExecutor) (board.Task, error) {
	t.ID = newID()
	if err := repo.insert(ctx, exec, "tasks", taskColumns, fromTask(t)); err != nil {
		return board.Task{}, err
	}
	return t, nil
}

func (repo *boardRepository) GetTaskByID(ctx context.Context, id string, exec ...core.DBExecutor) (board.Task, error) {
	var row taskRow
	if err := repo.getByID(ctx, exec, &row, "tasks", taskColumns, id, board.ErrTaskNotFound); err != nil {
		return board.Task{}, err
	}
	return row.toTask(), nil
}

func (repo *boardRepository) ListTasks(ctx context.Context, listID string, exec ...core.DBExecutor) ([]board.Task, error) {
	listID, ok := parseID(listID)
	if !ok {
		return nil, nil
	}
	var rows []taskRow
	err := repo.conn(exec).SelectContext(ctx, &rows,
		"SELECT "+taskColumns+" FROM tasks WHERE list_id = $1 ORDER BY position, created_at", listID)
	if err != nil {
		return nil, errors.Wrap(err, "selecting tasks")
	}
	tasks := make([]board.Task, len(rows))
	for i, r := range rows {
		tasks[i] = r.toTask()
	}
	return tasks, nil
}

func (repo *boardRepository) UpdateTask(ctx context.Context, t board.Task, exec ...core.DBExecutor) (board.Task, error) {
	if err := repo.update(ctx, exec, "tasks", taskColumns, fromTask(t), board.ErrTaskNotFound); err != nil {
		return board.Task{}, err
	}
	return t, nil
}

func (repo *boardRepository) SetTaskPosition(ctx context.Context, id, listID string, position int, exec ...core.DBExecutor) error {
	res, err := repo.conn(exec).ExecContext(ctx, "UPDATE tasks SET list_id = $1, position = $2 WHERE id = $3", listID, position, id)
	return mustAffect(res, err, board.ErrTaskNotFound)
}

func (repo *boardRepository) DeleteTask(ctx context.Context, id string, exec ...core.DBExecutor) error {
	return repo.delete(ctx, exec, "tasks", id, board.ErrTaskNotFound)
}
