package board

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nexscholar/nexscholar/core"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Workspace groups boards; its owner is always one of its members.
type Workspace struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	MemberIDs   []string  `json:"member_ids"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (ws Workspace) IsMember(userID string) bool {
	return core.StringInSlice(userID, ws.MemberIDs)
}

func (ws Workspace) IsOwner(userID string) bool {
	return ws.OwnerID == userID
}

type Board struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type List struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"board_id"`
	Name      string    `json:"name"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Task struct {
	ID          string     `json:"id"`
	ListID      string     `json:"list_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date"`
	AssigneeID  string     `json:"assignee_id"`
	Priority    Priority   `json:"priority"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
	Position    int        `json:"position"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ListWithTasks is a list and its tasks in position order.
type ListWithTasks struct {
	List
	Tasks []Task `json:"tasks"`
}

// BoardDetail is a board with all its lists and tasks.
type BoardDetail struct {
	Board
	Lists []ListWithTasks `json:"lists"`
}

// Inputs

type WorkspaceInput struct {
	Name        string `json:"name" validate:"required,notblank,max=255"`
	Description string `json:"description" validate:"max=5000"`
}

type Member struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

type BoardInput struct {
	Name        string `json:"name" validate:"required,notblank,max=255"`
	Description string `json:"description" validate:"max=5000"`
}

type ListInput struct {
	Name string `json:"name" validate:"required,notblank,max=255"`
}

type TaskInput struct {
	Title       string     `json:"title" validate:"required,notblank,max=255"`
	Description string     `json:"description" validate:"max=10000"`
	DueDate     *time.Time `json:"due_date"`
	AssigneeID  string     `json:"assignee_id" validate:"omitempty,uuid"`
	Priority    Priority   `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Completed   bool       `json:"completed"`
}

// ListOrder is the complete new order of the lists of a board.
type ListOrder struct {
	ListIDs []string `json:"list_ids" validate:"required,min=1,dive,uuid"`
}

// TaskMove places a task at `Position` (0-based, clamped) of list `ListID` of the same board.
type TaskMove struct {
	ListID   string `json:"list_id" validate:"required,uuid"`
	Position int    `json:"position" validate:"min=0"`
}

func (in *WorkspaceInput) Validate(validate *validator.Validate) error {
	in.Name = core.CleanString(in.Name)
	in.Description = core.CleanString(in.Description)
	return validate.Struct(in)
}

func (m *Member) Validate(validate *validator.Validate) error {
	m.UserID = core.CleanString(m.UserID)
	return validate.Struct(m)
}

func (in *BoardInput) Validate(validate *validator.Validate) error {
	in.Name = core.CleanString(in.Name)
	in.Description = core.CleanString(in.Description)
	return validate.Struct(in)
}

func (in *ListInput) Validate(validate *validator.Validate) error {
	in.Name = core.CleanString(in.Name)
	return validate.Struct(in)
}

func (in *TaskInput) Validate(validate *validator.Validate) error {
	in.Title = core.CleanString(in.Title)
	in.Description = core.CleanString(in.Description)
	in.AssigneeID = core.CleanString(in.AssigneeID)
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	return validate.Struct(in)
}

func (lo *ListOrder) Validate(validate *validator.Validate) error {
	return validate.Struct(lo)
}

func (tm *TaskMove) Validate(validate *validator.Validate) error {
	tm.ListID = core.CleanString(tm.ListID)
	return validate.Struct(tm)
}
