package api

import (
	"context"

	"github.com/bytedance/sonic"

	"prism-board/board"
	"prism-board/domain"
	"prism-board/persistence"
)

// BoardStore is the part of the board store the handlers drive.
type BoardStore interface {
	Board() *domain.Board
	SyncStatus() persistence.Status
	SelectedTaskID() string
	Watch(ctx context.Context) <-chan *domain.Board

	AddTask(board.NewTask) (string, error)
	UpdateTask(id string, patch board.TaskPatch) error
	DeleteTask(id string) error
	MoveTask(taskID, categoryID, timeframeID string) error
	AddChecklistItem(taskID, title string) (string, error)
	UpdateChecklistItem(taskID, itemID string, patch board.ChecklistPatch) error
	DeleteChecklistItem(taskID, itemID string) error

	AddCategory(name string) (string, error)
	UpdateCategory(id string, patch board.CategoryPatch) error
	DeleteCategory(id string) error
	ReorderCategory(id string, dir board.Direction) error

	AddTimeframe(board.NewTimeframe) (string, error)
	UpdateTimeframe(id string, patch board.TimeframePatch) error
	DeleteTimeframe(id string) error
	ReorderTimeframe(id string, dir board.Direction) error

	SelectTask(id string)
}

// optionalDate tells an absent field from an explicit null.
type optionalDate struct {
	set   bool
	value *domain.Date
}

func (o *optionalDate) UnmarshalJSON(b []byte) error {
	o.set = true
	if string(b) == "null" {
		o.value = nil
		return nil
	}
	var d domain.Date
	if err := sonic.ConfigStd.Unmarshal(b, &d); err != nil {
		return err
	}
	o.value = &d
	return nil
}

type taskRequest struct {
	Title       string            `json:"title"`
	Notes       string            `json:"notes"`
	Status      domain.TaskStatus `json:"status"`
	Assignee    domain.Assignee   `json:"assignee"`
	Priority    domain.Priority   `json:"priority"`
	CategoryID  string            `json:"categoryId"`
	TimeframeID string            `json:"timeframeId"`
	DueDate     *domain.Date      `json:"dueDate"`
	Checklist   []string          `json:"checklist"`
}

type taskPatchRequest struct {
	Title      *string            `json:"title"`
	Notes      *string            `json:"notes"`
	Status     *domain.TaskStatus `json:"status"`
	Assignee   *domain.Assignee   `json:"assignee"`
	Priority   *domain.Priority   `json:"priority"`
	CategoryID *string            `json:"categoryId"`
	DueDate    optionalDate       `json:"dueDate"`
}

func (r taskPatchRequest) patch() board.TaskPatch {
	p := board.TaskPatch{
		Title:      r.Title,
		Notes:      r.Notes,
		Status:     r.Status,
		Assignee:   r.Assignee,
		Priority:   r.Priority,
		CategoryID: r.CategoryID,
	}
	if r.DueDate.set {
		p.DueDate = r.DueDate.value
		p.ClearDueDate = r.DueDate.value == nil
	}
	return p
}

type moveRequest struct {
	CategoryID  string `json:"categoryId"`
	TimeframeID string `json:"timeframeId"`
}

type nameRequest struct {
	Name *string `json:"name"`
}

type timeframeRequest struct {
	Name      string       `json:"name"`
	Hidden    bool         `json:"hidden"`
	StartDate *domain.Date `json:"startDate"`
	EndDate   *domain.Date `json:"endDate"`
}

type timeframePatchRequest struct {
	Name      *string      `json:"name"`
	Hidden    *bool        `json:"hidden"`
	StartDate optionalDate `json:"startDate"`
	EndDate   optionalDate `json:"endDate"`
}

func (r timeframePatchRequest) patch() board.TimeframePatch {
	p := board.TimeframePatch{Name: r.Name, Hidden: r.Hidden}
	if (r.StartDate.set && r.StartDate.value == nil) || (r.EndDate.set && r.EndDate.value == nil) {
		p.ClearDates = true
		return p
	}
	p.StartDate = r.StartDate.value
	p.EndDate = r.EndDate.value
	return p
}

type checklistRequest struct {
	Title     *string `json:"title"`
	Completed *bool   `json:"completed"`
}

type reorderRequest struct {
	Direction string `json:"direction"`
}

type selectionRequest struct {
	TaskID string `json:"taskId"`
}

type createdResponse struct {
	ID string `json:"id"`
}

type statusResponse struct {
	Status         persistence.Status `json:"status"`
	Loading        bool               `json:"loading"`
	SelectedTaskID string             `json:"selectedTaskId,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
