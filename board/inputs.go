package board

import (
	"strings"

	"prism-board/domain"
)

// NewTask describes a task to add. Empty enum fields take their defaults. With
// a DueDate the column is resolved from the date and TimeframeID is ignored.
type NewTask struct {
	Title       string
	Notes       string
	Status      domain.TaskStatus
	Assignee    domain.Assignee
	Priority    domain.Priority
	CategoryID  string
	TimeframeID string
	DueDate     *domain.Date
	Checklist   []string
}

// TaskPatch changes the non-nil fields of a task. ClearDueDate removes the due
// date and wins over DueDate.
type TaskPatch struct {
	Title        *string
	Notes        *string
	Status       *domain.TaskStatus
	Assignee     *domain.Assignee
	Priority     *domain.Priority
	CategoryID   *string
	DueDate      *domain.Date
	ClearDueDate bool
}

type CategoryPatch struct {
	Name *string
}

// NewTimeframe describes a column to add. StartDate and EndDate are given
// together or not at all.
type NewTimeframe struct {
	Name      string
	Hidden    bool
	StartDate *domain.Date
	EndDate   *domain.Date
}

// TimeframePatch changes the non-nil fields of a column. ClearDates removes
// the date range.
type TimeframePatch struct {
	Name       *string
	Hidden     *bool
	StartDate  *domain.Date
	EndDate    *domain.Date
	ClearDates bool
}

type ChecklistPatch struct {
	Title     *string
	Completed *bool
}

// Direction moves a column or row one step in display order.
type Direction int

const (
	Left  Direction = -1
	Right Direction = 1
)

// ParseDirection accepts left/right and, for rows, up/down.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left", "up", "-1":
		return Left, nil
	case "right", "down", "1":
		return Right, nil
	}
	return 0, invalid("direction", "%q is not left or right", s)
}

func requireName(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", invalid(field, "must not be empty")
	}
	return v, nil
}

func validStatus(s domain.TaskStatus) error {
	if !s.Valid() {
		return invalid("status", "unknown value %q", s)
	}
	return nil
}

func validAssignee(a domain.Assignee) error {
	if !a.Valid() {
		return invalid("assignee", "unknown value %q", a)
	}
	return nil
}

func validPriority(p domain.Priority) error {
	if !p.Valid() {
		return invalid("priority", "unknown value %q", p)
	}
	return nil
}

func validRange(start, end *domain.Date) error {
	if (start == nil) != (end == nil) {
		return invalid("dates", "startDate and endDate must be set together")
	}
	if start != nil && start.After(*end) {
		return invalid("dates", "startDate %s is after endDate %s", start, end)
	}
	return nil
}
