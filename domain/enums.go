package domain

// TaskStatus is the progress state of a task.
type TaskStatus string

const (
	StatusNotStarted TaskStatus = "not_started"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Assignee names who owns a task. The set is closed.
type Assignee string

const (
	AssigneeUnassigned Assignee = "unassigned"
	AssigneeBride      Assignee = "bride"
	AssigneeGroom      Assignee = "groom"
	AssigneeBoth       Assignee = "both"
	AssigneeOther      Assignee = "other"
)

func (a Assignee) Valid() bool {
	switch a {
	case AssigneeUnassigned, AssigneeBride, AssigneeGroom, AssigneeBoth, AssigneeOther:
		return true
	}
	return false
}

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	return p == PriorityNormal || p == PriorityHigh
}
