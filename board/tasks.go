package board

import (
	"time"

	"prism-board/domain"
	"prism-board/timeframe"
)

// AddTask adds a task and returns its id. A task with a due date lands in the
// column that resolves the date.
func (s *Store) AddTask(in NewTask) (string, error) {
	title, err := requireName("title", in.Title)
	if err != nil {
		return "", err
	}
	t := domain.Task{
		Title:       title,
		Notes:       in.Notes,
		Status:      in.Status,
		Assignee:    in.Assignee,
		Priority:    in.Priority,
		CategoryID:  in.CategoryID,
		TimeframeID: in.TimeframeID,
		Checklist:   []domain.ChecklistItem{},
	}
	if t.Status == "" {
		t.Status = domain.StatusNotStarted
	}
	if t.Assignee == "" {
		t.Assignee = domain.AssigneeUnassigned
	}
	if t.Priority == "" {
		t.Priority = domain.PriorityNormal
	}
	if err := validStatus(t.Status); err != nil {
		return "", err
	}
	if err := validAssignee(t.Assignee); err != nil {
		return "", err
	}
	if err := validPriority(t.Priority); err != nil {
		return "", err
	}
	if in.DueDate != nil {
		t.DueDate = domain.DatePtr(*in.DueDate)
	}

	var id string
	err = s.mutate("addTask", func(b *domain.Board, now time.Time) error {
		if b.CategoryIndex(t.CategoryID) < 0 {
			return notFound("category", t.CategoryID)
		}
		if t.DueDate == nil && b.TimeframeIndex(t.TimeframeID) < 0 {
			return notFound("timeframe", t.TimeframeID)
		}
		t.ID = s.newID()
		for _, title := range in.Checklist {
			if title, err := requireName("checklist", title); err == nil {
				t.Checklist = append(t.Checklist, domain.ChecklistItem{ID: s.newID(), Title: title})
			}
		}
		t.CreatedAt = now
		t.UpdatedAt = now
		b.Tasks = append(b.Tasks, t)
		id = t.ID
		return nil
	})
	return id, err
}

// UpdateTask applies patch to a task. Setting a due date moves the task to the
// column that resolves it.
func (s *Store) UpdateTask(id string, patch TaskPatch) error {
	var title string
	if patch.Title != nil {
		var err error
		if title, err = requireName("title", *patch.Title); err != nil {
			return err
		}
	}
	if patch.Status != nil {
		if err := validStatus(*patch.Status); err != nil {
			return err
		}
	}
	if patch.Assignee != nil {
		if err := validAssignee(*patch.Assignee); err != nil {
			return err
		}
	}
	if patch.Priority != nil {
		if err := validPriority(*patch.Priority); err != nil {
			return err
		}
	}

	return s.mutate("updateTask", func(b *domain.Board, now time.Time) error {
		i := b.TaskIndex(id)
		if i < 0 {
			return notFound("task", id)
		}
		if patch.CategoryID != nil && b.CategoryIndex(*patch.CategoryID) < 0 {
			return notFound("category", *patch.CategoryID)
		}
		t := &b.Tasks[i]
		if patch.Title != nil {
			t.Title = title
		}
		if patch.Notes != nil {
			t.Notes = *patch.Notes
		}
		if patch.Status != nil {
			t.Status = *patch.Status
		}
		if patch.Assignee != nil {
			t.Assignee = *patch.Assignee
		}
		if patch.Priority != nil {
			t.Priority = *patch.Priority
		}
		if patch.CategoryID != nil {
			t.CategoryID = *patch.CategoryID
		}
		switch {
		case patch.ClearDueDate:
			t.DueDate = nil
		case patch.DueDate != nil:
			t.DueDate = domain.DatePtr(*patch.DueDate)
		}
		t.UpdatedAt = now
		return nil
	})
}

func (s *Store) DeleteTask(id string) error {
	return s.mutate("deleteTask", func(b *domain.Board, _ time.Time) error {
		i := b.TaskIndex(id)
		if i < 0 {
			return notFound("task", id)
		}
		b.Tasks = append(b.Tasks[:i], b.Tasks[i+1:]...)
		return nil
	})
}

// MoveTask places a task in another cell. When the target column does not
// resolve the task's due date, the due date is dropped.
func (s *Store) MoveTask(taskID, categoryID, timeframeID string) error {
	return s.mutate("moveTask", func(b *domain.Board, now time.Time) error {
		i := b.TaskIndex(taskID)
		if i < 0 {
			return notFound("task", taskID)
		}
		if b.CategoryIndex(categoryID) < 0 {
			return notFound("category", categoryID)
		}
		if b.TimeframeIndex(timeframeID) < 0 {
			return notFound("timeframe", timeframeID)
		}
		t := &b.Tasks[i]
		if t.CategoryID == categoryID && t.TimeframeID == timeframeID {
			return errNoChange
		}
		t.CategoryID = categoryID
		t.TimeframeID = timeframeID
		if t.DueDate != nil {
			if id, ok := timeframe.Resolve(*t.DueDate, b.Timeframes, s.parser); !ok || id != timeframeID {
				t.DueDate = nil
			}
		}
		t.UpdatedAt = now
		return nil
	})
}

func (s *Store) AddChecklistItem(taskID, title string) (string, error) {
	title, err := requireName("title", title)
	if err != nil {
		return "", err
	}
	var id string
	err = s.mutate("addChecklistItem", func(b *domain.Board, now time.Time) error {
		i := b.TaskIndex(taskID)
		if i < 0 {
			return notFound("task", taskID)
		}
		t := &b.Tasks[i]
		id = s.newID()
		t.Checklist = append(t.Checklist, domain.ChecklistItem{ID: id, Title: title})
		t.UpdatedAt = now
		return nil
	})
	return id, err
}

func (s *Store) UpdateChecklistItem(taskID, itemID string, patch ChecklistPatch) error {
	var title string
	if patch.Title != nil {
		var err error
		if title, err = requireName("title", *patch.Title); err != nil {
			return err
		}
	}
	return s.mutate("updateChecklistItem", func(b *domain.Board, now time.Time) error {
		t, j, err := checklistItem(b, taskID, itemID)
		if err != nil {
			return err
		}
		if patch.Title != nil {
			t.Checklist[j].Title = title
		}
		if patch.Completed != nil {
			t.Checklist[j].Completed = *patch.Completed
		}
		t.UpdatedAt = now
		return nil
	})
}

func (s *Store) DeleteChecklistItem(taskID, itemID string) error {
	return s.mutate("deleteChecklistItem", func(b *domain.Board, now time.Time) error {
		t, j, err := checklistItem(b, taskID, itemID)
		if err != nil {
			return err
		}
		t.Checklist = append(t.Checklist[:j], t.Checklist[j+1:]...)
		t.UpdatedAt = now
		return nil
	})
}

func checklistItem(b *domain.Board, taskID, itemID string) (*domain.Task, int, error) {
	i := b.TaskIndex(taskID)
	if i < 0 {
		return nil, 0, notFound("task", taskID)
	}
	t := &b.Tasks[i]
	for j := range t.Checklist {
		if t.Checklist[j].ID == itemID {
			return t, j, nil
		}
	}
	return nil, 0, notFound("checklist item", itemID)
}
