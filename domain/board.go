package domain

import (
	"sort"
	"time"
)

// Board is the single aggregate root holding every category, timeframe and task.
// A *Board handed out by the store is a snapshot and must not be modified.
type Board struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Categories []Category  `json:"categories"`
	Timeframes []Timeframe `json:"timeframes"`
	Tasks      []Task      `json:"tasks"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// Category is a board row.
type Category struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Order float64 `json:"order"`
}

// Timeframe is a board column. StartDate and EndDate form an inclusive range
// when both are present.
type Timeframe struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Order     float64 `json:"order"`
	Hidden    bool    `json:"hidden,omitempty"`
	StartDate *Date   `json:"startDate,omitempty"`
	EndDate   *Date   `json:"endDate,omitempty"`
}

// HasDates reports whether the timeframe carries explicit date metadata.
func (tf Timeframe) HasDates() bool {
	return tf.StartDate != nil && tf.EndDate != nil
}

// Contains reports whether d falls inside the explicit range.
func (tf Timeframe) Contains(d Date) bool {
	if !tf.HasDates() {
		return false
	}
	return !d.Before(*tf.StartDate) && !d.After(*tf.EndDate)
}

// Task is a single work item placed in one category row and one timeframe column.
type Task struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Notes       string          `json:"notes"`
	Status      TaskStatus      `json:"status"`
	Assignee    Assignee        `json:"assignee"`
	Priority    Priority        `json:"priority"`
	CategoryID  string          `json:"categoryId"`
	TimeframeID string          `json:"timeframeId"`
	DueDate     *Date           `json:"dueDate"`
	Checklist   []ChecklistItem `json:"checklist"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type ChecklistItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Clone returns a deep copy so a new snapshot can be built without touching b.
func (b *Board) Clone() *Board {
	if b == nil {
		return nil
	}
	out := *b
	out.Categories = append([]Category(nil), b.Categories...)
	out.Timeframes = make([]Timeframe, len(b.Timeframes))
	for i, tf := range b.Timeframes {
		out.Timeframes[i] = tf.clone()
	}
	out.Tasks = make([]Task, len(b.Tasks))
	for i, t := range b.Tasks {
		out.Tasks[i] = t.clone()
	}
	return &out
}

func (tf Timeframe) clone() Timeframe {
	if tf.StartDate != nil {
		tf.StartDate = DatePtr(*tf.StartDate)
	}
	if tf.EndDate != nil {
		tf.EndDate = DatePtr(*tf.EndDate)
	}
	return tf
}

func (t Task) clone() Task {
	if t.DueDate != nil {
		t.DueDate = DatePtr(*t.DueDate)
	}
	t.Checklist = append([]ChecklistItem{}, t.Checklist...)
	return t
}

func (b *Board) TaskIndex(id string) int {
	for i := range b.Tasks {
		if b.Tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *Board) CategoryIndex(id string) int {
	for i := range b.Categories {
		if b.Categories[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *Board) TimeframeIndex(id string) int {
	for i := range b.Timeframes {
		if b.Timeframes[i].ID == id {
			return i
		}
	}
	return -1
}

// SortedTimeframes returns the timeframes ordered by their order key.
func SortedTimeframes(tfs []Timeframe) []Timeframe {
	out := append([]Timeframe(nil), tfs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// SortedCategories returns the categories ordered by their order key.
func SortedCategories(cats []Category) []Category {
	out := append([]Category(nil), cats...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
