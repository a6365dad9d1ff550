package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
)

// ShapeError reports a stored or remote document that could not be read at all.
type ShapeError struct {
	Source string
	Err    error
}

func (e *ShapeError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("malformed %s document: %v", e.Source, e.Err)
}

func (e *ShapeError) Unwrap() error { return e.Err }

// Repairs counts what normalization had to fix while reading a document.
type Repairs struct {
	DroppedRecords int
	Defaulted      int
}

func (r Repairs) Any() bool { return r.DroppedRecords > 0 || r.Defaulted > 0 }

// MarshalDocument encodes a board in the shared document shape used by both
// storage tiers and by any tool that talks to the remote document directly.
func MarshalDocument(b *Board) ([]byte, error) {
	if b == nil {
		return nil, fmt.Errorf("marshal document: nil board")
	}
	return sonic.ConfigStd.Marshal(b)
}

type wireBoard struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Categories []json.RawMessage `json:"categories"`
	Timeframes []json.RawMessage `json:"timeframes"`
	Tasks      []json.RawMessage `json:"tasks"`
	CreatedAt  flexTime          `json:"createdAt"`
	UpdatedAt  flexTime          `json:"updatedAt"`
}

type wireCategory struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Order flexFloat `json:"order"`
}

type wireTimeframe struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Order     flexFloat `json:"order"`
	Hidden    bool      `json:"hidden"`
	StartDate flexDate  `json:"startDate"`
	EndDate   flexDate  `json:"endDate"`
}

type wireTask struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Notes       string            `json:"notes"`
	Status      string            `json:"status"`
	Assignee    string            `json:"assignee"`
	Priority    string            `json:"priority"`
	CategoryID  string            `json:"categoryId"`
	TimeframeID string            `json:"timeframeId"`
	DueDate     flexDate          `json:"dueDate"`
	Checklist   []json.RawMessage `json:"checklist"`
	CreatedAt   flexTime          `json:"createdAt"`
	UpdatedAt   flexTime          `json:"updatedAt"`
}

type wireChecklistItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// UnmarshalDocument decodes and normalizes a stored board. Records that cannot be
// decoded individually are dropped and counted; only a document that is not a
// JSON object at all yields a *ShapeError.
func UnmarshalDocument(data []byte) (*Board, Repairs, error) {
	var rep Repairs
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, rep, &ShapeError{Source: "board", Err: fmt.Errorf("not a JSON object")}
	}
	var w wireBoard
	if err := sonic.ConfigStd.Unmarshal(trimmed, &w); err != nil {
		return nil, rep, &ShapeError{Source: "board", Err: err}
	}

	b := &Board{
		ID:        w.ID,
		Name:      w.Name,
		CreatedAt: w.CreatedAt.Time,
		UpdatedAt: w.UpdatedAt.Time,
	}

	var missingCategoryOrder, missingTimeframeOrder []int
	for _, raw := range w.Categories {
		var c wireCategory
		if err := sonic.ConfigStd.Unmarshal(raw, &c); err != nil || c.ID == "" {
			rep.DroppedRecords++
			continue
		}
		if !c.Order.Set {
			missingCategoryOrder = append(missingCategoryOrder, len(b.Categories))
		}
		b.Categories = append(b.Categories, Category{ID: c.ID, Name: c.Name, Order: c.Order.Value})
	}
	for _, raw := range w.Timeframes {
		var tf wireTimeframe
		if err := sonic.ConfigStd.Unmarshal(raw, &tf); err != nil || tf.ID == "" {
			rep.DroppedRecords++
			continue
		}
		if !tf.Order.Set {
			missingTimeframeOrder = append(missingTimeframeOrder, len(b.Timeframes))
		}
		b.Timeframes = append(b.Timeframes, Timeframe{
			ID:        tf.ID,
			Name:      tf.Name,
			Order:     tf.Order.Value,
			Hidden:    tf.Hidden,
			StartDate: tf.StartDate.Date,
			EndDate:   tf.EndDate.Date,
		})
	}
	for _, raw := range w.Tasks {
		var t wireTask
		if err := sonic.ConfigStd.Unmarshal(raw, &t); err != nil || t.ID == "" {
			rep.DroppedRecords++
			continue
		}
		task := Task{
			ID:          t.ID,
			Title:       t.Title,
			Notes:       t.Notes,
			Status:      TaskStatus(t.Status),
			Assignee:    Assignee(t.Assignee),
			Priority:    Priority(t.Priority),
			CategoryID:  t.CategoryID,
			TimeframeID: t.TimeframeID,
			DueDate:     t.DueDate.Date,
			CreatedAt:   t.CreatedAt.Time,
			UpdatedAt:   t.UpdatedAt.Time,
		}
		for _, rawItem := range t.Checklist {
			var it wireChecklistItem
			if err := sonic.ConfigStd.Unmarshal(rawItem, &it); err != nil || it.ID == "" {
				rep.DroppedRecords++
				continue
			}
			task.Checklist = append(task.Checklist, ChecklistItem(it))
		}
		b.Tasks = append(b.Tasks, task)
	}

	rep.Defaulted += appendMissingCategoryOrders(b.Categories, missingCategoryOrder)
	rep.Defaulted += appendMissingTimeframeOrders(b.Timeframes, missingTimeframeOrder)

	n := Normalize(b)
	rep.Defaulted += n.Defaulted
	return b, rep, nil
}

// Normalize applies the defensive defaults every consumer relies on: empty lists
// instead of nil, documented enum defaults, filled timestamps, ordered date
// ranges and finite, distinct order keys. It mutates b, which must not be
// shared yet.
func Normalize(b *Board) Repairs {
	var rep Repairs
	if b == nil {
		return rep
	}
	if b.Categories == nil {
		b.Categories = []Category{}
	}
	if b.Timeframes == nil {
		b.Timeframes = []Timeframe{}
	}
	if b.Tasks == nil {
		b.Tasks = []Task{}
	}
	if b.UpdatedAt.IsZero() && !b.CreatedAt.IsZero() {
		b.UpdatedAt = b.CreatedAt
	}
	if b.CreatedAt.IsZero() && !b.UpdatedAt.IsZero() {
		b.CreatedAt = b.UpdatedAt
	}

	rep.Defaulted += repairCategoryOrders(b.Categories)
	rep.Defaulted += repairTimeframeOrders(b.Timeframes)

	for i := range b.Timeframes {
		tf := &b.Timeframes[i]
		if tf.HasDates() && tf.StartDate.After(*tf.EndDate) {
			tf.StartDate, tf.EndDate = tf.EndDate, tf.StartDate
			rep.Defaulted++
		}
	}

	for i := range b.Tasks {
		t := &b.Tasks[i]
		if !t.Status.Valid() {
			t.Status = StatusNotStarted
			rep.Defaulted++
		}
		if !t.Assignee.Valid() {
			t.Assignee = AssigneeUnassigned
			rep.Defaulted++
		}
		if !t.Priority.Valid() {
			t.Priority = PriorityNormal
			rep.Defaulted++
		}
		if t.Checklist == nil {
			t.Checklist = []ChecklistItem{}
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = b.CreatedAt
		}
		if t.UpdatedAt.IsZero() {
			t.UpdatedAt = t.CreatedAt
		}
	}
	return rep
}

func appendMissingCategoryOrders(cats []Category, idx []int) int {
	if len(idx) == 0 {
		return 0
	}
	max := maxFinite(len(cats), func(i int) float64 { return cats[i].Order }, idx)
	for _, i := range idx {
		max++
		cats[i].Order = max
	}
	return len(idx)
}

func appendMissingTimeframeOrders(tfs []Timeframe, idx []int) int {
	if len(idx) == 0 {
		return 0
	}
	max := maxFinite(len(tfs), func(i int) float64 { return tfs[i].Order }, idx)
	for _, i := range idx {
		max++
		tfs[i].Order = max
	}
	return len(idx)
}

func repairCategoryOrders(cats []Category) int {
	return appendMissingCategoryOrders(cats, unusableOrders(len(cats), func(i int) float64 { return cats[i].Order }))
}

func repairTimeframeOrders(tfs []Timeframe) int {
	return appendMissingTimeframeOrders(tfs, unusableOrders(len(tfs), func(i int) float64 { return tfs[i].Order }))
}

// unusableOrders lists the siblings whose order is non-finite or repeats an
// earlier sibling's order. The first holder of a value keeps it.
func unusableOrders(n int, at func(int) float64) []int {
	var bad []int
	seen := make(map[float64]bool, n)
	for i := 0; i < n; i++ {
		v := at(i)
		if math.IsNaN(v) || math.IsInf(v, 0) || seen[v] {
			bad = append(bad, i)
			continue
		}
		seen[v] = true
	}
	return bad
}

// maxFinite returns the largest finite order outside skip, or -1 when none exists
// so the first appended key is 0.
func maxFinite(n int, at func(int) float64, skip []int) float64 {
	skipped := make(map[int]bool, len(skip))
	for _, i := range skip {
		skipped[i] = true
	}
	max := -1.0
	for i := 0; i < n; i++ {
		if skipped[i] {
			continue
		}
		v := at(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v > max {
			max = v
		}
	}
	return max
}

// flexTime accepts RFC 3339 strings, epoch milliseconds and {seconds, nanoseconds}
// objects. Anything else decodes to the zero time.
type flexTime struct{ time.Time }

func (f *flexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := sonic.ConfigStd.Unmarshal(b, &s); err != nil {
			return nil
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			f.Time = t
		}
	case '{':
		var ts struct {
			Seconds     *int64 `json:"seconds"`
			Nanoseconds int64  `json:"nanoseconds"`
			USeconds    *int64 `json:"_seconds"`
			UNanos      int64  `json:"_nanoseconds"`
		}
		if err := sonic.ConfigStd.Unmarshal(b, &ts); err != nil {
			return nil
		}
		switch {
		case ts.Seconds != nil:
			f.Time = time.Unix(*ts.Seconds, ts.Nanoseconds).UTC()
		case ts.USeconds != nil:
			f.Time = time.Unix(*ts.USeconds, ts.UNanos).UTC()
		}
	default:
		if ms, err := strconv.ParseFloat(string(b), 64); err == nil {
			f.Time = time.UnixMilli(int64(ms)).UTC()
		}
	}
	return nil
}

// flexDate leaves Date nil when the stored value is not a readable date.
type flexDate struct{ Date *Date }

func (f *flexDate) UnmarshalJSON(b []byte) error {
	var s string
	if err := sonic.ConfigStd.Unmarshal(b, &s); err != nil {
		return nil
	}
	if d, err := ParseDate(s); err == nil {
		f.Date = &d
	}
	return nil
}

// flexFloat records whether an order key was present and accepts numeric strings.
type flexFloat struct {
	Value float64
	Set   bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := sonic.ConfigStd.Unmarshal(b, &s); err != nil {
			return nil
		}
		b = []byte(s)
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	f.Value, f.Set = v, true
	return nil
}
