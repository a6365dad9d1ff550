package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func sampleBoard() *Board {
	created := time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC)
	return &Board{
		ID:   "main",
		Name: "Wedding",
		Categories: []Category{
			{ID: "c1", Name: "Venue", Order: 0},
			{ID: "c2", Name: "Guests", Order: 0.5},
		},
		Timeframes: []Timeframe{
			{ID: "tf1", Name: "Feb 1-7", Order: 1, StartDate: DatePtr(NewDate(2026, time.February, 1)), EndDate: DatePtr(NewDate(2026, time.February, 7))},
			{ID: "tf2", Name: "Someday", Order: 2, Hidden: true},
		},
		Tasks: []Task{{
			ID:          "t1",
			Title:       "Book venue",
			Notes:       "call first",
			Status:      StatusInProgress,
			Assignee:    AssigneeBoth,
			Priority:    PriorityHigh,
			CategoryID:  "c1",
			TimeframeID: "tf1",
			DueDate:     DatePtr(NewDate(2026, time.February, 3)),
			Checklist:   []ChecklistItem{{ID: "i1", Title: "deposit", Completed: true}},
			CreatedAt:   created,
			UpdatedAt:   created.Add(time.Hour),
		}},
		CreatedAt: created,
		UpdatedAt: created.Add(time.Hour),
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	in := sampleBoard()
	data, err := MarshalDocument(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out, rep, err := UnmarshalDocument(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rep.Any() {
		t.Fatalf("expected no repairs, got %+v", rep)
	}
	if out.ID != in.ID || out.Name != in.Name || !out.UpdatedAt.Equal(in.UpdatedAt) {
		t.Fatalf("board header mismatch: %+v", out)
	}
	if len(out.Categories) != 2 || out.Categories[1].Order != 0.5 {
		t.Fatalf("categories mismatch: %+v", out.Categories)
	}
	tf := out.Timeframes[0]
	if !tf.HasDates() || tf.StartDate.String() != "2026-02-01" || tf.EndDate.String() != "2026-02-07" {
		t.Fatalf("timeframe dates lost: %+v", tf)
	}
	if !out.Timeframes[1].Hidden || out.Timeframes[1].HasDates() {
		t.Fatalf("hidden timeframe mismatch: %+v", out.Timeframes[1])
	}
	task := out.Tasks[0]
	if task.DueDate == nil || task.DueDate.String() != "2026-02-03" || task.Status != StatusInProgress ||
		task.Assignee != AssigneeBoth || task.Priority != PriorityHigh || len(task.Checklist) != 1 || !task.Checklist[0].Completed {
		t.Fatalf("task mismatch: %+v", task)
	}
}

func TestUnmarshalDocumentDefaultsMissingFields(t *testing.T) {
	doc := `{"id":"main","createdAt":"2026-01-01T00:00:00Z",
		"timeframes":[{"id":"tf1","name":"Later"}],
		"tasks":[{"id":"t1","title":"x","status":"blocked","timeframeId":"tf1"}]}`
	b, rep, err := UnmarshalDocument([]byte(doc))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if b.Categories == nil || len(b.Categories) != 0 {
		t.Fatalf("expected empty categories, got %#v", b.Categories)
	}
	task := b.Tasks[0]
	if task.Status != StatusNotStarted || task.Assignee != AssigneeUnassigned || task.Priority != PriorityNormal {
		t.Fatalf("expected enum defaults, got %+v", task)
	}
	if task.Checklist == nil {
		t.Fatal("expected empty checklist")
	}
	if !task.CreatedAt.Equal(b.CreatedAt) || !b.UpdatedAt.Equal(b.CreatedAt) {
		t.Fatalf("expected timestamps from board, got task=%v board=%v/%v", task.CreatedAt, b.CreatedAt, b.UpdatedAt)
	}
	if b.Timeframes[0].Order != 0 {
		t.Fatalf("expected missing order appended at 0, got %v", b.Timeframes[0].Order)
	}
	if rep.Defaulted == 0 {
		t.Fatal("expected repairs to be counted")
	}
}

func TestUnmarshalDocumentDropsBrokenRecords(t *testing.T) {
	doc := `{"id":"main",
		"categories":[{"id":"c1","name":"Venue","order":1},"oops",{"name":"no id"}],
		"timeframes":[{"id":"tf1","name":"Bad dates","order":0,"startDate":"never","endDate":"2026-02-01"}],
		"tasks":[{"id":"t1","title":"ok","dueDate":"soon","checklist":[{"id":"i1","title":"a"},7]},{"id":42}]}`
	b, rep, err := UnmarshalDocument([]byte(doc))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(b.Categories) != 1 || len(b.Tasks) != 1 || len(b.Tasks[0].Checklist) != 1 {
		t.Fatalf("unexpected records: %+v", b)
	}
	if rep.DroppedRecords != 4 {
		t.Fatalf("expected 4 dropped records, got %d", rep.DroppedRecords)
	}
	if b.Tasks[0].DueDate != nil {
		t.Fatalf("expected unreadable due date cleared, got %v", b.Tasks[0].DueDate)
	}
	if b.Timeframes[0].StartDate != nil || b.Timeframes[0].HasDates() {
		t.Fatalf("expected unreadable start date cleared: %+v", b.Timeframes[0])
	}
}

func TestUnmarshalDocumentAcceptsTimestampObjects(t *testing.T) {
	doc := `{"id":"main","createdAt":{"seconds":1767225600,"nanoseconds":0},"updatedAt":1767225600000}`
	b, _, err := UnmarshalDocument([]byte(doc))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := time.Unix(1767225600, 0)
	if !b.CreatedAt.Equal(want) || !b.UpdatedAt.Equal(want) {
		t.Fatalf("unexpected timestamps %v %v", b.CreatedAt, b.UpdatedAt)
	}
}

func TestUnmarshalDocumentAcceptsQuotedScalars(t *testing.T) {
	doc := `{"id":"main","createdAt":"2026-01-01T00:00:00Z",
		"categories":[{"id":"a","name":"A","order":"1.5"},{"id":"b","name":"B","order":"1.5"}],
		"timeframes":[{"id":"tf","name":"Week","order":0,"startDate":"2026-02-01","endDate":"2026-02-07"}]}`
	b, _, err := UnmarshalDocument([]byte(doc))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !b.CreatedAt.Equal(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected createdAt %v", b.CreatedAt)
	}
	if b.Categories[0].Order != 1.5 || b.Categories[1].Order != 2.5 {
		t.Fatalf("unexpected category orders %v %v", b.Categories[0].Order, b.Categories[1].Order)
	}
	tf := b.Timeframes[0]
	if !tf.HasDates() || tf.StartDate.String() != "2026-02-01" || tf.EndDate.String() != "2026-02-07" {
		t.Fatalf("unexpected range %v..%v", tf.StartDate, tf.EndDate)
	}
}

func TestUnmarshalDocumentRejectsNonObject(t *testing.T) {
	for _, doc := range []string{"", "[]", "null", `{"id":`} {
		_, _, err := UnmarshalDocument([]byte(doc))
		var shapeErr *ShapeError
		if !errors.As(err, &shapeErr) {
			t.Fatalf("expected ShapeError for %q, got %v", doc, err)
		}
	}
}

func TestNormalizeRepairsOrdersAndRanges(t *testing.T) {
	b := &Board{
		Categories: []Category{{ID: "a", Order: 3}, {ID: "b", Order: math.NaN()}},
		Timeframes: []Timeframe{{
			ID:        "tf",
			StartDate: DatePtr(NewDate(2026, time.March, 9)),
			EndDate:   DatePtr(NewDate(2026, time.March, 1)),
		}},
	}
	Normalize(b)
	if b.Categories[1].Order != 4 {
		t.Fatalf("expected NaN order replaced with 4, got %v", b.Categories[1].Order)
	}
	tf := b.Timeframes[0]
	if tf.StartDate.String() != "2026-03-01" || tf.EndDate.String() != "2026-03-09" {
		t.Fatalf("expected swapped range, got %s..%s", tf.StartDate, tf.EndDate)
	}
	if b.Tasks == nil {
		t.Fatal("expected empty task list")
	}
}

func TestNormalizeSeparatesDuplicateOrders(t *testing.T) {
	b := &Board{
		Categories: []Category{{ID: "a", Order: 0}, {ID: "b", Order: 0}, {ID: "c", Order: 2}},
		Timeframes: []Timeframe{{ID: "x", Order: 0}, {ID: "y", Order: 0}, {ID: "z", Order: 0}},
	}
	rep := Normalize(b)
	if rep.Defaulted != 3 {
		t.Fatalf("expected 3 repaired orders, got %d", rep.Defaulted)
	}
	if b.Categories[0].Order != 0 || b.Categories[1].Order != 3 || b.Categories[2].Order != 2 {
		t.Fatalf("unexpected category orders %+v", b.Categories)
	}
	want := []float64{0, 1, 2}
	for i, tf := range b.Timeframes {
		if tf.Order != want[i] {
			t.Fatalf("timeframe %s: expected order %v, got %v", tf.ID, want[i], tf.Order)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	in := sampleBoard()
	out := in.Clone()
	out.Tasks[0].Checklist[0].Title = "changed"
	*out.Tasks[0].DueDate = NewDate(2030, time.January, 1)
	out.Timeframes[0].Name = "renamed"
	if in.Tasks[0].Checklist[0].Title != "deposit" || in.Tasks[0].DueDate.Year != 2026 || in.Timeframes[0].Name != "Feb 1-7" {
		t.Fatalf("clone shares state with original: %+v", in)
	}
}
