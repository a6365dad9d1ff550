package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"prism-board/domain"
	"prism-board/persistence"
	"prism-board/timeframe"
)

type fakePersister struct {
	mu    sync.Mutex
	saved []*domain.Board
}

func (f *fakePersister) Save(b *domain.Board) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, b)
}

func (f *fakePersister) Status() persistence.Status { return persistence.StatusOffline }

func (f *fakePersister) saves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func (f *fakePersister) last() *domain.Board {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saved) == 0 {
		return nil
	}
	return f.saved[len(f.saved)-1]
}

func date(y int, m time.Month, d int) *domain.Date {
	return domain.DatePtr(domain.NewDate(y, m, d))
}

func fixture() *domain.Board {
	created := time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC)
	task := func(id, title, cat, tf string, due *domain.Date) domain.Task {
		return domain.Task{
			ID: id, Title: title, CategoryID: cat, TimeframeID: tf, DueDate: due,
			Status: domain.StatusNotStarted, Assignee: domain.AssigneeUnassigned, Priority: domain.PriorityNormal,
			Checklist: []domain.ChecklistItem{}, CreatedAt: created, UpdatedAt: created,
		}
	}
	return &domain.Board{
		ID:   "main",
		Name: "Test board",
		Categories: []domain.Category{
			{ID: "venue", Name: "Venue", Order: 0},
			{ID: "guests", Name: "Guests", Order: 1},
		},
		Timeframes: []domain.Timeframe{
			{ID: "feb", Name: "Feb 1-7", Order: 0, StartDate: date(2026, time.February, 1), EndDate: date(2026, time.February, 7)},
			{ID: "dec", Name: "December 2026", Order: 1, StartDate: date(2026, time.December, 1), EndDate: date(2026, time.December, 31)},
			{ID: "someday", Name: "Someday", Order: 2},
		},
		Tasks: []domain.Task{
			task("t1", "Book venue", "venue", "feb", date(2026, time.February, 3)),
			task("t2", "Draft guest list", "guests", "someday", nil),
			task("t3", "Send invitations", "guests", "dec", nil),
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

type harness struct {
	store     *Store
	persister *fakePersister
	clock     time.Time
}

func newHarness(t *testing.T, load bool) *harness {
	t.Helper()
	logger, _ := test.NewNullLogger()
	h := &harness{persister: &fakePersister{}, clock: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
	ids := 0
	h.store = New(Options{
		Persister: h.persister,
		Logger:    logger,
		Now: func() time.Time {
			h.clock = h.clock.Add(time.Minute)
			return h.clock
		},
		NewID: func() string {
			ids++
			return fmt.Sprintf("id-%d", ids)
		},
	})
	if load {
		h.store.Adopt(fixture(), persistence.OriginRemote)
	}
	return h
}

func (h *harness) task(t *testing.T, id string) domain.Task {
	t.Helper()
	b := h.store.Board()
	i := b.TaskIndex(id)
	if i < 0 {
		t.Fatalf("task %s not on board", id)
	}
	return b.Tasks[i]
}

func (h *harness) timeframe(t *testing.T, id string) domain.Timeframe {
	t.Helper()
	b := h.store.Board()
	i := b.TimeframeIndex(id)
	if i < 0 {
		t.Fatalf("timeframe %s not on board", id)
	}
	return b.Timeframes[i]
}

func TestMutationsBeforeLoadAreNoOps(t *testing.T) {
	h := newHarness(t, false)
	if !h.store.Loading() {
		t.Fatal("store should be loading")
	}
	id, err := h.store.AddCategory("Flowers")
	if err != nil || id != "" {
		t.Fatalf("expected silent no-op, got %q %v", id, err)
	}
	if err := h.store.DeleteTask("t1"); err != nil {
		t.Fatalf("delete before load: %v", err)
	}
	h.store.SelectTask("t1")
	if h.persister.saves() != 0 || h.store.Board() != nil || h.store.SelectedTaskID() != "" {
		t.Fatal("nothing should change before the board is loaded")
	}
}

func TestAdoptClosesLoaded(t *testing.T) {
	h := newHarness(t, false)
	select {
	case <-h.store.Loaded():
		t.Fatal("loaded before adoption")
	default:
	}
	h.store.Adopt(fixture(), persistence.OriginCache)
	select {
	case <-h.store.Loaded():
	default:
		t.Fatal("loaded not closed after adoption")
	}
	h.store.Adopt(fixture(), persistence.OriginRemote)
	if h.persister.saves() != 0 {
		t.Fatal("adopting a dated board must not save")
	}
	if h.store.SyncStatus() != persistence.StatusOffline {
		t.Fatalf("sync status should come from the persister, got %s", h.store.SyncStatus())
	}
}

func TestAdoptBackfillsLegacyTimeframes(t *testing.T) {
	h := newHarness(t, false)
	b := fixture()
	b.CreatedAt = time.Date(2027, time.May, 2, 0, 0, 0, 0, time.UTC)
	b.Timeframes = []domain.Timeframe{
		{ID: "mar", Name: "Mar 1-7", Order: 0},
		{ID: "someday", Name: "Someday", Order: 1},
	}
	h.store.Adopt(b, persistence.OriginRemote)

	if h.persister.saves() != 1 {
		t.Fatalf("expected backfilled board to be saved once, got %d", h.persister.saves())
	}
	mar := h.timeframe(t, "mar")
	if !mar.HasDates() || *mar.StartDate != domain.NewDate(2027, time.March, 1) || *mar.EndDate != domain.NewDate(2027, time.March, 7) {
		t.Fatalf("unexpected backfill %+v", mar)
	}
	if h.timeframe(t, "someday").HasDates() {
		t.Fatal("unparseable names must stay undated")
	}
	if b.Timeframes[0].HasDates() {
		t.Fatal("adopted input must not be modified")
	}

	// The saved echo already carries the dates.
	h.store.Adopt(h.store.Board(), persistence.OriginRemote)
	if h.persister.saves() != 1 {
		t.Fatalf("echo of a backfilled board must not save again, got %d", h.persister.saves())
	}
}

func TestRemoteBoardAfterLocalFallbackIsBackfilled(t *testing.T) {
	h := newHarness(t, false)
	h.store.Adopt(fixture(), persistence.OriginCache)

	remote := fixture()
	remote.Timeframes = []domain.Timeframe{
		{ID: "l1", Name: "Feb 1-7", Order: 0},
		{ID: "l2", Name: "March 2026", Order: 1},
		{ID: "someday", Name: "Someday", Order: 2},
	}
	remote.Tasks = remote.Tasks[1:2]
	h.store.Adopt(remote, persistence.OriginRemote)

	l1, l2 := h.timeframe(t, "l1"), h.timeframe(t, "l2")
	if !l1.HasDates() || *l1.StartDate != domain.NewDate(2026, time.February, 1) || *l1.EndDate != domain.NewDate(2026, time.February, 7) {
		t.Fatalf("unexpected backfill %+v", l1)
	}
	if !l2.HasDates() || *l2.StartDate != domain.NewDate(2026, time.March, 1) || *l2.EndDate != domain.NewDate(2026, time.March, 31) {
		t.Fatalf("unexpected backfill %+v", l2)
	}
	if h.persister.saves() != 1 {
		t.Fatalf("expected the backfilled remote board to be saved once, got %d", h.persister.saves())
	}
	if h.persister.last().Timeframes[0].StartDate == nil {
		t.Fatal("saved board must carry the filled dates")
	}
}

func TestMutationPublishesNewSnapshot(t *testing.T) {
	h := newHarness(t, true)
	before := h.store.Board()
	if _, err := h.store.AddCategory("Flowers"); err != nil {
		t.Fatalf("add category: %v", err)
	}
	after := h.store.Board()
	if after == before {
		t.Fatal("mutation must produce a new snapshot")
	}
	if len(before.Categories) != 2 {
		t.Fatal("previous snapshot was modified in place")
	}
	if h.persister.last() != after {
		t.Fatal("new snapshot was not handed to the persister")
	}
	if !after.UpdatedAt.Equal(h.clock) {
		t.Fatalf("updatedAt %v, want %v", after.UpdatedAt, h.clock)
	}
	if c := after.Categories[2]; c.Name != "Flowers" || c.Order != 2 {
		t.Fatalf("unexpected category %+v", c)
	}
}

func TestDueDateResolvesToExistingTimeframe(t *testing.T) {
	h := newHarness(t, true)
	id, err := h.store.AddTask(NewTask{Title: "Taste cake", CategoryID: "venue", DueDate: date(2026, time.February, 3)})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	got := h.task(t, id)
	if got.TimeframeID != "feb" {
		t.Fatalf("timeframe %q, want feb", got.TimeframeID)
	}
	if got.Status != domain.StatusNotStarted || got.Assignee != domain.AssigneeUnassigned || got.Priority != domain.PriorityNormal {
		t.Fatalf("defaults not applied: %+v", got)
	}
	if !got.CreatedAt.Equal(h.clock) || !got.UpdatedAt.Equal(h.clock) {
		t.Fatal("task timestamps should be the mutation time")
	}
}

func TestDueDateWithoutMatchSynthesizesMonth(t *testing.T) {
	h := newHarness(t, true)
	if err := h.store.UpdateTask("t2", TaskPatch{DueDate: date(2026, time.September, 15)}); err != nil {
		t.Fatalf("update task: %v", err)
	}
	b := h.store.Board()
	if len(b.Timeframes) != 4 {
		t.Fatalf("expected a synthesized timeframe, got %d", len(b.Timeframes))
	}
	tf := b.Timeframes[3]
	if tf.Name != "September 2026" {
		t.Fatalf("name %q", tf.Name)
	}
	if *tf.StartDate != domain.NewDate(2026, time.September, 1) || *tf.EndDate != domain.NewDate(2026, time.September, 30) {
		t.Fatalf("range %s..%s", tf.StartDate, tf.EndDate)
	}
	if tf.Order != 0.5 {
		t.Fatalf("order %v, want between feb and dec", tf.Order)
	}
	if h.task(t, "t2").TimeframeID != tf.ID {
		t.Fatal("task not assigned to the synthesized timeframe")
	}
	if h.persister.saves() != 1 {
		t.Fatalf("synthesis and assignment must be one snapshot, got %d saves", h.persister.saves())
	}
}

func TestClearDueDateKeepsColumn(t *testing.T) {
	h := newHarness(t, true)
	if err := h.store.UpdateTask("t1", TaskPatch{ClearDueDate: true, DueDate: date(2026, time.December, 2)}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got := h.task(t, "t1")
	if got.DueDate != nil || got.TimeframeID != "feb" {
		t.Fatalf("unexpected task %+v", got)
	}
}

func TestValidationErrors(t *testing.T) {
	h := newHarness(t, true)
	bad := domain.TaskStatus("done")
	empty := "  "
	cases := map[string]func() error{
		"empty title": func() error {
			_, err := h.store.AddTask(NewTask{Title: " ", CategoryID: "venue", TimeframeID: "feb"})
			return err
		},
		"unknown status": func() error { return h.store.UpdateTask("t1", TaskPatch{Status: &bad}) },
		"unknown assignee": func() error {
			_, err := h.store.AddTask(NewTask{Title: "x", Assignee: "cousin", CategoryID: "venue", TimeframeID: "feb"})
			return err
		},
		"inverted range": func() error {
			_, err := h.store.AddTimeframe(NewTimeframe{Name: "x", StartDate: date(2026, 5, 2), EndDate: date(2026, 5, 1)})
			return err
		},
		"half range": func() error {
			_, err := h.store.AddTimeframe(NewTimeframe{Name: "x", StartDate: date(2026, 5, 2)})
			return err
		},
		"inverted update": func() error {
			return h.store.UpdateTimeframe("feb", TimeframePatch{EndDate: date(2026, time.January, 1)})
		},
		"empty category": func() error { return h.store.UpdateCategory("venue", CategoryPatch{Name: &empty}) },
		"bad direction":  func() error { return h.store.ReorderTimeframe("feb", 0) },
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			err := fn()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
	if h.persister.saves() != 0 {
		t.Fatal("rejected mutations must not save")
	}
}

func TestUnknownIDsAreNoOps(t *testing.T) {
	h := newHarness(t, true)
	name := "x"
	calls := []error{
		h.store.UpdateTask("missing", TaskPatch{Title: &name}),
		h.store.DeleteTask("missing"),
		h.store.MoveTask("t1", "missing", "feb"),
		h.store.DeleteCategory("missing"),
		h.store.DeleteTimeframe("missing"),
		h.store.ReorderTimeframe("missing", Left),
		h.store.UpdateChecklistItem("t1", "missing", ChecklistPatch{Title: &name}),
	}
	for i, err := range calls {
		if err != nil {
			t.Fatalf("call %d returned %v", i, err)
		}
	}
	if id, err := h.store.AddTask(NewTask{Title: "x", CategoryID: "missing", TimeframeID: "feb"}); id != "" || err != nil {
		t.Fatalf("add with unknown category: %q %v", id, err)
	}
	if h.persister.saves() != 0 {
		t.Fatalf("no-ops must not save, got %d", h.persister.saves())
	}
}

func TestDeleteCategoryCascades(t *testing.T) {
	h := newHarness(t, true)
	if err := h.store.DeleteCategory("guests"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	b := h.store.Board()
	if len(b.Tasks) != 1 {
		t.Fatalf("expected 2 tasks removed, %d left", len(b.Tasks))
	}
	for _, task := range b.Tasks {
		if task.CategoryID == "guests" {
			t.Fatal("task still references deleted category")
		}
	}
	if h.persister.saves() != 1 {
		t.Fatal("cascade must be a single snapshot")
	}
}

func TestDeleteTimeframeCascadesAndClearsSelection(t *testing.T) {
	h := newHarness(t, true)
	h.store.SelectTask("t1")
	if h.store.SelectedTaskID() != "t1" {
		t.Fatal("selection not set")
	}
	h.store.SelectTask("missing")
	if h.store.SelectedTaskID() != "t1" {
		t.Fatal("unknown id must not change the selection")
	}
	if err := h.store.DeleteTimeframe("feb"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	b := h.store.Board()
	if len(b.Tasks) != 2 || b.TimeframeIndex("feb") >= 0 {
		t.Fatalf("unexpected board after delete: %d tasks", len(b.Tasks))
	}
	if h.store.SelectedTaskID() != "" {
		t.Fatal("deleting the selected task must clear the selection")
	}
}

func TestMoveTask(t *testing.T) {
	h := newHarness(t, true)
	if err := h.store.UpdateTask("t3", TaskPatch{DueDate: date(2026, time.December, 24)}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := h.store.MoveTask("t3", "venue", "dec"); err != nil {
		t.Fatalf("move within resolving column: %v", err)
	}
	got := h.task(t, "t3")
	if got.CategoryID != "venue" || got.DueDate == nil {
		t.Fatalf("due date should survive a move that still resolves it: %+v", got)
	}

	if err := h.store.MoveTask("t3", "venue", "someday"); err != nil {
		t.Fatalf("move: %v", err)
	}
	got = h.task(t, "t3")
	if got.TimeframeID != "someday" || got.DueDate != nil {
		t.Fatalf("moving out of the resolving column must clear the due date: %+v", got)
	}

	saves := h.persister.saves()
	if err := h.store.MoveTask("t3", "venue", "someday"); err != nil {
		t.Fatalf("move to same cell: %v", err)
	}
	if h.persister.saves() != saves {
		t.Fatal("moving to the current cell must not save")
	}
}

func TestTimeframeRangeChangeResettlesTasks(t *testing.T) {
	h := newHarness(t, true)
	if err := h.store.UpdateTimeframe("feb", TimeframePatch{StartDate: date(2026, time.February, 4)}); err != nil {
		t.Fatalf("update: %v", err)
	}
	b := h.store.Board()
	task := h.task(t, "t1")
	if task.TimeframeID == "feb" {
		t.Fatal("task should leave a column that no longer covers its due date")
	}
	tf := h.timeframe(t, task.TimeframeID)
	if tf.Name != "February 2026" || !tf.Contains(*task.DueDate) {
		t.Fatalf("unexpected column %+v", tf)
	}
	if tf.Order != -1 {
		t.Fatalf("order %v, want before feb", tf.Order)
	}
	if len(b.Timeframes) != 4 {
		t.Fatalf("expected 4 timeframes, got %d", len(b.Timeframes))
	}
}

func TestAddTimeframeOrdering(t *testing.T) {
	h := newHarness(t, true)
	aug, err := h.store.AddTimeframe(NewTimeframe{Name: "August", StartDate: date(2026, time.August, 1), EndDate: date(2026, time.August, 31)})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if o := h.timeframe(t, aug).Order; o != 0.5 {
		t.Fatalf("dated column order %v, want 0.5", o)
	}
	later, _ := h.store.AddTimeframe(NewTimeframe{Name: "Later", Hidden: true})
	tf := h.timeframe(t, later)
	if tf.Order != 3 || !tf.Hidden {
		t.Fatalf("undated column %+v", tf)
	}
}

func TestHideKeepsTasks(t *testing.T) {
	h := newHarness(t, true)
	hidden := true
	if err := h.store.UpdateTimeframe("feb", TimeframePatch{Hidden: &hidden}); err != nil {
		t.Fatalf("hide: %v", err)
	}
	if !h.timeframe(t, "feb").Hidden || h.task(t, "t1").TimeframeID != "feb" {
		t.Fatal("hidden column must keep its tasks")
	}
}

func TestReorderSwapsNeighbours(t *testing.T) {
	h := newHarness(t, true)
	if err := h.store.ReorderTimeframe("dec", Left); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if h.timeframe(t, "dec").Order != 0 || h.timeframe(t, "feb").Order != 1 {
		t.Fatal("orders not swapped")
	}
	if h.timeframe(t, "someday").Order != 2 {
		t.Fatal("other columns must keep their order")
	}

	saves := h.persister.saves()
	if err := h.store.ReorderTimeframe("dec", Left); err != nil {
		t.Fatalf("reorder at edge: %v", err)
	}
	if h.persister.saves() != saves {
		t.Fatal("moving past the edge must be a no-op")
	}

	if err := h.store.ReorderCategory("venue", Right); err != nil {
		t.Fatalf("reorder category: %v", err)
	}
	sorted := domain.SortedCategories(h.store.Board().Categories)
	if sorted[0].ID != "guests" || sorted[1].ID != "venue" {
		t.Fatalf("unexpected category order %+v", sorted)
	}
}

func TestReorderAfterLoadingDuplicateOrders(t *testing.T) {
	h := newHarness(t, false)
	b := fixture()
	for i := range b.Timeframes {
		b.Timeframes[i].Order = 0
	}
	domain.Normalize(b)
	h.store.Adopt(b, persistence.OriginRemote)

	if err := h.store.ReorderTimeframe("dec", Right); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	sorted := domain.SortedTimeframes(h.store.Board().Timeframes)
	got := []string{sorted[0].ID, sorted[1].ID, sorted[2].ID}
	if got[0] != "feb" || got[1] != "someday" || got[2] != "dec" {
		t.Fatalf("unexpected column order %v", got)
	}
	if h.persister.saves() != 1 {
		t.Fatalf("expected one save, got %d", h.persister.saves())
	}
}

func TestSwapOfEqualOrdersIsNoOp(t *testing.T) {
	h := newHarness(t, false)
	b := fixture()
	b.Categories[1].Order = b.Categories[0].Order
	h.store.Adopt(b, persistence.OriginRemote)
	before := h.store.Board()

	if err := h.store.ReorderCategory("venue", Right); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if h.store.Board() != before || h.persister.saves() != 0 {
		t.Fatal("swapping equal orders must not publish or save")
	}
}

func TestChecklistLifecycle(t *testing.T) {
	h := newHarness(t, true)
	id, err := h.store.AddChecklistItem("t2", "Call aunt")
	if err != nil || id == "" {
		t.Fatalf("add item: %q %v", id, err)
	}
	done := true
	if err := h.store.UpdateChecklistItem("t2", id, ChecklistPatch{Completed: &done}); err != nil {
		t.Fatalf("update item: %v", err)
	}
	task := h.task(t, "t2")
	if len(task.Checklist) != 1 || !task.Checklist[0].Completed {
		t.Fatalf("unexpected checklist %+v", task.Checklist)
	}
	if !task.UpdatedAt.Equal(h.clock) {
		t.Fatal("checklist edits touch the task")
	}
	if err := h.store.DeleteChecklistItem("t2", id); err != nil {
		t.Fatalf("delete item: %v", err)
	}
	if n := len(h.task(t, "t2").Checklist); n != 0 {
		t.Fatalf("expected empty checklist, got %d", n)
	}
}

func TestDueDatesAlwaysResolveAfterSettling(t *testing.T) {
	h := newHarness(t, true)
	d := domain.NewDate(2026, time.January, 5)
	for i := 0; i < 30; i++ {
		d = d.AddDays(23)
		due := d
		if _, err := h.store.AddTask(NewTask{Title: fmt.Sprintf("task %d", i), CategoryID: "venue", DueDate: &due}); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	b := h.store.Board()
	for _, task := range b.Tasks {
		if task.DueDate == nil {
			continue
		}
		id, ok := timeframe.Resolve(*task.DueDate, b.Timeframes, nil)
		if !ok || id != task.TimeframeID {
			t.Fatalf("task %s due %s sits in %s, resolves to %s", task.ID, task.DueDate, task.TimeframeID, id)
		}
	}
	seen := map[float64]string{}
	for _, tf := range b.Timeframes {
		if other, dup := seen[tf.Order]; dup {
			t.Fatalf("timeframes %s and %s share order %v", other, tf.ID, tf.Order)
		}
		seen[tf.Order] = tf.ID
	}
}

func TestWatchDeliversLatest(t *testing.T) {
	h := newHarness(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	ch := h.store.Watch(ctx)

	h.store.Adopt(fixture(), persistence.OriginRemote)
	if b := <-ch; b.Name != "Test board" {
		t.Fatalf("unexpected first board %q", b.Name)
	}

	_, _ = h.store.AddCategory("Flowers")
	_, _ = h.store.AddCategory("Music")
	b := <-ch
	if len(b.Categories) != 4 {
		t.Fatalf("expected only the latest snapshot, got %d categories", len(b.Categories))
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch channel not closed after cancel")
	}
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{"left": Left, "Up": Left, "right": Right, " down ": Right} {
		got, err := ParseDirection(in)
		if err != nil || got != want {
			t.Fatalf("ParseDirection(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseDirection("sideways"); err == nil {
		t.Fatal("expected error")
	}
}
