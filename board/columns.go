package board

import (
	"sort"
	"time"

	"prism-board/domain"
	"prism-board/timeframe"
)

func (s *Store) AddCategory(name string) (string, error) {
	name, err := requireName("name", name)
	if err != nil {
		return "", err
	}
	var id string
	err = s.mutate("addCategory", func(b *domain.Board, _ time.Time) error {
		orders := make([]float64, len(b.Categories))
		for i, c := range b.Categories {
			orders[i] = c.Order
		}
		id = s.newID()
		b.Categories = append(b.Categories, domain.Category{ID: id, Name: name, Order: nextOrder(orders)})
		return nil
	})
	return id, err
}

func (s *Store) UpdateCategory(id string, patch CategoryPatch) error {
	var name string
	if patch.Name != nil {
		var err error
		if name, err = requireName("name", *patch.Name); err != nil {
			return err
		}
	}
	return s.mutate("updateCategory", func(b *domain.Board, _ time.Time) error {
		i := b.CategoryIndex(id)
		if i < 0 {
			return notFound("category", id)
		}
		if patch.Name == nil {
			return errNoChange
		}
		b.Categories[i].Name = name
		return nil
	})
}

// DeleteCategory removes the row and every task in it.
func (s *Store) DeleteCategory(id string) error {
	return s.mutate("deleteCategory", func(b *domain.Board, _ time.Time) error {
		i := b.CategoryIndex(id)
		if i < 0 {
			return notFound("category", id)
		}
		b.Categories = append(b.Categories[:i], b.Categories[i+1:]...)
		b.Tasks = dropTasks(b.Tasks, func(t domain.Task) bool { return t.CategoryID == id })
		return nil
	})
}

// AddTimeframe adds a column. A dated column is placed among the dated columns
// by its start date; an undated one goes last.
func (s *Store) AddTimeframe(in NewTimeframe) (string, error) {
	name, err := requireName("name", in.Name)
	if err != nil {
		return "", err
	}
	if err := validRange(in.StartDate, in.EndDate); err != nil {
		return "", err
	}
	var id string
	err = s.mutate("addTimeframe", func(b *domain.Board, _ time.Time) error {
		tf := domain.Timeframe{ID: s.newID(), Name: name, Hidden: in.Hidden}
		if in.StartDate != nil {
			tf.StartDate = domain.DatePtr(*in.StartDate)
			tf.EndDate = domain.DatePtr(*in.EndDate)
			tf.Order = timeframe.InsertionOrder(*in.StartDate, b.Timeframes)
		} else {
			orders := make([]float64, len(b.Timeframes))
			for i, t := range b.Timeframes {
				orders[i] = t.Order
			}
			tf.Order = nextOrder(orders)
		}
		b.Timeframes = append(b.Timeframes, tf)
		id = tf.ID
		return nil
	})
	return id, err
}

// UpdateTimeframe applies patch to a column. Dated tasks follow range changes.
func (s *Store) UpdateTimeframe(id string, patch TimeframePatch) error {
	var name string
	if patch.Name != nil {
		var err error
		if name, err = requireName("name", *patch.Name); err != nil {
			return err
		}
	}
	return s.mutate("updateTimeframe", func(b *domain.Board, _ time.Time) error {
		i := b.TimeframeIndex(id)
		if i < 0 {
			return notFound("timeframe", id)
		}
		tf := b.Timeframes[i]
		if patch.Name != nil {
			tf.Name = name
		}
		if patch.Hidden != nil {
			tf.Hidden = *patch.Hidden
		}
		if patch.ClearDates {
			tf.StartDate, tf.EndDate = nil, nil
		} else {
			if patch.StartDate != nil {
				tf.StartDate = domain.DatePtr(*patch.StartDate)
			}
			if patch.EndDate != nil {
				tf.EndDate = domain.DatePtr(*patch.EndDate)
			}
		}
		if err := validRange(tf.StartDate, tf.EndDate); err != nil {
			return err
		}
		b.Timeframes[i] = tf
		return nil
	})
}

// DeleteTimeframe removes the column and every task in it.
func (s *Store) DeleteTimeframe(id string) error {
	return s.mutate("deleteTimeframe", func(b *domain.Board, _ time.Time) error {
		i := b.TimeframeIndex(id)
		if i < 0 {
			return notFound("timeframe", id)
		}
		b.Timeframes = append(b.Timeframes[:i], b.Timeframes[i+1:]...)
		b.Tasks = dropTasks(b.Tasks, func(t domain.Task) bool { return t.TimeframeID == id })
		return nil
	})
}

// ReorderTimeframe swaps a column's order with its neighbour in dir. At either
// end it does nothing.
func (s *Store) ReorderTimeframe(id string, dir Direction) error {
	if dir != Left && dir != Right {
		return invalid("direction", "must be left or right")
	}
	return s.mutate("reorderTimeframe", func(b *domain.Board, _ time.Time) error {
		orders := make([]*float64, len(b.Timeframes))
		ids := make([]string, len(b.Timeframes))
		for i := range b.Timeframes {
			orders[i], ids[i] = &b.Timeframes[i].Order, b.Timeframes[i].ID
		}
		return swapAdjacent("timeframe", id, dir, ids, orders)
	})
}

func (s *Store) ReorderCategory(id string, dir Direction) error {
	if dir != Left && dir != Right {
		return invalid("direction", "must be up or down")
	}
	return s.mutate("reorderCategory", func(b *domain.Board, _ time.Time) error {
		orders := make([]*float64, len(b.Categories))
		ids := make([]string, len(b.Categories))
		for i := range b.Categories {
			orders[i], ids[i] = &b.Categories[i].Order, b.Categories[i].ID
		}
		return swapAdjacent("category", id, dir, ids, orders)
	})
}

func swapAdjacent(kind, id string, dir Direction, ids []string, orders []*float64) error {
	idx := make([]int, len(ids))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return *orders[idx[a]] < *orders[idx[b]] })

	pos := -1
	for p, i := range idx {
		if ids[i] == id {
			pos = p
			break
		}
	}
	if pos < 0 {
		return notFound(kind, id)
	}
	other := pos + int(dir)
	if other < 0 || other >= len(idx) {
		return errNoChange
	}
	a, b := orders[idx[pos]], orders[idx[other]]
	if *a == *b {
		return errNoChange
	}
	*a, *b = *b, *a
	return nil
}

func dropTasks(tasks []domain.Task, drop func(domain.Task) bool) []domain.Task {
	out := tasks[:0]
	for _, t := range tasks {
		if !drop(t) {
			out = append(out, t)
		}
	}
	return out
}

func nextOrder(orders []float64) float64 {
	if len(orders) == 0 {
		return 0
	}
	hi := orders[0]
	for _, o := range orders[1:] {
		if o > hi {
			hi = o
		}
	}
	return hi + 1
}
