package timeframe

import (
	"math"
	"sort"

	"prism-board/domain"
)

// InsertionOrder computes the order key for a new column starting at d so it
// sits between its dated neighbours. The result never equals an existing
// sibling's order.
func InsertionOrder(d domain.Date, tfs []domain.Timeframe) float64 {
	orders := siblingOrders(tfs)

	dated := make([]domain.Timeframe, 0, len(tfs))
	for _, tf := range tfs {
		if tf.StartDate != nil {
			dated = append(dated, tf)
		}
	}
	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].StartDate.Before(*dated[j].StartDate)
	})

	var v float64
	next := -1
	for i, tf := range dated {
		if tf.StartDate.After(d) {
			next = i
			break
		}
	}
	switch {
	case len(dated) == 0 || next == -1:
		v = maxOrder(orders) + 1
	case next == 0:
		v = dated[0].Order - 1
	default:
		v = (dated[next-1].Order + dated[next].Order) / 2
	}
	return uniqueOrder(v, orders)
}

// Midpoint bisects (a, b). ok is false once float64 can no longer represent a
// value strictly between them; for neighbours around 1.0 that happens after 52
// successive bisections toward the same side.
func Midpoint(a, b float64) (float64, bool) {
	m := a + (b-a)/2
	if m <= math.Min(a, b) || m >= math.Max(a, b) {
		return m, false
	}
	return m, true
}

func siblingOrders(tfs []domain.Timeframe) []float64 {
	out := make([]float64, 0, len(tfs))
	for _, tf := range tfs {
		out = append(out, tf.Order)
	}
	sort.Float64s(out)
	return out
}

func maxOrder(sorted []float64) float64 {
	if len(sorted) == 0 {
		return -1
	}
	return sorted[len(sorted)-1]
}

// uniqueOrder moves v halfway towards the next higher sibling when it collides,
// and past every sibling once precision runs out.
func uniqueOrder(v float64, sorted []float64) float64 {
	i := sort.SearchFloat64s(sorted, v)
	if i == len(sorted) || sorted[i] != v {
		return v
	}
	for i < len(sorted) && sorted[i] == v {
		i++
	}
	if i == len(sorted) {
		return maxOrder(sorted) + 1
	}
	if m, ok := Midpoint(v, sorted[i]); ok {
		return m
	}
	return maxOrder(sorted) + 1
}
