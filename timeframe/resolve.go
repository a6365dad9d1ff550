// Package timeframe maps calendar dates to board columns. Everything here is a
// pure function of its arguments.
package timeframe

import (
	"prism-board/domain"
)

type candidate struct {
	id    string
	order float64
	rng   Range
}

// better reports whether a should win over b when both contain the date:
// narrowest range first, then earliest start, then lowest order.
func (a candidate) better(b candidate) bool {
	if da, db := a.rng.days(), b.rng.days(); da != db {
		return da < db
	}
	if c := a.rng.Start.Compare(b.rng.Start); c != 0 {
		return c < 0
	}
	return a.order < b.order
}

// Resolve returns the id of the column whose inclusive range contains d. Hidden
// columns take part. Names are only consulted when no column carries explicit
// dates, using p (nil means no exact table).
func Resolve(d domain.Date, tfs []domain.Timeframe, p *Parser) (string, bool) {
	var best *candidate
	anyDated := false
	for _, tf := range tfs {
		if !tf.HasDates() {
			continue
		}
		anyDated = true
		c := candidate{id: tf.ID, order: tf.Order, rng: Range{Start: *tf.StartDate, End: *tf.EndDate}}
		if c.rng.Contains(d) && (best == nil || c.better(*best)) {
			best = &c
		}
	}
	if best != nil {
		return best.id, true
	}
	if anyDated {
		return "", false
	}

	// A year-less name like "Dec 28 - Jan 3" may have started the year before d.
	for _, tf := range tfs {
		for _, year := range []int{d.Year, d.Year - 1} {
			r, ok := p.Parse(tf.Name, year)
			if !ok || !r.Contains(d) {
				continue
			}
			c := candidate{id: tf.ID, order: tf.Order, rng: r}
			if best == nil || c.better(*best) {
				best = &c
			}
			break
		}
	}
	if best == nil {
		return "", false
	}
	return best.id, true
}
