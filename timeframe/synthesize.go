package timeframe

import (
	"prism-board/domain"
)

// Synthesize builds a column covering the calendar month that contains d,
// ordered among the existing dated columns by its first day.
func Synthesize(d domain.Date, tfs []domain.Timeframe, id string) domain.Timeframe {
	start := d.MonthStart()
	end := d.MonthEnd()
	return domain.Timeframe{
		ID:        id,
		Name:      start.MonthLabel(),
		Order:     InsertionOrder(start, tfs),
		StartDate: domain.DatePtr(start),
		EndDate:   domain.DatePtr(end),
	}
}
