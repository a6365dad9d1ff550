package timeframe

import (
	"prism-board/domain"
)

// Backfill fills explicit dates on columns whose names parse as a legacy form.
// Columns that already carry dates, or whose names do not parse, are returned
// unchanged. The input slice is not modified.
func Backfill(tfs []domain.Timeframe, p *Parser, refYear int) ([]domain.Timeframe, int) {
	out := make([]domain.Timeframe, len(tfs))
	copy(out, tfs)
	filled := 0
	for i := range out {
		tf := &out[i]
		if tf.StartDate != nil || tf.EndDate != nil {
			continue
		}
		r, ok := p.Parse(tf.Name, refYear)
		if !ok {
			continue
		}
		tf.StartDate = domain.DatePtr(r.Start)
		tf.EndDate = domain.DatePtr(r.End)
		filled++
	}
	return out, filled
}

// ReferenceYear picks the year used for names that carry none: the board's
// creation year when known, otherwise the year of today.
func ReferenceYear(b *domain.Board, today domain.Date) int {
	if b != nil && !b.CreatedAt.IsZero() {
		return domain.Today(b.CreatedAt).Year
	}
	return today.Year
}
