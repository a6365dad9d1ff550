package timeframe

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"prism-board/domain"
)

// Range is an inclusive calendar range recovered from a column name.
type Range struct {
	Start domain.Date
	End   domain.Date
}

func (r Range) Contains(d domain.Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

func (r Range) days() int { return r.Start.DaysUntil(r.End) }

// Matcher recognises one legacy naming form. Year-less names are placed in refYear.
type Matcher struct {
	Name  string
	Match func(name string, refYear int) (Range, bool)
}

const (
	monthPattern = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?`
	dashPattern  = `\s*(?:-|–|—|to)\s*`
)

var (
	dayRangeRe   = regexp.MustCompile(`(?i)^` + monthPattern + `\s+(\d{1,2})` + dashPattern + `(?:` + monthPattern + `\s+)?(\d{1,2})(?:,?\s+(\d{4}))?$`)
	singleDayRe  = regexp.MustCompile(`(?i)^` + monthPattern + `\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?$`)
	monthYearRe  = regexp.MustCompile(`(?i)^` + monthPattern + `,?\s+(\d{4})$`)
	monthRangeRe = regexp.MustCompile(`(?i)^` + monthPattern + `(?:\s+(\d{4}))?` + dashPattern + monthPattern + `,?\s+(\d{4})$`)
)

// Matchers lists the legacy forms in the order they are tried after the exact table.
var Matchers = []Matcher{
	{Name: "day-range", Match: matchDayRange},
	{Name: "single-day", Match: matchSingleDay},
	{Name: "month-year", Match: matchMonthYear},
	{Name: "month-range", Match: matchMonthRange},
}

// Parser turns legacy column names into date ranges. The zero value and nil
// pointer are usable and have an empty exact table.
type Parser struct {
	table    map[string]Range
	matchers []Matcher
}

// NewParser builds a parser whose exact table takes precedence over the
// pattern matchers.
func NewParser(table map[string]Range) *Parser {
	p := &Parser{table: map[string]Range{}, matchers: Matchers}
	for name, r := range table {
		p.table[canonicalName(name)] = r
	}
	return p
}

// ParseTable reads exact-table entries written as "YYYY-MM-DD..YYYY-MM-DD".
func ParseTable(raw map[string]string) (map[string]Range, error) {
	out := make(map[string]Range, len(raw))
	for name, value := range raw {
		parts := strings.SplitN(value, "..", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("legacy timeframe %q: expected start..end, got %q", name, value)
		}
		start, err := domain.ParseDate(parts[0])
		if err != nil {
			return nil, fmt.Errorf("legacy timeframe %q: %w", name, err)
		}
		end, err := domain.ParseDate(parts[1])
		if err != nil {
			return nil, fmt.Errorf("legacy timeframe %q: %w", name, err)
		}
		if start.After(end) {
			return nil, fmt.Errorf("legacy timeframe %q: start %s is after end %s", name, start, end)
		}
		out[name] = Range{Start: start, End: end}
	}
	return out, nil
}

// Parse tries the exact table and then each matcher in order.
func (p *Parser) Parse(name string, refYear int) (Range, bool) {
	key := canonicalName(name)
	if key == "" {
		return Range{}, false
	}
	matchers := Matchers
	if p != nil {
		if r, ok := p.table[key]; ok {
			return r, true
		}
		if p.matchers != nil {
			matchers = p.matchers
		}
	}
	for _, m := range matchers {
		if r, ok := m.Match(key, refYear); ok {
			return r, true
		}
	}
	return Range{}, false
}

func canonicalName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func matchDayRange(name string, refYear int) (Range, bool) {
	m := dayRangeRe.FindStringSubmatch(name)
	if m == nil {
		return Range{}, false
	}
	startMonth := monthOf(m[1])
	endMonth := startMonth
	if m[3] != "" {
		endMonth = monthOf(m[3])
	}
	startYear, endYear := refYear, refYear
	if m[5] != "" {
		endYear, _ = strconv.Atoi(m[5])
		startYear = endYear
		if endMonth < startMonth {
			startYear--
		}
	} else if endMonth < startMonth {
		endYear++
	}
	start, ok := dayOf(startYear, startMonth, m[2])
	if !ok {
		return Range{}, false
	}
	end, ok := dayOf(endYear, endMonth, m[4])
	if !ok || start.After(end) {
		return Range{}, false
	}
	return Range{Start: start, End: end}, true
}

func matchSingleDay(name string, refYear int) (Range, bool) {
	m := singleDayRe.FindStringSubmatch(name)
	if m == nil {
		return Range{}, false
	}
	year := refYear
	if m[3] != "" {
		year, _ = strconv.Atoi(m[3])
	}
	d, ok := dayOf(year, monthOf(m[1]), m[2])
	if !ok {
		return Range{}, false
	}
	return Range{Start: d, End: d}, true
}

func matchMonthYear(name string, _ int) (Range, bool) {
	m := monthYearRe.FindStringSubmatch(name)
	if m == nil {
		return Range{}, false
	}
	year, _ := strconv.Atoi(m[2])
	start := domain.Date{Year: year, Month: monthOf(m[1]), Day: 1}
	return Range{Start: start, End: start.MonthEnd()}, true
}

// matchMonthRange reads "Apr-May 2026" and "Nov - Jan 2027"; a lone year
// belongs to the end month.
func matchMonthRange(name string, _ int) (Range, bool) {
	m := monthRangeRe.FindStringSubmatch(name)
	if m == nil {
		return Range{}, false
	}
	startMonth, endMonth := monthOf(m[1]), monthOf(m[3])
	endYear, _ := strconv.Atoi(m[4])
	startYear := endYear
	if m[2] != "" {
		startYear, _ = strconv.Atoi(m[2])
	} else if endMonth < startMonth {
		startYear--
	}
	start := domain.Date{Year: startYear, Month: startMonth, Day: 1}
	end := domain.Date{Year: endYear, Month: endMonth, Day: 1}.MonthEnd()
	if start.After(end) {
		return Range{}, false
	}
	return Range{Start: start, End: end}, true
}

func monthOf(s string) time.Month {
	s = strings.ToLower(strings.TrimSuffix(s, "."))
	switch s[:3] {
	case "jan":
		return time.January
	case "feb":
		return time.February
	case "mar":
		return time.March
	case "apr":
		return time.April
	case "may":
		return time.May
	case "jun":
		return time.June
	case "jul":
		return time.July
	case "aug":
		return time.August
	case "sep":
		return time.September
	case "oct":
		return time.October
	case "nov":
		return time.November
	}
	return time.December
}

// dayOf rejects days that do not exist in the month instead of rolling over.
func dayOf(year int, month time.Month, day string) (domain.Date, bool) {
	n, err := strconv.Atoi(day)
	if err != nil || n < 1 {
		return domain.Date{}, false
	}
	d := domain.NewDate(year, month, n)
	if d.Month != month || d.Day != n {
		return domain.Date{}, false
	}
	return d, true
}
