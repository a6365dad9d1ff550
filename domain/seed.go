package domain

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var defaultCategories = []string{
	"Venue",
	"Vendors",
	"Attire",
	"Guests",
	"Ceremony",
	"Reception",
}

// SomedayColumn is the undated catch-all column every seeded board gets.
const SomedayColumn = "Someday"

// SeedTemplate describes a starting board loaded from a YAML file.
type SeedTemplate struct {
	Categories []string        `yaml:"categories"`
	Timeframes []SeedTimeframe `yaml:"timeframes"`
	Tasks      []SeedTask      `yaml:"tasks"`
}

type SeedTimeframe struct {
	Name  string `yaml:"name"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

type SeedTask struct {
	Title     string   `yaml:"title"`
	Notes     string   `yaml:"notes"`
	Category  string   `yaml:"category"`
	Timeframe string   `yaml:"timeframe"`
	DueDate   string   `yaml:"dueDate"`
	Priority  string   `yaml:"priority"`
	Assignee  string   `yaml:"assignee"`
	Checklist []string `yaml:"checklist"`
}

// LoadSeedTemplate reads and validates a YAML seed template.
func LoadSeedTemplate(path string) (*SeedTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed template: %w", err)
	}
	var tpl SeedTemplate
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("parse seed template %s: %w", path, err)
	}
	if err := tpl.validate(); err != nil {
		return nil, fmt.Errorf("seed template %s: %w", path, err)
	}
	return &tpl, nil
}

func (t *SeedTemplate) validate() error {
	if len(t.Categories) == 0 {
		return fmt.Errorf("at least one category is required")
	}
	if len(t.Timeframes) == 0 {
		return fmt.Errorf("at least one timeframe is required")
	}
	cats := map[string]bool{}
	for _, c := range t.Categories {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("empty category name")
		}
		if cats[c] {
			return fmt.Errorf("duplicate category %q", c)
		}
		cats[c] = true
	}
	tfs := map[string]bool{}
	for _, tf := range t.Timeframes {
		if strings.TrimSpace(tf.Name) == "" {
			return fmt.Errorf("empty timeframe name")
		}
		if tfs[tf.Name] {
			return fmt.Errorf("duplicate timeframe %q", tf.Name)
		}
		tfs[tf.Name] = true
		if (tf.Start == "") != (tf.End == "") {
			return fmt.Errorf("timeframe %q: start and end must be given together", tf.Name)
		}
		if tf.Start == "" {
			continue
		}
		start, err := ParseDate(tf.Start)
		if err != nil {
			return fmt.Errorf("timeframe %q: %w", tf.Name, err)
		}
		end, err := ParseDate(tf.End)
		if err != nil {
			return fmt.Errorf("timeframe %q: %w", tf.Name, err)
		}
		if start.After(end) {
			return fmt.Errorf("timeframe %q: start %s is after end %s", tf.Name, start, end)
		}
	}
	for _, task := range t.Tasks {
		if !cats[task.Category] {
			return fmt.Errorf("task %q: unknown category %q", task.Title, task.Category)
		}
		if !tfs[task.Timeframe] {
			return fmt.Errorf("task %q: unknown timeframe %q", task.Title, task.Timeframe)
		}
		if task.DueDate != "" {
			if _, err := ParseDate(task.DueDate); err != nil {
				return fmt.Errorf("task %q: %w", task.Title, err)
			}
		}
		if task.Priority != "" && !Priority(task.Priority).Valid() {
			return fmt.Errorf("task %q: unknown priority %q", task.Title, task.Priority)
		}
		if task.Assignee != "" && !Assignee(task.Assignee).Valid() {
			return fmt.Errorf("task %q: unknown assignee %q", task.Title, task.Assignee)
		}
	}
	return nil
}

// SeedOptions controls NewSeed. A nil Template produces the built-in board.
type SeedOptions struct {
	ID       string
	Name     string
	Now      time.Time
	Template *SeedTemplate
}

// NewSeed generates the default board used when neither tier holds a document.
func NewSeed(opts SeedOptions) *Board {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	b := &Board{
		ID:        opts.ID,
		Name:      opts.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if opts.Template != nil {
		fillFromTemplate(b, opts.Template, now)
	} else {
		fillDefault(b, now)
	}
	Normalize(b)
	return b
}

func fillDefault(b *Board, now time.Time) {
	for i, name := range defaultCategories {
		b.Categories = append(b.Categories, Category{ID: uuid.NewString(), Name: name, Order: float64(i)})
	}
	month := Today(now).MonthStart()
	for i := 0; i < 3; i++ {
		start := NewDate(month.Year, month.Month+time.Month(i), 1)
		end := start.MonthEnd()
		b.Timeframes = append(b.Timeframes, Timeframe{
			ID:        uuid.NewString(),
			Name:      start.MonthLabel(),
			Order:     float64(i),
			StartDate: DatePtr(start),
			EndDate:   DatePtr(end),
		})
	}
	b.Timeframes = append(b.Timeframes, Timeframe{ID: uuid.NewString(), Name: SomedayColumn, Order: 3})

	someday := b.Timeframes[3].ID
	starters := []struct {
		title    string
		category int
	}{
		{"Shortlist venues", 0},
		{"Draft guest list", 3},
	}
	for _, s := range starters {
		b.Tasks = append(b.Tasks, Task{
			ID:          uuid.NewString(),
			Title:       s.title,
			Status:      StatusNotStarted,
			Assignee:    AssigneeUnassigned,
			Priority:    PriorityNormal,
			CategoryID:  b.Categories[s.category].ID,
			TimeframeID: someday,
			Checklist:   []ChecklistItem{},
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
}

// fillFromTemplate assumes tpl passed validate.
func fillFromTemplate(b *Board, tpl *SeedTemplate, now time.Time) {
	catIDs := map[string]string{}
	for i, name := range tpl.Categories {
		id := uuid.NewString()
		catIDs[name] = id
		b.Categories = append(b.Categories, Category{ID: id, Name: name, Order: float64(i)})
	}
	tfIDs := map[string]string{}
	for i, st := range tpl.Timeframes {
		tf := Timeframe{ID: uuid.NewString(), Name: st.Name, Order: float64(i)}
		if st.Start != "" {
			start, _ := ParseDate(st.Start)
			end, _ := ParseDate(st.End)
			tf.StartDate, tf.EndDate = DatePtr(start), DatePtr(end)
		}
		tfIDs[st.Name] = tf.ID
		b.Timeframes = append(b.Timeframes, tf)
	}
	for _, st := range tpl.Tasks {
		task := Task{
			ID:          uuid.NewString(),
			Title:       st.Title,
			Notes:       st.Notes,
			Status:      StatusNotStarted,
			Assignee:    Assignee(st.Assignee),
			Priority:    Priority(st.Priority),
			CategoryID:  catIDs[st.Category],
			TimeframeID: tfIDs[st.Timeframe],
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if st.DueDate != "" {
			d, _ := ParseDate(st.DueDate)
			task.DueDate = DatePtr(d)
		}
		for _, title := range st.Checklist {
			task.Checklist = append(task.Checklist, ChecklistItem{ID: uuid.NewString(), Title: title})
		}
		b.Tasks = append(b.Tasks, task)
	}
}
