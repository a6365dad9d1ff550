// Package board holds the current planning board and applies every user edit
// to it as a new immutable snapshot.
package board

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"prism-board/domain"
	"prism-board/persistence"
	"prism-board/timeframe"
)

// Persister receives every new snapshot. Save must not block on the network.
type Persister interface {
	Save(b *domain.Board)
	Status() persistence.Status
}

type Options struct {
	Persister Persister
	// Parser reads legacy column names; nil uses the built-in patterns only.
	Parser *timeframe.Parser
	Logger *log.Logger
	Now    func() time.Time
	NewID  func() string
}

// Store is the single writer of the board for this process. Mutations run on
// the caller's goroutine under one mutex; readers get shared snapshots.
type Store struct {
	persister Persister
	parser    *timeframe.Parser
	logger    *log.Logger
	now       func() time.Time
	newID     func() string

	mu       sync.Mutex
	board    *domain.Board
	selected string
	watchers map[chan *domain.Board]struct{}
	loaded   chan struct{}
}

func New(opts Options) *Store {
	if opts.Persister == nil {
		panic("board.New: persister is nil")
	}
	s := &Store{
		persister: opts.Persister,
		parser:    opts.Parser,
		logger:    opts.Logger,
		now:       opts.Now,
		newID:     opts.NewID,
		watchers:  make(map[chan *domain.Board]struct{}),
		loaded:    make(chan struct{}),
	}
	if s.parser == nil {
		s.parser = timeframe.NewParser(nil)
	}
	if s.logger == nil {
		s.logger = log.StandardLogger()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// Adopt installs b as the current board. Legacy columns without date ranges
// are filled from their names on every adoption, and a filled board is saved
// once. Its echo carries the dates, so it is not filled again.
func (s *Store) Adopt(b *domain.Board, origin persistence.Origin) {
	if b == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	first := s.board == nil
	now := s.now()
	year := timeframe.ReferenceYear(b, domain.Today(now))
	tfs, n := timeframe.Backfill(b.Timeframes, s.parser, year)
	changed := n > 0
	if changed {
		next := b.Clone()
		next.Timeframes = tfs
		next.UpdatedAt = now
		b = next
		s.logger.WithFields(log.Fields{
			"filled":         n,
			"origin":         string(origin),
			"reference_year": year,
		}).Info("filled legacy timeframe dates")
	}

	s.board = b
	if s.selected != "" && b.TaskIndex(s.selected) < 0 {
		s.selected = ""
	}
	s.logger.WithFields(log.Fields{"origin": string(origin), "updated_at": b.UpdatedAt}).Debug("store adopted board")
	s.publishLocked(b)
	if first {
		close(s.loaded)
	}
	if changed {
		s.persister.Save(b)
	}
}

// Board returns the current snapshot, nil before the first adoption. Callers
// must treat it as read-only.
func (s *Store) Board() *domain.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board == nil
}

// Loaded is closed once the first board has been adopted.
func (s *Store) Loaded() <-chan struct{} {
	return s.loaded
}

func (s *Store) SyncStatus() persistence.Status {
	return s.persister.Status()
}

func (s *Store) SelectedTaskID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// SelectTask selects a task; an empty id clears the selection. Unknown ids
// leave the selection unchanged.
func (s *Store) SelectTask(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.board == nil {
		return
	}
	if id != "" && s.board.TaskIndex(id) < 0 {
		s.logger.WithField("task_id", id).Debug("select: task not found")
		return
	}
	s.selected = id
}

// Watch delivers the current board and then every later one. A slow reader
// only ever sees the latest snapshot. The channel closes when ctx ends.
func (s *Store) Watch(ctx context.Context) <-chan *domain.Board {
	ch := make(chan *domain.Board, 1)
	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	if s.board != nil {
		ch <- s.board
	}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}

func (s *Store) publishLocked(b *domain.Board) {
	for ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- b
	}
}

// mutate runs fn against a copy of the current board and, unless fn fails,
// publishes the copy as the next snapshot. Before the first adoption it does
// nothing.
func (s *Store) mutate(op string, fn func(b *domain.Board, now time.Time) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.board == nil {
		s.logger.WithField("op", op).Debug("board not loaded, ignoring")
		return nil
	}

	now := s.now()
	next := s.board.Clone()
	if err := fn(next, now); err != nil {
		switch {
		case errors.Is(err, errNoChange):
			return nil
		case errors.Is(err, ErrNotFound):
			s.logger.WithError(err).WithField("op", op).Debug("ignoring mutation")
			return nil
		}
		return err
	}
	s.settle(next, now)
	next.UpdatedAt = now

	s.board = next
	if s.selected != "" && next.TaskIndex(s.selected) < 0 {
		s.selected = ""
	}
	s.publishLocked(next)
	s.persister.Save(next)
	return nil
}

// settle keeps every dated task in the column that resolves its due date,
// adding a month column when none does.
func (s *Store) settle(b *domain.Board, now time.Time) {
	for i := range b.Tasks {
		t := &b.Tasks[i]
		if t.DueDate == nil {
			continue
		}
		if id := s.place(b, *t.DueDate); id != t.TimeframeID {
			t.TimeframeID = id
			t.UpdatedAt = now
		}
	}
}

func (s *Store) place(b *domain.Board, d domain.Date) string {
	if id, ok := timeframe.Resolve(d, b.Timeframes, s.parser); ok {
		return id
	}
	tf := timeframe.Synthesize(d, b.Timeframes, s.newID())
	b.Timeframes = append(b.Timeframes, tf)
	s.logger.WithFields(log.Fields{"timeframe": tf.Name, "order": tf.Order}).Info("added month timeframe for due date")
	return tf.ID
}
