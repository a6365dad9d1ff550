// Package persistence keeps the board durable in a local cache and in a shared
// remote document, and feeds remote changes back to the owner of the board.
package persistence

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"prism-board/domain"
	"prism-board/storage"
)

//go:generate mockgen -destination=mock_cache_test.go -package=persistence prism-board/persistence LocalCache

// LocalCache is the durable per-client tier. Load returns nil, nil when empty.
type LocalCache interface {
	Load(ctx context.Context) (*domain.Board, error)
	Save(ctx context.Context, b *domain.Board) error
}

// Remote is the shared document. Subscribe delivers the current document first
// and every later change, including this client's own writes.
type Remote interface {
	Subscribe(ctx context.Context) (<-chan storage.Snapshot, error)
	Write(ctx context.Context, b *domain.Board) error
	Close() error
}

// AdoptFunc installs a board as the authoritative state. It is called from the
// orchestrator's goroutines and must not block on the orchestrator.
type AdoptFunc func(b *domain.Board, origin Origin)

type Options struct {
	Cache LocalCache
	// Remote nil means offline mode for the whole session.
	Remote Remote
	// Backend names the remote in logs and spans.
	Backend string
	Seed    func() *domain.Board
	Logger  *log.Logger
	Tracer  trace.Tracer

	WriteTimeout   time.Duration
	StartupTimeout time.Duration
	RetryDelay     time.Duration

	debounce time.Duration
}

const (
	defaultWriteTimeout   = 10 * time.Second
	defaultStartupTimeout = 10 * time.Second
	defaultRetryDelay     = 5 * time.Second
)

// Orchestrator writes every board to the local cache immediately and to the
// remote after a debounce quantum, and adopts whatever the remote delivers.
type Orchestrator struct {
	cache   LocalCache
	remote  Remote
	backend string
	seed    func() *domain.Board
	logger  *log.Logger
	tracer  trace.Tracer

	writeTimeout   time.Duration
	startupTimeout time.Duration
	retryDelay     time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	deb    *debouncer

	mu          sync.Mutex
	status      Status
	started     bool
	closed      bool
	initialized bool
	current     *domain.Board

	// writeMu serializes remote writes and lets Close wait for one in flight.
	writeMu sync.Mutex

	// startMu serializes adoption so a startup fallback and the first remote
	// snapshot never interleave. Save never takes it, so adopt may call Save.
	startMu   sync.Mutex
	adopt     AdoptFunc
	gotFirst  bool
	firstDone chan struct{}
}

func New(opts Options) *Orchestrator {
	if opts.Cache == nil {
		panic("persistence.New: cache is nil")
	}
	if opts.Seed == nil {
		panic("persistence.New: seed is nil")
	}
	o := &Orchestrator{
		cache:          opts.Cache,
		remote:         opts.Remote,
		backend:        opts.Backend,
		seed:           opts.Seed,
		logger:         opts.Logger,
		tracer:         opts.Tracer,
		writeTimeout:   opts.WriteTimeout,
		startupTimeout: opts.StartupTimeout,
		retryDelay:     opts.RetryDelay,
		firstDone:      make(chan struct{}),
	}
	if o.logger == nil {
		o.logger = log.StandardLogger()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer("prism-board/persistence")
	}
	if o.writeTimeout <= 0 {
		o.writeTimeout = defaultWriteTimeout
	}
	if o.startupTimeout <= 0 {
		o.startupTimeout = defaultStartupTimeout
	}
	if o.retryDelay <= 0 {
		o.retryDelay = defaultRetryDelay
	}
	if o.backend == "" {
		o.backend = "remote"
	}
	quantum := opts.debounce
	if quantum <= 0 {
		quantum = DebounceQuantum
	}
	o.deb = newDebouncer(quantum, func(gen uint64, b *domain.Board) {
		_ = o.writeRemote(o.ctx, gen, b)
	})
	o.ctx, o.cancel = context.WithCancel(context.Background())
	if o.remote == nil {
		o.status = StatusOffline
	} else {
		o.status = StatusSyncing
	}
	return o
}

// Status returns the current sync status.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

func (o *Orchestrator) setStatus(s Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.remote == nil || o.closed {
		return
	}
	if o.status != s {
		o.logger.WithFields(log.Fields{"from": string(o.status), "to": string(s)}).Debug("sync status changed")
	}
	o.status = s
}

// Start runs the startup protocol once. It returns after a board has been
// adopted: the remote document, or the local cache or seed when the remote is
// unconfigured, empty, unreachable or too slow.
func (o *Orchestrator) Start(ctx context.Context, adopt AdoptFunc) error {
	o.mu.Lock()
	if o.started || o.closed {
		o.mu.Unlock()
		return errors.New("persistence: orchestrator already started")
	}
	o.started = true
	o.mu.Unlock()
	o.adopt = adopt

	if o.remote == nil {
		o.logger.Info("remote persistence not configured, running offline")
		o.fallback(ctx)
		return nil
	}

	sub, err := o.remote.Subscribe(o.ctx)
	if err != nil {
		o.logger.WithError(err).Warn("board subscription failed, using local state")
		o.fallback(ctx)
		o.setStatus(StatusError)
		o.wg.Add(1)
		go o.run(nil)
		return nil
	}
	o.wg.Add(1)
	go o.run(sub)

	timer := time.NewTimer(o.startupTimeout)
	defer timer.Stop()
	select {
	case <-o.firstDone:
		return nil
	case <-timer.C:
		o.logger.WithField("timeout", o.startupTimeout.String()).Warn("no remote snapshot before startup timeout, using local state")
	case <-ctx.Done():
		o.logger.WithError(ctx.Err()).Warn("startup interrupted, using local state")
	}
	if o.fallback(ctx) {
		o.setStatus(StatusError)
	}
	return nil
}

// fallback adopts the local cache, else a fresh seed. It reports whether it
// adopted anything; a board adopted earlier wins.
func (o *Orchestrator) fallback(ctx context.Context) bool {
	o.startMu.Lock()
	defer o.startMu.Unlock()
	if o.isInitialized() {
		return false
	}
	b, origin := o.localOrSeed(ctx)
	if origin == OriginSeed {
		o.saveLocal(b)
	}
	o.install(b, origin)
	return true
}

func (o *Orchestrator) localOrSeed(ctx context.Context) (*domain.Board, Origin) {
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.writeTimeout)
	defer cancel()
	b, err := o.cache.Load(lctx)
	if err != nil {
		o.logger.WithError(err).Warn("local cache unreadable, generating seed board")
	}
	if b != nil {
		return b, OriginCache
	}
	return o.seed(), OriginSeed
}

func (o *Orchestrator) isInitialized() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.initialized
}

// install must be called with startMu held.
func (o *Orchestrator) install(b *domain.Board, origin Origin) {
	o.mu.Lock()
	o.initialized = true
	o.current = b
	o.mu.Unlock()
	o.logger.WithFields(log.Fields{"origin": string(origin), "board_id": b.ID, "tasks": len(b.Tasks)}).Info("board adopted")
	o.adopt(b, origin)
}

func (o *Orchestrator) run(sub <-chan storage.Snapshot) {
	defer o.wg.Done()
	for {
		if sub == nil {
			select {
			case <-o.ctx.Done():
				return
			case <-time.After(o.retryDelay):
			}
			var err error
			if sub, err = o.remote.Subscribe(o.ctx); err != nil {
				o.logger.WithError(err).Warn("board subscription retry failed")
				sub = nil
				continue
			}
		}
		select {
		case <-o.ctx.Done():
			return
		case s, ok := <-sub:
			if !ok {
				if o.ctx.Err() != nil {
					return
				}
				o.logger.Warn("board subscription closed, resubscribing")
				o.setStatus(StatusError)
				sub = nil
				continue
			}
			o.handle(s)
		}
	}
}

func (o *Orchestrator) handle(s storage.Snapshot) {
	o.startMu.Lock()
	defer o.startMu.Unlock()
	first := !o.gotFirst

	if s.Err != nil {
		var shapeErr *domain.ShapeError
		if !first || !errors.As(s.Err, &shapeErr) {
			o.logger.WithError(s.Err).Warn("remote snapshot failed")
			o.setStatus(StatusError)
			return
		}
		o.logger.WithError(s.Err).Warn("remote document unreadable, replacing it")
		s = storage.Snapshot{}
	}

	if first {
		o.gotFirst = true
		defer close(o.firstDone)
		if s.Board == nil {
			o.seedRemote()
			return
		}
	}
	if s.Board == nil {
		o.logger.Warn("remote document disappeared, next write recreates it")
		return
	}

	o.saveLocal(s.Board)
	o.install(s.Board, OriginRemote)
	if !o.deb.hasPending() {
		o.setStatus(StatusSynced)
	}
}

// seedRemote handles an empty remote on first contact: the state already in
// use (after a fallback), else the local cache or a seed, is adopted and pushed.
func (o *Orchestrator) seedRemote() {
	o.mu.Lock()
	b, initialized := o.current, o.initialized
	o.mu.Unlock()
	if !initialized {
		var origin Origin
		b, origin = o.localOrSeed(o.ctx)
		o.saveLocal(b)
		o.install(b, origin)
	}
	o.logger.WithField("board_id", b.ID).Info("remote holds no board, pushing local state")
	o.setStatus(StatusSyncing)
	o.deb.schedule(b)
}

// Save records a new board: synchronously into the local cache, and into the
// remote once the debounce quantum passes without another Save.
func (o *Orchestrator) Save(b *domain.Board) {
	if b == nil {
		return
	}
	o.mu.Lock()
	closed := o.closed
	if o.initialized {
		o.current = b
	}
	o.mu.Unlock()
	if closed {
		return
	}

	o.saveLocal(b)
	if o.remote == nil {
		return
	}
	o.setStatus(StatusSyncing)
	o.deb.schedule(b)
}

func (o *Orchestrator) saveLocal(b *domain.Board) {
	ctx, cancel := context.WithTimeout(context.Background(), o.writeTimeout)
	defer cancel()
	if err := o.cache.Save(ctx, b); err != nil {
		o.logger.WithError(err).Warn("local cache write failed")
	}
}

func (o *Orchestrator) writeRemote(ctx context.Context, gen uint64, b *domain.Board) error {
	o.writeMu.Lock()
	defer o.writeMu.Unlock()

	ctx, span := o.tracer.Start(ctx, "board.remote.write", trace.WithAttributes(
		attribute.String("board.id", b.ID),
		attribute.String("board.backend", o.backend),
		attribute.Int("board.tasks", len(b.Tasks)),
	))
	defer span.End()

	wctx, cancel := context.WithTimeout(ctx, o.writeTimeout)
	defer cancel()
	start := time.Now()
	err := o.remote.Write(wctx, b)
	elapsed := time.Since(start)

	status := StatusSynced
	if err != nil {
		status = StatusError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if o.deb.newer(gen) {
		status = StatusSyncing
	}
	o.setStatus(status)
	span.SetAttributes(attribute.String("board.sync_status", string(status)))

	entry := o.logger.WithFields(log.Fields{
		"backend":     o.backend,
		"board_id":    b.ID,
		"duration_ms": durationToMillis(elapsed),
		"status":      string(status),
	})
	if err != nil {
		entry.WithError(err).Warn("board.remote.write")
	} else {
		entry.Debug("board.remote.write")
	}
	return err
}

// Flush writes a pending board now instead of waiting for the timer. Close on
// its own drops the pending board; serve calls Flush first only when
// sync.flush_on_shutdown is set.
func (o *Orchestrator) Flush(ctx context.Context) error {
	if o.remote == nil {
		return nil
	}
	b, gen := o.deb.take()
	if b == nil {
		return nil
	}
	return o.writeRemote(ctx, gen, b)
}

// Close drops any pending write, ends the subscription and closes the remote.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	o.deb.stop()
	o.cancel()
	o.wg.Wait()
	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	if o.remote != nil {
		return o.remote.Close()
	}
	return nil
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
