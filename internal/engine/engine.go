package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/mnemo/internal/memory"
	"github.com/lazypower/mnemo/internal/metrics"
	"github.com/lazypower/mnemo/internal/snapshot"
	"github.com/lazypower/mnemo/internal/store"
)

// ErrNoJournal is returned by History when the engine has no journal.
var ErrNoJournal = errors.New("journal not configured")

// Engine serialises access to a memory store and ties it to snapshots, the
// journal and metrics. All methods are safe for concurrent use.
type Engine struct {
	mu      sync.RWMutex
	store   *memory.Store
	params  *memory.Params // pinned by SetParams
	ranker  *Ranker
	snaps   *snapshot.Manager
	journal *store.DB
	metrics *metrics.Collector
	logger  *zap.Logger
	clock   memory.Clock

	ctx    context.Context
	cancel context.CancelFunc
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithRanker sets the recall ranker (default NewRanker(nil)).
func WithRanker(r *Ranker) Option {
	return func(e *Engine) { e.ranker = r }
}

// WithJournal records snapshots and decay passes to db.
func WithJournal(db *store.DB) Option {
	return func(e *Engine) { e.journal = db }
}

// WithMetrics reports store activity to c.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithLogger sets the engine's logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine over s, persisting through snaps.
func New(s *memory.Store, snaps *snapshot.Manager, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:  s,
		snaps:  snaps,
		logger: zap.NewNop(),
		clock:  s.Clock(),
		ctx:    ctx,
		cancel: cancel,
		stopCh: make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	if e.ranker == nil {
		e.ranker = NewRanker(nil)
	}
	e.ranker.Refit(s)
	e.metrics.SetRecords(s.Len())
	return e
}

// Add stores a new record and returns it.
func (e *Engine) Add(nr memory.NewRecord) (memory.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id, err := e.store.AddRecord(nr)
	if err != nil {
		return memory.Record{}, err
	}
	e.metrics.SetRecords(e.store.Len())
	return e.store.Get(id)
}

// Get returns the record with the given id.
func (e *Engine) Get(id string) (memory.Record, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Get(id)
}

// Remove deletes a record and reports whether it existed.
func (e *Engine) Remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	ok := e.store.Remove(id)
	e.metrics.SetRecords(e.store.Len())
	return ok
}

// List returns every record in insertion order, optionally filtered by
// category.
func (e *Engine) List(category string) []memory.Record {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := []memory.Record{}
	for r := range e.store.All() {
		if category != "" && r.Category != category {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Len returns the number of stored records.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Len()
}

// Params returns the active decay parameters.
func (e *Engine) Params() memory.Params {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Params()
}

// SetParams replaces the decay parameters. The same parameters replace the
// ones captured in any snapshot restored later.
func (e *Engine) SetParams(p memory.Params) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.SetParams(p); err != nil {
		return err
	}
	e.params = &p
	return nil
}

// Recall ranks the store against query and reinforces the matches.
func (e *Engine) Recall(query string, opts RecallOpts) []Match {
	start := time.Now()
	e.mu.Lock()
	matches := e.ranker.Recall(e.store, query, opts, e.clock.Now())
	e.mu.Unlock()

	e.metrics.ObserveRecall(time.Since(start))
	e.logger.Debug("recall",
		zap.String("query", query),
		zap.String("category", opts.Category),
		zap.Int("matches", len(matches)))
	return matches
}

// Decay runs one decay pass at the current time.
func (e *Engine) Decay() memory.DecayResult {
	e.mu.Lock()
	res := e.store.Decay(e.clock.Now())
	n := e.store.Len()
	e.ranker.Refit(e.store)
	e.mu.Unlock()

	e.afterPass("decay", res, n)
	return res
}

// Reset clears the store in the given mode. A snapshot of the pre-reset state
// is saved first; if that fails the store is left untouched.
func (e *Engine) Reset(ctx context.Context, mode memory.ResetMode) (memory.DecayResult, snapshot.Handle, error) {
	if mode != memory.ResetSoft && mode != memory.ResetHard {
		return memory.DecayResult{}, snapshot.Handle{}, fmt.Errorf("%w: unknown reset mode %q", memory.ErrInvalidInput, mode)
	}

	// Held across the backup so nothing lands between it and the reset.
	e.mu.Lock()
	h, err := e.saveState(ctx, e.store.State(), store.ReasonReset)
	if err != nil {
		e.mu.Unlock()
		return memory.DecayResult{}, snapshot.Handle{}, fmt.Errorf("pre-reset snapshot: %w", err)
	}
	res, err := e.store.Reset(mode, e.clock.Now())
	n := e.store.Len()
	e.ranker.Refit(e.store)
	e.mu.Unlock()
	if err != nil {
		return res, h, err
	}

	e.afterPass(string(mode), res, n)
	return res, h, nil
}

func (e *Engine) afterPass(mode string, res memory.DecayResult, remaining int) {
	e.metrics.SetRecords(remaining)
	e.metrics.ObserveDecay(mode, len(res.Evicted))
	if len(res.Evicted) > 0 || res.Skipped > 0 || mode != "decay" {
		e.logger.Info("decay pass",
			zap.String("mode", mode),
			zap.Int("scanned", res.Scanned),
			zap.Int("updated", res.Updated),
			zap.Int("skipped", res.Skipped),
			zap.Int("evicted", len(res.Evicted)),
			zap.Int("remaining", remaining))
	}

	if e.journal == nil {
		return
	}
	pass := &store.DecayPass{
		RanAt:   res.At.UnixMilli(),
		Mode:    mode,
		Scanned: res.Scanned,
		Updated: res.Updated,
		Skipped: res.Skipped,
	}
	evicted := make([]store.Eviction, 0, len(res.Evicted))
	for _, r := range res.Evicted {
		evicted = append(evicted, store.Eviction{
			RecordID:   r.ID,
			Category:   r.Category,
			Content:    r.Content,
			Importance: r.CurrentImportance,
		})
	}
	if err := e.journal.RecordDecayPass(pass, evicted); err != nil {
		e.logger.Warn("journal decay pass", zap.Error(err))
	}
}

// Save snapshots the store. The state is copied under the read lock and
// written without holding it.
func (e *Engine) Save(ctx context.Context, reason string) (snapshot.Handle, error) {
	e.mu.RLock()
	st := e.store.State()
	e.mu.RUnlock()
	return e.saveState(ctx, st, reason)
}

func (e *Engine) saveState(ctx context.Context, st memory.State, reason string) (snapshot.Handle, error) {
	h, err := e.snaps.SaveState(ctx, st)
	e.metrics.ObserveSnapshot(metrics.OpSave, err)
	if err != nil {
		return h, err
	}

	if e.journal != nil {
		entry := &store.SnapshotEntry{
			Name:      h.Name,
			CreatedAt: h.CreatedAt.UnixMilli(),
			Records:   h.Records,
			Bytes:     h.Size,
			Checksum:  h.Checksum,
			Reason:    reason,
		}
		if err := e.journal.RecordSnapshot(entry); err != nil {
			e.logger.Warn("journal snapshot", zap.String("name", h.Name), zap.Error(err))
		}
	}
	return h, nil
}

// Restore replaces the store with the contents of the named snapshot.
func (e *Engine) Restore(ctx context.Context, name string) (snapshot.Handle, error) {
	h, err := e.snaps.Find(ctx, name)
	if err != nil {
		return h, err
	}
	s, err := e.snaps.Load(ctx, h, e.storeOptions()...)
	e.metrics.ObserveSnapshot(metrics.OpLoad, err)
	if err != nil {
		return h, err
	}
	return h, e.swap(s)
}

// RestoreLatest replaces the store with the newest snapshot. It returns
// snapshot.ErrNoSnapshots when nothing has been saved yet.
func (e *Engine) RestoreLatest(ctx context.Context) (snapshot.Handle, error) {
	s, h, err := e.snaps.LoadLatest(ctx, e.storeOptions()...)
	if errors.Is(err, snapshot.ErrNoSnapshots) {
		return h, err
	}
	e.metrics.ObserveSnapshot(metrics.OpLoad, err)
	if err != nil {
		return h, err
	}
	return h, e.swap(s)
}

func (e *Engine) storeOptions() []memory.Option {
	return []memory.Option{
		memory.WithClock(e.clock),
		memory.WithLogger(e.logger),
	}
}

func (e *Engine) swap(s *memory.Store) error {
	e.mu.Lock()
	if e.params != nil {
		if err := s.SetParams(*e.params); err != nil {
			e.mu.Unlock()
			return err
		}
	}
	e.store = s
	e.ranker.Refit(s)
	e.mu.Unlock()
	e.metrics.SetRecords(s.Len())
	return nil
}

// Snapshots lists saved snapshots, newest first.
func (e *Engine) Snapshots(ctx context.Context) ([]snapshot.Handle, error) {
	return e.snaps.List(ctx)
}

// Inspect verifies the named snapshot and describes it.
func (e *Engine) Inspect(ctx context.Context, name string) (snapshot.Info, error) {
	h, err := e.snaps.Find(ctx, name)
	if err != nil {
		return snapshot.Info{}, err
	}
	return e.snaps.Inspect(ctx, h)
}

// Prune keeps the newest keep snapshots and deletes the rest.
func (e *Engine) Prune(ctx context.Context, keep int) ([]snapshot.Handle, error) {
	removed, err := e.snaps.Prune(ctx, keep)
	e.metrics.ObserveSnapshot(metrics.OpPrune, err)
	if e.journal != nil {
		for _, h := range removed {
			if jerr := e.journal.ForgetSnapshot(h.Name); jerr != nil {
				e.logger.Warn("journal forget snapshot", zap.String("name", h.Name), zap.Error(jerr))
			}
		}
	}
	return removed, err
}

// History returns the most recent decay passes and evictions from the journal.
func (e *Engine) History(limit int) ([]store.DecayPass, []store.Eviction, error) {
	if e.journal == nil {
		return nil, nil, ErrNoJournal
	}
	passes, err := e.journal.RecentDecayPasses(limit)
	if err != nil {
		return nil, nil, err
	}
	evictions, err := e.journal.RecentEvictions(limit)
	if err != nil {
		return nil, nil, err
	}
	return passes, evictions, nil
}
