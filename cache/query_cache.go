package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-feed/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const (
	DefaultStaleness     = 30 * time.Second
	DefaultEvictionGrace = 60 * time.Second
)

// QueryCache stores one entry per distinct query key and owns every mutation
// of those entries. Concurrent subscriptions to one key share the entry and
// the in-flight fetch; an entry with no subscribers survives for the eviction
// grace period and is then dropped together with its tag associations.
type QueryCache struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	config          *types.CacheConfig
	tags            *TagIndex
	entries         map[types.CacheKey]*entry
	mu              sync.Mutex
	state           atomic.Value
	janitor         *janitor
	shutdownTimeout time.Duration
}

type entry struct {
	key            types.CacheKey
	status         types.CacheStatus
	data           interface{}
	err            error
	subscribers    int
	lastFetchedAt  time.Time
	fetcher        types.Fetcher
	staleness      time.Duration
	evictAt        time.Time
	pending        *pendingFetch
	refetchQueued  bool
	pendingInvalid bool
	subs           []*subscription
}

// pendingFetch identifies one dispatched fetch. A landing result is applied
// only when the entry still points at the same pendingFetch; anything else
// means the entry was evicted or superseded and the result is discarded.
type pendingFetch struct {
	dispatchedAt time.Time
}

func NewQueryCache(ctx context.Context, logger types.Logger, config *types.CacheConfig, tags *TagIndex) (*QueryCache, error) {
	if config == nil {
		config = &types.CacheConfig{}
	}
	if config.DefaultStaleness <= 0 {
		config.DefaultStaleness = types.Duration(DefaultStaleness)
	}
	if config.EvictionGrace <= 0 {
		config.EvictionGrace = types.Duration(DefaultEvictionGrace)
	}
	if tags == nil {
		tags = NewTagIndex()
	}

	cacheCtx, cancel := context.WithCancel(ctx)

	cache := &QueryCache{
		ctx:             cacheCtx,
		cancel:          cancel,
		logger:          logger,
		config:          config,
		tags:            tags,
		entries:         make(map[types.CacheKey]*entry),
		shutdownTimeout: 10 * time.Second,
	}

	cache.state.Store(StateStopped)

	if config.SweepSchedule != "" {
		j, err := newJanitor(config.SweepSchedule, logger, cache)
		if err != nil {
			cancel()
			return nil, types.WrapError(err, "failed to create cache janitor")
		}
		cache.janitor = j
	}

	return cache, nil
}

func (c *QueryCache) Start() error {
	if !c.transitionState(StateStopped, StateStarting) {
		c.logger.Warn("Query cache is already running")
		return types.ErrManagerAlreadyRunning
	}

	defer func() {
		if c.getState() == StateStarting {
			c.setState(StateRunning)
		}
	}()

	if c.janitor != nil {
		c.janitor.Start()
	}

	c.logger.Info("Query cache started",
		zap.Duration("default_staleness", c.config.DefaultStaleness.Std()),
		zap.Duration("eviction_grace", c.config.EvictionGrace.Std()))

	return nil
}

func (c *QueryCache) Stop() error {
	if !c.transitionState(StateRunning, StateStopping) {
		c.logger.Warn("Query cache is not running")
		return types.ErrManagerNotRunning
	}

	defer func() {
		c.setState(StateStopped)
	}()

	c.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), c.shutdownTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if c.janitor != nil {
			c.janitor.Stop()
		}
		return nil
	})

	g.Go(func() error {
		c.mu.Lock()
		defer c.mu.Unlock()

		entriesCount := len(c.entries)
		for key, e := range c.entries {
			for _, s := range e.subs {
				s.closeLocked()
			}
			e.subs = nil
			c.tags.Remove(key)
		}
		c.entries = make(map[types.CacheKey]*entry)

		c.logger.Info("Query cache cleared", zap.Int("cleared_entries", entriesCount))
		return nil
	})

	if err := g.Wait(); err != nil {
		select {
		case <-gCtx.Done():
			c.logger.Warn("Query cache stop timeout")
		default:
			c.logger.Error("Error during query cache shutdown", zap.Error(err))
		}
	}

	return nil
}

func (c *QueryCache) IsRunning() bool {
	return c.getState() == StateRunning
}

// Subscribe attaches a consumer to the entry for key, creating it if needed.
// A fetch is dispatched when the entry has never settled, was invalidated
// while unobserved, or its last settle is older than the staleness window.
// A fetch already in flight is shared, never duplicated.
func (c *QueryCache) Subscribe(key types.CacheKey, fetcher types.Fetcher, staleness time.Duration) (types.Subscription, error) {
	if key == "" {
		return nil, types.ErrCacheKeyEmpty
	}
	if fetcher == nil {
		return nil, types.ErrFetcherIsNil
	}
	if !c.IsRunning() {
		return nil, types.ErrCacheStopped
	}
	if staleness < 0 {
		staleness = c.config.DefaultStaleness.Std()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[key]
	if !exists {
		e = &entry{key: key, status: types.StatusIdle}
		c.entries[key] = e
	}

	e.subscribers++
	e.evictAt = time.Time{}
	e.fetcher = fetcher
	e.staleness = staleness

	sub := &subscription{
		cache:   c,
		key:     key,
		updates: make(chan types.EntryView, 1),
	}
	e.subs = append(e.subs, sub)

	if e.pending == nil && c.needsFetchLocked(e) {
		e.pendingInvalid = false
		c.dispatchLocked(e)
	}

	sub.current.Store(c.viewLocked(e))

	return sub, nil
}

func (c *QueryCache) needsFetchLocked(e *entry) bool {
	if e.status == types.StatusIdle || e.status == types.StatusError {
		return true
	}
	if e.pendingInvalid {
		return true
	}
	return time.Since(e.lastFetchedAt) > e.staleness
}

// Invalidate marks the entry for key stale. With live subscribers a refetch
// is dispatched immediately; without, the refetch is deferred to the next
// subscription. An invalidation observed while a fetch is in flight was by
// definition requested after that fetch was dispatched, so exactly one
// follow-up fetch is scheduled for when the in-flight one lands.
func (c *QueryCache) Invalidate(key types.CacheKey) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[key]
	if !exists {
		return nil
	}

	switch {
	case e.pending != nil:
		e.refetchQueued = true
	case e.subscribers > 0:
		c.dispatchLocked(e)
	default:
		e.pendingInvalid = true
	}

	return nil
}

// GetEntry is a pure read: a snapshot of the entry, no side effects.
func (c *QueryCache) GetEntry(key types.CacheKey) (types.EntryView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[key]
	if !exists {
		return types.EntryView{}, false
	}
	return c.viewLocked(e), true
}

// Patch applies an optimistic transform to the cached data of key and
// returns the pre-patch data for a later restore. Only settled successful
// entries are patchable.
func (c *QueryCache) Patch(key types.CacheKey, patch types.Patch) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[key]
	if !exists || e.data == nil {
		return nil, false
	}

	snapshot := e.data
	e.data = patch(e.data)
	c.notifyLocked(e)

	return snapshot, true
}

// Restore puts the pre-patch snapshot back, exactly as captured.
func (c *QueryCache) Restore(key types.CacheKey, snapshot interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[key]
	if !exists {
		return false
	}

	e.data = snapshot
	c.notifyLocked(e)
	return true
}

func (c *QueryCache) KeysByTags(tags []types.Tag) []types.CacheKey {
	return c.tags.Lookup(tags)
}

// Sweep drops every entry whose eviction grace expired before now, removing
// its tag associations with it. The janitor calls this on schedule; tests
// call it directly.
func (c *QueryCache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for key, e := range c.entries {
		if e.subscribers > 0 || e.evictAt.IsZero() || now.Before(e.evictAt) {
			continue
		}
		delete(c.entries, key)
		c.tags.Remove(key)
		evicted++
	}

	if evicted > 0 {
		c.logger.Debug("Cache sweep completed", zap.Int("evicted_entries", evicted))
	}

	return evicted
}

func (c *QueryCache) dispatchLocked(e *entry) {
	p := &pendingFetch{dispatchedAt: time.Now()}
	e.pending = p
	e.refetchQueued = false
	e.err = nil
	e.status = types.StatusLoading
	c.notifyLocked(e)

	go c.runFetch(e.key, e.fetcher, p)
}

func (c *QueryCache) runFetch(key types.CacheKey, fetcher types.Fetcher, p *pendingFetch) {
	result, err := fetcher(c.ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[key]
	if !exists || e.pending != p {
		c.logger.Debug("Discarding fetch result for evicted entry", zap.String("key", string(key)))
		return
	}

	e.pending = nil

	if err != nil {
		e.status = types.StatusError
		e.err = err
		e.data = nil
		c.logger.Debug("Fetch failed", zap.String("key", string(key)), zap.Error(err))
	} else {
		e.status = types.StatusSuccess
		e.data = result.Data
		e.err = nil
		e.lastFetchedAt = time.Now()
		c.tags.SetTags(key, result.Tags)
	}

	if e.refetchQueued {
		if e.subscribers > 0 {
			c.dispatchLocked(e)
			return
		}
		e.refetchQueued = false
		e.pendingInvalid = true
	}

	c.notifyLocked(e)
}

func (c *QueryCache) unsubscribe(sub *subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[sub.key]
	if !exists {
		return
	}

	for i, s := range e.subs {
		if s == sub {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			s.closeLocked()
			break
		}
	}

	if e.subscribers > 0 {
		e.subscribers--
	}
	if e.subscribers == 0 {
		e.evictAt = time.Now().Add(c.config.EvictionGrace.Std())
	}
}

func (c *QueryCache) viewLocked(e *entry) types.EntryView {
	return types.EntryView{
		Key:           e.key,
		Status:        e.status,
		Data:          e.data,
		Err:           e.err,
		LastFetchedAt: e.lastFetchedAt,
		Subscribers:   e.subscribers,
		Tags:          c.tags.Tags(e.key),
	}
}

func (c *QueryCache) notifyLocked(e *entry) {
	view := c.viewLocked(e)
	for _, s := range e.subs {
		s.push(view)
	}
}

func (c *QueryCache) getState() State {
	return c.state.Load().(State)
}

func (c *QueryCache) setState(newState State) bool {
	currentState := c.getState()
	return c.state.CompareAndSwap(currentState, newState)
}

func (c *QueryCache) transitionState(from, to State) bool {
	return c.state.CompareAndSwap(from, to)
}
