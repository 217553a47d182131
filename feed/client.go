package feed

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-feed/cache"
	"github.com/saiset-co/sai-feed/client"
	"github.com/saiset-co/sai-feed/config"
	"github.com/saiset-co/sai-feed/logger"
	"github.com/saiset-co/sai-feed/metrics"
	"github.com/saiset-co/sai-feed/mutation"
	"github.com/saiset-co/sai-feed/realtime"
	"github.com/saiset-co/sai-feed/session"
	"github.com/saiset-co/sai-feed/storage"
	"github.com/saiset-co/sai-feed/types"
	"github.com/saiset-co/sai-feed/utils"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// Client is the composition root. It owns every manager, wires them together,
// and exposes the typed API surface: queries return live subscriptions backed
// by the query cache, mutations go through the coordinator so optimistic
// patches and tag invalidation always happen in the right order.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	logger      types.Logger
	config      *types.ClientConfig
	metrics     types.MetricsManager
	store       types.SessionStore
	executor    *client.Executor
	tagIndex    *cache.TagIndex
	cache       types.QueryCache
	invalidator *cache.InvalidationEngine
	session     *session.Manager
	mutations   *mutation.Coordinator
	realtime    types.RealtimeListener

	staleness time.Duration
	state     atomic.Value
}

func NewClientFromFile(ctx context.Context, configPath string) (*Client, error) {
	manager, err := config.NewManager(configPath)
	if err != nil {
		return nil, err
	}
	return NewClient(ctx, manager.GetConfig())
}

func NewClient(ctx context.Context, cfg *types.ClientConfig) (*Client, error) {
	manager, err := config.NewManagerFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = manager.GetConfig()

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return nil, types.WrapError(err, "failed to create logger")
	}

	clientCtx, cancel := context.WithCancel(ctx)

	c := &Client{
		ctx:       clientCtx,
		cancel:    cancel,
		logger:    log,
		config:    cfg,
		staleness: cfg.Cache.DefaultStaleness.Std(),
	}
	c.state.Store(StateStopped)

	if err := c.assemble(); err != nil {
		cancel()
		return nil, err
	}

	log.Info("Feed client initialized",
		zap.String("name", cfg.Name),
		zap.String("base_url", cfg.API.BaseURL))

	return c, nil
}

func (c *Client) assemble() error {
	m, err := metrics.NewPrometheusMetrics(c.logger, c.config.Metrics)
	if err != nil && !types.IsError(err, types.ErrMetricsIsDisabled) {
		return types.WrapError(err, "failed to create metrics manager")
	}
	c.metrics = m

	store, err := storage.NewSessionStore(c.ctx, c.logger, c.config.Storage)
	if err != nil {
		return types.WrapError(err, "failed to create session store")
	}
	c.store = store

	executor, err := client.NewExecutor(c.ctx, c.logger, c.config.API)
	if err != nil {
		return types.WrapError(err, "failed to create request executor")
	}
	c.executor = executor

	c.tagIndex = cache.NewTagIndex()

	queryCache, err := cache.NewQueryCache(c.ctx, c.logger, c.config.Cache, c.tagIndex)
	if err != nil {
		return types.WrapError(err, "failed to create query cache")
	}
	c.cache = cache.NewInstrumentedQueryCache(c.metrics, queryCache)

	c.invalidator = cache.NewInvalidationEngine(c.logger, c.tagIndex, c.cache)

	c.session = session.NewManager(c.ctx, c.logger, c.store, c.executor, c.invalidator)
	c.executor.SetTokenSource(c.session)
	c.executor.SetUnauthorizedObserver(c.session.HandleUnauthorized)

	c.mutations = mutation.NewCoordinator(c.logger, c.cache, c.invalidator)

	if c.config.Realtime != nil && c.config.Realtime.Enabled {
		listener, err := realtime.NewWebSocketListener(c.ctx, c.logger, c.config.Realtime, c.invalidator)
		if err != nil {
			return types.WrapError(err, "failed to create realtime listener")
		}
		c.realtime = listener
	}

	return nil
}

// Start brings the managers up in dependency order and then bootstraps the
// session from the persisted token. A failed bootstrap does not fail Start:
// the client stays usable anonymously and Login can recover later.
func (c *Client) Start() error {
	if !c.transitionState(StateStopped, StateStarting) {
		return types.ErrManagerAlreadyRunning
	}

	defer func() {
		if c.getState() == StateStarting {
			c.setState(StateRunning)
		}
	}()

	starters := []struct {
		name    string
		manager types.LifecycleManager
	}{
		{"metrics", c.metrics},
		{"session store", c.store},
		{"request executor", c.executor},
		{"query cache", c.cache},
		{"session manager", c.session},
		{"realtime listener", c.realtime},
	}

	started := make([]types.LifecycleManager, 0, len(starters))
	for _, s := range starters {
		if isNilManager(s.manager) {
			continue
		}
		if err := s.manager.Start(); err != nil {
			c.stopManagers(started)
			c.setState(StateStopped)
			return types.WrapError(err, "failed to start "+s.name)
		}
		started = append(started, s.manager)
	}

	if err := c.session.Bootstrap(c.ctx); err != nil {
		c.logger.Warn("Session bootstrap failed, continuing anonymously", zap.Error(err))
	}

	c.logger.Info("Feed client started")
	return nil
}

func (c *Client) Stop() error {
	if !c.transitionState(StateRunning, StateStopping) {
		return types.ErrManagerNotRunning
	}

	defer func() {
		c.setState(StateStopped)
		c.cancel()
	}()

	c.stopManagers([]types.LifecycleManager{
		c.realtime,
		c.session,
		c.cache,
		c.executor,
		c.store,
		c.metrics,
	})

	c.logger.Info("Feed client stopped")
	return nil
}

func (c *Client) stopManagers(managers []types.LifecycleManager) {
	for i := len(managers) - 1; i >= 0; i-- {
		m := managers[i]
		if isNilManager(m) || !m.IsRunning() {
			continue
		}
		if err := m.Stop(); err != nil {
			c.logger.ErrorWithErrStack("Failed to stop manager", err)
		}
	}
}

func (c *Client) IsRunning() bool {
	return c.getState() == StateRunning
}

func (c *Client) Cache() types.QueryCache              { return c.cache }
func (c *Client) Session() types.SessionManager        { return c.session }
func (c *Client) Mutations() types.MutationCoordinator { return c.mutations }
func (c *Client) Metrics() types.MetricsManager        { return c.metrics }

// Invalidate marks every cached query carrying any of the tags stale, exactly
// as a mutation or a pushed event would.
func (c *Client) Invalidate(tags ...types.Tag) error {
	return c.invalidator.InvalidateByTags(tags)
}

func (c *Client) Login(ctx context.Context, credentials types.Credentials) error {
	return c.session.Login(ctx, credentials)
}

func (c *Client) Logout(ctx context.Context) error {
	return c.session.Logout(ctx)
}

func (c *Client) subscribe(key types.CacheKey, fetcher types.Fetcher) (types.Subscription, error) {
	return c.cache.Subscribe(key, fetcher, c.staleness)
}

// fetchJSON builds a fetcher that issues req, decodes the body into T, and
// derives the result's tags from the decoded value.
func fetchJSON[T any](c *Client, req types.Request, tagsFor func(*T) []types.Tag) types.Fetcher {
	return func(ctx context.Context) (types.FetchResult, error) {
		body, err := c.executor.Do(ctx, req, nil)
		if err != nil {
			return types.FetchResult{}, err
		}

		target := new(T)
		if err := utils.Unmarshal(body, target); err != nil {
			return types.FetchResult{}, types.WrapError(err, "failed to decode response")
		}

		return types.FetchResult{Data: target, Tags: tagsFor(target)}, nil
	}
}

func (c *Client) getState() State {
	return c.state.Load().(State)
}

func (c *Client) setState(newState State) bool {
	currentState := c.getState()
	return c.state.CompareAndSwap(currentState, newState)
}

func (c *Client) transitionState(from, to State) bool {
	return c.state.CompareAndSwap(from, to)
}

func isNilManager(m types.LifecycleManager) bool {
	return m == nil
}
