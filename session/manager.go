package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/saiset-co/sai-feed/types"
	"github.com/saiset-co/sai-feed/utils"
)

type State int32

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

const (
	loginPath  = "/auth/login"
	whoAmIPath = "/auth/me"
)

// Manager owns the process-wide session: the durable token and the current
// user identity. It is the only component that mutates either. Sessions move
// through Anonymous, TokenUnverified (token on disk, user unknown),
// Authenticated, and the transient Invalid that collapses back to Anonymous
// after wiping the persisted token.
type Manager struct {
	ctx         context.Context
	cancel      context.CancelFunc
	logger      types.Logger
	store       types.SessionStore
	executor    types.RequestExecutor
	invalidator types.Invalidator

	session types.Session
	mu      sync.RWMutex

	verifyGroup singleflight.Group
	state       atomic.Value
}

func NewManager(ctx context.Context, logger types.Logger, store types.SessionStore, executor types.RequestExecutor, invalidator types.Invalidator) *Manager {
	managerCtx, cancel := context.WithCancel(ctx)

	m := &Manager{
		ctx:         managerCtx,
		cancel:      cancel,
		logger:      logger,
		store:       store,
		executor:    executor,
		invalidator: invalidator,
		session:     types.Session{State: types.SessionAnonymous},
	}

	m.state.Store(StateStopped)

	return m
}

func (m *Manager) Start() error {
	if !m.transitionState(StateStopped, StateRunning) {
		return types.ErrManagerAlreadyRunning
	}

	m.logger.Debug("Session manager started")
	return nil
}

func (m *Manager) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrManagerNotRunning
	}

	defer func() {
		m.state.Store(StateStopped)
		m.cancel()
	}()

	return nil
}

func (m *Manager) IsRunning() bool {
	return m.state.Load().(State) == StateRunning
}

// Bootstrap reads the persisted token and, when one exists, verifies it with
// a "who am I" query. A token rejected as unauthorized is wiped; any other
// verification failure leaves the session token-present-unverified so a
// later call can retry.
func (m *Manager) Bootstrap(ctx context.Context) error {
	token, err := m.store.Load(ctx)
	if err != nil && !types.IsError(err, types.ErrStorageSlotEmpty) {
		return types.WrapError(err, "failed to read persisted token")
	}

	if token == "" {
		m.setSession(types.Session{State: types.SessionAnonymous})
		m.logger.Debug("Session bootstrap: no persisted token")
		return nil
	}

	m.setSession(types.Session{State: types.SessionTokenUnverified, Token: token})

	return m.verify(ctx)
}

// Login exchanges credentials for a token, persists it, and then fetches the
// user profile. The login response is never trusted to carry the profile;
// the session passes through TokenUnverified on every login.
func (m *Manager) Login(ctx context.Context, credentials types.Credentials) error {
	body, err := m.executor.Do(ctx, types.Request{
		Method: "POST",
		Path:   loginPath,
		Body:   credentials,
	}, nil)
	if err != nil {
		return err
	}

	var token types.AuthToken
	if err := utils.Unmarshal(body, &token); err != nil {
		return types.WrapError(err, "failed to decode login response")
	}
	if token.AccessToken == "" {
		return types.ErrTokenEmpty
	}

	if err := m.store.Save(ctx, token.AccessToken); err != nil {
		return types.WrapError(err, "failed to persist token")
	}

	m.setSession(types.Session{State: types.SessionTokenUnverified, Token: token.AccessToken})
	m.logger.Info("Login succeeded, verifying session")

	if err := m.verify(ctx); err != nil {
		return err
	}

	m.invalidateCurrentUser()
	return nil
}

// Logout clears the token and user unconditionally and never contacts the
// network.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn("Failed to clear persisted token", zap.Error(err))
	}

	m.setSession(types.Session{State: types.SessionAnonymous})
	m.invalidateCurrentUser()

	m.logger.Info("Logged out")
	return nil
}

// HandleUnauthorized is the executor's observer: any request settling as
// unauthorized tears the session down. Idempotent, so concurrent signals
// cannot storm.
func (m *Manager) HandleUnauthorized() {
	m.mu.Lock()
	if m.session.State == types.SessionAnonymous {
		m.mu.Unlock()
		return
	}
	m.session = types.Session{State: types.SessionInvalid}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn("Failed to wipe persisted token", zap.Error(err))
	}

	m.setSession(types.Session{State: types.SessionAnonymous})
	m.invalidateCurrentUser()

	m.logger.Warn("Session invalidated by unauthorized response")
}

func (m *Manager) Token() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session.Token == "" {
		return "", false
	}
	return m.session.Token, true
}

func (m *Manager) Current() types.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session := m.session
	if session.User != nil {
		user := *session.User
		session.User = &user
	}
	return session
}

func (m *Manager) State() types.SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.State
}

// verify runs the "who am I" query. Concurrent calls share one flight.
func (m *Manager) verify(ctx context.Context) error {
	_, err, _ := m.verifyGroup.Do("whoami", func() (interface{}, error) {
		body, err := m.executor.Do(ctx, types.Request{
			Method: "GET",
			Path:   whoAmIPath,
		}, nil)
		if err != nil {
			if types.IsUnauthorized(err) {
				m.HandleUnauthorized()
			}
			return nil, err
		}

		var user types.User
		if err := utils.Unmarshal(body, &user); err != nil {
			return nil, types.WrapError(err, "failed to decode user")
		}

		m.mu.Lock()
		m.session.State = types.SessionAuthenticated
		m.session.User = &user
		m.mu.Unlock()

		m.logger.Info("Session authenticated", zap.String("username", user.Username))
		return nil, nil
	})

	return err
}

func (m *Manager) setSession(session types.Session) {
	m.mu.Lock()
	m.session = session
	m.mu.Unlock()
}

func (m *Manager) invalidateCurrentUser() {
	if m.invalidator == nil {
		return
	}
	if err := m.invalidator.InvalidateByTags([]types.Tag{types.CurrentUserTag()}); err != nil {
		m.logger.Warn("Failed to invalidate current-user queries", zap.Error(err))
	}
}

func (m *Manager) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}
