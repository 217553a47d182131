package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/saiset-co/sai-feed/logger"
	"github.com/saiset-co/sai-feed/storage"
	"github.com/saiset-co/sai-feed/types"
)

type stubExecutor struct {
	do    func(ctx context.Context, req types.Request, opts *types.CallOptions) ([]byte, error)
	calls int32
}

func (s *stubExecutor) Start() error    { return nil }
func (s *stubExecutor) Stop() error     { return nil }
func (s *stubExecutor) IsRunning() bool { return true }

func (s *stubExecutor) Do(ctx context.Context, req types.Request, opts *types.CallOptions) ([]byte, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.do(ctx, req, opts)
}

const userJSON = `{"id":1,"username":"alice","display_name":"Alice","created_at":"2026-01-02T15:04:05Z"}`

func newTestManager(t *testing.T, executor *stubExecutor) (*Manager, *storage.MemoryStore) {
	t.Helper()

	store := storage.NewMemoryStore(logger.NewNop())
	if err := store.Start(); err != nil {
		t.Fatalf("store Start failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Stop() })

	m := NewManager(context.Background(), logger.NewNop(), store, executor, nil)
	if err := m.Start(); err != nil {
		t.Fatalf("manager Start failed: %v", err)
	}
	t.Cleanup(func() {
		if m.IsRunning() {
			_ = m.Stop()
		}
	})

	return m, store
}

func TestBootstrapWithoutTokenStaysAnonymous(t *testing.T) {
	executor := &stubExecutor{
		do: func(ctx context.Context, req types.Request, opts *types.CallOptions) ([]byte, error) {
			t.Fatalf("unexpected network call: %s %s", req.Method, req.Path)
			return nil, nil
		},
	}
	m, _ := newTestManager(t, executor)

	if err := m.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if got := m.State(); got != types.SessionAnonymous {
		t.Errorf("state = %q, want %q", got, types.SessionAnonymous)
	}
	if _, ok := m.Token(); ok {
		t.Error("anonymous session exposes a token")
	}
}

func TestBootstrapVerifiesPersistedToken(t *testing.T) {
	executor := &stubExecutor{
		do: func(ctx context.Context, req types.Request, opts *types.CallOptions) ([]byte, error) {
			if req.Method != "GET" || req.Path != whoAmIPath {
				t.Fatalf("unexpected request: %s %s", req.Method, req.Path)
			}
			return []byte(userJSON), nil
		},
	}
	m, store := newTestManager(t, executor)

	if err := store.Save(context.Background(), "persisted-token"); err != nil {
		t.Fatalf("seed token failed: %v", err)
	}

	if err := m.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	session := m.Current()
	if session.State != types.SessionAuthenticated {
		t.Errorf("state = %q, want %q", session.State, types.SessionAuthenticated)
	}
	if session.User == nil || session.User.Username != "alice" {
		t.Errorf("user = %+v, want alice", session.User)
	}
	if token, ok := m.Token(); !ok || token != "persisted-token" {
		t.Errorf("Token() = %q %v, want persisted-token", token, ok)
	}
}

func TestBootstrapWipesRejectedToken(t *testing.T) {
	executor := &stubExecutor{
		do: func(ctx context.Context, req types.Request, opts *types.CallOptions) ([]byte, error) {
			return nil, types.NewAPIError(types.ErrorKindUnauthorized, 401, "token expired", nil)
		},
	}
	m, store := newTestManager(t, executor)

	if err := store.Save(context.Background(), "expired-token"); err != nil {
		t.Fatalf("seed token failed: %v", err)
	}

	err := m.Bootstrap(context.Background())
	if !types.IsUnauthorized(err) {
		t.Fatalf("Bootstrap error = %v, want unauthorized", err)
	}

	if got := m.State(); got != types.SessionAnonymous {
		t.Errorf("state = %q, want %q", got, types.SessionAnonymous)
	}
	if _, err := store.Load(context.Background()); !errors.Is(err, types.ErrStorageSlotEmpty) {
		t.Errorf("rejected token survived in storage, err = %v", err)
	}
}

func TestLoginPersistsTokenAndAuthenticates(t *testing.T) {
	executor := &stubExecutor{
		do: func(ctx context.Context, req types.Request, opts *types.CallOptions) ([]byte, error) {
			switch req.Path {
			case loginPath:
				if req.Method != "POST" {
					t.Fatalf("login method = %s", req.Method)
				}
				creds := req.Body.(types.Credentials)
				if creds.Email != "alice@example.com" {
					t.Fatalf("credentials = %+v", creds)
				}
				return []byte(`{"access_token":"fresh-token","token_type":"bearer"}`), nil
			case whoAmIPath:
				return []byte(userJSON), nil
			default:
				t.Fatalf("unexpected path %s", req.Path)
				return nil, nil
			}
		},
	}
	m, store := newTestManager(t, executor)

	err := m.Login(context.Background(), types.Credentials{
		Email:    "alice@example.com",
		Password: "hunter22",
	})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if got := m.State(); got != types.SessionAuthenticated {
		t.Errorf("state = %q, want %q", got, types.SessionAuthenticated)
	}
	if token, err := store.Load(context.Background()); err != nil || token != "fresh-token" {
		t.Errorf("persisted token = %q %v, want fresh-token", token, err)
	}
}

func TestLoginRejectsEmptyToken(t *testing.T) {
	executor := &stubExecutor{
		do: func(ctx context.Context, req types.Request, opts *types.CallOptions) ([]byte, error) {
			return []byte(`{"access_token":"","token_type":"bearer"}`), nil
		},
	}
	m, _ := newTestManager(t, executor)

	err := m.Login(context.Background(), types.Credentials{Email: "a@b.co", Password: "password1"})
	if !errors.Is(err, types.ErrTokenEmpty) {
		t.Errorf("Login error = %v, want %v", err, types.ErrTokenEmpty)
	}
	if got := m.State(); got == types.SessionAuthenticated {
		t.Error("session authenticated without a token")
	}
}

func TestLogoutClearsEverythingWithoutNetwork(t *testing.T) {
	executor := &stubExecutor{
		do: func(ctx context.Context, req types.Request, opts *types.CallOptions) ([]byte, error) {
			switch req.Path {
			case loginPath:
				return []byte(`{"access_token":"tok","token_type":"bearer"}`), nil
			case whoAmIPath:
				return []byte(userJSON), nil
			default:
				t.Fatalf("unexpected path %s", req.Path)
				return nil, nil
			}
		},
	}
	m, store := newTestManager(t, executor)

	if err := m.Login(context.Background(), types.Credentials{Email: "a@b.co", Password: "password1"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	networkCalls := atomic.LoadInt32(&executor.calls)

	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if got := atomic.LoadInt32(&executor.calls); got != networkCalls {
		t.Errorf("Logout made %d network calls", got-networkCalls)
	}
	if got := m.State(); got != types.SessionAnonymous {
		t.Errorf("state = %q, want %q", got, types.SessionAnonymous)
	}
	if _, err := store.Load(context.Background()); !errors.Is(err, types.ErrStorageSlotEmpty) {
		t.Errorf("token survived logout, err = %v", err)
	}
}

func TestHandleUnauthorizedIsIdempotent(t *testing.T) {
	executor := &stubExecutor{
		do: func(ctx context.Context, req types.Request, opts *types.CallOptions) ([]byte, error) {
			switch req.Path {
			case loginPath:
				return []byte(`{"access_token":"tok","token_type":"bearer"}`), nil
			case whoAmIPath:
				return []byte(userJSON), nil
			default:
				return nil, nil
			}
		},
	}
	m, store := newTestManager(t, executor)

	if err := m.Login(context.Background(), types.Credentials{Email: "a@b.co", Password: "password1"}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	m.HandleUnauthorized()
	m.HandleUnauthorized()

	if got := m.State(); got != types.SessionAnonymous {
		t.Errorf("state = %q, want %q", got, types.SessionAnonymous)
	}
	if _, err := store.Load(context.Background()); !errors.Is(err, types.ErrStorageSlotEmpty) {
		t.Errorf("token survived invalidation, err = %v", err)
	}
}
