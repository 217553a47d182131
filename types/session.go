package types

import "context"

type SessionState string

const (
	SessionAnonymous       SessionState = "anonymous"
	SessionTokenUnverified SessionState = "token_unverified"
	SessionAuthenticated   SessionState = "authenticated"
	SessionInvalid         SessionState = "invalid"
)

// Session is the process-wide auth context. Exactly one exists per client;
// it is mutated only by the session manager.
type Session struct {
	State SessionState
	Token string
	User  *User
}

type SessionManager interface {
	LifecycleManager
	TokenSource
	Bootstrap(ctx context.Context) error
	Login(ctx context.Context, credentials Credentials) error
	Logout(ctx context.Context) error
	Current() Session
	State() SessionState
}

type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// SessionStore is the single durable key-value slot holding the token.
// Read once at startup, written on every credential change, cleared on
// logout and on authorization failure.
type SessionStore interface {
	LifecycleManager
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

type SessionStoreCreator func(config interface{}) (SessionStore, error)
