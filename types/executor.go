package types

import (
	"context"
	"time"
)

// Request describes one logical API operation. Body is marshaled to JSON when
// non-nil. The executor injects the current session token on its own; callers
// never handle credentials.
type Request struct {
	Method string
	Path   string
	Body   interface{}
	Query  map[string]string
}

type CallOptions struct {
	Timeout time.Duration
	Headers map[string]string
}

// RequestExecutor issues a single network operation and returns the raw
// response body or a classified *APIError. It never retries and never
// interprets payloads.
type RequestExecutor interface {
	LifecycleManager
	Do(ctx context.Context, req Request, opts *CallOptions) ([]byte, error)
}

// TokenSource is how the executor reads the current credential. Implemented
// by the session manager; read-mostly.
type TokenSource interface {
	Token() (string, bool)
}

// UnauthorizedObserver is notified exactly once per request that settles as
// unauthorized. The session manager uses it to tear the session down without
// a retry storm.
type UnauthorizedObserver func()
