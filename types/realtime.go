package types

import "time"

// InvalidationEvent is what the server pushes when data changes elsewhere.
// It names tags, never concrete queries; the invalidation engine resolves
// them the same way local mutations are resolved.
type InvalidationEvent struct {
	Tags      []Tag     `json:"tags"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type RealtimeListener interface {
	LifecycleManager
}
