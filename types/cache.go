package types

import (
	"context"
	"time"
)

// CacheKey is the deterministic identity of one logical query: endpoint name
// plus ordered parameter values. Two requests with the same key are the same
// query and share one cache entry and one in-flight fetch.
type CacheKey string

type CacheStatus string

const (
	StatusIdle    CacheStatus = "idle"
	StatusLoading CacheStatus = "loading"
	StatusSuccess CacheStatus = "success"
	StatusError   CacheStatus = "error"
)

// FetchResult carries the decoded payload of a query together with the tags
// the payload represents. The tags feed the tag index on every settle.
type FetchResult struct {
	Data interface{}
	Tags []Tag
}

// Fetcher performs one network read for a query. It must be safe to invoke
// again after a failure; the cache never retries it on its own.
type Fetcher func(ctx context.Context) (FetchResult, error)

// EntryView is an immutable snapshot of a cache entry handed to consumers.
// On a failed fetch the previous data is discarded, not retained: Data is
// nil whenever Status is StatusError.
type EntryView struct {
	Key           CacheKey
	Status        CacheStatus
	Data          interface{}
	Err           error
	LastFetchedAt time.Time
	Subscribers   int
	Tags          []Tag
}

type QueryCache interface {
	LifecycleManager
	Subscribe(key CacheKey, fetcher Fetcher, staleness time.Duration) (Subscription, error)
	Invalidate(key CacheKey) error
	GetEntry(key CacheKey) (EntryView, bool)
	Patch(key CacheKey, patch Patch) (interface{}, bool)
	Restore(key CacheKey, snapshot interface{}) bool
	KeysByTags(tags []Tag) []CacheKey
}

// Subscription is a live-updating handle onto one cache entry. Updates always
// carries the latest view; intermediate states may be skipped but the final
// state of every settle is delivered.
type Subscription interface {
	Key() CacheKey
	Current() EntryView
	Updates() <-chan EntryView
	Unsubscribe()
}

// Patch transforms cached data in place of a not-yet-confirmed mutation.
// It must return a new value and leave its argument untouched, so the
// pre-patch snapshot stays valid for a revert.
type Patch func(data interface{}) interface{}

type Invalidator interface {
	InvalidateByTags(tags []Tag) error
}
