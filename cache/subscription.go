package cache

import (
	"sync"
	"sync/atomic"

	"github.com/saiset-co/sai-feed/types"
)

// subscription is one consumer's live handle onto a cache entry. Updates is
// a latest-wins channel of capacity one: intermediate views may be skipped
// under pressure but the most recent settle is always deliverable.
type subscription struct {
	cache   *QueryCache
	key     types.CacheKey
	updates chan types.EntryView
	current atomic.Value
	closed  bool
	once    sync.Once
}

func (s *subscription) Key() types.CacheKey {
	return s.key
}

func (s *subscription) Current() types.EntryView {
	if v := s.current.Load(); v != nil {
		return v.(types.EntryView)
	}
	return types.EntryView{Key: s.key, Status: types.StatusIdle}
}

func (s *subscription) Updates() <-chan types.EntryView {
	return s.updates
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cache.unsubscribe(s)
	})
}

// push is called only while the cache lock is held, so it never races with
// closeLocked.
func (s *subscription) push(view types.EntryView) {
	if s.closed {
		return
	}

	s.current.Store(view)

	select {
	case s.updates <- view:
	default:
		select {
		case <-s.updates:
		default:
		}
		select {
		case s.updates <- view:
		default:
		}
	}
}

func (s *subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.updates)
}
