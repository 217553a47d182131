package mutation

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-feed/types"
	"github.com/saiset-co/sai-feed/utils"
)

// Coordinator executes write operations against the API and propagates their
// effects into the query cache. An optimistic patch is applied before the
// network call settles and reverted to the exact pre-patch snapshot if the
// call fails; on success the declared tags are invalidated regardless of any
// patch, since the server-confirmed state supersedes the guess.
//
// Mutations that declare an overlapping tag are serialized on those tags, so
// a second mutation never reads or clobbers an unreverted patch of the first.
type Coordinator struct {
	logger      types.Logger
	cache       types.QueryCache
	invalidator types.Invalidator
	locks       map[string]*sync.Mutex
	mu          sync.Mutex
}

func NewCoordinator(logger types.Logger, cache types.QueryCache, invalidator types.Invalidator) *Coordinator {
	return &Coordinator{
		logger:      logger,
		cache:       cache,
		invalidator: invalidator,
		locks:       make(map[string]*sync.Mutex),
	}
}

type appliedPatch struct {
	key      types.CacheKey
	snapshot interface{}
	patched  interface{}
}

func (c *Coordinator) Mutate(ctx context.Context, m types.Mutation) (interface{}, error) {
	if m.Action == nil {
		return nil, types.ErrMutationActionIsNil
	}
	if len(m.Tags) == 0 {
		return nil, types.ErrMutationNoTags
	}

	unlock := c.lockTags(m.Tags)
	defer unlock()

	applied := make([]appliedPatch, 0, len(m.Optimistic))
	for _, op := range m.Optimistic {
		if op.Patch == nil {
			continue
		}
		snapshot, ok := c.cache.Patch(op.Key, op.Patch)
		if !ok {
			continue
		}
		// Patches are pure, so replaying one on the snapshot reproduces the
		// value the cache now holds. Kept for the revert guard below.
		applied = append(applied, appliedPatch{
			key:      op.Key,
			snapshot: snapshot,
			patched:  op.Patch(snapshot),
		})
	}

	result, err := m.Action(ctx)
	if err != nil {
		c.revert(applied)
		c.logger.Debug("Mutation failed, optimistic patches reverted",
			zap.Int("reverted", len(applied)),
			zap.Error(err))
		return nil, err
	}

	if err := c.invalidator.InvalidateByTags(m.Tags); err != nil {
		c.logger.ErrorWithErrStack("Mutation settled but invalidation failed", err,
			zap.Int("tags", len(m.Tags)))
		return result, types.WrapError(err, "mutation settled but invalidation failed")
	}

	return result, nil
}

// revert restores pre-patch snapshots in reverse order. An entry whose data
// no longer matches the patched value was refreshed by a fetch while the
// mutation was in flight; the server result stands and the snapshot is not
// restored over it.
func (c *Coordinator) revert(applied []appliedPatch) {
	for i := len(applied) - 1; i >= 0; i-- {
		p := applied[i]
		if view, ok := c.cache.GetEntry(p.key); !ok || !utils.DeepEqualJSON(view.Data, p.patched) {
			continue
		}
		c.cache.Restore(p.key, p.snapshot)
	}
}

// lockTags acquires one mutex per declared tag, in sorted order so two
// mutations sharing tags cannot deadlock.
func (c *Coordinator) lockTags(tags []types.Tag) func() {
	names := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		name := tag.String()
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)

	locks := make([]*sync.Mutex, 0, len(names))
	c.mu.Lock()
	for _, name := range names {
		lock, exists := c.locks[name]
		if !exists {
			lock = &sync.Mutex{}
			c.locks[name] = lock
		}
		locks = append(locks, lock)
	}
	c.mu.Unlock()

	for _, lock := range locks {
		lock.Lock()
	}

	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}
