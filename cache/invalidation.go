package cache

import (
	"go.uber.org/zap"

	"github.com/saiset-co/sai-feed/types"
)

// InvalidationEngine is the only path from a settled mutation to the query
// results it affects. Producers and consumers never reference each other;
// the coupling is the shared tag vocabulary resolved through the tag index.
type InvalidationEngine struct {
	logger types.Logger
	tags   *TagIndex
	cache  types.QueryCache
}

func NewInvalidationEngine(logger types.Logger, tags *TagIndex, cache types.QueryCache) *InvalidationEngine {
	return &InvalidationEngine{
		logger: logger,
		tags:   tags,
		cache:  cache,
	}
}

// InvalidateByTags resolves the given tags to cache keys and invalidates
// each one. Keys subscribed right now refetch immediately; the rest refetch
// on their next subscription.
func (e *InvalidationEngine) InvalidateByTags(tags []types.Tag) error {
	if len(tags) == 0 {
		return nil
	}

	keys := e.tags.Lookup(tags)
	if len(keys) == 0 {
		return nil
	}

	for _, key := range keys {
		if err := e.cache.Invalidate(key); err != nil {
			return types.WrapError(err, "failed to invalidate key "+string(key))
		}
	}

	e.logger.Debug("Invalidated by tags",
		zap.Int("tags", len(tags)),
		zap.Int("affected_keys", len(keys)))

	return nil
}
