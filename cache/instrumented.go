package cache

import (
	"time"

	"github.com/saiset-co/sai-feed/types"
)

// NewInstrumentedQueryCache wraps a query cache with metrics recording.
// Returns the cache unchanged when metrics are disabled.
func NewInstrumentedQueryCache(metrics types.MetricsManager, impl types.QueryCache) types.QueryCache {
	if metrics == nil {
		return impl
	}
	return &instrumentedQueryCache{impl: impl, metrics: metrics}
}

type instrumentedQueryCache struct {
	impl    types.QueryCache
	metrics types.MetricsManager
}

func (icm *instrumentedQueryCache) Subscribe(key types.CacheKey, fetcher types.Fetcher, staleness time.Duration) (types.Subscription, error) {
	start := time.Now()
	sub, err := icm.impl.Subscribe(key, fetcher, staleness)
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	icm.recordMetric("subscribe", result, duration)
	return sub, err
}

func (icm *instrumentedQueryCache) Invalidate(key types.CacheKey) error {
	start := time.Now()
	err := icm.impl.Invalidate(key)
	duration := time.Since(start)

	result := "success"
	if err != nil {
		result = "error"
	}

	icm.recordMetric("invalidate", result, duration)
	return err
}

func (icm *instrumentedQueryCache) GetEntry(key types.CacheKey) (types.EntryView, bool) {
	start := time.Now()
	view, exists := icm.impl.GetEntry(key)
	duration := time.Since(start)

	result := "miss"
	if exists {
		result = "hit"
	}

	icm.recordMetric("get_entry", result, duration)
	return view, exists
}

func (icm *instrumentedQueryCache) Patch(key types.CacheKey, patch types.Patch) (interface{}, bool) {
	snapshot, ok := icm.impl.Patch(key, patch)

	result := "miss"
	if ok {
		result = "hit"
	}
	icm.recordMetric("patch", result, 0)

	return snapshot, ok
}

func (icm *instrumentedQueryCache) Restore(key types.CacheKey, snapshot interface{}) bool {
	ok := icm.impl.Restore(key, snapshot)

	result := "miss"
	if ok {
		result = "hit"
	}
	icm.recordMetric("restore", result, 0)

	return ok
}

func (icm *instrumentedQueryCache) KeysByTags(tags []types.Tag) []types.CacheKey {
	return icm.impl.KeysByTags(tags)
}

func (icm *instrumentedQueryCache) Start() error {
	return icm.impl.Start()
}

func (icm *instrumentedQueryCache) Stop() error {
	return icm.impl.Stop()
}

func (icm *instrumentedQueryCache) IsRunning() bool {
	return icm.impl.IsRunning()
}

func (icm *instrumentedQueryCache) recordMetric(operation, result string, duration time.Duration) {
	opCounter := icm.metrics.Counter("query_cache_operations_total", map[string]string{
		"operation": operation,
		"result":    result,
	})
	opCounter.Inc()

	if duration > 0 {
		opDuration := icm.metrics.Histogram("query_cache_operation_duration_seconds",
			[]float64{0.0001, 0.001, 0.01, 0.1, 1.0},
			map[string]string{"operation": operation},
		)
		opDuration.Observe(duration.Seconds())
	}
}
