package cache

import (
	"sync"

	"github.com/saiset-co/sai-feed/types"
)

// TagIndex maps tags to the cache keys that declared dependence on them.
// Every key present under a tag must exist in the query cache with that tag
// in its current set; SetTags and Remove keep both directions in sync so no
// dangling reference survives an update or an eviction.
type TagIndex struct {
	byTag map[types.Tag]map[types.CacheKey]struct{}
	byKey map[types.CacheKey][]types.Tag
	mu    sync.RWMutex
}

func NewTagIndex() *TagIndex {
	return &TagIndex{
		byTag: make(map[types.Tag]map[types.CacheKey]struct{}),
		byKey: make(map[types.CacheKey][]types.Tag),
	}
}

// SetTags replaces the tag set registered for key. Idempotent: calling it
// twice with the same set leaves the index unchanged.
func (ti *TagIndex) SetTags(key types.CacheKey, tags []types.Tag) {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	for _, old := range ti.byKey[key] {
		ti.removeAssociationUnsafe(old, key)
	}

	if len(tags) == 0 {
		delete(ti.byKey, key)
		return
	}

	current := make([]types.Tag, 0, len(tags))
	for _, tag := range tags {
		keys, exists := ti.byTag[tag]
		if !exists {
			keys = make(map[types.CacheKey]struct{})
			ti.byTag[tag] = keys
		}
		if _, dup := keys[key]; dup {
			continue
		}
		keys[key] = struct{}{}
		current = append(current, tag)
	}

	ti.byKey[key] = current
}

// Lookup returns the union of keys registered under any of the given tags.
func (ti *TagIndex) Lookup(tags []types.Tag) []types.CacheKey {
	ti.mu.RLock()
	defer ti.mu.RUnlock()

	seen := make(map[types.CacheKey]struct{})
	result := make([]types.CacheKey, 0)

	for _, tag := range tags {
		for key := range ti.byTag[tag] {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			result = append(result, key)
		}
	}

	return result
}

// Remove drops key from every tag association. Called on eviction.
func (ti *TagIndex) Remove(key types.CacheKey) {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	for _, tag := range ti.byKey[key] {
		ti.removeAssociationUnsafe(tag, key)
	}
	delete(ti.byKey, key)
}

// Tags returns the current tag set of key.
func (ti *TagIndex) Tags(key types.CacheKey) []types.Tag {
	ti.mu.RLock()
	defer ti.mu.RUnlock()

	tags := ti.byKey[key]
	result := make([]types.Tag, len(tags))
	copy(result, tags)
	return result
}

func (ti *TagIndex) removeAssociationUnsafe(tag types.Tag, key types.CacheKey) {
	keys, exists := ti.byTag[tag]
	if !exists {
		return
	}

	delete(keys, key)
	if len(keys) == 0 {
		delete(ti.byTag, tag)
	}
}
