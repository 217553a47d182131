package types

import "context"

// MutationAction performs the network write of a mutation and returns the
// decoded server response, if any.
type MutationAction func(ctx context.Context) (interface{}, error)

// OptimisticPatch pairs a concrete cache entry with the patch applied to it
// before the action settles. The coordinator snapshots the entry first and
// restores it exactly if the action fails.
type OptimisticPatch struct {
	Key   CacheKey
	Patch Patch
}

type Mutation struct {
	Action     MutationAction
	Tags       []Tag
	Optimistic []OptimisticPatch
}

type MutationCoordinator interface {
	Mutate(ctx context.Context, mutation Mutation) (interface{}, error)
}
