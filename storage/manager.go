package storage

import (
	"context"

	"github.com/saiset-co/sai-feed/types"
)

var customStoreCreators = make(map[string]types.SessionStoreCreator)

func RegisterSessionStore(storeType string, creator types.SessionStoreCreator) {
	customStoreCreators[storeType] = creator
}

// NewSessionStore builds the durable slot that holds the session token.
// "sqlite" is the default: a single-file database next to the client.
// "clover" keeps the slot in a document store, "redis" shares it between
// processes, "memory" is for tests and throwaway sessions.
func NewSessionStore(ctx context.Context, logger types.Logger, config *types.StorageConfig) (types.SessionStore, error) {
	if config == nil {
		config = &types.StorageConfig{Type: "sqlite"}
	}

	switch config.Type {
	case "memory":
		return NewMemoryStore(logger), nil
	case "sqlite", "":
		return NewSQLiteStore(ctx, logger, config)
	case "clover":
		return NewCloverStore(ctx, logger, config)
	case "redis":
		return NewRedisStore(ctx, logger, config)
	default:
		if creator, exists := customStoreCreators[config.Type]; exists {
			return creator(config.Config)
		}
		return nil, types.Errorf(types.ErrStorageTypeUnknown, "type: %s", config.Type)
	}
}
