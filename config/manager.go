package config

import (
	"sync/atomic"

	"github.com/saiset-co/sai-feed/types"
)

type Manager struct {
	config     atomic.Pointer[types.ClientConfig]
	configPath string
	loader     *Loader
}

func NewManager(configPath string) (*Manager, error) {
	m := &Manager{
		configPath: configPath,
		loader:     NewLoader(),
	}

	if err := m.Load(); err != nil {
		return nil, types.WrapError(err, "failed to load initial configuration")
	}

	return m, nil
}

// NewManagerFromConfig wraps an already-built config, validating it first.
// Used when the embedding application assembles the config itself.
func NewManagerFromConfig(config *types.ClientConfig) (*Manager, error) {
	loader := NewLoader()

	merged := loader.Defaults()
	if config != nil {
		mergeConfig(merged, config)
	}

	if err := loader.Validate(merged); err != nil {
		return nil, err
	}

	m := &Manager{loader: loader}
	m.config.Store(merged)
	return m, nil
}

func (m *Manager) Load() error {
	config, err := m.loader.LoadFromFile(m.configPath)
	if err != nil {
		return err
	}

	m.config.Store(config)
	return nil
}

func (m *Manager) GetConfig() *types.ClientConfig {
	return m.config.Load()
}

func mergeConfig(dst, src *types.ClientConfig) {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Version != "" {
		dst.Version = src.Version
	}
	if src.API != nil {
		if src.API.BaseURL != "" {
			dst.API.BaseURL = src.API.BaseURL
		}
		if src.API.Timeout > 0 {
			dst.API.Timeout = src.API.Timeout
		}
		if src.API.CircuitBreaker != nil {
			dst.API.CircuitBreaker = src.API.CircuitBreaker
		}
	}
	if src.Logger != nil {
		dst.Logger = src.Logger
	}
	if src.Cache != nil {
		if src.Cache.DefaultStaleness > 0 {
			dst.Cache.DefaultStaleness = src.Cache.DefaultStaleness
		}
		if src.Cache.EvictionGrace > 0 {
			dst.Cache.EvictionGrace = src.Cache.EvictionGrace
		}
		if src.Cache.SweepSchedule != "" {
			dst.Cache.SweepSchedule = src.Cache.SweepSchedule
		}
	}
	if src.Storage != nil {
		dst.Storage = src.Storage
	}
	if src.Realtime != nil {
		dst.Realtime = src.Realtime
	}
	if src.Metrics != nil {
		dst.Metrics = src.Metrics
	}
}
