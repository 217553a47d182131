package types

import (
	"encoding/json"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that also accepts human-readable values like
// "30s" in YAML and JSON config files, alongside plain nanosecond integers.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw interface{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	return d.fromValue(raw)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.fromValue(raw)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) fromValue(raw interface{}) error {
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return WrapError(err, "invalid duration")
		}
		*d = Duration(parsed)
		return nil
	case int:
		*d = Duration(v)
		return nil
	case int64:
		*d = Duration(v)
		return nil
	case float64:
		*d = Duration(v)
		return nil
	default:
		return NewErrorf("invalid duration value %v (%T)", raw, raw)
	}
}

type ConfigManager interface {
	Load() error
	GetConfig() *ClientConfig
}

type ClientConfig struct {
	Name     string          `yaml:"name" json:"name" validate:"required"`
	Version  string          `yaml:"version" json:"version"`
	API      *APIConfig      `yaml:"api" json:"api" validate:"required"`
	Logger   *LoggerConfig   `yaml:"logger" json:"logger"`
	Cache    *CacheConfig    `yaml:"cache" json:"cache"`
	Storage  *StorageConfig  `yaml:"storage" json:"storage"`
	Realtime *RealtimeConfig `yaml:"realtime" json:"realtime"`
	Metrics  *MetricsConfig  `yaml:"metrics" json:"metrics"`
}

type APIConfig struct {
	BaseURL        string                `yaml:"base_url" json:"base_url" validate:"required,url"`
	Timeout        Duration              `yaml:"timeout" json:"timeout"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker" json:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	Enabled          bool     `yaml:"enabled" json:"enabled"`
	FailureThreshold int      `yaml:"failure_threshold" json:"failure_threshold" validate:"min=1"`
	RecoveryTimeout  Duration `yaml:"recovery_timeout" json:"recovery_timeout"`
	HalfOpenRequests int      `yaml:"half_open_requests" json:"half_open_requests" validate:"min=1"`
}

type LoggerConfig struct {
	Type   string      `yaml:"type" json:"type"`
	Level  string      `yaml:"level" json:"level"`
	Config interface{} `yaml:"config" json:"config"`
}

type CacheConfig struct {
	DefaultStaleness Duration `yaml:"default_staleness" json:"default_staleness" validate:"min=0"`
	EvictionGrace    Duration `yaml:"eviction_grace" json:"eviction_grace" validate:"min=0"`
	SweepSchedule    string   `yaml:"sweep_schedule" json:"sweep_schedule"`
}

type StorageConfig struct {
	Type   string      `yaml:"type" json:"type" validate:"required"`
	Config interface{} `yaml:"config" json:"config"`
}

type RealtimeConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	URL            string   `yaml:"url" json:"url" validate:"required_if=Enabled true"`
	ReconnectDelay Duration `yaml:"reconnect_delay" json:"reconnect_delay"`
	MaxRetries     int      `yaml:"max_retries" json:"max_retries"`
	PingInterval   Duration `yaml:"ping_interval" json:"ping_interval"`
	PongWait       Duration `yaml:"pong_wait" json:"pong_wait"`
}

type MetricsConfig struct {
	Enabled   bool              `yaml:"enabled" json:"enabled"`
	Namespace string            `yaml:"namespace" json:"namespace"`
	Labels    map[string]string `yaml:"labels" json:"labels"`
	Config    interface{}       `yaml:"config" json:"config"`
}
