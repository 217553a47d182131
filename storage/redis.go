package storage

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-feed/types"
	"github.com/saiset-co/sai-feed/utils"
)

type RedisConfig struct {
	Host         string        `yaml:"host" json:"host"`
	Port         int           `yaml:"port" json:"port"`
	Password     string        `yaml:"password" json:"password"`
	DB           int           `yaml:"db" json:"db"`
	KeyPrefix    string        `yaml:"key_prefix" json:"key_prefix"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// RedisStore shares the session slot between processes, for headless
// clients that run several workers against one account.
type RedisStore struct {
	logger  types.Logger
	config  *RedisConfig
	client  *redis.Client
	running int32
}

func NewRedisStore(ctx context.Context, logger types.Logger, config *types.StorageConfig) (*RedisStore, error) {
	redisConfig := &RedisConfig{
		Host:         "localhost",
		Port:         6379,
		KeyPrefix:    "sai-feed",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, redisConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal redis storage config")
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", redisConfig.Host, redisConfig.Port),
		Password:     redisConfig.Password,
		DB:           redisConfig.DB,
		DialTimeout:  redisConfig.DialTimeout,
		ReadTimeout:  redisConfig.ReadTimeout,
		WriteTimeout: redisConfig.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisConfig.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, types.Errorf(types.ErrStorageConnectionFailed, "redis: %v", err)
	}

	logger.Debug("Redis session store connected",
		zap.String("addr", fmt.Sprintf("%s:%d", redisConfig.Host, redisConfig.Port)))

	return &RedisStore{logger: logger, config: redisConfig, client: client}, nil
}

func (s *RedisStore) Start() error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return types.ErrManagerAlreadyRunning
	}
	return nil
}

func (s *RedisStore) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return types.ErrManagerNotRunning
	}
	return s.client.Close()
}

func (s *RedisStore) IsRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}

func (s *RedisStore) Load(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, s.slotKey()).Result()
	if err == redis.Nil {
		return "", types.ErrStorageSlotEmpty
	}
	if err != nil {
		return "", types.WrapError(err, "failed to read session slot")
	}
	return token, nil
}

func (s *RedisStore) Save(ctx context.Context, token string) error {
	if token == "" {
		return types.ErrTokenEmpty
	}
	return types.WrapError(
		s.client.Set(ctx, s.slotKey(), token, 0).Err(),
		"failed to write session slot")
}

func (s *RedisStore) Clear(ctx context.Context) error {
	return types.WrapError(
		s.client.Del(ctx, s.slotKey()).Err(),
		"failed to clear session slot")
}

func (s *RedisStore) slotKey() string {
	return s.config.KeyPrefix + ":session:token"
}
