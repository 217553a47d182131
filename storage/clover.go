package storage

import (
	"context"
	"sync/atomic"

	"github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-feed/types"
	"github.com/saiset-co/sai-feed/utils"
)

type CloverConfig struct {
	Path string `yaml:"path" json:"path"`
}

const sessionCollection = "session"

// CloverStore keeps the token as one document in an embedded document
// database directory.
type CloverStore struct {
	logger  types.Logger
	db      *clover.DB
	running int32
}

func NewCloverStore(ctx context.Context, logger types.Logger, config *types.StorageConfig) (*CloverStore, error) {
	cloverConfig := &CloverConfig{Path: "./session-store"}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, cloverConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal clover storage config")
		}
	}

	db, err := clover.Open(cloverConfig.Path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open clover store")
	}

	exists, err := db.HasCollection(sessionCollection)
	if err != nil {
		_ = db.Close()
		return nil, types.WrapError(err, "failed to check session collection")
	}
	if !exists {
		if err := db.CreateCollection(sessionCollection); err != nil {
			_ = db.Close()
			return nil, types.WrapError(err, "failed to create session collection")
		}
	}

	logger.Debug("Clover session store opened", zap.String("path", cloverConfig.Path))

	return &CloverStore{logger: logger, db: db}, nil
}

func (s *CloverStore) Start() error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return types.ErrManagerAlreadyRunning
	}
	return nil
}

func (s *CloverStore) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return types.ErrManagerNotRunning
	}
	return s.db.Close()
}

func (s *CloverStore) IsRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}

func (s *CloverStore) Load(ctx context.Context) (string, error) {
	doc, err := s.db.Query(sessionCollection).
		Where(clover.Field("slot").Eq("token")).
		FindFirst()
	if err != nil {
		return "", types.WrapError(err, "failed to read session document")
	}
	if doc == nil {
		return "", types.ErrStorageSlotEmpty
	}

	token, ok := doc.Get("token").(string)
	if !ok || token == "" {
		return "", types.ErrStorageSlotEmpty
	}
	return token, nil
}

func (s *CloverStore) Save(ctx context.Context, token string) error {
	if token == "" {
		return types.ErrTokenEmpty
	}

	if err := s.Clear(ctx); err != nil {
		return err
	}

	doc := clover.NewDocument()
	doc.Set("slot", "token")
	doc.Set("token", token)

	if err := s.db.Insert(sessionCollection, doc); err != nil {
		return types.WrapError(err, "failed to write session document")
	}
	return nil
}

func (s *CloverStore) Clear(ctx context.Context) error {
	err := s.db.Query(sessionCollection).
		Where(clover.Field("slot").Eq("token")).
		Delete()
	return types.WrapError(err, "failed to clear session document")
}
