package storage

import (
	"context"
	"database/sql"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-feed/types"
	"github.com/saiset-co/sai-feed/utils"
)

type SQLiteConfig struct {
	Path string `yaml:"path" json:"path"`
}

// SQLiteStore persists the token in a single-row table inside a local
// database file. The slot name is fixed; one client, one session.
type SQLiteStore struct {
	logger  types.Logger
	db      *sql.DB
	running int32
}

const sessionSchema = `
CREATE TABLE IF NOT EXISTS session (
	slot TEXT PRIMARY KEY,
	token TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

func NewSQLiteStore(ctx context.Context, logger types.Logger, config *types.StorageConfig) (*SQLiteStore, error) {
	sqliteConfig := &SQLiteConfig{Path: "./session.db"}

	if config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, sqliteConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal sqlite storage config")
		}
	}

	db, err := sql.Open("sqlite3", sqliteConfig.Path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open session database")
	}

	if _, err := db.ExecContext(ctx, sessionSchema); err != nil {
		_ = db.Close()
		return nil, types.WrapError(err, "failed to create session table")
	}

	logger.Debug("SQLite session store opened", zap.String("path", sqliteConfig.Path))

	return &SQLiteStore{logger: logger, db: db}, nil
}

func (s *SQLiteStore) Start() error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return types.ErrManagerAlreadyRunning
	}
	return s.db.Ping()
}

func (s *SQLiteStore) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return types.ErrManagerNotRunning
	}
	return s.db.Close()
}

func (s *SQLiteStore) IsRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}

func (s *SQLiteStore) Load(ctx context.Context) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx,
		`SELECT token FROM session WHERE slot = 'token'`).Scan(&token)
	if err == sql.ErrNoRows {
		return "", types.ErrStorageSlotEmpty
	}
	if err != nil {
		return "", types.WrapError(err, "failed to read session slot")
	}
	return token, nil
}

func (s *SQLiteStore) Save(ctx context.Context, token string) error {
	if token == "" {
		return types.ErrTokenEmpty
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session (slot, token, updated_at) VALUES ('token', ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(slot) DO UPDATE SET token = excluded.token, updated_at = CURRENT_TIMESTAMP`,
		token)
	return types.WrapError(err, "failed to write session slot")
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE slot = 'token'`)
	return types.WrapError(err, "failed to clear session slot")
}
