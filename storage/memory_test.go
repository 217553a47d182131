package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/saiset-co/sai-feed/logger"
	"github.com/saiset-co/sai-feed/types"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore(logger.NewNop())
	if err := store.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = store.Stop() }()

	ctx := context.Background()

	if _, err := store.Load(ctx); !errors.Is(err, types.ErrStorageSlotEmpty) {
		t.Errorf("empty Load error = %v, want %v", err, types.ErrStorageSlotEmpty)
	}

	if err := store.Save(ctx, "token-1"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if token, err := store.Load(ctx); err != nil || token != "token-1" {
		t.Errorf("Load = %q %v, want token-1", token, err)
	}

	if err := store.Save(ctx, "token-2"); err != nil {
		t.Fatalf("overwrite Save failed: %v", err)
	}
	if token, _ := store.Load(ctx); token != "token-2" {
		t.Errorf("Load = %q, want token-2", token)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, types.ErrStorageSlotEmpty) {
		t.Errorf("cleared Load error = %v, want %v", err, types.ErrStorageSlotEmpty)
	}
}

func TestMemoryStoreRejectsEmptyToken(t *testing.T) {
	store := NewMemoryStore(logger.NewNop())

	if err := store.Save(context.Background(), ""); !errors.Is(err, types.ErrTokenEmpty) {
		t.Errorf("Save(\"\") error = %v, want %v", err, types.ErrTokenEmpty)
	}
}

func TestNewSessionStoreUnknownType(t *testing.T) {
	_, err := NewSessionStore(context.Background(), logger.NewNop(), &types.StorageConfig{Type: "etcd"})
	if !errors.Is(err, types.ErrStorageTypeUnknown) {
		t.Errorf("error = %v, want %v", err, types.ErrStorageTypeUnknown)
	}
}

func TestNewSessionStoreMemory(t *testing.T) {
	store, err := NewSessionStore(context.Background(), logger.NewNop(), &types.StorageConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("NewSessionStore failed: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Errorf("store type = %T, want *MemoryStore", store)
	}
}
