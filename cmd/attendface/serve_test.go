package main

import (
	"context"
	"errors"
	"testing"

	"github.com/MrCodeEU/attendface/pkg/storage"
)

// countingStore is an EmbeddingStore that also counts, like the mysql repository.
type countingStore struct {
	*storage.MemoryStore
	CountFunc func(ctx context.Context) (int64, error)
	getAll    int
}

func (s *countingStore) Count(ctx context.Context) (int64, error) {
	return s.CountFunc(ctx)
}

func (s *countingStore) GetAll(ctx context.Context) ([]storage.Embedding, error) {
	s.getAll++
	return s.MemoryStore.GetAll(ctx)
}

func TestStoreCheck_UsesCount(t *testing.T) {
	counted := 0
	s := &countingStore{
		MemoryStore: storage.NewMemoryStore(),
		CountFunc: func(ctx context.Context) (int64, error) {
			counted++
			return 3, nil
		},
	}

	if err := storeCheck(s)(context.Background()); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if counted != 1 || s.getAll != 0 {
		t.Errorf("Count called %d times, GetAll %d times; want 1 and 0", counted, s.getAll)
	}
}

func TestStoreCheck_CountError(t *testing.T) {
	s := &countingStore{
		MemoryStore: storage.NewMemoryStore(),
		CountFunc: func(ctx context.Context) (int64, error) {
			return 0, storage.ErrStorageAccess
		},
	}

	if err := storeCheck(s)(context.Background()); !errors.Is(err, storage.ErrStorageAccess) {
		t.Errorf("expected ErrStorageAccess, got %v", err)
	}
}

func TestStoreCheck_FallsBackToGetAll(t *testing.T) {
	if err := storeCheck(storage.NewMemoryStore())(context.Background()); err != nil {
		t.Errorf("check failed: %v", err)
	}
}
