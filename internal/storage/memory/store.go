// Package memory provides an in-memory RecordStore for tests and
// ephemeral deployments.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erenbertr/chatrelay/internal/storage"
)

// Store is an in-memory implementation of storage.RecordStore.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]storage.Record
}

var _ storage.RecordStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		collections: make(map[string][]storage.Record),
	}
}

func (s *Store) Insert(ctx context.Context, collection string, rec storage.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := maps.Clone(rec)
	if stored.ID() == "" {
		stored["id"] = uuid.NewString()
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if stored.String("created_at") == "" {
		stored["created_at"] = now
	}
	if stored.String("updated_at") == "" {
		stored["updated_at"] = now
	}

	s.collections[collection] = append(s.collections[collection], stored)
	return stored.ID(), nil
}

func (s *Store) FindOne(ctx context.Context, collection string, q storage.Query) (storage.Record, error) {
	q.Limit = 1
	recs, err := s.FindMany(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, storage.ErrNotFound
	}
	return recs[0], nil
}

func (s *Store) FindMany(ctx context.Context, collection string, q storage.Query) ([]storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []storage.Record
	for _, rec := range s.collections[collection] {
		if storage.MatchWhere(rec, q.Where) {
			matched = append(matched, maps.Clone(rec))
		}
	}

	storage.ApplyOrder(matched, q)
	return storage.ApplyWindow(matched, q), nil
}

func (s *Store) Update(ctx context.Context, collection, id string, patch storage.Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, rec := range s.collections[collection] {
		if rec.ID() != id {
			continue
		}
		updated := maps.Clone(rec)
		maps.Copy(updated, patch)
		updated["id"] = id
		updated["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
		s.collections[collection][i] = updated
		return 1, nil
	}
	return 0, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs := s.collections[collection]
	for i, rec := range recs {
		if rec.ID() == id {
			s.collections[collection] = append(recs[:i:i], recs[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (s *Store) Count(ctx context.Context, collection string, q storage.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, rec := range s.collections[collection] {
		if storage.MatchWhere(rec, q.Where) {
			n++
		}
	}
	return n, nil
}
