// Package corpus provides the search-corpus collaborator: a retrieval
// corpus id per conversation, created on first use. Absence or failure
// never aborts generation.
package corpus

import (
	"context"
	"errors"

	"github.com/erenbertr/chatrelay/internal/storage"
)

// Provider returns a retrieval corpus id for a conversation.
type Provider interface {
	GetOrCreate(ctx context.Context, conversationID, ownerID string) (string, error)
}

// StoreProvider keeps corpus assignments in the record store.
type StoreProvider struct {
	store storage.RecordStore
}

var _ Provider = (*StoreProvider)(nil)

// NewStoreProvider creates a store-backed corpus provider.
func NewStoreProvider(store storage.RecordStore) *StoreProvider {
	return &StoreProvider{store: store}
}

// GetOrCreate returns the existing corpus id for the conversation or
// registers a new one.
func (p *StoreProvider) GetOrCreate(ctx context.Context, conversationID, ownerID string) (string, error) {
	rec, err := p.store.FindOne(ctx, storage.CollectionCorpora, storage.Query{
		Where: map[string]any{"conversation_id": conversationID},
	})
	if err == nil {
		return rec.ID(), nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	return p.store.Insert(ctx, storage.CollectionCorpora, storage.Record{
		"conversation_id": conversationID,
		"owner_id":        ownerID,
	})
}
