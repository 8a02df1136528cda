package server

import (
	"context"
	"log/slog"

	"github.com/erenbertr/chatrelay/internal/domain"
	"github.com/erenbertr/chatrelay/internal/normalizer"
	"github.com/erenbertr/chatrelay/internal/storage"
)

// Turns persists conversation turns after a generation attempt. Persistence
// failures never affect the response already delivered to the client; they
// are logged only.
type Turns struct {
	store  storage.RecordStore
	logger *slog.Logger
}

// NewTurns creates a turn persister.
func NewTurns(store storage.RecordStore, logger *slog.Logger) *Turns {
	return &Turns{store: store, logger: logger}
}

// SaveUser records the user's message.
func (t *Turns) SaveUser(ctx context.Context, conversationID, ownerID, text string) {
	_, err := t.store.Insert(ctx, storage.CollectionMessages, storage.Record{
		"conversation_id": conversationID,
		"owner_id":        ownerID,
		"role":            string(domain.RoleUser),
		"content":         text,
	})
	if err != nil {
		t.logger.Error("failed to persist user turn",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()))
	}
}

// SaveAssistant records the completed assistant turn with its usage
// accounting. Only successful generations are persisted.
func (t *Turns) SaveAssistant(ctx context.Context, conversationID, ownerID string, res normalizer.Result) {
	if !res.Success {
		return
	}
	rec := storage.Record{
		"conversation_id": conversationID,
		"owner_id":        ownerID,
		"role":            string(domain.RoleAssistant),
		"content":         res.FinalText,
		"message_id":      res.MessageID,
	}
	if m := res.Metadata; m != nil {
		rec["model"] = m.Model
		rec["provider_name"] = m.ProviderName
		rec["input_tokens"] = m.InputTokens
		rec["output_tokens"] = m.OutputTokens
		rec["total_tokens"] = m.TotalTokens
		rec["estimated"] = m.Estimated
		rec["response_time_ms"] = m.ResponseTimeMs
	}
	if _, err := t.store.Insert(ctx, storage.CollectionMessages, rec); err != nil {
		t.logger.Error("failed to persist assistant turn",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()))
	}
}
