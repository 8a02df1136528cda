// Package conversation assembles the ordered message list handed to a
// provider adapter: one synthesized system instruction followed by the
// conversation's prior turns and the new user turn.
package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/erenbertr/chatrelay/internal/domain"
	"github.com/erenbertr/chatrelay/internal/storage"
	"github.com/erenbertr/chatrelay/internal/tokens"
)

// DefaultInputBudget caps the assembled prompt when no per-model budget is
// configured.
const DefaultInputBudget = 100_000

// BuildInput identifies the conversation context to assemble.
type BuildInput struct {
	ConversationID string
	PersonalityID  string
	OwnerID        string

	// Model selects the token counter for the history budget.
	Model string

	// InputBudget caps prompt tokens; 0 means DefaultInputBudget.
	InputBudget int
}

// Builder reads conversation context from the record store.
type Builder struct {
	store   storage.RecordStore
	counter *tokens.Registry
	logger  *slog.Logger
}

// NewBuilder creates a context builder.
func NewBuilder(store storage.RecordStore, counter *tokens.Registry, logger *slog.Logger) *Builder {
	return &Builder{store: store, counter: counter, logger: logger}
}

// Build returns the system instruction (when any context exists) followed by
// all prior turns in creation order. Failures reading workspace or
// personality context are logged and swallowed; the system message is simply
// omitted. Failures reading the prior turns are fatal for the generation
// attempt.
func (b *Builder) Build(ctx context.Context, in BuildInput) ([]domain.Message, error) {
	var messages []domain.Message

	if system := b.systemInstruction(ctx, in); system != "" {
		messages = append(messages, domain.Message{Role: domain.RoleSystem, Content: system})
	}

	history, err := b.store.FindMany(ctx, storage.CollectionMessages, storage.Query{
		Where:   map[string]any{"conversation_id": in.ConversationID},
		OrderBy: "created_at",
	})
	if err != nil {
		return nil, domain.ErrContextUnavailable(err)
	}

	for _, rec := range history {
		role := domain.Role(rec.String("role"))
		if role != domain.RoleUser && role != domain.RoleAssistant {
			continue
		}
		messages = append(messages, domain.Message{Role: role, Content: rec.String("content")})
	}

	return b.applyBudget(messages, in), nil
}

// systemInstruction concatenates non-empty workspace rules and personality
// prompt text, each prefixed by a label, joined by a blank line.
func (b *Builder) systemInstruction(ctx context.Context, in BuildInput) string {
	var parts []string

	if in.OwnerID != "" {
		rec, err := b.store.FindOne(ctx, storage.CollectionWorkspaces, storage.Query{
			Where: map[string]any{"owner_id": in.OwnerID},
		})
		switch {
		case err == nil:
			if rules := rec.String("rules"); rules != "" {
				parts = append(parts, "Workspace rules:\n"+rules)
			}
		case err != storage.ErrNotFound:
			b.logger.Warn("failed to read workspace rules",
				slog.String("owner_id", in.OwnerID),
				slog.String("error", err.Error()))
		}
	}

	if in.PersonalityID != "" {
		rec, err := b.store.FindOne(ctx, storage.CollectionPersonas, storage.Query{
			Where: map[string]any{"id": in.PersonalityID},
		})
		switch {
		case err == nil:
			if prompt := rec.String("prompt"); prompt != "" {
				parts = append(parts, "Personality:\n"+prompt)
			}
		case err != storage.ErrNotFound:
			b.logger.Warn("failed to read personality prompt",
				slog.String("personality_id", in.PersonalityID),
				slog.String("error", err.Error()))
		}
	}

	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return fmt.Sprintf("%s\n\n%s", parts[0], parts[1])
	}
}

// applyBudget drops the oldest non-system turns until the prompt fits the
// input budget. The system message and the newest turn are always retained.
func (b *Builder) applyBudget(messages []domain.Message, in BuildInput) []domain.Message {
	budget := in.InputBudget
	if budget <= 0 {
		budget = DefaultInputBudget
	}

	count := func(msgs []domain.Message) int {
		total := 0
		for _, m := range msgs {
			total += b.counter.Count(in.Model, m.Content)
		}
		return total
	}

	start := 0
	if len(messages) > 0 && messages[0].Role == domain.RoleSystem {
		start = 1
	}

	dropped := 0
	for count(messages) > budget && len(messages)-start > 1 {
		messages = append(messages[:start], messages[start+1:]...)
		dropped++
	}
	if dropped > 0 {
		b.logger.Info("trimmed conversation history to input budget",
			slog.String("conversation_id", in.ConversationID),
			slog.Int("dropped_turns", dropped),
			slog.Int("budget", budget))
	}

	return messages
}
