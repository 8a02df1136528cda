// Package normalizer orchestrates one generation: provider resolution,
// context assembly, adapter dispatch, and emission of the canonical event
// sequence regardless of which provider produced the text.
package normalizer

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/erenbertr/chatrelay/internal/adapter"
	"github.com/erenbertr/chatrelay/internal/conversation"
	"github.com/erenbertr/chatrelay/internal/corpus"
	"github.com/erenbertr/chatrelay/internal/credentials"
	"github.com/erenbertr/chatrelay/internal/domain"
	"github.com/erenbertr/chatrelay/internal/tokens"
)

// Request describes one streaming generation call from a transport sink.
type Request struct {
	Text           string
	ConversationID string
	OwnerID        string
	PersonalityID  string

	// ModelSelector is a provider configuration id, or empty/"default" for
	// the active default.
	ModelSelector string

	WebSearchRequested bool
	ReasoningRequested bool

	// AttachmentRefs, when non-empty, asks for a retrieval corpus on the
	// conversation.
	AttachmentRefs []string
}

// Result is the terminal outcome a transport sink uses to persist the
// assistant turn.
type Result struct {
	Success   bool
	MessageID string
	FinalText string
	Metadata  *domain.UsageMetadata
	Err       error
}

// Normalizer owns the canonical event lifecycle. One long-lived instance per
// process, injected into request handlers.
type Normalizer struct {
	resolver *credentials.Resolver
	builder  *conversation.Builder
	adapters *adapter.Registry
	corpora  corpus.Provider
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates a normalizer over its collaborators.
func New(resolver *credentials.Resolver, builder *conversation.Builder, adapters *adapter.Registry, corpora corpus.Provider, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		resolver: resolver,
		builder:  builder,
		adapters: adapters,
		corpora:  corpora,
		logger:   logger,
		tracer:   otel.Tracer("chatrelay/normalizer"),
	}
}

// GenerateStreamingResponse is the transport-facing entry point. Events are
// delivered to onEvent in emission order; the Result mirrors the terminal
// event.
func (n *Normalizer) GenerateStreamingResponse(ctx context.Context, req Request, onEvent domain.EventSink) Result {
	return n.Stream(ctx, req, onEvent)
}

// Stream runs one generation. Exactly one Start precedes all other events
// and exactly one of End or Error terminates the sequence; resolution and
// context failures return directly with zero events emitted.
func (n *Normalizer) Stream(ctx context.Context, req Request, emit domain.EventSink) Result {
	desc, err := n.resolver.Resolve(ctx, req.ModelSelector)
	if err != nil {
		n.logger.Warn("provider resolution failed",
			slog.String("conversation_id", req.ConversationID),
			slog.String("error", err.Error()))
		return Result{Err: err}
	}

	messages, err := n.builder.Build(ctx, conversation.BuildInput{
		ConversationID: req.ConversationID,
		PersonalityID:  req.PersonalityID,
		OwnerID:        req.OwnerID,
		Model:          desc.Model,
	})
	if err != nil {
		n.logger.Error("conversation context unavailable",
			slog.String("conversation_id", req.ConversationID),
			slog.String("error", err.Error()))
		return Result{Err: err}
	}
	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: req.Text})

	opts := domain.GenerateOptions{
		WebSearch: req.WebSearchRequested,
		Reasoning: req.ReasoningRequested,
	}
	if len(req.AttachmentRefs) > 0 {
		corpusID, err := n.corpora.GetOrCreate(ctx, req.ConversationID, req.OwnerID)
		if err != nil {
			// Non-fatal: generation proceeds without retrieval.
			n.logger.Warn("search corpus unavailable",
				slog.String("conversation_id", req.ConversationID),
				slog.String("error", err.Error()))
		} else {
			opts.FileSearchCorpusID = corpusID
		}
	}

	messageID := uuid.NewString()
	emit(domain.StreamEvent{Type: domain.EventStart, MessageID: messageID})

	ctx, span := n.tracer.Start(ctx, "normalizer.generate",
		trace.WithAttributes(
			attribute.String("provider.kind", string(desc.Kind)),
			attribute.String("provider.model", desc.Model),
		))
	defer span.End()

	started := time.Now()
	result := n.run(ctx, desc, messages, opts, messageID, emit)
	result.MessageID = messageID

	if result.Success {
		result.Metadata.ResponseTimeMs = time.Since(started).Milliseconds()
		emit(domain.StreamEvent{Type: domain.EventEnd, MessageID: messageID, Metadata: result.Metadata})
		n.logger.Info("generation complete",
			slog.String("message_id", messageID),
			slog.String("provider", desc.Name),
			slog.String("model", desc.Model),
			slog.Int("output_tokens", result.Metadata.OutputTokens),
			slog.Int64("response_time_ms", result.Metadata.ResponseTimeMs))
	}
	return result
}

// run dispatches to the adapter and folds its raw events into the canonical
// sequence. On success the returned Result carries metadata without
// ResponseTimeMs; on failure the Error event has already been emitted.
func (n *Normalizer) run(ctx context.Context, desc *domain.ProviderDescriptor, messages []domain.Message, opts domain.GenerateOptions, messageID string, emit domain.EventSink) Result {
	a, err := n.adapters.Get(desc.Kind)
	if err != nil {
		emit(domain.StreamEvent{Type: domain.EventError, MessageID: messageID, ErrorText: err.Error()})
		return Result{Err: err}
	}

	events, err := a.Generate(ctx, desc, messages, opts)
	if err != nil {
		wrapped := domain.ErrProviderRequest(err)
		emit(domain.StreamEvent{Type: domain.EventError, MessageID: messageID, ErrorText: wrapped.Error()})
		return Result{Err: wrapped}
	}

	var (
		finalText   string
		usage       *domain.Usage
		searchQuery string
		searchHits  []domain.SearchResult
	)

	for ev := range events {
		select {
		case <-ctx.Done():
			// Consumer gone: stop forwarding, no terminal event, no
			// persistence of partial text.
			return Result{Err: ctx.Err()}
		default:
		}

		switch {
		case ev.Err != nil:
			emit(domain.StreamEvent{Type: domain.EventError, MessageID: messageID, ErrorText: ev.Err.Error()})
			return Result{Err: ev.Err}

		case ev.SearchStarted:
			searchQuery = ev.Query
			emit(domain.StreamEvent{Type: domain.EventSearchStart, MessageID: messageID, Query: ev.Query})

		case len(ev.Results) > 0:
			searchHits = append(searchHits, ev.Results...)
			emit(domain.StreamEvent{
				Type:      domain.EventSearchResults,
				MessageID: messageID,
				Query:     searchQuery,
				Results:   ev.Results,
			})

		case ev.Delta != "":
			finalText += ev.Delta
			emit(domain.StreamEvent{Type: domain.EventChunk, MessageID: messageID, TextDelta: ev.Delta})
		}

		if ev.Usage != nil {
			usage = ev.Usage
		}
	}

	if err := ctx.Err(); err != nil {
		return Result{Err: err}
	}

	meta := n.finalizeUsage(usage, messages, finalText, desc, messageID)
	meta.SearchQuery = searchQuery
	meta.SearchResults = searchHits

	return Result{Success: true, FinalText: finalText, Metadata: meta}
}

// finalizeUsage takes the provider's accounting verbatim when present and
// otherwise applies the fixed four-characters-per-token estimate over the
// full input and the accumulated output.
func (n *Normalizer) finalizeUsage(usage *domain.Usage, messages []domain.Message, finalText string, desc *domain.ProviderDescriptor, messageID string) *domain.UsageMetadata {
	meta := &domain.UsageMetadata{
		Model:        desc.Model,
		ProviderName: desc.Name,
		RequestID:    messageID,
	}

	if usage != nil {
		meta.InputTokens = usage.InputTokens
		meta.OutputTokens = usage.OutputTokens
		meta.TotalTokens = usage.TotalTokens
		meta.Estimated = usage.Estimated
		if meta.TotalTokens == 0 {
			meta.TotalTokens = meta.InputTokens + meta.OutputTokens
		}
		return meta
	}

	meta.InputTokens = tokens.EstimateMessages(messages)
	meta.OutputTokens = tokens.Estimate(finalText)
	meta.TotalTokens = meta.InputTokens + meta.OutputTokens
	meta.Estimated = true
	return meta
}
