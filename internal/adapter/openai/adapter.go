// Package openai adapts the OpenAI chat completions protocol (and
// OpenAI-compatible endpoints) to the canonical provider event stream.
package openai

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/erenbertr/chatrelay/internal/adapter"
	openaiapi "github.com/erenbertr/chatrelay/internal/api/openai"
	"github.com/erenbertr/chatrelay/internal/domain"
)

// Option configures the adapter.
type Option func(*Adapter)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(a *Adapter) {
		a.httpClient = httpClient
	}
}

// WithSimulateDelay overrides the inter-chunk delay used when replaying
// non-streaming responses.
func WithSimulateDelay(d time.Duration) Option {
	return func(a *Adapter) {
		a.simulateDelay = d
	}
}

// Adapter implements domain.Adapter for the OpenAI API. The same adapter
// serves the custom kind: any OpenAI-compatible endpoint selected through
// the descriptor's endpoint field.
type Adapter struct {
	kind          domain.ProviderKind
	httpClient    *http.Client
	logger        *slog.Logger
	simulateDelay time.Duration
}

var _ domain.Adapter = (*Adapter)(nil)

// New creates an adapter for the given kind (openai or custom).
func New(kind domain.ProviderKind, logger *slog.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		kind:          kind,
		logger:        logger,
		simulateDelay: adapter.DefaultSimulateDelay,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Kind() domain.ProviderKind {
	return a.kind
}

// isReasoningModel matches the reasoning-tier model naming convention.
// These models use a restricted sub-protocol: no incremental streaming, no
// temperature, max_completion_tokens instead of max_tokens.
func isReasoningModel(model string) bool {
	for _, prefix := range []string{"o1", "o3", "o4"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

func (a *Adapter) Generate(ctx context.Context, desc *domain.ProviderDescriptor, messages []domain.Message, opts domain.GenerateOptions) (<-chan domain.ProviderEvent, error) {
	client := a.newClient(desc)
	req := a.buildRequest(desc, messages, opts)

	out := make(chan domain.ProviderEvent)

	var preamble []domain.ProviderEvent
	if opts.WebSearch {
		if req.WebSearchOptions != nil {
			preamble = append(preamble, domain.ProviderEvent{
				SearchStarted: true,
				Query:         adapter.LastUserQuery(messages),
			})
		} else {
			preamble = append(preamble, domain.ProviderEvent{
				Delta: adapter.UnsupportedSearchNote(desc.Model),
			})
		}
	}

	if isReasoningModel(desc.Model) {
		resp, err := client.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, err
		}
		go func() {
			defer close(out)
			a.send(ctx, out, preamble...)
			a.replayResponse(ctx, out, resp)
		}()
		return out, nil
	}

	stream, err := client.StreamChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}

	go func() {
		defer close(out)
		a.send(ctx, out, preamble...)

		for result := range stream {
			if result.Err != nil {
				a.send(ctx, out, domain.ProviderEvent{Err: result.Err})
				return
			}
			for _, ev := range chunkEvents(result.Chunk) {
				if !a.send(ctx, out, ev) {
					return
				}
			}
		}
	}()
	return out, nil
}

func (a *Adapter) newClient(desc *domain.ProviderDescriptor) *openaiapi.Client {
	clientOpts := []openaiapi.ClientOption{
		openaiapi.WithBaseURL(desc.Endpoint),
	}
	if a.httpClient != nil {
		clientOpts = append(clientOpts, openaiapi.WithHTTPClient(a.httpClient))
	}
	return openaiapi.NewClient(desc.Secret, clientOpts...)
}

func (a *Adapter) buildRequest(desc *domain.ProviderDescriptor, messages []domain.Message, opts domain.GenerateOptions) *openaiapi.ChatCompletionRequest {
	apiMessages := make([]openaiapi.ChatMessage, len(messages))
	for i, m := range messages {
		role := string(m.Role)
		// Reasoning-tier models reject the system role.
		if m.Role == domain.RoleSystem && isReasoningModel(desc.Model) {
			role = "developer"
		}
		apiMessages[i] = openaiapi.ChatMessage{Role: role, Content: m.Content}
	}

	req := &openaiapi.ChatCompletionRequest{
		Model:    desc.Model,
		Messages: apiMessages,
	}

	if opts.WebSearch && desc.Capabilities.Has(domain.CapabilityWebSearch) && !isReasoningModel(desc.Model) {
		req.WebSearchOptions = &openaiapi.WebSearchOptions{}
	}

	if opts.FileSearchCorpusID != "" {
		if desc.Capabilities.Has(domain.CapabilityFileSearch) {
			req.Tools = append(req.Tools, openaiapi.Tool{
				Type:           "file_search",
				VectorStoreIDs: []string{opts.FileSearchCorpusID},
			})
		} else {
			a.logger.Info("file search corpus ignored for model without file search",
				slog.String("model", desc.Model))
		}
	}

	if opts.Reasoning && isReasoningModel(desc.Model) {
		req.ReasoningEffort = "medium"
	}

	return req
}

// replayResponse converts a non-streaming response into simulated chunks.
func (a *Adapter) replayResponse(ctx context.Context, out chan<- domain.ProviderEvent, resp *openaiapi.ChatCompletionResponse) {
	var text string
	var results []domain.SearchResult
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
		results = citations(resp.Choices[0].Message.Annotations)
	}
	if len(results) > 0 {
		a.send(ctx, out, domain.ProviderEvent{Results: results})
	}

	var usage *domain.Usage
	if resp.Usage != nil {
		usage = &domain.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}
	adapter.SimulateStream(ctx, out, text, usage, a.simulateDelay)
}

// chunkEvents maps one streaming frame to provider events.
func chunkEvents(chunk *openaiapi.ChatCompletionChunk) []domain.ProviderEvent {
	var events []domain.ProviderEvent

	if len(chunk.Choices) > 0 {
		choice := chunk.Choices[0]
		if results := citations(choice.Delta.Annotations); len(results) > 0 {
			events = append(events, domain.ProviderEvent{Results: results})
		}
		if choice.Delta.Content != "" {
			events = append(events, domain.ProviderEvent{Delta: choice.Delta.Content})
		}
	}

	// Usage arrives on a trailing frame with empty choices.
	if chunk.Usage != nil {
		events = append(events, domain.ProviderEvent{
			Usage: &domain.Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
				TotalTokens:  chunk.Usage.TotalTokens,
			},
		})
	}
	return events
}

func citations(annotations []openaiapi.Annotation) []domain.SearchResult {
	var results []domain.SearchResult
	for _, ann := range annotations {
		if ann.Type != "url_citation" || ann.URLCitation == nil {
			continue
		}
		results = append(results, domain.SearchResult{
			Title: ann.URLCitation.Title,
			URL:   ann.URLCitation.URL,
		})
	}
	return results
}

func (a *Adapter) send(ctx context.Context, out chan<- domain.ProviderEvent, events ...domain.ProviderEvent) bool {
	for _, ev := range events {
		select {
		case <-ctx.Done():
			return false
		case out <- ev:
		}
	}
	return true
}
