// Package anthropic adapts the Anthropic Messages streaming protocol to the
// canonical provider event stream.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/erenbertr/chatrelay/internal/adapter"
	anthropicapi "github.com/erenbertr/chatrelay/internal/api/anthropic"
	"github.com/erenbertr/chatrelay/internal/domain"
)

const defaultMaxTokens = 4096

// Option configures the adapter.
type Option func(*Adapter)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(a *Adapter) {
		a.httpClient = httpClient
	}
}

// Adapter implements domain.Adapter for the Anthropic Messages API.
type Adapter struct {
	httpClient *http.Client
	logger     *slog.Logger
}

var _ domain.Adapter = (*Adapter)(nil)

// New creates an Anthropic adapter.
func New(logger *slog.Logger, opts ...Option) *Adapter {
	a := &Adapter{logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Kind() domain.ProviderKind {
	return domain.ProviderAnthropic
}

func (a *Adapter) Generate(ctx context.Context, desc *domain.ProviderDescriptor, messages []domain.Message, opts domain.GenerateOptions) (<-chan domain.ProviderEvent, error) {
	clientOpts := []anthropicapi.ClientOption{
		anthropicapi.WithBaseURL(desc.Endpoint),
	}
	if a.httpClient != nil {
		clientOpts = append(clientOpts, anthropicapi.WithHTTPClient(a.httpClient))
	}
	client := anthropicapi.NewClient(desc.Secret, clientOpts...)

	req := buildRequest(desc, messages, opts)

	searchUnsupported := opts.WebSearch && !desc.Capabilities.Has(domain.CapabilityWebSearch)
	if opts.FileSearchCorpusID != "" {
		// The Messages API has no attachable retrieval corpus; non-fatal.
		a.logger.Info("file search corpus not attachable for anthropic provider",
			slog.String("model", desc.Model))
	}

	stream, err := client.StreamMessage(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.ProviderEvent)
	go func() {
		defer close(out)

		if searchUnsupported {
			if !a.send(ctx, out, domain.ProviderEvent{Delta: adapter.UnsupportedSearchNote(desc.Model)}) {
				return
			}
		}

		var inputTokens, outputTokens int
		frames, decoded := 0, 0

		for result := range stream {
			if result.Err != nil {
				a.send(ctx, out, domain.ProviderEvent{Err: result.Err})
				return
			}

			switch result.EventType {
			case "message_start":
				frames++
				var event anthropicapi.MessageStartEvent
				if err := unmarshal(result.Data, &event); err != nil {
					continue
				}
				decoded++
				inputTokens = event.Message.Usage.InputTokens

			case "content_block_start":
				frames++
				var event anthropicapi.ContentBlockStartEvent
				if err := unmarshal(result.Data, &event); err != nil {
					continue
				}
				decoded++
				switch event.ContentBlock.Type {
				case "server_tool_use":
					if event.ContentBlock.Name == "web_search" {
						if !a.send(ctx, out, domain.ProviderEvent{
							SearchStarted: true,
							Query:         event.ContentBlock.Input.Query,
						}) {
							return
						}
					}
				case "web_search_tool_result":
					results := make([]domain.SearchResult, 0, len(event.ContentBlock.Content))
					for _, r := range event.ContentBlock.Content {
						if r.Type != "web_search_result" {
							continue
						}
						results = append(results, domain.SearchResult{Title: r.Title, URL: r.URL})
					}
					if len(results) > 0 {
						if !a.send(ctx, out, domain.ProviderEvent{Results: results}) {
							return
						}
					}
				}

			case "content_block_delta":
				frames++
				var event anthropicapi.ContentBlockDeltaEvent
				if err := unmarshal(result.Data, &event); err != nil {
					continue
				}
				decoded++
				if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
					if !a.send(ctx, out, domain.ProviderEvent{Delta: event.Delta.Text}) {
						return
					}
				}

			case "message_delta":
				frames++
				var event anthropicapi.MessageDeltaEvent
				if err := unmarshal(result.Data, &event); err != nil {
					continue
				}
				decoded++
				if event.Usage != nil {
					outputTokens = event.Usage.OutputTokens
				}

			case "error":
				frames++
				var event anthropicapi.ErrorEvent
				if err := unmarshal(result.Data, &event); err != nil {
					continue
				}
				decoded++
				a.send(ctx, out, domain.ProviderEvent{
					Err: fmt.Errorf("%s: %s", event.Error.Type, event.Error.Message),
				})
				return

			case "message_stop":
				if frames > 0 && decoded == 0 {
					a.send(ctx, out, domain.ProviderEvent{Err: fmt.Errorf("no decodable frames in stream")})
					return
				}
				if inputTokens > 0 || outputTokens > 0 {
					a.send(ctx, out, domain.ProviderEvent{
						Usage: &domain.Usage{
							InputTokens:  inputTokens,
							OutputTokens: outputTokens,
							TotalTokens:  inputTokens + outputTokens,
						},
					})
				}
				return
			}
		}

		// Stream closed without message_stop.
		if frames > 0 && decoded == 0 {
			a.send(ctx, out, domain.ProviderEvent{Err: fmt.Errorf("no decodable frames in stream")})
		}
	}()
	return out, nil
}

// buildRequest translates canonical messages to the Messages API shape.
// All system messages are extracted and merged into the single top-level
// system field; non-system messages keep their role/content pairing.
func buildRequest(desc *domain.ProviderDescriptor, messages []domain.Message, opts domain.GenerateOptions) *anthropicapi.MessagesRequest {
	var system string
	var apiMessages []anthropicapi.Message

	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case domain.RoleUser, domain.RoleAssistant:
			apiMessages = append(apiMessages, anthropicapi.Message{
				Role:    string(m.Role),
				Content: m.Content,
			})
		}
	}

	req := &anthropicapi.MessagesRequest{
		Model:     desc.Model,
		System:    system,
		Messages:  apiMessages,
		MaxTokens: defaultMaxTokens,
	}

	if opts.WebSearch && desc.Capabilities.Has(domain.CapabilityWebSearch) {
		req.Tools = append(req.Tools, anthropicapi.WebSearchTool())
	}
	if opts.Reasoning && desc.Capabilities.Has(domain.CapabilityReasoning) {
		req.Thinking = &anthropicapi.Thinking{Type: "enabled", BudgetTokens: 1024}
	}

	return req
}

// unmarshal decodes one frame; malformed frames are skipped by callers.
func unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (a *Adapter) send(ctx context.Context, out chan<- domain.ProviderEvent, ev domain.ProviderEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}
