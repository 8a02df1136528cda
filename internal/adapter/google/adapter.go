// Package google adapts the Gemini streaming protocol to the canonical
// provider event stream.
package google

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/erenbertr/chatrelay/internal/adapter"
	googleapi "github.com/erenbertr/chatrelay/internal/api/google"
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

// Adapter implements domain.Adapter for the Gemini API.
type Adapter struct {
	httpClient *http.Client
	logger     *slog.Logger
}

var _ domain.Adapter = (*Adapter)(nil)

// New creates a Google adapter.
func New(logger *slog.Logger, opts ...Option) *Adapter {
	a := &Adapter{logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Kind() domain.ProviderKind {
	return domain.ProviderGoogle
}

func (a *Adapter) Generate(ctx context.Context, desc *domain.ProviderDescriptor, messages []domain.Message, opts domain.GenerateOptions) (<-chan domain.ProviderEvent, error) {
	clientOpts := []googleapi.ClientOption{
		googleapi.WithBaseURL(desc.Endpoint),
	}
	if a.httpClient != nil {
		clientOpts = append(clientOpts, googleapi.WithHTTPClient(a.httpClient))
	}
	client := googleapi.NewClient(desc.Secret, clientOpts...)

	req := buildRequest(messages)

	searchActive := opts.WebSearch && desc.Capabilities.Has(domain.CapabilityWebSearch)
	if searchActive {
		req.Tools = append(req.Tools, googleapi.ToolDef{GoogleSearch: &struct{}{}})
	}
	if opts.FileSearchCorpusID != "" {
		// No attachable retrieval corpus on this path; non-fatal.
		a.logger.Info("file search corpus not attachable for google provider",
			slog.String("model", desc.Model))
	}

	stream, err := client.StreamGenerateContent(ctx, desc.Model, req)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.ProviderEvent)
	go func() {
		defer close(out)

		if opts.WebSearch && !searchActive {
			if !a.send(ctx, out, domain.ProviderEvent{Delta: adapter.UnsupportedSearchNote(desc.Model)}) {
				return
			}
		}
		if searchActive {
			if !a.send(ctx, out, domain.ProviderEvent{
				SearchStarted: true,
				Query:         adapter.LastUserQuery(messages),
			}) {
				return
			}
		}

		var usage *domain.Usage
		groundingSent := false

		for result := range stream {
			if result.Err != nil {
				a.send(ctx, out, domain.ProviderEvent{Err: result.Err})
				return
			}

			frame := result.Frame
			if len(frame.Candidates) > 0 {
				candidate := frame.Candidates[0]

				if !groundingSent && candidate.GroundingMetadata != nil {
					if results := groundingResults(candidate.GroundingMetadata); len(results) > 0 {
						groundingSent = true
						if !a.send(ctx, out, domain.ProviderEvent{Results: results}) {
							return
						}
					}
				}

				for _, part := range candidate.Content.Parts {
					if part.Text == "" {
						continue
					}
					if !a.send(ctx, out, domain.ProviderEvent{Delta: part.Text}) {
						return
					}
				}
			}

			// Usage accumulates across frames; the last frame carries the
			// final counts.
			if frame.UsageMetadata != nil {
				usage = &domain.Usage{
					InputTokens:  frame.UsageMetadata.PromptTokenCount,
					OutputTokens: frame.UsageMetadata.CandidatesTokenCount,
					TotalTokens:  frame.UsageMetadata.TotalTokenCount,
				}
			}
		}

		if usage != nil {
			if usage.TotalTokens == 0 {
				usage.TotalTokens = usage.InputTokens + usage.OutputTokens
			}
			a.send(ctx, out, domain.ProviderEvent{Usage: usage})
		}
	}()
	return out, nil
}

// buildRequest translates canonical messages. Gemini keeps the system
// instruction out of the contents array and names assistant turns "model".
func buildRequest(messages []domain.Message) *googleapi.GenerateContentRequest {
	req := &googleapi.GenerateContentRequest{}

	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			if req.SystemInstruction == nil {
				req.SystemInstruction = &googleapi.Content{}
			}
			req.SystemInstruction.Parts = append(req.SystemInstruction.Parts,
				googleapi.Part{Text: m.Content})
		case domain.RoleUser:
			req.Contents = append(req.Contents, googleapi.Content{
				Role:  "user",
				Parts: []googleapi.Part{{Text: m.Content}},
			})
		case domain.RoleAssistant:
			req.Contents = append(req.Contents, googleapi.Content{
				Role:  "model",
				Parts: []googleapi.Part{{Text: m.Content}},
			})
		}
	}
	return req
}

func groundingResults(meta *googleapi.GroundingMetadata) []domain.SearchResult {
	var results []domain.SearchResult
	for _, chunk := range meta.GroundingChunks {
		if chunk.Web == nil {
			continue
		}
		results = append(results, domain.SearchResult{
			Title: chunk.Web.Title,
			URL:   chunk.Web.URI,
		})
	}
	return results
}

func (a *Adapter) send(ctx context.Context, out chan<- domain.ProviderEvent, ev domain.ProviderEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}
