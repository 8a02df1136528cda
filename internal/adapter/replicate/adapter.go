// Package replicate adapts the Replicate prediction-polling protocol to the
// canonical provider event stream. Replicate has no native incremental
// streaming, so the final output is replayed as simulated chunks.
package replicate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/erenbertr/chatrelay/internal/adapter"
	replicateapi "github.com/erenbertr/chatrelay/internal/api/replicate"
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

// WithPollInterval sets the prediction polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(a *Adapter) {
		a.pollInterval = d
	}
}

// WithSimulateDelay overrides the inter-chunk delay of the simulated stream.
func WithSimulateDelay(d time.Duration) Option {
	return func(a *Adapter) {
		a.simulateDelay = d
	}
}

// Adapter implements domain.Adapter for Replicate-hosted models.
type Adapter struct {
	httpClient    *http.Client
	logger        *slog.Logger
	pollInterval  time.Duration
	simulateDelay time.Duration
}

var _ domain.Adapter = (*Adapter)(nil)

// New creates a Replicate adapter.
func New(logger *slog.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		logger:        logger,
		simulateDelay: adapter.DefaultSimulateDelay,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Kind() domain.ProviderKind {
	return domain.ProviderReplicate
}

func (a *Adapter) Generate(ctx context.Context, desc *domain.ProviderDescriptor, messages []domain.Message, opts domain.GenerateOptions) (<-chan domain.ProviderEvent, error) {
	clientOpts := []replicateapi.ClientOption{
		replicateapi.WithBaseURL(desc.Endpoint),
	}
	if a.httpClient != nil {
		clientOpts = append(clientOpts, replicateapi.WithHTTPClient(a.httpClient))
	}
	if a.pollInterval > 0 {
		clientOpts = append(clientOpts, replicateapi.WithPollInterval(a.pollInterval))
	}
	client := replicateapi.NewClient(desc.Secret, clientOpts...)

	pred, err := client.CreatePrediction(ctx, desc.Model, buildInput(messages))
	if err != nil {
		return nil, err
	}

	out := make(chan domain.ProviderEvent)
	go func() {
		defer close(out)

		if opts.WebSearch {
			if !a.send(ctx, out, domain.ProviderEvent{Delta: adapter.UnsupportedSearchNote(desc.Model)}) {
				return
			}
		}
		if opts.FileSearchCorpusID != "" {
			a.logger.Info("file search corpus not attachable for replicate provider",
				slog.String("model", desc.Model))
		}

		final := pred
		if !final.Terminal() {
			final, err = client.Wait(ctx, pred.ID)
			if err != nil {
				a.send(ctx, out, domain.ProviderEvent{Err: err})
				return
			}
		}

		if final.Status != "succeeded" {
			msg := final.Error
			if msg == "" {
				msg = "prediction " + final.Status
			}
			a.send(ctx, out, domain.ProviderEvent{Err: fmt.Errorf("replicate: %s", msg)})
			return
		}

		var usage *domain.Usage
		if final.Metrics != nil && (final.Metrics.InputTokenCount > 0 || final.Metrics.OutputTokenCount > 0) {
			usage = &domain.Usage{
				InputTokens:  final.Metrics.InputTokenCount,
				OutputTokens: final.Metrics.OutputTokenCount,
				TotalTokens:  final.Metrics.InputTokenCount + final.Metrics.OutputTokenCount,
			}
		}
		adapter.SimulateStream(ctx, out, final.OutputText(), usage, a.simulateDelay)
	}()
	return out, nil
}

// buildInput flattens the canonical messages into a prompt and system
// prompt, the shape chat-tuned Replicate models accept.
func buildInput(messages []domain.Message) replicateapi.PredictionInput {
	var input replicateapi.PredictionInput
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			if input.SystemPrompt != "" {
				input.SystemPrompt += "\n\n"
			}
			input.SystemPrompt += m.Content
		case domain.RoleUser:
			input.Prompt += "User: " + m.Content + "\n"
		case domain.RoleAssistant:
			input.Prompt += "Assistant: " + m.Content + "\n"
		}
	}
	input.Prompt += "Assistant:"
	return input
}

func (a *Adapter) send(ctx context.Context, out chan<- domain.ProviderEvent, ev domain.ProviderEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}
