package domain

import (
	"context"
)

// Adapter translates canonical messages into one provider's wire protocol
// and decodes that provider's response/stream into ProviderEvents.
type Adapter interface {
	Kind() ProviderKind

	// Generate issues one request and returns a finite channel of raw
	// provider events. The channel MUST be closed by the adapter when done.
	// The stream is not restartable; a fresh call must be made to retry.
	Generate(ctx context.Context, desc *ProviderDescriptor, messages []Message, opts GenerateOptions) (<-chan ProviderEvent, error)
}
