package credentials

import (
	"context"
	"errors"
	"sort"

	"github.com/erenbertr/chatrelay/internal/domain"
	"github.com/erenbertr/chatrelay/internal/storage"
)

// SelectorDefault asks the resolver to pick the active default provider.
const SelectorDefault = "default"

// familyPriority breaks ties between equally recent active configurations.
// The order matches legacy behavior and keeps selection deterministic.
var familyPriority = map[domain.ProviderKind]int{
	domain.ProviderOpenAI:    0,
	domain.ProviderGoogle:    1,
	domain.ProviderAnthropic: 2,
	domain.ProviderReplicate: 3,
	domain.ProviderCustom:    4,
}

// Resolver turns a model selector into a fully-resolved ProviderDescriptor.
type Resolver struct {
	store     storage.RecordStore
	decrypter Decrypter
}

// NewResolver creates a resolver over the provider collection.
func NewResolver(store storage.RecordStore, decrypter Decrypter) *Resolver {
	return &Resolver{store: store, decrypter: decrypter}
}

// Resolve returns the descriptor for an explicit configuration id, or for
// the active default when selector is SelectorDefault or empty. It fails
// with a no-provider-configured error when nothing usable matches.
func (r *Resolver) Resolve(ctx context.Context, selector string) (*domain.ProviderDescriptor, error) {
	if selector == "" || selector == SelectorDefault {
		return r.resolveDefault(ctx)
	}

	rec, err := r.store.FindOne(ctx, storage.CollectionProviders, storage.Query{
		Where: map[string]any{"id": selector, "enabled": true},
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrNoProvider()
		}
		return nil, err
	}
	return r.toDescriptor(ctx, rec)
}

func (r *Resolver) resolveDefault(ctx context.Context) (*domain.ProviderDescriptor, error) {
	recs, err := r.store.FindMany(ctx, storage.CollectionProviders, storage.Query{
		Where: map[string]any{"active": true, "enabled": true},
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, domain.ErrNoProvider()
	}

	// Most recently designated active wins; family priority breaks ties.
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i].String("updated_at"), recs[j].String("updated_at")
		if a != b {
			return a > b
		}
		return familyPriority[domain.ProviderKind(recs[i].String("kind"))] <
			familyPriority[domain.ProviderKind(recs[j].String("kind"))]
	})

	return r.toDescriptor(ctx, recs[0])
}

func (r *Resolver) toDescriptor(ctx context.Context, rec storage.Record) (*domain.ProviderDescriptor, error) {
	kind := domain.ProviderKind(rec.String("kind"))
	if _, known := familyPriority[kind]; !known {
		return nil, domain.ErrNoProvider()
	}

	secret, err := r.decrypter.Decrypt(ctx, rec.String("key_id"))
	if err != nil || secret == "" {
		relayErr := domain.ErrNoProvider()
		relayErr.Err = err
		return nil, relayErr
	}

	return &domain.ProviderDescriptor{
		Kind:         kind,
		Name:         rec.String("name"),
		Model:        rec.String("model"),
		Secret:       secret,
		Endpoint:     rec.String("endpoint"),
		Capabilities: capabilitiesFromRecord(rec, kind),
	}, nil
}

// capabilitiesFromRecord reads explicit capability flags off the record and
// falls back to per-family defaults when none are stored.
func capabilitiesFromRecord(rec storage.Record, kind domain.ProviderKind) domain.Capabilities {
	caps := domain.Capabilities{}
	if raw, ok := rec["capabilities"].([]any); ok && len(raw) > 0 {
		for _, c := range raw {
			if s, ok := c.(string); ok {
				caps[domain.Capability(s)] = true
			}
		}
		return caps
	}

	switch kind {
	case domain.ProviderOpenAI:
		caps[domain.CapabilityStreaming] = true
		caps[domain.CapabilityWebSearch] = true
		caps[domain.CapabilityFileSearch] = true
		caps[domain.CapabilityReasoning] = true
	case domain.ProviderAnthropic:
		caps[domain.CapabilityStreaming] = true
		caps[domain.CapabilityWebSearch] = true
		caps[domain.CapabilityReasoning] = true
	case domain.ProviderGoogle:
		caps[domain.CapabilityStreaming] = true
		caps[domain.CapabilityWebSearch] = true
	case domain.ProviderReplicate:
		// Prediction polling only; streaming is simulated downstream.
	case domain.ProviderCustom:
		caps[domain.CapabilityStreaming] = true
	}
	return caps
}
