package normalizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/erenbertr/chatrelay/internal/adapter"
	openaiadapter "github.com/erenbertr/chatrelay/internal/adapter/openai"
	"github.com/erenbertr/chatrelay/internal/conversation"
	"github.com/erenbertr/chatrelay/internal/corpus"
	"github.com/erenbertr/chatrelay/internal/credentials"
	"github.com/erenbertr/chatrelay/internal/domain"
	"github.com/erenbertr/chatrelay/internal/storage"
	"github.com/erenbertr/chatrelay/internal/storage/memory"
	"github.com/erenbertr/chatrelay/internal/tokens"
)

// fakeAdapter replays a canned event sequence and records what it was asked
// to generate.
type fakeAdapter struct {
	events      []domain.ProviderEvent
	callErr     error
	gotDesc     *domain.ProviderDescriptor
	gotMessages []domain.Message
	gotOptions  domain.GenerateOptions
}

func (f *fakeAdapter) Kind() domain.ProviderKind { return domain.ProviderOpenAI }

func (f *fakeAdapter) Generate(ctx context.Context, desc *domain.ProviderDescriptor, messages []domain.Message, opts domain.GenerateOptions) (<-chan domain.ProviderEvent, error) {
	f.gotDesc = desc
	f.gotMessages = messages
	f.gotOptions = opts
	if f.callErr != nil {
		return nil, f.callErr
	}

	out := make(chan domain.ProviderEvent, len(f.events))
	for _, ev := range f.events {
		out <- ev
	}
	close(out)
	return out, nil
}

func newTestRelay(t *testing.T, fake *fakeAdapter) (storage.RecordStore, *Normalizer) {
	t.Helper()
	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	vault, err := credentials.NewVault(store, "test-master")
	if err != nil {
		t.Fatalf("NewVault() error = %v", err)
	}

	registry := adapter.NewRegistry()
	if fake != nil {
		registry.Register(fake)
	}

	relay := New(
		credentials.NewResolver(store, vault),
		conversation.NewBuilder(store, tokens.NewRegistry(), logger),
		registry,
		corpus.NewStoreProvider(store),
		logger,
	)
	return store, relay
}

func seedOpenAIProvider(t *testing.T, store storage.RecordStore) {
	t.Helper()
	vault, _ := credentials.NewVault(store, "test-master")
	keyID, err := vault.Store(context.Background(), "sk-test")
	if err != nil {
		t.Fatalf("vault.Store() error = %v", err)
	}
	_, err = store.Insert(context.Background(), storage.CollectionProviders, storage.Record{
		"name": "primary", "kind": "openai", "model": "gpt-4o",
		"key_id": keyID, "active": true, "enabled": true,
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
}

func collect(relay *Normalizer, req Request) ([]domain.StreamEvent, Result) {
	var events []domain.StreamEvent
	result := relay.Stream(context.Background(), req, func(ev domain.StreamEvent) {
		events = append(events, ev)
	})
	return events, result
}

func TestStream_NoProviderEmitsNothing(t *testing.T) {
	_, relay := newTestRelay(t, &fakeAdapter{})

	events, result := collect(relay, Request{Text: "Hello", ConversationID: "c1"})

	if result.Success {
		t.Error("expected failure with no provider configured")
	}
	if result.Err == nil || !strings.Contains(result.Err.Error(), "No active AI provider") {
		t.Errorf("Err = %v, want no-provider message", result.Err)
	}
	if len(events) != 0 {
		t.Errorf("emitted %d events, want zero before provider resolution", len(events))
	}
}

func TestStream_CanonicalSequence(t *testing.T) {
	fake := &fakeAdapter{events: []domain.ProviderEvent{
		{Delta: "Hello "},
		{Delta: "there."},
		{Usage: &domain.Usage{InputTokens: 10, OutputTokens: 4, TotalTokens: 14}},
	}}
	store, relay := newTestRelay(t, fake)
	seedOpenAIProvider(t, store)

	events, result := collect(relay, Request{Text: "Hi", ConversationID: "c1"})

	if !result.Success {
		t.Fatalf("Stream() failed: %v", result.Err)
	}
	if result.FinalText != "Hello there." {
		t.Errorf("FinalText = %q", result.FinalText)
	}

	if events[0].Type != domain.EventStart {
		t.Fatalf("first event = %s, want start", events[0].Type)
	}
	last := events[len(events)-1]
	if last.Type != domain.EventEnd {
		t.Fatalf("last event = %s, want end", last.Type)
	}
	for i, ev := range events {
		if ev.MessageID != events[0].MessageID {
			t.Errorf("event %d message id %q differs from start id %q", i, ev.MessageID, events[0].MessageID)
		}
		if i < len(events)-1 && ev.Terminal() {
			t.Errorf("terminal event at position %d before end of sequence", i)
		}
	}

	var rebuilt string
	for _, ev := range events {
		if ev.Type == domain.EventChunk {
			rebuilt += ev.TextDelta
		}
	}
	if rebuilt != result.FinalText {
		t.Errorf("chunk concatenation %q != FinalText %q", rebuilt, result.FinalText)
	}

	meta := last.Metadata
	if meta == nil {
		t.Fatal("end event missing metadata")
	}
	if meta.InputTokens != 10 || meta.OutputTokens != 4 || meta.TotalTokens != 14 {
		t.Errorf("usage = %d/%d/%d, want provider-reported 10/4/14", meta.InputTokens, meta.OutputTokens, meta.TotalTokens)
	}
	if meta.Estimated {
		t.Error("provider-reported usage must not be flagged estimated")
	}
	if meta.Model != "gpt-4o" || meta.ProviderName != "primary" {
		t.Errorf("metadata identity = %s/%s", meta.Model, meta.ProviderName)
	}
	if meta.RequestID != events[0].MessageID {
		t.Error("request id should equal the stream message id")
	}
	if meta.ResponseTimeMs < 0 {
		t.Errorf("ResponseTimeMs = %d", meta.ResponseTimeMs)
	}
}

func TestStream_EstimationFallback(t *testing.T) {
	fake := &fakeAdapter{events: []domain.ProviderEvent{
		{Delta: "The quick brown "},
		{Delta: "fox jumps"},
	}}
	store, relay := newTestRelay(t, fake)
	seedOpenAIProvider(t, store)

	// 20 input characters, 26 output characters.
	events, result := collect(relay, Request{
		Text:           strings.Repeat("q", 20),
		ConversationID: "c1",
	})

	if !result.Success {
		t.Fatalf("Stream() failed: %v", result.Err)
	}
	meta := events[len(events)-1].Metadata
	if meta.InputTokens != 5 {
		t.Errorf("InputTokens = %d, want ceil(20/4) = 5", meta.InputTokens)
	}
	if meta.OutputTokens != 7 {
		t.Errorf("OutputTokens = %d, want ceil(26/4) = 7", meta.OutputTokens)
	}
	if meta.TotalTokens != 12 {
		t.Errorf("TotalTokens = %d, want 12", meta.TotalTokens)
	}
	if !meta.Estimated {
		t.Error("estimated usage must be flagged")
	}
}

func TestStream_AdapterFailureEmitsError(t *testing.T) {
	fake := &fakeAdapter{events: []domain.ProviderEvent{
		{Delta: "partial "},
		{Err: errors.New("upstream hung up")},
	}}
	store, relay := newTestRelay(t, fake)
	seedOpenAIProvider(t, store)

	events, result := collect(relay, Request{Text: "Hi", ConversationID: "c1"})

	if result.Success {
		t.Error("expected failure on adapter error")
	}
	last := events[len(events)-1]
	if last.Type != domain.EventError {
		t.Fatalf("last event = %s, want error", last.Type)
	}
	if !strings.Contains(last.ErrorText, "upstream hung up") {
		t.Errorf("ErrorText = %q", last.ErrorText)
	}
	for _, ev := range events {
		if ev.Type == domain.EventEnd {
			t.Error("end event must not follow a failure")
		}
	}
}

func TestStream_CallFailureEmitsError(t *testing.T) {
	fake := &fakeAdapter{callErr: errors.New("connection refused")}
	store, relay := newTestRelay(t, fake)
	seedOpenAIProvider(t, store)

	events, result := collect(relay, Request{Text: "Hi", ConversationID: "c1"})

	if result.Success {
		t.Error("expected failure when the provider call fails")
	}
	if !errors.Is(result.Err, domain.ErrProviderRequest(nil)) {
		t.Errorf("Err = %v, want provider-request type", result.Err)
	}
	if len(events) != 2 || events[0].Type != domain.EventStart || events[1].Type != domain.EventError {
		t.Errorf("events = %v, want start then error", events)
	}
}

func TestStream_SearchEventsForwarded(t *testing.T) {
	results := []domain.SearchResult{{Title: "Go", URL: "https://go.dev", Snippet: "the site"}}
	fake := &fakeAdapter{events: []domain.ProviderEvent{
		{SearchStarted: true, Query: "golang release"},
		{Results: results},
		{Delta: "Latest release is out."},
	}}
	store, relay := newTestRelay(t, fake)
	seedOpenAIProvider(t, store)

	events, result := collect(relay, Request{Text: "news?", ConversationID: "c1", WebSearchRequested: true})

	if !result.Success {
		t.Fatalf("Stream() failed: %v", result.Err)
	}
	types := make([]domain.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	want := []domain.EventType{domain.EventStart, domain.EventSearchStart, domain.EventSearchResults, domain.EventChunk, domain.EventEnd}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event types = %v, want %v", types, want)
		}
	}

	meta := events[len(events)-1].Metadata
	if meta.SearchQuery != "golang release" {
		t.Errorf("SearchQuery = %q", meta.SearchQuery)
	}
	if len(meta.SearchResults) != 1 || meta.SearchResults[0].URL != "https://go.dev" {
		t.Errorf("SearchResults = %v", meta.SearchResults)
	}
	if !fake.gotOptions.WebSearch {
		t.Error("web search request not passed to the adapter")
	}
}

func TestStream_ConsumerDisconnectStopsSilently(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for {
			select {
			case <-r.Context().Done():
				return
			default:
			}
			fmt.Fprint(w, "data: {\"id\":\"c1\",\"choices\":[{\"delta\":{\"content\":\"word \"}}]}\n\n")
			flusher.Flush()
			time.Sleep(2 * time.Millisecond)
		}
	}))
	defer server.Close()

	store, relay := newTestRelay(t, nil)
	relay.adapters.Register(openaiadapter.New(domain.ProviderOpenAI, slog.New(slog.NewTextHandler(io.Discard, nil))))

	vault, _ := credentials.NewVault(store, "test-master")
	keyID, err := vault.Store(context.Background(), "sk-test")
	if err != nil {
		t.Fatalf("vault.Store() error = %v", err)
	}
	_, err = store.Insert(context.Background(), storage.CollectionProviders, storage.Record{
		"name": "primary", "kind": "openai", "model": "gpt-4o",
		"key_id": keyID, "endpoint": server.URL, "active": true, "enabled": true,
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var events []domain.StreamEvent
	result := relay.Stream(ctx, Request{Text: "Hi", ConversationID: "c1"}, func(ev domain.StreamEvent) {
		events = append(events, ev)
		if ev.Type == domain.EventChunk {
			// Client gone after the first chunk.
			cancel()
		}
	})

	if result.Success {
		t.Error("cancelled generation must not report success")
	}
	if !errors.Is(result.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", result.Err)
	}
	for _, ev := range events {
		if ev.Terminal() {
			t.Errorf("terminal %s event emitted after cancellation", ev.Type)
		}
	}
}

func TestStream_ContextAndUserTurnReachAdapter(t *testing.T) {
	fake := &fakeAdapter{events: []domain.ProviderEvent{{Delta: "ok"}}}
	store, relay := newTestRelay(t, fake)
	seedOpenAIProvider(t, store)

	store.Insert(context.Background(), storage.CollectionMessages, storage.Record{
		"conversation_id": "c1", "role": "user", "content": "earlier question",
		"created_at": "2026-01-01T00:00:01Z",
	})

	_, result := collect(relay, Request{Text: "follow-up", ConversationID: "c1"})
	if !result.Success {
		t.Fatalf("Stream() failed: %v", result.Err)
	}

	if len(fake.gotMessages) != 2 {
		t.Fatalf("adapter saw %d messages, want history plus new turn", len(fake.gotMessages))
	}
	if fake.gotMessages[0].Content != "earlier question" || fake.gotMessages[1].Content != "follow-up" {
		t.Errorf("adapter messages = %+v", fake.gotMessages)
	}
	if fake.gotDesc.Secret != "sk-test" {
		t.Error("adapter should receive the decrypted secret")
	}
}

func TestStream_AttachmentsCreateCorpus(t *testing.T) {
	fake := &fakeAdapter{events: []domain.ProviderEvent{{Delta: "ok"}}}
	store, relay := newTestRelay(t, fake)
	seedOpenAIProvider(t, store)

	_, result := collect(relay, Request{
		Text:           "summarize the doc",
		ConversationID: "c1",
		OwnerID:        "u1",
		AttachmentRefs: []string{"doc-1"},
	})
	if !result.Success {
		t.Fatalf("Stream() failed: %v", result.Err)
	}
	if fake.gotOptions.FileSearchCorpusID == "" {
		t.Error("expected a corpus id on the adapter options")
	}

	rec, err := store.FindOne(context.Background(), storage.CollectionCorpora, storage.Query{
		Where: map[string]any{"conversation_id": "c1"},
	})
	if err != nil {
		t.Fatalf("FindOne(corpora) error = %v", err)
	}
	if rec.ID() != fake.gotOptions.FileSearchCorpusID {
		t.Error("corpus id passed to adapter should match the stored corpus")
	}

	// Second call reuses the same corpus.
	_, result = collect(relay, Request{
		Text: "again", ConversationID: "c1", OwnerID: "u1",
		AttachmentRefs: []string{"doc-2"},
	})
	if !result.Success {
		t.Fatalf("second Stream() failed: %v", result.Err)
	}
	if fake.gotOptions.FileSearchCorpusID != rec.ID() {
		t.Error("existing corpus should be reused for the conversation")
	}
}
