package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/erenbertr/chatrelay/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDescriptor(endpoint, model string, caps ...domain.Capability) *domain.ProviderDescriptor {
	capabilities := domain.Capabilities{}
	for _, c := range caps {
		capabilities[c] = true
	}
	return &domain.ProviderDescriptor{
		Kind:         domain.ProviderOpenAI,
		Name:         "test",
		Model:        model,
		Secret:       "sk-test",
		Endpoint:     endpoint,
		Capabilities: capabilities,
	}
}

func drain(t *testing.T, events <-chan domain.ProviderEvent) []domain.ProviderEvent {
	t.Helper()
	var collected []domain.ProviderEvent
	for ev := range events {
		if ev.Err != nil {
			t.Fatalf("unexpected stream error: %v", ev.Err)
		}
		collected = append(collected, ev)
	}
	return collected
}

func sseServer(t *testing.T, gotBody *map[string]any, frames ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if gotBody != nil {
			json.NewDecoder(r.Body).Decode(gotBody)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, frame := range frames {
			fmt.Fprintf(w, "data: %s\n\n", frame)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestGenerate_Streaming(t *testing.T) {
	var body map[string]any
	server := sseServer(t, &body,
		`{"choices":[{"delta":{"content":"Hello "}}]}`,
		`{"choices":[{"delta":{"content":"world"}}]}`,
		`{"choices":[],"usage":{"prompt_tokens":9,"completion_tokens":2,"total_tokens":11}}`,
	)
	defer server.Close()

	a := New(domain.ProviderOpenAI, testLogger())
	events, err := a.Generate(context.Background(),
		testDescriptor(server.URL, "gpt-4o", domain.CapabilityStreaming),
		[]domain.Message{{Role: domain.RoleUser, Content: "Hi"}},
		domain.GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	collected := drain(t, events)

	var text string
	var usage *domain.Usage
	for _, ev := range collected {
		text += ev.Delta
		if ev.Usage != nil {
			usage = ev.Usage
		}
	}
	if text != "Hello world" {
		t.Errorf("text = %q", text)
	}
	if usage == nil || usage.TotalTokens != 11 {
		t.Errorf("usage = %+v, want total 11", usage)
	}

	if body["model"] != "gpt-4o" {
		t.Errorf("request model = %v", body["model"])
	}
	if body["stream"] != true {
		t.Error("request should ask for streaming")
	}
}

func TestGenerate_SkipsMalformedFrames(t *testing.T) {
	server := sseServer(t, nil,
		`{"choices":[{"delta":{"content":"good "}}]}`,
		`{not json at all`,
		`{"choices":[{"delta":{"content":"still good"}}]}`,
	)
	defer server.Close()

	a := New(domain.ProviderOpenAI, testLogger())
	events, err := a.Generate(context.Background(),
		testDescriptor(server.URL, "gpt-4o", domain.CapabilityStreaming),
		[]domain.Message{{Role: domain.RoleUser, Content: "Hi"}},
		domain.GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	var text string
	for _, ev := range drain(t, events) {
		text += ev.Delta
	}
	if text != "good still good" {
		t.Errorf("text = %q, want malformed frame skipped", text)
	}
}

func TestGenerate_UnsupportedSearchNote(t *testing.T) {
	server := sseServer(t, nil, `{"choices":[{"delta":{"content":"plain answer"}}]}`)
	defer server.Close()

	a := New(domain.ProviderOpenAI, testLogger())
	events, err := a.Generate(context.Background(),
		testDescriptor(server.URL, "gpt-4o", domain.CapabilityStreaming), // no web_search capability
		[]domain.Message{{Role: domain.RoleUser, Content: "search the web"}},
		domain.GenerateOptions{WebSearch: true})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	collected := drain(t, events)
	if len(collected) < 2 {
		t.Fatalf("got %d events, want note plus answer", len(collected))
	}
	if !strings.Contains(collected[0].Delta, "not available") {
		t.Errorf("first event = %+v, want unsupported-search note", collected[0])
	}
	if collected[len(collected)-1].Delta != "plain answer" {
		t.Error("generation should continue after the note")
	}
}

func TestGenerate_NativeSearch(t *testing.T) {
	var body map[string]any
	server := sseServer(t, &body,
		`{"choices":[{"delta":{"content":"cited answer","annotations":[{"type":"url_citation","url_citation":{"url":"https://example.com","title":"Example"}}]}}]}`,
	)
	defer server.Close()

	a := New(domain.ProviderOpenAI, testLogger())
	events, err := a.Generate(context.Background(),
		testDescriptor(server.URL, "gpt-4o", domain.CapabilityStreaming, domain.CapabilityWebSearch),
		[]domain.Message{{Role: domain.RoleUser, Content: "what is example.com"}},
		domain.GenerateOptions{WebSearch: true})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	collected := drain(t, events)
	if !collected[0].SearchStarted {
		t.Fatalf("first event = %+v, want search start", collected[0])
	}
	if collected[0].Query != "what is example.com" {
		t.Errorf("search query = %q", collected[0].Query)
	}

	var results []domain.SearchResult
	for _, ev := range collected {
		results = append(results, ev.Results...)
	}
	if len(results) != 1 || results[0].URL != "https://example.com" {
		t.Errorf("results = %v", results)
	}

	if _, ok := body["web_search_options"]; !ok {
		t.Error("request should carry web_search_options for a search-capable model")
	}
}

func TestGenerate_ReasoningModelSimulatesStreaming(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"choices":[{"message":{"role":"assistant","content":"a reasoning answer spread over many words to force several chunks"}}],
			"usage":{"prompt_tokens":20,"completion_tokens":12,"total_tokens":32}
		}`)
	}))
	defer server.Close()

	a := New(domain.ProviderOpenAI, testLogger(), WithSimulateDelay(time.Millisecond))
	events, err := a.Generate(context.Background(),
		testDescriptor(server.URL, "o3-mini", domain.CapabilityReasoning),
		[]domain.Message{
			{Role: domain.RoleSystem, Content: "be brief"},
			{Role: domain.RoleUser, Content: "Hi"},
		},
		domain.GenerateOptions{Reasoning: true})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	collected := drain(t, events)

	var chunks int
	var text string
	var usage *domain.Usage
	for _, ev := range collected {
		if ev.Delta != "" {
			chunks++
			text += ev.Delta
		}
		if ev.Usage != nil {
			usage = ev.Usage
		}
	}
	if chunks < 2 {
		t.Errorf("got %d chunks, want simulated streaming to split the text", chunks)
	}
	if text != "a reasoning answer spread over many words to force several chunks" {
		t.Errorf("text = %q", text)
	}
	if usage == nil || usage.TotalTokens != 32 {
		t.Errorf("usage = %+v, want total 32", usage)
	}

	if stream, ok := body["stream"].(bool); ok && stream {
		t.Error("reasoning models must not request streaming")
	}
	messages := body["messages"].([]any)
	first := messages[0].(map[string]any)
	if first["role"] != "developer" {
		t.Errorf("system role = %v, want developer for reasoning models", first["role"])
	}
	if body["reasoning_effort"] != "medium" {
		t.Errorf("reasoning_effort = %v", body["reasoning_effort"])
	}
}

func TestGenerate_HTTPErrorFailsCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	a := New(domain.ProviderOpenAI, testLogger())
	_, err := a.Generate(context.Background(),
		testDescriptor(server.URL, "gpt-4o", domain.CapabilityStreaming),
		[]domain.Message{{Role: domain.RoleUser, Content: "Hi"}},
		domain.GenerateOptions{})
	if err == nil {
		t.Fatal("expected error for unauthorized response")
	}
	if !strings.Contains(err.Error(), "Incorrect API key") {
		t.Errorf("error = %v, want provider message surfaced", err)
	}
}
