package domain

// EventType tags a StreamEvent variant.
type EventType string

const (
	// EventStart opens a generation; exactly one precedes all other events.
	EventStart EventType = "start"

	// EventSearchStart announces a web-search side-channel beginning.
	EventSearchStart EventType = "search_start"

	// EventSearchResults carries citations gathered by the side-channel.
	EventSearchResults EventType = "search_results"

	// EventChunk carries an incremental text delta.
	EventChunk EventType = "chunk"

	// EventEnd terminates a successful generation with final usage metadata.
	EventEnd EventType = "end"

	// EventError terminates a failed generation.
	EventError EventType = "error"
)

// StreamEvent is the canonical event shape delivered to transport sinks.
// The MessageID assigned at EventStart is stable for the whole sequence.
// Exactly one of EventEnd or EventError terminates a sequence and no events
// follow the terminal one.
type StreamEvent struct {
	Type      EventType      `json:"type"`
	MessageID string         `json:"message_id,omitempty"`
	TextDelta string         `json:"text_delta,omitempty"`
	Query     string         `json:"query,omitempty"`
	Results   []SearchResult `json:"results,omitempty"`
	Metadata  *UsageMetadata `json:"metadata,omitempty"`
	ErrorText string         `json:"error,omitempty"`
}

// Terminal reports whether the event ends its sequence.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventEnd || e.Type == EventError
}

// EventSink receives canonical events in emission order.
type EventSink func(StreamEvent)

// ProviderEvent is the raw event shape an adapter yields while decoding one
// provider's wire protocol. The normalizer maps it onto StreamEvents.
type ProviderEvent struct {
	// Delta is an incremental piece of assistant text.
	Delta string

	// Usage is set on whichever frame the provider attaches accounting to;
	// position in the stream varies by provider.
	Usage *Usage

	// SearchStarted marks the beginning of a provider-side web search;
	// Query holds the search query when known.
	SearchStarted bool
	Query         string

	// Results carries citations from a provider-side web search.
	Results []SearchResult

	// Err aborts the stream; no further events follow it.
	Err error
}
