package domain

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat turn. An ordered slice of messages forms the
// conversation passed to a provider adapter; ordering is creation-time and
// must be preserved.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ProviderKind identifies which adapter handles a descriptor.
type ProviderKind string

const (
	ProviderOpenAI    ProviderKind = "openai"
	ProviderAnthropic ProviderKind = "anthropic"
	ProviderGoogle    ProviderKind = "google"
	ProviderReplicate ProviderKind = "replicate"
	// ProviderCustom is any OpenAI-compatible endpoint reached through a
	// caller-supplied base URL.
	ProviderCustom ProviderKind = "custom"
)

// Capability is a feature flag a resolved provider/model pair may carry.
type Capability string

const (
	CapabilityStreaming  Capability = "streaming"
	CapabilityWebSearch  Capability = "web_search"
	CapabilityFileSearch Capability = "file_search"
	CapabilityReasoning  Capability = "reasoning"
)

// Capabilities is the set of capabilities on a descriptor.
type Capabilities map[Capability]bool

// Has reports whether the capability is present.
func (c Capabilities) Has(capability Capability) bool {
	return c[capability]
}

// ProviderDescriptor is a fully-resolved provider configuration for one
// generation call. Secret holds the decrypted credential and must never be
// logged or echoed back to a client.
type ProviderDescriptor struct {
	Kind         ProviderKind
	Name         string
	Model        string
	Secret       string
	Endpoint     string
	Capabilities Capabilities
}

// SearchResult is one citation surfaced by a provider's search side-channel.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// GenerateOptions carries per-call options into an adapter.
type GenerateOptions struct {
	// WebSearch requests the provider's search-augmented generation path.
	WebSearch bool

	// FileSearchCorpusID attaches a retrieval corpus when non-empty.
	// Failures attaching it are non-fatal.
	FileSearchCorpusID string

	// Reasoning requests extended reasoning when the model supports it.
	Reasoning bool
}

// Usage is token accounting as reported by a provider. Estimated is set when
// the counts were derived by the fallback heuristic rather than reported.
type Usage struct {
	InputTokens  int  `json:"input_tokens"`
	OutputTokens int  `json:"output_tokens"`
	TotalTokens  int  `json:"total_tokens"`
	Estimated    bool `json:"estimated,omitempty"`
}

// UsageMetadata is the final accounting attached to a completed generation.
type UsageMetadata struct {
	InputTokens    int            `json:"input_tokens"`
	OutputTokens   int            `json:"output_tokens"`
	TotalTokens    int            `json:"total_tokens"`
	Estimated      bool           `json:"estimated,omitempty"`
	Model          string         `json:"model"`
	ProviderName   string         `json:"provider_name"`
	ResponseTimeMs int64          `json:"response_time_ms"`
	RequestID      string         `json:"request_id"`
	SearchQuery    string         `json:"search_query,omitempty"`
	SearchResults  []SearchResult `json:"search_results,omitempty"`
}
