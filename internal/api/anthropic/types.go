package anthropic

import "encoding/json"

// MessagesRequest is the request body for /v1/messages. System messages are
// merged into the top-level System field rather than interleaved.
type MessagesRequest struct {
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
	Stream    bool      `json:"stream,omitempty"`
	Tools     []Tool    `json:"tools,omitempty"`
	Thinking  *Thinking `json:"thinking,omitempty"`
}

// Message is one conversational turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool describes a server-side tool. The web search tool uses a versioned
// type identifier.
type Tool struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	MaxUses int    `json:"max_uses,omitempty"`
}

// WebSearchTool returns the server-side web search tool definition.
func WebSearchTool() Tool {
	return Tool{Type: "web_search_20250305", Name: "web_search", MaxUses: 3}
}

// Thinking enables extended thinking with a token budget.
type Thinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// Usage is the token accounting block.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ContentBlock is one block in a non-streaming response.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// MessagesResponse is a complete non-streaming response.
type MessagesResponse struct {
	ID         string         `json:"id"`
	Role       string         `json:"role"`
	Model      string         `json:"model"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// Streaming event payloads. Field sets are the minimum the relay decodes;
// unrecognized fields are ignored.

// MessageStartEvent opens a streaming response.
type MessageStartEvent struct {
	Message struct {
		ID    string `json:"id"`
		Role  string `json:"role"`
		Model string `json:"model"`
		Usage Usage  `json:"usage"`
	} `json:"message"`
}

// ContentBlockStartEvent opens a content block. Server tool use and web
// search results arrive as dedicated block types.
type ContentBlockStartEvent struct {
	Index        int `json:"index"`
	ContentBlock struct {
		Type  string `json:"type"`
		Name  string `json:"name,omitempty"`
		Input struct {
			Query string `json:"query,omitempty"`
		} `json:"input,omitempty"`
		Content []WebSearchResult `json:"content,omitempty"`
	} `json:"content_block"`
}

// WebSearchResult is one citation in a web_search_tool_result block.
type WebSearchResult struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// ContentBlockDeltaEvent carries incremental text.
type ContentBlockDeltaEvent struct {
	Index int `json:"index"`
	Delta struct {
		Type     string `json:"type"`
		Text     string `json:"text,omitempty"`
		Thinking string `json:"thinking,omitempty"`
	} `json:"delta"`
}

// MessageDeltaEvent carries end-of-message metadata, including output usage.
type MessageDeltaEvent struct {
	Delta struct {
		StopReason string `json:"stop_reason,omitempty"`
	} `json:"delta"`
	Usage *Usage `json:"usage,omitempty"`
}

// ErrorEvent is an in-stream error frame.
type ErrorEvent struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ErrorResponse is the API error envelope.
type ErrorResponse struct {
	Type  string    `json:"type"`
	Error *APIError `json:"error"`
}

// APIError contains error details.
type APIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Type + ": " + e.Message
}

// ParseErrorResponse attempts to parse an error response body.
func ParseErrorResponse(data []byte) (*APIError, error) {
	var errResp ErrorResponse
	if err := json.Unmarshal(data, &errResp); err != nil {
		return nil, err
	}
	if errResp.Error == nil {
		return nil, nil
	}
	return errResp.Error, nil
}
