package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/erenbertr/chatrelay/internal/domain"
	"github.com/erenbertr/chatrelay/internal/normalizer"
)

// ChatRequest is the transport-level request body for both the SSE and
// WebSocket chat endpoints.
type ChatRequest struct {
	Text           string   `json:"text"`
	ConversationID string   `json:"conversation_id"`
	OwnerID        string   `json:"owner_id"`
	PersonalityID  string   `json:"personality_id,omitempty"`
	Model          string   `json:"model,omitempty"`
	WebSearch      bool     `json:"web_search,omitempty"`
	Reasoning      bool     `json:"reasoning,omitempty"`
	Attachments    []string `json:"attachments,omitempty"`
}

func (r *ChatRequest) validate() error {
	if r.Text == "" {
		return errors.New("text is required")
	}
	if r.ConversationID == "" {
		return errors.New("conversation_id is required")
	}
	return nil
}

func (r *ChatRequest) toNormalizer() normalizer.Request {
	return normalizer.Request{
		Text:               r.Text,
		ConversationID:     r.ConversationID,
		OwnerID:            r.OwnerID,
		PersonalityID:      r.PersonalityID,
		ModelSelector:      r.Model,
		WebSearchRequested: r.WebSearch,
		ReasoningRequested: r.Reasoning,
		AttachmentRefs:     r.Attachments,
	}
}

// ChatHandler serves streaming chat over SSE and WebSocket.
type ChatHandler struct {
	relay  *normalizer.Normalizer
	turns  *Turns
	logger *slog.Logger
}

// NewChatHandler creates the chat handler.
func NewChatHandler(relay *normalizer.Normalizer, turns *Turns, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{relay: relay, turns: turns, logger: logger}
}

// StreamSSE handles POST /v1/chat/stream. Canonical events are written as
// SSE data frames; pre-stream failures map to plain JSON error responses.
func (h *ChatHandler) StreamSSE(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// Headers go out with the first event so pre-stream failures can still
	// use a plain HTTP status.
	emitted := false
	emit := func(ev domain.StreamEvent) {
		if !emitted {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.WriteHeader(http.StatusOK)
			emitted = true
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			h.logger.Error("failed to encode stream event", slog.String("error", err.Error()))
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	result := h.relay.GenerateStreamingResponse(r.Context(), req.toNormalizer(), emit)

	if !emitted {
		// Zero events means resolution or context assembly failed.
		status := http.StatusInternalServerError
		var relayErr *domain.RelayError
		if errors.As(result.Err, &relayErr) {
			status = relayErr.HTTPStatusCode()
		}
		writeError(w, status, result.Err.Error())
		return
	}

	h.persist(r, req, result)
}

// persist records the turns after the stream has fully ended. A cancelled
// request context means the client disconnected mid-stream; nothing is
// persisted in that case.
func (h *ChatHandler) persist(r *http.Request, req ChatRequest, result normalizer.Result) {
	if !result.Success {
		return
	}
	ctx := r.Context()
	if ctx.Err() != nil {
		return
	}
	h.turns.SaveUser(ctx, req.ConversationID, req.OwnerID, req.Text)
	h.turns.SaveAssistant(ctx, req.ConversationID, req.OwnerID, result)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
