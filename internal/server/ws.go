package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/erenbertr/chatrelay/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamWS handles GET /v1/chat/ws. Each JSON text message on the socket is
// one ChatRequest; canonical events for it are written back as JSON messages
// in order, ending with the terminal event. The connection then accepts the
// next request.
func (h *ChatHandler) StreamWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	for {
		var req ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("websocket read failed", slog.String("error", err.Error()))
			}
			return
		}
		if err := req.validate(); err != nil {
			if werr := conn.WriteJSON(domain.StreamEvent{Type: domain.EventError, ErrorText: err.Error()}); werr != nil {
				return
			}
			continue
		}

		ctx, cancel := context.WithCancel(r.Context())
		emit := func(ev domain.StreamEvent) {
			if err := conn.WriteJSON(ev); err != nil {
				// Consumer gone; stop the generation.
				cancel()
			}
		}

		result := h.relay.GenerateStreamingResponse(ctx, req.toNormalizer(), emit)

		if !result.Success && ctx.Err() == nil && preStreamFailure(result.Err) {
			// Resolution and context failures emit nothing; surface them
			// in-band so the socket stays usable.
			if werr := conn.WriteJSON(domain.StreamEvent{Type: domain.EventError, ErrorText: result.Err.Error()}); werr != nil {
				cancel()
				return
			}
		}
		if result.Success {
			h.turns.SaveUser(ctx, req.ConversationID, req.OwnerID, req.Text)
			h.turns.SaveAssistant(ctx, req.ConversationID, req.OwnerID, result)
		}
		cancel()

		if ctx.Err() != nil && r.Context().Err() != nil {
			return
		}
	}
}

// preStreamFailure reports whether the error belongs to the class surfaced
// before any Start event.
func preStreamFailure(err error) bool {
	var relayErr *domain.RelayError
	if !errors.As(err, &relayErr) {
		return false
	}
	return relayErr.Type == domain.ErrorTypeNoProvider || relayErr.Type == domain.ErrorTypeContextUnavailable
}
