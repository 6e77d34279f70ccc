package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ailabben/chatwidget/internal/gateway"
	"github.com/ailabben/chatwidget/internal/policy"
	"github.com/ailabben/chatwidget/internal/protocol"
)

// handleChatWS runs the streaming transport: one user_message in, a stream
// of assistant_delta fragments plus one final message out. Turns for a
// single connection are handled sequentially; the per-session lock in the
// store serializes them against concurrent HTTP turns anyway.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ip := clientIP(r)
	userAgent := r.UserAgent()

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	// Writes from the delta handler and the final response share one
	// goroutine, so no write lock is needed.
	writeJSON := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(v); err != nil {
			return err
		}
		s.metrics.WSMessages.WithLabelValues("outbound").Inc()
		return nil
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.metrics.WSMessages.WithLabelValues("inbound").Inc()
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			if writeJSON(protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Detail: err.Error(),
			}) != nil {
				return
			}
			continue
		}

		msg, ok := parsed.(protocol.UserMessage)
		if !ok {
			continue
		}
		if s.runWSTurn(r.Context(), writeJSON, msg, ip, userAgent) != nil {
			return
		}
	}
}

// runWSTurn executes one turn and writes the outcome. A non-nil return
// means the connection is unusable.
func (s *Server) runWSTurn(reqCtx context.Context, writeJSON func(any) error, msg protocol.UserMessage, ip, userAgent string) error {
	started := time.Now()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(reqCtx), s.cfg.LLMTimeout+10*time.Second)
	defer cancel()

	var writeFailed error
	sessionID := msg.SessionID

	result, err := s.gateway.HandleTurn(ctx, gateway.TurnRequest{
		SessionID:  sessionID,
		Message:    policy.SanitizeInput(msg.Message, s.cfg.MaxMessageLength),
		CurrentURL: policy.SanitizeInput(msg.CurrentURL, s.cfg.MaxMessageLength),
		ClientIP:   ip,
		UserAgent:  userAgent,
		OnDelta: func(delta string) error {
			// A dropped connection must not abort the turn; the state is
			// applied regardless and remaining deltas are discarded.
			if writeFailed != nil {
				return nil
			}
			writeFailed = writeJSON(protocol.AssistantDelta{
				Type:      protocol.TypeAssistantDelta,
				SessionID: sessionID,
				TextDelta: delta,
			})
			return nil
		},
	})
	if err != nil {
		code := "internal_error"
		detail := "Internal server error"
		switch {
		case errors.Is(err, gateway.ErrEmptyMessage):
			code, detail = "bad_request", "Message cannot be empty"
		case errors.Is(err, gateway.ErrUpstream):
			code, detail = "upstream_failure", upstreamDetail(err)
		}
		if werr := writeJSON(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sessionID,
			Code:      code,
			Retryable: code == "upstream_failure",
			Detail:    detail,
		}); werr != nil {
			return werr
		}
		return writeFailed
	}

	response := s.chatResponse(result, started)
	if result.Form != nil {
		if werr := writeJSON(protocol.ContactFormMessage{
			Type:      protocol.TypeContactForm,
			SessionID: result.SessionID,
			Payload:   *result.Form,
			Response:  response,
		}); werr != nil {
			return werr
		}
		return writeFailed
	}

	if werr := writeJSON(protocol.AssistantMessage{
		Type:      protocol.TypeAssistantMessage,
		SessionID: result.SessionID,
		Response:  response,
	}); werr != nil {
		return werr
	}
	return writeFailed
}
