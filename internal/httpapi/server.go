package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ailabben/chatwidget/internal/config"
	"github.com/ailabben/chatwidget/internal/gateway"
	"github.com/ailabben/chatwidget/internal/llm"
	"github.com/ailabben/chatwidget/internal/observability"
	"github.com/ailabben/chatwidget/internal/policy"
	"github.com/ailabben/chatwidget/internal/protocol"
	"github.com/ailabben/chatwidget/internal/session"
)

// TurnHandler is the gateway surface the server depends on.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req gateway.TurnRequest) (gateway.TurnResult, error)
}

type Server struct {
	cfg      config.Config
	sessions *session.Store
	gateway  TurnHandler
	metrics  *observability.Metrics
	limiter  *RateLimiter
	upgrader websocket.Upgrader

	llmConfigured bool
}

func New(cfg config.Config, sessions *session.Store, turns TurnHandler, metrics *observability.Metrics) *Server {
	var limiter *RateLimiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = NewRateLimiter(float64(cfg.RateLimitPerMinute)/60.0, cfg.RateLimitPerMinute)
	}
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		gateway:  turns,
		metrics:  metrics,
		limiter:  limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				return originAllowed(cfg.AllowedOrigins, origin)
			},
		},
		llmConfigured: cfg.LLMProvider == "mock" ||
			strings.TrimSpace(cfg.MistralAPIKey) != "" ||
			strings.TrimSpace(cfg.OpenAIAPIKey) != "",
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(CORS(s.cfg.AllowAnyOrigin, s.cfg.AllowedOrigins))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/api/config", s.handleWidgetConfig)
	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(RateLimit(s.limiter))
		}
		r.Post("/api/chat", s.handleChat)
		r.Get("/api/chat/ws", s.handleChatWS)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusOK
	llmState := "configured"
	if !s.llmConfigured {
		// A missing provider key means every chat turn would fail.
		status = http.StatusServiceUnavailable
		llmState = "not_configured"
	}
	respondJSON(w, status, map[string]any{
		"status":       statusWord(status),
		"llm_provider": s.cfg.LLMProvider,
		"llm":          llmState,
		"customer":     s.cfg.CustomerName,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

// handleWidgetConfig exposes the public widget bootstrap configuration.
func (s *Server) handleWidgetConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-store, max-age=0, must-revalidate")
	respondJSON(w, http.StatusOK, map[string]any{
		"customer_id": s.cfg.CustomerID,
		"name":        s.cfg.CustomerName,
		"active":      true,
		"widget": map[string]any{
			"name":         s.cfg.CustomerName,
			"subtitle":     s.cfg.WidgetSubtitle,
			"primaryColor": s.cfg.WidgetPrimaryColor,
			"welcomeMessage": map[string]any{
				"title": s.cfg.WelcomeTitle,
				"text":  s.cfg.WelcomeText,
			},
		},
		"proactive_chat": map[string]any{
			"enabled": s.cfg.ProactiveChatEnabled,
			"delay":   s.cfg.ProactiveChatDelay.Milliseconds(),
			"message": s.cfg.ProactiveChatMessage,
		},
		"features": map[string]any{
			"supports_history":          true,
			"supports_typing_indicator": true,
			"max_message_length":        s.cfg.MaxMessageLength,
		},
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var req protocol.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	// Let an in-flight provider call finish even if the widget disconnects;
	// the session state is applied either way and the lost response write
	// is harmless.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.cfg.LLMTimeout+10*time.Second)
	defer cancel()

	result, err := s.gateway.HandleTurn(ctx, gateway.TurnRequest{
		SessionID:  req.SessionID,
		Message:    policy.SanitizeInput(req.Message, s.cfg.MaxMessageLength),
		CurrentURL: policy.SanitizeInput(req.CurrentURL, s.cfg.MaxMessageLength),
		ClientIP:   clientIP(r),
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		s.respondTurnError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, s.chatResponse(result, started))
}

func (s *Server) chatResponse(result gateway.TurnResult, started time.Time) protocol.ChatResponse {
	resp := protocol.ChatResponse{
		SessionID:      result.SessionID,
		Model:          result.Model,
		ResponseTimeMS: time.Since(started).Milliseconds(),
		ContactInfo:    contactInfoOf(result.Contact),
	}
	if result.Form != nil {
		resp.Message = *result.Form
	} else {
		resp.Message = result.Text
	}
	return resp
}

func (s *Server) respondTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gateway.ErrEmptyMessage):
		respondError(w, http.StatusBadRequest, "bad_request", "Message cannot be empty")
	case errors.Is(err, gateway.ErrUpstream):
		respondError(w, http.StatusBadGateway, "upstream_failure", upstreamDetail(err))
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

// upstreamDetail surfaces the operator-friendly provider message, never the
// raw upstream error.
func upstreamDetail(err error) string {
	return llm.FriendlyMessage(err)
}

func contactInfoOf(c *session.Contact) protocol.ContactInfo {
	if c == nil {
		return protocol.ContactInfo{}
	}
	name, email := c.Name, c.Email
	return protocol.ContactInfo{
		UserName:         &name,
		UserEmail:        &email,
		ContactCollected: true,
	}
}

func statusWord(status int) string {
	if status == http.StatusOK {
		return "healthy"
	}
	return "unhealthy"
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
