// Package gateway decides, per incoming chat turn, whether to show the
// contact form, accept a contact submission, or pass the message through to
// the LLM.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ailabben/chatwidget/internal/contact"
	"github.com/ailabben/chatwidget/internal/lead"
	"github.com/ailabben/chatwidget/internal/llm"
	"github.com/ailabben/chatwidget/internal/observability"
	"github.com/ailabben/chatwidget/internal/protocol"
	"github.com/ailabben/chatwidget/internal/session"
)

var (
	// ErrEmptyMessage rejects turns whose message is empty after
	// sanitization.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrUpstream wraps provider failures surfaced to the caller.
	ErrUpstream = errors.New("assistant reply failed")
)

// Policy holds the knobs that varied between deployments of the original
// widget. Variation is data, not forked code paths.
type Policy struct {
	// PromptAfterNthMessage is the genuine user message count at which the
	// contact form is shown.
	PromptAfterNthMessage int
}

// Config controls gateway behavior.
type Config struct {
	SystemPrompt         string
	ContactPromptMessage string
	Policy               Policy
}

// Gateway orchestrates one inbound chat turn against its collaborators.
type Gateway struct {
	store   *session.Store
	client  llm.Client
	sink    lead.Sink
	metrics *observability.Metrics
	cfg     Config
}

func New(store *session.Store, client llm.Client, sink lead.Sink, metrics *observability.Metrics, cfg Config) *Gateway {
	if cfg.Policy.PromptAfterNthMessage < 1 {
		cfg.Policy.PromptAfterNthMessage = 1
	}
	return &Gateway{
		store:   store,
		client:  client,
		sink:    sink,
		metrics: metrics,
		cfg:     cfg,
	}
}

// TurnRequest is one sanitized inbound message plus request context.
type TurnRequest struct {
	SessionID  string
	Message    string
	CurrentURL string
	ClientIP   string
	UserAgent  string

	// OnDelta, when set, receives streaming fragments of a plain-text
	// reply. Contact-form turns never stream.
	OnDelta llm.DeltaHandler
}

// TurnResult is the single bot action decided for the turn. Exactly one of
// Text or Form is set.
type TurnResult struct {
	SessionID string
	Text      string
	Form      *protocol.ContactFormPayload
	Contact   *session.Contact
	Model     string
}

// HandleTurn runs the turn-decision state machine. Turns for the same
// session id are serialized; a failed turn leaves session state untouched
// so it can be retried without duplicate history entries.
func (g *Gateway) HandleTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	started := time.Now()
	defer func() {
		g.metrics.ObserveTurnLatency(time.Since(started))
	}()

	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		g.metrics.TurnOutcomes.WithLabelValues("bad_request").Inc()
		return TurnResult{}, ErrEmptyMessage
	}

	id := req.SessionID
	if strings.TrimSpace(id) == "" {
		id = session.NewSessionID()
	}

	unlock := g.store.Lock(id)
	defer unlock()

	sess := g.store.GetOrCreate(id)
	if len(sess.History) == 0 {
		g.metrics.SessionEvents.WithLabelValues("created").Inc()
		g.metrics.ActiveSessions.Set(float64(g.store.ActiveCount()))
	}
	if err := g.store.SetMetadata(id, session.Metadata{
		PageURL:   req.CurrentURL,
		ClientIP:  req.ClientIP,
		UserAgent: req.UserAgent,
	}); err != nil {
		return TurnResult{}, fmt.Errorf("set session metadata: %w", err)
	}

	collected := sess.ContactCollected()
	sub := contact.ParseSubmission(msg)

	switch {
	case !collected && sub.Complete():
		return g.captureContact(ctx, id, sess, msg, sub, req.OnDelta)
	case collected:
		return g.passThrough(ctx, id, sess, msg, req.OnDelta)
	case sess.PromptShown:
		// The form is pending but this message is not a usable submission:
		// re-display the prompt. Only a valid submission exits this loop.
		kind := session.KindUserText
		if sub.Kind != contact.SubmissionInvalid {
			kind = session.KindUserContactSubmission
		}
		return g.showPrompt(id, msg, kind, "contact_reprompt")
	case sess.GenuineUserMessages+1 >= g.cfg.Policy.PromptAfterNthMessage:
		// This message reaches the threshold. Genuine text becomes the
		// trigger question answered once contact is captured; an incomplete
		// submission does not, so a half-filled form is never quoted back
		// as the customer's question.
		kind := session.KindUserText
		if sub.Kind != contact.SubmissionInvalid {
			kind = session.KindUserContactSubmission
		}
		return g.showPrompt(id, msg, kind, "contact_prompt")
	default:
		// Below the prompt threshold: ordinary pass-through.
		return g.passThrough(ctx, id, sess, msg, req.OnDelta)
	}
}

// showPrompt appends the user message and the contact-form prompt, without
// calling the LLM.
func (g *Gateway) showPrompt(id, msg string, kind session.MessageKind, outcome string) (TurnResult, error) {
	g.appendOrLog(id, session.RoleUser, kind, msg)
	g.appendOrLog(id, session.RoleAssistant, session.KindAssistantContactPrompt, g.cfg.ContactPromptMessage)
	g.metrics.TurnOutcomes.WithLabelValues(outcome).Inc()

	form := BuildContactForm(g.cfg.ContactPromptMessage)
	return TurnResult{SessionID: id, Form: &form}, nil
}

// captureContact handles a complete submission: answer the preserved
// trigger question with a note naming the new contact, then commit the
// capture and flush the lead. Nothing is committed if the LLM call fails,
// so a retried submission replays cleanly.
func (g *Gateway) captureContact(ctx context.Context, id string, sess *session.Session, raw string, sub contact.Submission, onDelta llm.DeltaHandler) (TurnResult, error) {
	trigger := triggerMessage(sess, raw)

	prompt := fmt.Sprintf(`%s

Kunden %s har nettopp gitt deg kontaktinformasjon og spurte tidligere: %q

Svar på dette spørsmålet på en hjelpsom måte, og takk kunden for kontaktinformasjonen.`,
		g.cfg.SystemPrompt, sub.Name, trigger)

	resp, err := g.client.Generate(ctx, llm.Request{Messages: []llm.ChatMessage{
		{Role: "system", Content: prompt},
		{Role: "user", Content: trigger},
	}}, onDelta)
	if err != nil {
		g.recordUpstreamError(err)
		return TurnResult{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	g.appendOrLog(id, session.RoleUser, session.KindUserContactSubmission, raw)
	captured := session.Contact{Name: sub.Name, Email: sub.Email}
	if err := g.store.SetContact(id, captured); err != nil {
		return TurnResult{}, fmt.Errorf("set contact: %w", err)
	}
	g.appendOrLog(id, session.RoleAssistant, session.KindAssistantText, resp.Text)
	g.metrics.TurnOutcomes.WithLabelValues("contact_captured").Inc()

	// Best effort now, guaranteed at eviction: a failed flush here is only
	// logged because the eviction-time flush retries it.
	g.flushLead(ctx, id)

	return TurnResult{
		SessionID: id,
		Text:      resp.Text,
		Contact:   &captured,
		Model:     resp.Model,
	}, nil
}

// passThrough builds the LLM context from history, excluding contact-form
// plumbing, and relays the reply.
func (g *Gateway) passThrough(ctx context.Context, id string, sess *session.Session, msg string, onDelta llm.DeltaHandler) (TurnResult, error) {
	prompt := g.cfg.SystemPrompt
	if sess.Contact != nil {
		prompt = fmt.Sprintf(`%s

Du snakker med %s som allerede har gitt deg kontaktinformasjon. Fortsett samtalen naturlig.`,
			prompt, sess.Contact.Name)
	}

	messages := make([]llm.ChatMessage, 0, len(sess.History)+2)
	messages = append(messages, llm.ChatMessage{Role: "system", Content: prompt})
	for _, m := range sess.History {
		switch m.Kind {
		case session.KindUserText, session.KindAssistantText:
			messages = append(messages, llm.ChatMessage{Role: m.Role, Content: m.Content})
		}
	}
	messages = append(messages, llm.ChatMessage{Role: "user", Content: msg})

	resp, err := g.client.Generate(ctx, llm.Request{Messages: messages}, onDelta)
	if err != nil {
		g.recordUpstreamError(err)
		return TurnResult{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	g.appendOrLog(id, session.RoleUser, session.KindUserText, msg)
	g.appendOrLog(id, session.RoleAssistant, session.KindAssistantText, resp.Text)
	g.metrics.TurnOutcomes.WithLabelValues("llm_reply").Inc()

	return TurnResult{
		SessionID: id,
		Text:      resp.Text,
		Contact:   sess.Contact,
		Model:     resp.Model,
	}, nil
}

// flushLead persists the lead for a session that just captured contact.
func (g *Gateway) flushLead(ctx context.Context, id string) {
	sess, err := g.store.Get(id)
	if err != nil {
		return
	}
	record, ok := lead.FromSession(sess, session.EndContactCollected)
	if !ok {
		return
	}
	if err := g.sink.Persist(ctx, record); err != nil {
		g.metrics.LeadSinkEvents.WithLabelValues("failed").Inc()
		log.Printf("lead flush at capture failed for session %s: %v", id, err)
		return
	}
	g.metrics.LeadSinkEvents.WithLabelValues("persisted").Inc()
}

func (g *Gateway) recordUpstreamError(err error) {
	g.metrics.TurnOutcomes.WithLabelValues("upstream_error").Inc()
	provider := "unknown"
	var pe *llm.ProviderError
	if errors.As(err, &pe) && pe.Provider != "" {
		provider = pe.Provider
	}
	g.metrics.ProviderErrors.WithLabelValues(provider).Inc()
}

func (g *Gateway) appendOrLog(id, role string, kind session.MessageKind, content string) {
	if err := g.store.AppendMessage(id, role, kind, content); err != nil {
		log.Printf("append message to session %s failed: %v", id, err)
	}
}

// triggerMessage finds the question to answer after capture: the most
// recent genuine user message, falling back to the submission text itself.
func triggerMessage(sess *session.Session, fallback string) string {
	if sess.TriggerMessage != "" {
		return sess.TriggerMessage
	}
	for i := len(sess.History) - 1; i >= 0; i-- {
		if sess.History[i].Kind == session.KindUserText {
			return sess.History[i].Content
		}
	}
	return fallback
}

// BuildContactForm renders the structured payload the widget turns into the
// contact form.
func BuildContactForm(message string) protocol.ContactFormPayload {
	return protocol.ContactFormPayload{
		Type:    "contact_form",
		Message: message,
		Form: protocol.Form{
			Fields: []protocol.FormField{
				{
					Name:        "user_name",
					Label:       "Navn",
					Type:        "text",
					Required:    true,
					Placeholder: "Ola Nordmann",
				},
				{
					Name:        "user_email",
					Label:       "E-post",
					Type:        "email",
					Required:    true,
					Placeholder: "ola@example.com",
				},
			},
			SubmitText: "Send inn",
		},
	}
}
