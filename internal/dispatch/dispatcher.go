// Package dispatch emits templated messages: rendering, personalization,
// send-condition gating, channel delivery, follow-up scheduling, and
// escalation. Channel providers are pluggable; in production a missing
// provider is a configuration error, never a silent no-op.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/dtecho/folio/internal/model"
)

// ErrConfiguration marks a missing provider or template in production
// mode. It is fatal at the operation boundary.
var ErrConfiguration = errors.New("dispatch: configuration error")

// ErrUnknownTemplate is returned for an unregistered template id.
var ErrUnknownTemplate = errors.New("dispatch: unknown template")

// ChannelProvider delivers a rendered message over one channel.
type ChannelProvider interface {
	Deliver(ctx context.Context, msg model.Message) error
}

// scheduledFollowUp is a follow-up waiting for its delay to elapse.
type scheduledFollowUp struct {
	rule      model.FollowUpRule
	recipient model.Recipient
	context   map[string]any
	priority  model.Priority
	dueAt     time.Time
}

// Dispatcher renders and routes messages.
type Dispatcher struct {
	senderAgent string
	production  bool
	logger      *slog.Logger

	mu         sync.Mutex
	templates  map[string]model.Template
	providers  map[model.Channel]ChannelProvider
	followUps   []scheduledFollowUp
	escalations []*escalationState
	conditions  map[string]bool
	sent        []model.Message
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithProductionMode forbids delivery fallbacks: a channel without a
// provider surfaces ErrConfiguration instead of a logged no-op.
func WithProductionMode(on bool) Option {
	return func(d *Dispatcher) { d.production = on }
}

// New builds an empty dispatcher for one sending agent.
func New(senderAgent string, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		senderAgent: senderAgent,
		logger:      logger.With("component", "dispatch", "sender", senderAgent),
		templates:   map[string]model.Template{},
		providers:   map[model.Channel]ChannelProvider{},
		conditions:  map[string]bool{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RegisterTemplate adds or replaces a template.
func (d *Dispatcher) RegisterTemplate(t model.Template) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.templates[t.ID] = t
}

// RegisterProvider attaches a delivery provider for a channel.
func (d *Dispatcher) RegisterProvider(channel model.Channel, p ChannelProvider) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.providers[channel] = p
}

// MarkCondition records that a named condition has been satisfied,
// suppressing follow-ups and escalations gated on it.
func (d *Dispatcher) MarkCondition(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conditions[name] = true
}

// Send renders the template for one recipient and delivers it. A message
// whose send conditions are unmet is dropped and (nil, nil) is returned.
func (d *Dispatcher) Send(ctx context.Context, templateID string, recipient model.Recipient, msgContext map[string]any, priority model.Priority) (*model.Message, error) {
	d.mu.Lock()
	tmpl, ok := d.templates[templateID]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, templateID)
	}

	if unmet := unmetCondition(tmpl.SendConditions, msgContext); unmet != "" {
		d.logger.Debug("message dropped, send condition unmet",
			"template_id", templateID, "recipient", recipient.ID, "condition", unmet)
		return nil, nil
	}

	subject, body, err := d.render(tmpl, recipient, msgContext)
	if err != nil {
		return nil, err
	}

	msg := model.Message{
		ID:          "msg_" + uuid.NewString(),
		TemplateID:  templateID,
		Recipient:   recipient,
		SenderAgent: d.senderAgent,
		Subject:     subject,
		Body:        body,
		Channel:     tmpl.Channel,
		Priority:    priority,
		ScheduledAt: time.Now().UTC(),
		Status:      model.MessagePending,
		Context:     msgContext,
		Tracking:    map[string]any{},
	}
	personalize(&msg, tmpl)

	if err := d.deliver(ctx, &msg); err != nil {
		return &msg, err
	}

	d.scheduleFollowUps(tmpl, recipient, msgContext, priority)
	d.mu.Lock()
	d.sent = append(d.sent, msg)
	d.mu.Unlock()
	return &msg, nil
}

// Broadcast sends one template to many recipients, collecting the
// delivered messages. Dropped or failed sends are skipped with a log.
func (d *Dispatcher) Broadcast(ctx context.Context, templateID string, recipients []model.Recipient, msgContext map[string]any) ([]model.Message, error) {
	var out []model.Message
	for _, r := range recipients {
		msg, err := d.Send(ctx, templateID, r, msgContext, model.PriorityMedium)
		if err != nil {
			if errors.Is(err, ErrConfiguration) || errors.Is(err, ErrUnknownTemplate) {
				return out, err
			}
			d.logger.Warn("broadcast send failed", "template_id", templateID, "recipient", r.ID, "error", err)
			continue
		}
		if msg != nil {
			out = append(out, *msg)
		}
	}
	return out, nil
}

// deliver routes the message to its channel provider.
func (d *Dispatcher) deliver(ctx context.Context, msg *model.Message) error {
	d.mu.Lock()
	provider, ok := d.providers[msg.Channel]
	d.mu.Unlock()

	if !ok {
		if d.production {
			msg.Status = model.MessageFailed
			return fmt.Errorf("%w: no provider for channel %q", ErrConfiguration, msg.Channel)
		}
		d.logger.Warn("no provider for channel, marking sent without delivery",
			"channel", string(msg.Channel), "message_id", msg.ID)
		now := time.Now().UTC()
		msg.Status = model.MessageSent
		msg.SentAt = &now
		return nil
	}

	if err := provider.Deliver(ctx, *msg); err != nil {
		msg.Status = model.MessageFailed
		return fmt.Errorf("dispatch: deliver %s: %w", msg.ID, err)
	}
	now := time.Now().UTC()
	msg.Status = model.MessageSent
	msg.SentAt = &now
	return nil
}

// render executes the subject and body patterns against the merged
// recipient and context data.
func (d *Dispatcher) render(tmpl model.Template, recipient model.Recipient, msgContext map[string]any) (string, string, error) {
	data := map[string]any{
		"Recipient": recipient,
		"Context":   msgContext,
	}
	for k, v := range msgContext {
		data[k] = v
	}

	subject, err := renderPattern("subject", tmpl.SubjectPattern, data)
	if err != nil {
		return "", "", fmt.Errorf("dispatch: render template %s: %w", tmpl.ID, err)
	}
	body, err := renderPattern("body", tmpl.BodyPattern, data)
	if err != nil {
		return "", "", fmt.Errorf("dispatch: render template %s: %w", tmpl.ID, err)
	}
	return subject, body, nil
}

func renderPattern(name, pattern string, data map[string]any) (string, error) {
	t, err := template.New(name).Option("missingkey=zero").Parse(pattern)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// unmetCondition returns the first required condition the context does
// not satisfy, or "".
func unmetCondition(conditions, msgContext map[string]any) string {
	for key, want := range conditions {
		got, present := msgContext[key]
		if !present {
			return key
		}
		if want != nil && fmt.Sprint(got) != fmt.Sprint(want) {
			return key
		}
	}
	return ""
}

// scheduleFollowUps queues the template's follow-up rules.
func (d *Dispatcher) scheduleFollowUps(tmpl model.Template, recipient model.Recipient, msgContext map[string]any, priority model.Priority) {
	if len(tmpl.FollowUpRules) == 0 {
		return
	}
	now := time.Now().UTC()
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, rule := range tmpl.FollowUpRules {
		d.followUps = append(d.followUps, scheduledFollowUp{
			rule:      rule,
			recipient: recipient,
			context:   msgContext,
			priority:  priority,
			dueAt:     now.Add(rule.Delay),
		})
	}
}

// CheckFollowUps sends every due follow-up whose condition is still
// unsatisfied and returns how many were sent.
func (d *Dispatcher) CheckFollowUps(ctx context.Context, now time.Time) int {
	d.mu.Lock()
	var due, remaining []scheduledFollowUp
	for _, f := range d.followUps {
		switch {
		case f.rule.Condition != "" && d.conditions[f.rule.Condition]:
			// Satisfied in the meantime; drop silently.
		case !f.dueAt.After(now):
			due = append(due, f)
		default:
			remaining = append(remaining, f)
		}
	}
	d.followUps = remaining
	d.mu.Unlock()

	sent := 0
	for _, f := range due {
		if _, err := d.Send(ctx, f.rule.TemplateID, f.recipient, f.context, f.priority); err != nil {
			d.logger.Warn("follow-up send failed", "template_id", f.rule.TemplateID, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// SentMessages returns a copy of everything delivered so far.
func (d *Dispatcher) SentMessages() []model.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.Message(nil), d.sent...)
}
