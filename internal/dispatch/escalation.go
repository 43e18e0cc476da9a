package dispatch

import (
	"context"
	"time"

	"github.com/dtecho/folio/internal/model"
)

// DefaultEscalationInterval paces the periodic escalation checker.
const DefaultEscalationInterval = time.Minute

// escalationState tracks one registered rule across checks.
type escalationState struct {
	rule        model.EscalationRule
	context     map[string]any
	registered  time.Time
	lastFired   time.Time
	escalations int
}

// AddEscalation registers a rule. The delay clock starts now; each
// firing restarts it.
func (d *Dispatcher) AddEscalation(rule model.EscalationRule, msgContext map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.escalations = append(d.escalations, &escalationState{
		rule:       rule,
		context:    msgContext,
		registered: time.Now().UTC(),
	})
}

// CheckEscalations fires every rule whose trigger condition is still
// unmet and whose delay has elapsed, up to each rule's MaxEscalations.
// Returns how many escalation messages went out.
func (d *Dispatcher) CheckEscalations(ctx context.Context, now time.Time) int {
	d.mu.Lock()
	var ready []*escalationState
	for _, st := range d.escalations {
		if d.conditions[st.rule.TriggerCondition] {
			continue
		}
		if st.rule.MaxEscalations > 0 && st.escalations >= st.rule.MaxEscalations {
			continue
		}
		since := st.registered
		if !st.lastFired.IsZero() {
			since = st.lastFired
		}
		if now.Sub(since) >= st.rule.Delay {
			ready = append(ready, st)
		}
	}
	d.mu.Unlock()

	fired := 0
	for _, st := range ready {
		for _, recipient := range st.rule.Recipients {
			if _, err := d.Send(ctx, st.rule.TemplateID, recipient, st.context, model.PriorityHigh); err != nil {
				d.logger.Warn("escalation send failed",
					"template_id", st.rule.TemplateID, "recipient", recipient.ID, "error", err)
				continue
			}
			fired++
		}
		d.mu.Lock()
		st.escalations++
		st.lastFired = now
		d.mu.Unlock()
	}
	return fired
}

// RunEscalations checks escalations and follow-ups on a fixed interval
// until the context is cancelled.
func (d *Dispatcher) RunEscalations(ctx context.Context, interval time.Duration) {
	if interval < DefaultEscalationInterval {
		interval = DefaultEscalationInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d.CheckFollowUps(ctx, now.UTC())
			d.CheckEscalations(ctx, now.UTC())
		}
	}
}
