package model

import "time"

// Channel is the delivery transport for a message.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelChat     Channel = "chat"
	ChannelWebhook  Channel = "webhook"
	ChannelInternal Channel = "internal"
)

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	MessagePending   MessageStatus = "pending"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageFailed    MessageStatus = "failed"
	MessageBounced   MessageStatus = "bounced"
)

// Recipient identifies who a message goes to, with the attributes
// personalization rules consume.
type Recipient struct {
	ID       string
	Address  string
	Name     string
	Role     string
	Locale   string
	Timezone string
}

// Message is one rendered, addressed communication.
type Message struct {
	ID          string
	TemplateID  string
	Recipient   Recipient
	SenderAgent string
	Subject     string
	Body        string
	Channel     Channel
	Priority    Priority
	ScheduledAt time.Time
	SentAt      *time.Time
	Status      MessageStatus
	Context     map[string]any
	Attachments []string
	Tracking    map[string]any
}

// FollowUpRule schedules a follow-up message after a delay unless the
// named condition has been satisfied in the meantime.
type FollowUpRule struct {
	TemplateID string
	Delay      time.Duration
	Condition  string
}

// Template is a reusable message definition with personalization,
// send-condition gating, and follow-up rules.
type Template struct {
	ID              string
	SubjectPattern  string
	BodyPattern     string
	Channel         Channel
	AgentID         string
	Scenario        string
	Variables       []string
	Personalization map[string]string
	SendConditions  map[string]any
	FollowUpRules   []FollowUpRule
}

// EscalationRule re-notifies a wider audience when a trigger condition
// stays unmet past a delay, bounded by MaxEscalations.
type EscalationRule struct {
	TriggerCondition string
	Delay            time.Duration
	Recipients       []Recipient
	TemplateID       string
	MaxEscalations   int
}
