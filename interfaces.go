package folio

import "context"

// JournalClient talks to the external journal system. When provided via
// WithJournalClient it replaces the built-in HTTP client, e.g. for an
// in-process test double or a vendor-specific transport. Fetch returns
// (nil, nil) when the entity does not exist remotely.
type JournalClient interface {
	Fetch(ctx context.Context, entityType, entityID string) (map[string]any, error)
	Push(ctx context.Context, entityType, entityID string, payload map[string]any) error
}

// WorkflowHook receives coordination events observed while workflows
// run. Hooks are called best-effort from workflow goroutines and must
// not block.
type WorkflowHook func(WorkflowEvent)

// MessageProvider delivers rendered messages over one channel (email,
// sms, chat, webhook). Register per channel via WithMessageProvider.
type MessageProvider interface {
	Deliver(ctx context.Context, recipientAddress, subject, body string) error
}
