package model

import "time"

// SyncDirection selects which way a reconciliation moves data.
type SyncDirection string

const (
	SyncBidirectional SyncDirection = "bidirectional"
	SyncToExternal    SyncDirection = "to_external"
	SyncFromExternal  SyncDirection = "from_external"
)

// SyncStatus is the lifecycle state of one sync attempt.
type SyncStatus string

const (
	SyncPending    SyncStatus = "pending"
	SyncInProgress SyncStatus = "in_progress"
	SyncCompleted  SyncStatus = "completed"
	SyncFailed     SyncStatus = "failed"
	SyncConflict   SyncStatus = "conflict"
)

// SyncRecord is a persisted attempt to reconcile one entity between the
// local store and the external journal system.
type SyncRecord struct {
	ID           string
	EntityType   string
	EntityID     string
	Direction    SyncDirection
	Status       SyncStatus
	DataHash     string
	Timestamp    time.Time
	RetryCount   int
	Error        *string
	ConflictData map[string]any
}

// ResolutionStrategy names a conflict resolution policy.
type ResolutionStrategy string

const (
	ResolveLatestWins    ResolutionStrategy = "latest_wins"
	ResolveMerge         ResolutionStrategy = "merge"
	ResolveManual        ResolutionStrategy = "manual"
	ResolveAgentPriority ResolutionStrategy = "agent_priority"
	ResolveOJSPriority   ResolutionStrategy = "ojs_priority"
)

// ConflictRecord captures diverging local and external payloads for one
// entity, plus the resolution once one exists.
type ConflictRecord struct {
	ID           string
	EntityType   string
	EntityID     string
	ExternalData map[string]any
	LocalData    map[string]any
	Strategy     ResolutionStrategy
	ResolvedData map[string]any
	ResolvedAt   *time.Time
	CreatedAt    time.Time
}

// Resolved reports whether the conflict has a recorded resolution.
func (c ConflictRecord) Resolved() bool {
	return c.ResolvedAt != nil
}

// SyncEventType classifies rows in the append-only sync event table.
type SyncEventType string

const (
	EventSyncStarted   SyncEventType = "sync_started"
	EventSyncCompleted SyncEventType = "sync_completed"
	EventSyncFailed    SyncEventType = "sync_failed"
)

// SyncEvent is the only mechanism by which external subscribers may
// observe sync progress.
type SyncEvent struct {
	ID         string
	EntityType string
	EntityID   string
	EventType  SyncEventType
	Payload    map[string]any
	OccurredAt time.Time
}
