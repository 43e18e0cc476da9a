package journalsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dtecho/folio/internal/model"
	"github.com/dtecho/folio/internal/storage"
)

// Defaults for the synchronizer's tunables.
const (
	DefaultConcurrency = 4
	DefaultInterval    = 30 * time.Second
	DefaultErrorSleep  = 5 * time.Second
	DefaultBatchSize   = 10
	DefaultRetryLimit  = 3
	DefaultItemTimeout = 30 * time.Second
	DefaultLockTTL     = 60 * time.Second
	maxQueueSize       = 1000
)

// ErrInFlight is returned when a sync on the same entity is already in
// progress in this process.
var ErrInFlight = errors.New("journalsync: sync already in progress for entity")

// ErrQueueFull is returned when the sync queue is saturated.
var ErrQueueFull = errors.New("journalsync: sync queue full")

// Config tunes the synchronizer.
type Config struct {
	Concurrency int
	Interval    time.Duration
	ErrorSleep  time.Duration
	BatchSize   int
	RetryLimit  int
	ItemTimeout time.Duration
	LockTTL     time.Duration
	Strategy    model.ResolutionStrategy
	MergeFields []string
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.ErrorSleep <= 0 {
		c.ErrorSleep = DefaultErrorSleep
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.RetryLimit <= 0 {
		c.RetryLimit = DefaultRetryLimit
	}
	if c.ItemTimeout <= 0 {
		c.ItemTimeout = DefaultItemTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = DefaultLockTTL
	}
	if c.Strategy == "" {
		c.Strategy = model.ResolveLatestWins
	}
	if len(c.MergeFields) == 0 {
		c.MergeFields = defaultMergeFields
	}
	return c
}

// EventSink receives sync events in addition to the persistent event
// table, e.g. a Redis pub/sub fan-out. Delivery is best-effort.
type EventSink interface {
	Publish(ctx context.Context, event model.SyncEvent) error
}

// queueItem is one queued sync request.
type queueItem struct {
	entityType string
	entityID   string
	direction  model.SyncDirection
	retries    int
}

// Synchronizer reconciles entities between the local store and the
// external journal system.
type Synchronizer struct {
	store    *storage.Store
	external ExternalJournal
	locker   Locker
	sink     EventSink
	cfg      Config
	logger   *slog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
	queue    []queueItem
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLocker enables the distributed advisory lock.
func WithLocker(l Locker) Option {
	return func(s *Synchronizer) { s.locker = l }
}

// WithEventSink adds a best-effort event fan-out.
func WithEventSink(sink EventSink) Option {
	return func(s *Synchronizer) { s.sink = sink }
}

// New builds a synchronizer. Without a Locker only the in-process guard
// serializes entity syncs, which is logged as degraded.
func New(store *storage.Store, external ExternalJournal, cfg Config, logger *slog.Logger, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:    store,
		external: external,
		cfg:      cfg.withDefaults(),
		logger:   logger.With("component", "journalsync"),
		inFlight: map[string]bool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locker == nil {
		s.logger.Warn("no distributed lock configured, entity serialization is in-process only")
	}
	return s
}

// SyncEntity reconciles one entity in the given direction. It returns
// whether the sync succeeded; infrastructure failures are errors.
func (s *Synchronizer) SyncEntity(ctx context.Context, entityType, entityID string, direction model.SyncDirection) (bool, error) {
	key := entityType + ":" + entityID

	s.mu.Lock()
	if s.inFlight[key] {
		s.mu.Unlock()
		return false, ErrInFlight
	}
	s.inFlight[key] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, key)
		s.mu.Unlock()
	}()

	if s.locker != nil {
		token, ok, err := s.locker.Acquire(ctx, lockKey(entityType, entityID), s.cfg.LockTTL)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, ErrInFlight
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), lockKey(entityType, entityID), token); err != nil {
				s.logger.Warn("lock release failed", "entity", key, "error", err)
			}
		}()
	}

	return s.reconcile(ctx, entityType, entityID, direction)
}

// reconcile performs one sync under the entity's locks.
func (s *Synchronizer) reconcile(ctx context.Context, entityType, entityID string, direction model.SyncDirection) (bool, error) {
	record := model.SyncRecord{
		EntityType: entityType,
		EntityID:   entityID,
		Direction:  direction,
		Status:     model.SyncInProgress,
		Timestamp:  time.Now().UTC(),
	}
	syncID, err := s.store.UpsertSyncRecord(ctx, record)
	if err != nil {
		return false, err
	}
	record.ID = syncID
	s.emit(ctx, entityType, entityID, model.EventSyncStarted, map[string]any{
		"direction": string(direction), "sync_id": syncID,
	})

	ok, syncErr := s.transfer(ctx, &record)

	record.Timestamp = time.Now().UTC()
	if ok {
		record.Status = model.SyncCompleted
	} else if record.Status != model.SyncConflict {
		record.Status = model.SyncFailed
	}
	if syncErr != nil {
		msg := syncErr.Error()
		record.Error = &msg
	}
	if _, err := s.store.UpsertSyncRecord(ctx, record); err != nil {
		s.logger.Error("recording sync outcome failed", "sync_id", syncID, "error", err)
	}
	s.bumpStats(ctx, func(st *storage.SyncStats) {
		st.Total++
		if ok {
			st.Success++
		} else {
			st.Failure++
		}
		now := time.Now().UTC()
		st.LastSync = &now
	})

	eventType := model.EventSyncCompleted
	if !ok {
		eventType = model.EventSyncFailed
	}
	s.emit(ctx, entityType, entityID, eventType, map[string]any{
		"direction": string(direction), "sync_id": syncID,
	})
	return ok, syncErr
}

// transfer moves data per the direction semantics and fills the record's
// hash and conflict data. It returns success; infrastructure failures
// are errors.
func (s *Synchronizer) transfer(ctx context.Context, record *model.SyncRecord) (bool, error) {
	entityType, entityID := record.EntityType, record.EntityID

	local, localExists, err := s.store.GetEntity(ctx, entityType, entityID)
	if err != nil {
		return false, err
	}
	external, err := s.external.Fetch(ctx, entityType, entityID)
	if err != nil {
		return false, err
	}

	switch record.Direction {
	case model.SyncFromExternal:
		if external == nil {
			return false, fmt.Errorf("journalsync: %s/%s absent in external system", entityType, entityID)
		}
		record.DataHash = model.CanonicalHash(external)
		if err := s.store.PutEntity(ctx, entityType, entityID, external); err != nil {
			return false, err
		}
		return true, nil

	case model.SyncToExternal:
		if !localExists {
			return false, fmt.Errorf("journalsync: %s/%s absent locally", entityType, entityID)
		}
		record.DataHash = model.CanonicalHash(local)
		if err := s.external.Push(ctx, entityType, entityID, local); err != nil {
			return false, err
		}
		return true, nil

	case model.SyncBidirectional:
		return s.bidirectional(ctx, record, local, localExists, external)

	default:
		return false, fmt.Errorf("journalsync: unknown direction %q", record.Direction)
	}
}

// bidirectional detects conflicts by canonical hash and pushes both ways
// once the payloads agree.
func (s *Synchronizer) bidirectional(ctx context.Context, record *model.SyncRecord, local map[string]any, localExists bool, external map[string]any) (bool, error) {
	entityType, entityID := record.EntityType, record.EntityID

	switch {
	case !localExists && external == nil:
		return false, fmt.Errorf("journalsync: %s/%s absent on both sides", entityType, entityID)

	case !localExists:
		record.DataHash = model.CanonicalHash(external)
		if err := s.store.PutEntity(ctx, entityType, entityID, external); err != nil {
			return false, err
		}
		return true, nil

	case external == nil:
		record.DataHash = model.CanonicalHash(local)
		if err := s.external.Push(ctx, entityType, entityID, local); err != nil {
			return false, err
		}
		return true, nil
	}

	localHash := model.CanonicalHash(local)
	externalHash := model.CanonicalHash(external)
	record.DataHash = localHash
	if localHash == externalHash {
		// Payloads already agree modulo timestamps; nothing to move.
		return true, nil
	}

	s.bumpStats(ctx, func(st *storage.SyncStats) { st.ConflictsDetected++ })
	resolved, ok := resolve(s.cfg.Strategy, local, external, s.cfg.MergeFields, time.Now())
	if !ok {
		conflictID, err := s.store.InsertConflict(ctx, model.ConflictRecord{
			EntityType:   entityType,
			EntityID:     entityID,
			ExternalData: external,
			LocalData:    local,
			Strategy:     s.cfg.Strategy,
		})
		if err != nil {
			return false, err
		}
		record.Status = model.SyncConflict
		record.ConflictData = map[string]any{"conflict_id": conflictID}
		s.logger.Info("conflict recorded for manual resolution",
			"entity_type", entityType, "entity_id", entityID, "conflict_id", conflictID)
		return false, nil
	}

	record.DataHash = model.CanonicalHash(resolved)
	if err := s.store.PutEntity(ctx, entityType, entityID, resolved); err != nil {
		return false, err
	}
	if err := s.external.Push(ctx, entityType, entityID, resolved); err != nil {
		return false, err
	}
	s.bumpStats(ctx, func(st *storage.SyncStats) { st.ConflictsResolved++ })
	return true, nil
}

// BatchSync runs SyncEntity over the ids with bounded concurrency and a
// per-item timeout, returning per-id success.
func (s *Synchronizer) BatchSync(ctx context.Context, entityType string, entityIDs []string, direction model.SyncDirection) map[string]bool {
	results := make(map[string]bool, len(entityIDs))
	var resultsMu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, id := range entityIDs {
		id := id
		g.Go(func() error {
			itemCtx, cancel := context.WithTimeout(ctx, s.cfg.ItemTimeout)
			defer cancel()

			ok, err := s.SyncEntity(itemCtx, entityType, id, direction)
			if err != nil {
				s.logger.Warn("batch item failed", "entity_type", entityType, "entity_id", id, "error", err)
				ok = false
			}
			resultsMu.Lock()
			results[id] = ok
			resultsMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// QueueSync enqueues a sync without blocking. The queue worker drains it
// on its next cycle.
func (s *Synchronizer) QueueSync(entityType, entityID string, direction model.SyncDirection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) >= maxQueueSize {
		return ErrQueueFull
	}
	s.queue = append(s.queue, queueItem{entityType: entityType, entityID: entityID, direction: direction})
	return nil
}

// Status returns the most recent sync record for an entity, or nil when
// none exists.
func (s *Synchronizer) Status(ctx context.Context, entityType, entityID string) (*model.SyncRecord, error) {
	record, err := s.store.GetLatestSyncRecord(ctx, entityType, entityID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return record, err
}

// PendingConflicts lists unresolved conflicts oldest first.
func (s *Synchronizer) PendingConflicts(ctx context.Context) ([]model.ConflictRecord, error) {
	return s.store.ListPendingConflicts(ctx)
}

// ResolveConflict stores the caller-provided resolution for a pending
// conflict and applies it to both sides.
func (s *Synchronizer) ResolveConflict(ctx context.Context, conflictID string, resolved map[string]any) (bool, error) {
	conflict, err := s.store.GetConflict(ctx, conflictID)
	if err != nil {
		return false, err
	}
	if conflict.Resolved() {
		return false, fmt.Errorf("journalsync: conflict %s already resolved", conflictID)
	}
	if err := s.store.ResolveConflict(ctx, conflictID, resolved); err != nil {
		return false, err
	}
	if err := s.store.PutEntity(ctx, conflict.EntityType, conflict.EntityID, resolved); err != nil {
		return false, err
	}
	if err := s.external.Push(ctx, conflict.EntityType, conflict.EntityID, resolved); err != nil {
		return false, err
	}
	s.bumpStats(ctx, func(st *storage.SyncStats) { st.ConflictsResolved++ })
	return true, nil
}

// Stats is the synchronizer's aggregate view.
type Stats struct {
	Total             int64
	Success           int64
	Failure           int64
	ConflictsDetected int64
	ConflictsResolved int64
	LastSync          *time.Time
	PendingConflicts  int
	QueueSize         int
	InFlight          int
}

// Stats merges the persisted counters with the live queue state.
func (s *Synchronizer) Stats(ctx context.Context) (Stats, error) {
	persisted, err := s.store.LoadSyncStats(ctx)
	if err != nil {
		return Stats{}, err
	}
	pending, err := s.store.ListPendingConflicts(ctx)
	if err != nil {
		return Stats{}, err
	}

	s.mu.Lock()
	queueSize, inFlight := len(s.queue), len(s.inFlight)
	s.mu.Unlock()

	return Stats{
		Total:             persisted.Total,
		Success:           persisted.Success,
		Failure:           persisted.Failure,
		ConflictsDetected: persisted.ConflictsDetected,
		ConflictsResolved: persisted.ConflictsResolved,
		LastSync:          persisted.LastSync,
		PendingConflicts:  len(pending),
		QueueSize:         queueSize,
		InFlight:          inFlight,
	}, nil
}

// Health describes the synchronizer's operational state.
type Health struct {
	Status string
	Issues []string
}

// Health reports healthy, degraded (no distributed lock, backlog), or
// unhealthy (store unreachable).
func (s *Synchronizer) Health(ctx context.Context) Health {
	h := Health{Status: "healthy"}

	if _, err := s.store.LoadSyncStats(ctx); err != nil {
		h.Status = "unhealthy"
		h.Issues = append(h.Issues, fmt.Sprintf("store unreachable: %v", err))
		return h
	}
	if s.locker == nil {
		h.Status = "degraded"
		h.Issues = append(h.Issues, "distributed lock disabled, in-process serialization only")
	}

	s.mu.Lock()
	queueSize := len(s.queue)
	s.mu.Unlock()
	if queueSize > maxQueueSize/2 {
		h.Status = "degraded"
		h.Issues = append(h.Issues, fmt.Sprintf("sync queue backlog: %d", queueSize))
	}
	return h
}

// bumpStats applies a read-modify-write on the persisted counters.
func (s *Synchronizer) bumpStats(ctx context.Context, apply func(*storage.SyncStats)) {
	st, err := s.store.LoadSyncStats(ctx)
	if err != nil {
		s.logger.Warn("loading sync stats failed", "error", err)
		return
	}
	apply(&st)
	if err := s.store.SaveSyncStats(ctx, st); err != nil {
		s.logger.Warn("saving sync stats failed", "error", err)
	}
}

// emit writes a sync event to the persistent table and the optional
// fan-out sink. Both are best-effort.
func (s *Synchronizer) emit(ctx context.Context, entityType, entityID string, eventType model.SyncEventType, payload map[string]any) {
	event := model.SyncEvent{
		EntityType: entityType,
		EntityID:   entityID,
		EventType:  eventType,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.store.InsertSyncEvent(ctx, event); err != nil {
		s.logger.Warn("persisting sync event failed", "event_type", string(eventType), "error", err)
	}
	if s.sink != nil {
		if err := s.sink.Publish(ctx, event); err != nil {
			s.logger.Warn("publishing sync event failed", "event_type", string(eventType), "error", err)
		}
	}
}
