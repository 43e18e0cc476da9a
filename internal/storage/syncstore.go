package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dtecho/folio/internal/model"
)

// GetEntity loads the local payload for an externally-addressable entity.
// Returns (nil, false, nil) when the entity does not exist locally.
func (s *Store) GetEntity(ctx context.Context, entityType, entityID string) (map[string]any, bool, error) {
	var payload string
	err := s.queryRow(ctx,
		`SELECT payload FROM journal_entities WHERE entity_type = ? AND entity_id = ?`,
		entityType, entityID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: get entity: %w", err)
	}
	return unmarshalMap(payload), true, nil
}

// PutEntity stores the local payload for an externally-addressable entity.
func (s *Store) PutEntity(ctx context.Context, entityType, entityID string, payload map[string]any) error {
	_, err := s.exec(ctx,
		`INSERT INTO journal_entities (entity_type, entity_id, payload, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (entity_type, entity_id) DO UPDATE SET
		 payload = excluded.payload,
		 updated_at = excluded.updated_at`,
		entityType, entityID, marshalJSON(payload), formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("storage: put entity: %w", err)
	}
	return nil
}

// UpsertSyncRecord writes one sync attempt's state.
func (s *Store) UpsertSyncRecord(ctx context.Context, r model.SyncRecord) (string, error) {
	if r.EntityType == "" || r.EntityID == "" {
		return "", fmt.Errorf("storage: sync record entity_type and entity_id are required")
	}
	if r.ID == "" {
		r.ID = "sync_" + uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	var conflictData *string
	if r.ConflictData != nil {
		cd := marshalJSON(r.ConflictData)
		conflictData = &cd
	}

	_, err := s.exec(ctx,
		`INSERT INTO sync_records (id, entity_type, entity_id, direction, status, data_hash, sync_time, retry_count, error, conflict_data)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		 status = excluded.status,
		 data_hash = excluded.data_hash,
		 sync_time = excluded.sync_time,
		 retry_count = excluded.retry_count,
		 error = excluded.error,
		 conflict_data = excluded.conflict_data`,
		r.ID, r.EntityType, r.EntityID, string(r.Direction), string(r.Status),
		r.DataHash, formatTime(r.Timestamp), r.RetryCount, r.Error, conflictData,
	)
	if err != nil {
		return "", fmt.Errorf("storage: upsert sync record: %w", err)
	}
	return r.ID, nil
}

// GetLatestSyncRecord returns the most recent sync record for an entity,
// or ErrNotFound.
func (s *Store) GetLatestSyncRecord(ctx context.Context, entityType, entityID string) (*model.SyncRecord, error) {
	row := s.queryRow(ctx,
		`SELECT id, entity_type, entity_id, direction, status, data_hash, sync_time, retry_count, error, conflict_data
		 FROM sync_records WHERE entity_type = ? AND entity_id = ?
		 ORDER BY sync_time DESC LIMIT 1`, entityType, entityID)
	return scanSyncRecord(row.Scan)
}

// CountInProgress returns how many sync records currently hold
// status=in_progress for one entity.
func (s *Store) CountInProgress(ctx context.Context, entityType, entityID string) (int, error) {
	var n int
	err := s.queryRow(ctx,
		`SELECT COUNT(*) FROM sync_records WHERE entity_type = ? AND entity_id = ? AND status = ?`,
		entityType, entityID, string(model.SyncInProgress)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count in-progress: %w", err)
	}
	return n, nil
}

func scanSyncRecord(scan func(...any) error) (*model.SyncRecord, error) {
	var (
		r                     model.SyncRecord
		direction, status, syncTime string
		conflictData          *string
	)
	err := scan(&r.ID, &r.EntityType, &r.EntityID, &direction, &status, &r.DataHash, &syncTime, &r.RetryCount, &r.Error, &conflictData)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: scan sync record: %w", err)
	}
	r.Direction = model.SyncDirection(direction)
	r.Status = model.SyncStatus(status)
	r.Timestamp = parseTime(syncTime)
	r.ConflictData = unmarshalMapPtr(conflictData)
	return &r, nil
}

// InsertConflict records a detected conflict.
func (s *Store) InsertConflict(ctx context.Context, c model.ConflictRecord) (string, error) {
	if c.ID == "" {
		c.ID = "conf_" + uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	var resolved *string
	if c.ResolvedData != nil {
		rd := marshalJSON(c.ResolvedData)
		resolved = &rd
	}

	_, err := s.exec(ctx,
		`INSERT INTO sync_conflicts (id, entity_type, entity_id, external_data, local_data, strategy, resolved_data, resolved_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.EntityType, c.EntityID, marshalJSON(c.ExternalData), marshalJSON(c.LocalData),
		string(c.Strategy), resolved, formatTimePtr(c.ResolvedAt), formatTime(c.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("storage: insert conflict: %w", err)
	}
	return c.ID, nil
}

// ResolveConflict stores the resolved snapshot for a pending conflict.
func (s *Store) ResolveConflict(ctx context.Context, id string, resolved map[string]any) error {
	res, err := s.exec(ctx,
		`UPDATE sync_conflicts SET resolved_data = ?, resolved_at = ? WHERE id = ? AND resolved_at IS NULL`,
		marshalJSON(resolved), formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("storage: resolve conflict: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetConflict loads one conflict record.
func (s *Store) GetConflict(ctx context.Context, id string) (*model.ConflictRecord, error) {
	rows, err := s.query(ctx, conflictSelect+` WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("storage: get conflict: %w", err)
	}
	defer rows.Close()
	conflicts, err := scanConflicts(rows)
	if err != nil {
		return nil, err
	}
	if len(conflicts) == 0 {
		return nil, ErrNotFound
	}
	return &conflicts[0], nil
}

// ListPendingConflicts returns unresolved conflicts oldest first.
func (s *Store) ListPendingConflicts(ctx context.Context) ([]model.ConflictRecord, error) {
	rows, err := s.query(ctx, conflictSelect+` WHERE resolved_at IS NULL ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list pending conflicts: %w", err)
	}
	defer rows.Close()
	return scanConflicts(rows)
}

const conflictSelect = `SELECT id, entity_type, entity_id, external_data, local_data, strategy, resolved_data, resolved_at, created_at
	 FROM sync_conflicts`

func scanConflicts(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]model.ConflictRecord, error) {
	var out []model.ConflictRecord
	for rows.Next() {
		var (
			c                         model.ConflictRecord
			external, local, strategy, created string
			resolvedData, resolvedAt  *string
		)
		if err := rows.Scan(&c.ID, &c.EntityType, &c.EntityID, &external, &local, &strategy, &resolvedData, &resolvedAt, &created); err != nil {
			return nil, fmt.Errorf("storage: scan conflict: %w", err)
		}
		c.ExternalData = unmarshalMap(external)
		c.LocalData = unmarshalMap(local)
		c.Strategy = model.ResolutionStrategy(strategy)
		c.ResolvedData = unmarshalMapPtr(resolvedData)
		c.ResolvedAt = parseTimePtr(resolvedAt)
		c.CreatedAt = parseTime(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertSyncEvent appends a row to the sync event table, the only
// mechanism external subscribers may observe sync progress through.
func (s *Store) InsertSyncEvent(ctx context.Context, e model.SyncEvent) error {
	if e.ID == "" {
		e.ID = "evt_" + uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	_, err := s.exec(ctx,
		`INSERT INTO sync_events (id, entity_type, entity_id, event_type, payload, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.EntityType, e.EntityID, string(e.EventType), marshalJSON(e.Payload), formatTime(e.OccurredAt))
	if err != nil {
		return fmt.Errorf("storage: insert sync event: %w", err)
	}
	return nil
}

// ListSyncEvents returns an entity's sync events oldest first.
func (s *Store) ListSyncEvents(ctx context.Context, entityType, entityID string) ([]model.SyncEvent, error) {
	rows, err := s.query(ctx,
		`SELECT id, entity_type, entity_id, event_type, payload, occurred_at
		 FROM sync_events WHERE entity_type = ? AND entity_id = ? ORDER BY occurred_at ASC`,
		entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("storage: list sync events: %w", err)
	}
	defer rows.Close()

	var out []model.SyncEvent
	for rows.Next() {
		var (
			e                  model.SyncEvent
			eventType, payload, occurred string
		)
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &eventType, &payload, &occurred); err != nil {
			return nil, fmt.Errorf("storage: scan sync event: %w", err)
		}
		e.EventType = model.SyncEventType(eventType)
		e.Payload = unmarshalMap(payload)
		e.OccurredAt = parseTime(occurred)
		out = append(out, e)
	}
	return out, rows.Err()
}

// SyncStats is the persisted counter row backing Synchronizer.Stats.
type SyncStats struct {
	Total             int64
	Success           int64
	Failure           int64
	ConflictsDetected int64
	ConflictsResolved int64
	LastSync          *time.Time
}

const statsKey = "global"

// LoadSyncStats reads the persisted counters, returning zeros when none
// have been written yet.
func (s *Store) LoadSyncStats(ctx context.Context) (SyncStats, error) {
	var (
		st       SyncStats
		lastSync *string
	)
	err := s.queryRow(ctx,
		`SELECT total, success, failure, conflicts_detected, conflicts_resolved, last_sync
		 FROM sync_statistics WHERE id = ?`, statsKey).
		Scan(&st.Total, &st.Success, &st.Failure, &st.ConflictsDetected, &st.ConflictsResolved, &lastSync)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncStats{}, nil
	}
	if err != nil {
		return SyncStats{}, fmt.Errorf("storage: load sync stats: %w", err)
	}
	st.LastSync = parseTimePtr(lastSync)
	return st, nil
}

// SaveSyncStats persists the counter row.
func (s *Store) SaveSyncStats(ctx context.Context, st SyncStats) error {
	var lastSync *string
	if st.LastSync != nil {
		ls := formatTime(*st.LastSync)
		lastSync = &ls
	}
	_, err := s.exec(ctx,
		`INSERT INTO sync_statistics (id, total, success, failure, conflicts_detected, conflicts_resolved, last_sync)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		 total = excluded.total,
		 success = excluded.success,
		 failure = excluded.failure,
		 conflicts_detected = excluded.conflicts_detected,
		 conflicts_resolved = excluded.conflicts_resolved,
		 last_sync = excluded.last_sync`,
		statsKey, st.Total, st.Success, st.Failure, st.ConflictsDetected, st.ConflictsResolved, lastSync)
	if err != nil {
		return fmt.Errorf("storage: save sync stats: %w", err)
	}
	return nil
}

// InsertAnalysis appends a strategic analysis artifact.
func (s *Store) InsertAnalysis(ctx context.Context, agentID, kind string, payload map[string]any) (string, error) {
	id := "ana_" + uuid.NewString()
	_, err := s.exec(ctx,
		`INSERT INTO strategic_analysis (id, agent_id, kind, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, agentID, kind, marshalJSON(payload), formatTime(time.Now().UTC()))
	if err != nil {
		return "", fmt.Errorf("storage: insert analysis: %w", err)
	}
	return id, nil
}

// ListAnalyses returns an agent's analysis artifacts newest first,
// optionally filtered by kind.
func (s *Store) ListAnalyses(ctx context.Context, agentID string, kinds []string, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT payload FROM strategic_analysis WHERE agent_id = ?`
	args := []any{agentID}
	if len(kinds) > 0 {
		query += ` AND kind IN (` + strings.TrimSuffix(strings.Repeat("?, ", len(kinds)), ", ") + `)`
		for _, k := range kinds {
			args = append(args, k)
		}
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list analyses: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("storage: scan analysis: %w", err)
		}
		out = append(out, unmarshalMap(payload))
	}
	return out, rows.Err()
}
