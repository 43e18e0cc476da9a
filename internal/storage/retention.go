package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/dtecho/folio/internal/model"
)

// RetentionPolicy controls the garbage-collection pass. The pass is
// idempotent and safe to run concurrently with writes.
type RetentionPolicy struct {
	// MemoryMaxAge bounds memory entries: older entries with importance
	// below MemoryMinImportance are deleted. Default 30 days.
	MemoryMaxAge        time.Duration
	MemoryMinImportance float64
	// ExperienceMaxAge bounds experiences on a longer window. Default 90 days.
	ExperienceMaxAge time.Duration
	// SyncRecordMaxAge bounds completed/failed sync records. Default 30 days.
	SyncRecordMaxAge time.Duration
}

// DefaultRetentionPolicy returns the standard aging windows.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		MemoryMaxAge:        30 * 24 * time.Hour,
		MemoryMinImportance: 0.3,
		ExperienceMaxAge:    90 * 24 * time.Hour,
		SyncRecordMaxAge:    30 * 24 * time.Hour,
	}
}

// RunRetention deletes aged-out rows and returns per-table counts.
func (s *Store) RunRetention(ctx context.Context, p RetentionPolicy) (map[string]int64, error) {
	if p.MemoryMaxAge <= 0 {
		p = DefaultRetentionPolicy()
	}
	now := time.Now().UTC()
	counts := map[string]int64{}

	res, err := s.exec(ctx,
		`DELETE FROM memory_entries WHERE created_at < ? AND importance < ?`,
		formatTime(now.Add(-p.MemoryMaxAge)), p.MemoryMinImportance)
	if err != nil {
		return nil, fmt.Errorf("storage: retention memory: %w", err)
	}
	counts["memory_entries"], _ = res.RowsAffected()

	res, err = s.exec(ctx,
		`DELETE FROM experiences WHERE created_at < ?`,
		formatTime(now.Add(-p.ExperienceMaxAge)))
	if err != nil {
		return nil, fmt.Errorf("storage: retention experiences: %w", err)
	}
	counts["experiences"], _ = res.RowsAffected()

	res, err = s.exec(ctx,
		`DELETE FROM sync_records WHERE sync_time < ? AND status IN (?, ?)`,
		formatTime(now.Add(-p.SyncRecordMaxAge)),
		string(model.SyncCompleted), string(model.SyncFailed))
	if err != nil {
		return nil, fmt.Errorf("storage: retention sync records: %w", err)
	}
	counts["sync_records"], _ = res.RowsAffected()

	return counts, nil
}
