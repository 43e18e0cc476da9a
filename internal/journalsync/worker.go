package journalsync

import (
	"context"
	"errors"
	"time"

	"github.com/dtecho/folio/internal/storage"
)

// Run drains the sync queue on a fixed interval until the context is
// cancelled. Failed items are re-enqueued with a retry budget; each
// cycle ends with a retention pass over aged-out sync records.
func (s *Synchronizer) Run(ctx context.Context) {
	s.logger.Info("sync worker started",
		"interval", s.cfg.Interval.String(),
		"batch_size", s.cfg.BatchSize)

	for {
		sleep := s.cfg.Interval
		if err := s.cycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.logger.Info("sync worker stopped")
				return
			}
			s.logger.Error("sync cycle failed", "error", err)
			sleep = s.cfg.ErrorSleep
		}

		select {
		case <-ctx.Done():
			s.logger.Info("sync worker stopped")
			return
		case <-time.After(sleep):
		}
	}
}

// cycle drains one batch from the queue and runs GC.
func (s *Synchronizer) cycle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := s.dequeue(s.cfg.BatchSize)
	for _, item := range batch {
		itemCtx, cancel := context.WithTimeout(ctx, s.cfg.ItemTimeout)
		ok, err := s.SyncEntity(itemCtx, item.entityType, item.entityID, item.direction)
		cancel()

		if ok {
			continue
		}
		if errors.Is(err, ErrInFlight) {
			// Another worker holds the entity; try again next cycle
			// without spending the retry budget.
			s.requeue(item)
			continue
		}
		if item.retries+1 < s.cfg.RetryLimit {
			item.retries++
			s.requeue(item)
			s.logger.Warn("queued sync failed, will retry",
				"entity_type", item.entityType,
				"entity_id", item.entityID,
				"retry", item.retries,
				"error", err)
		} else {
			s.logger.Error("queued sync exhausted retries",
				"entity_type", item.entityType,
				"entity_id", item.entityID,
				"error", err)
		}
	}

	counts, err := s.store.RunRetention(ctx, storage.DefaultRetentionPolicy())
	if err != nil {
		return err
	}
	if counts["sync_records"] > 0 {
		s.logger.Info("pruned aged-out sync records", "count", counts["sync_records"])
	}
	return nil
}

// dequeue pops up to n items from the head of the queue.
func (s *Synchronizer) dequeue(n int) []queueItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.queue) {
		n = len(s.queue)
	}
	batch := make([]queueItem, n)
	copy(batch, s.queue[:n])
	s.queue = s.queue[n:]
	return batch
}

func (s *Synchronizer) requeue(item queueItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) < maxQueueSize {
		s.queue = append(s.queue, item)
	}
}
