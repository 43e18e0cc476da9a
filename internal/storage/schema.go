package storage

import (
	"context"
	"fmt"
)

// schemaStatements is the shared DDL. Types are restricted to the
// portable subset (TEXT, INTEGER, REAL, BOOLEAN) so the embedded and
// networked engines run identical statements. Timestamps are fixed-width
// UTC text; structured payloads are JSON text.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS memory_entries (
		id          TEXT PRIMARY KEY,
		agent_id    TEXT NOT NULL,
		kind        TEXT NOT NULL,
		content     TEXT NOT NULL,
		metadata    TEXT NOT NULL,
		importance  REAL NOT NULL,
		tags        TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		accessed_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memory_agent_kind ON memory_entries (agent_id, kind)`,
	`CREATE INDEX IF NOT EXISTS idx_memory_created ON memory_entries (created_at)`,

	`CREATE TABLE IF NOT EXISTS vector_embeddings (
		id           TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL UNIQUE,
		vector       BLOB NOT NULL,
		dims         INTEGER NOT NULL,
		metadata     TEXT NOT NULL,
		seq          INTEGER NOT NULL,
		created_at   TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_embeddings_created ON vector_embeddings (created_at)`,

	`CREATE TABLE IF NOT EXISTS knowledge_relations (
		id         TEXT PRIMARY KEY,
		source_id  TEXT NOT NULL,
		target_id  TEXT NOT NULL,
		rel_type   TEXT NOT NULL,
		confidence REAL NOT NULL,
		metadata   TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_relations_source ON knowledge_relations (source_id)`,
	`CREATE INDEX IF NOT EXISTS idx_relations_target ON knowledge_relations (target_id)`,

	`CREATE TABLE IF NOT EXISTS experiences (
		id          TEXT PRIMARY KEY,
		agent_id    TEXT NOT NULL,
		action_type TEXT NOT NULL,
		input       TEXT NOT NULL,
		output      TEXT NOT NULL,
		success     BOOLEAN NOT NULL,
		metrics     TEXT NOT NULL,
		feedback    TEXT NOT NULL,
		created_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_experiences_agent_action ON experiences (agent_id, action_type)`,
	`CREATE INDEX IF NOT EXISTS idx_experiences_created ON experiences (created_at)`,

	`CREATE TABLE IF NOT EXISTS goals (
		id             TEXT PRIMARY KEY,
		agent_id       TEXT NOT NULL,
		description    TEXT NOT NULL,
		priority       TEXT NOT NULL,
		priority_rank  INTEGER NOT NULL,
		target_metrics TEXT NOT NULL,
		deadline       TEXT,
		status         TEXT NOT NULL,
		progress       REAL NOT NULL,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_goals_agent_status ON goals (agent_id, status)`,

	`CREATE TABLE IF NOT EXISTS agent_constraints (
		id          TEXT PRIMARY KEY,
		agent_id    TEXT NOT NULL,
		kind        TEXT NOT NULL,
		description TEXT NOT NULL,
		parameters  TEXT NOT NULL,
		strict      BOOLEAN NOT NULL,
		priority    TEXT NOT NULL,
		active      BOOLEAN NOT NULL,
		created_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_constraints_agent ON agent_constraints (agent_id)`,

	`CREATE TABLE IF NOT EXISTS risk_factors (
		id          TEXT PRIMARY KEY,
		agent_id    TEXT NOT NULL,
		kind        TEXT NOT NULL,
		description TEXT NOT NULL,
		probability REAL NOT NULL,
		impact      REAL NOT NULL,
		level       TEXT NOT NULL,
		mitigations TEXT NOT NULL,
		monitors    TEXT NOT NULL,
		created_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_risks_agent ON risk_factors (agent_id)`,

	`CREATE TABLE IF NOT EXISTS plans (
		id                    TEXT PRIMARY KEY,
		agent_id              TEXT NOT NULL,
		goal_id               TEXT NOT NULL,
		description           TEXT NOT NULL,
		steps                 TEXT NOT NULL,
		duration_est          REAL NOT NULL,
		resource_requirements TEXT NOT NULL,
		success_probability   REAL NOT NULL,
		contingencies         TEXT NOT NULL,
		status                TEXT NOT NULL,
		created_at            TEXT NOT NULL,
		updated_at            TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_plans_agent ON plans (agent_id)`,

	`CREATE TABLE IF NOT EXISTS journal_entities (
		entity_type TEXT NOT NULL,
		entity_id   TEXT NOT NULL,
		payload     TEXT NOT NULL,
		updated_at  TEXT NOT NULL,
		PRIMARY KEY (entity_type, entity_id)
	)`,

	`CREATE TABLE IF NOT EXISTS sync_records (
		id            TEXT PRIMARY KEY,
		entity_type   TEXT NOT NULL,
		entity_id     TEXT NOT NULL,
		direction     TEXT NOT NULL,
		status        TEXT NOT NULL,
		data_hash     TEXT NOT NULL,
		sync_time     TEXT NOT NULL,
		retry_count   INTEGER NOT NULL,
		error         TEXT,
		conflict_data TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_records_entity ON sync_records (entity_type, entity_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_records_time ON sync_records (sync_time)`,

	`CREATE TABLE IF NOT EXISTS sync_conflicts (
		id            TEXT PRIMARY KEY,
		entity_type   TEXT NOT NULL,
		entity_id     TEXT NOT NULL,
		external_data TEXT NOT NULL,
		local_data    TEXT NOT NULL,
		strategy      TEXT NOT NULL,
		resolved_data TEXT,
		resolved_at   TEXT,
		created_at    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_conflicts_entity ON sync_conflicts (entity_type, entity_id)`,

	`CREATE TABLE IF NOT EXISTS sync_events (
		id          TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		entity_id   TEXT NOT NULL,
		event_type  TEXT NOT NULL,
		payload     TEXT NOT NULL,
		occurred_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_events_entity ON sync_events (entity_type, entity_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_events_occurred ON sync_events (occurred_at)`,

	`CREATE TABLE IF NOT EXISTS sync_statistics (
		id                 TEXT PRIMARY KEY,
		total              INTEGER NOT NULL,
		success            INTEGER NOT NULL,
		failure            INTEGER NOT NULL,
		conflicts_detected INTEGER NOT NULL,
		conflicts_resolved INTEGER NOT NULL,
		last_sync          TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS strategic_analysis (
		id         TEXT PRIMARY KEY,
		agent_id   TEXT NOT NULL,
		kind       TEXT NOT NULL,
		payload    TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_agent ON strategic_analysis (agent_id)`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_created ON strategic_analysis (created_at)`,
}

// applySchema creates all tables and indexes. Statements are idempotent,
// so re-applying on startup is safe.
func (s *Store) applySchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storage: schema statement failed: %w", err)
		}
	}
	return nil
}
