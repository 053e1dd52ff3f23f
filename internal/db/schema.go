// Package db provides SQLite-based storage for the feature discovery engine.
package db

// SchemaVersion is the current supported schema version.
// The daemon will refuse to run if the DB schema version exceeds this.
const SchemaVersion = 1

// schemaV1 creates the initial schema for the discovery engine.
const schemaV1 = `
-- Append-only interaction event log
CREATE TABLE IF NOT EXISTS interaction_event (
  id            INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id       TEXT NOT NULL,
  feature_id    TEXT NOT NULL,
  kind          TEXT NOT NULL,
  ts            INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_event_user_ts ON interaction_event(user_id, ts);
CREATE INDEX IF NOT EXISTS idx_event_feature_kind_ts ON interaction_event(feature_id, kind, ts);

-- Per (user, feature) discovery lifecycle state.
-- version supports compare-and-set updates; rows are never deleted.
CREATE TABLE IF NOT EXISTS discovery_state (
  user_id                TEXT NOT NULL,
  feature_id             TEXT NOT NULL,
  stage                  TEXT NOT NULL,
  last_transition_ms     INTEGER NOT NULL,
  recommendation_count   INTEGER NOT NULL DEFAULT 0,
  consecutive_dismissals INTEGER NOT NULL DEFAULT 0,
  cooldown_until_ms      INTEGER NOT NULL DEFAULT 0,
  last_event_kind        TEXT NOT NULL DEFAULT '',
  last_event_ms          INTEGER NOT NULL DEFAULT 0,
  version                INTEGER NOT NULL DEFAULT 1,
  PRIMARY KEY(user_id, feature_id)
);

CREATE INDEX IF NOT EXISTS idx_state_user_stage ON discovery_state(user_id, stage);

-- Schema migrations tracking
CREATE TABLE IF NOT EXISTS schema_migrations (
  version     INTEGER PRIMARY KEY,
  applied_ts  INTEGER NOT NULL
);
`

// AllTables lists every table the schema is expected to contain.
var AllTables = []string{
	"interaction_event",
	"discovery_state",
	"schema_migrations",
}

// AllIndexes lists every index the schema is expected to contain.
var AllIndexes = []string{
	"idx_event_user_ts",
	"idx_event_feature_kind_ts",
	"idx_state_user_stage",
}
