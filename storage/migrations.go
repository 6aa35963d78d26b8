package storage

// schema is the full logical schema. Statements are idempotent so migrate
// can run on every startup.
const schema = `
CREATE TABLE IF NOT EXISTS alerts (
	id           TEXT PRIMARY KEY,
	rule_id      TEXT NOT NULL,
	severity     TEXT NOT NULL,
	base_score   REAL NOT NULL,
	message      TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL DEFAULT '',
	payload      TEXT NOT NULL DEFAULT '{}',
	acknowledged INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at);
CREATE INDEX IF NOT EXISTS idx_alerts_severity   ON alerts(severity);
CREATE INDEX IF NOT EXISTS idx_alerts_rule_id    ON alerts(rule_id);

CREATE TABLE IF NOT EXISTS events (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	event_type TEXT NOT NULL,
	payload    TEXT NOT NULL DEFAULT '{}',
	timestamp  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);

CREATE TABLE IF NOT EXISTS metrics_history (
	cpu_percent        REAL NOT NULL,
	memory_percent     REAL NOT NULL,
	open_ports         INTEGER NOT NULL,
	active_connections INTEGER NOT NULL,
	process_count      INTEGER NOT NULL,
	timestamp          TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_history_timestamp ON metrics_history(timestamp);

CREATE TABLE IF NOT EXISTS risk_history (
	score     REAL NOT NULL,
	timestamp TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_risk_history_timestamp ON risk_history(timestamp);
`

func (s *SQLite) migrate() error {
	_, err := s.WriteDB.Exec(schema)
	return err
}
