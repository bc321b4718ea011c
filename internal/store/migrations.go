package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS toast_ledger (
	owner_id        TEXT NOT NULL,
	notification_id TEXT NOT NULL,
	seen_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (owner_id, notification_id)
);

CREATE INDEX IF NOT EXISTS idx_toast_ledger_seen_at ON toast_ledger(owner_id, seen_at);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS notification_snapshots (
	owner_id   TEXT NOT NULL,
	filter_key TEXT NOT NULL,
	payload    TEXT NOT NULL DEFAULT '[]',
	cycle      INTEGER NOT NULL DEFAULT 0,
	saved_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (owner_id, filter_key)
);
`,
	},
}
