package repository

// Schema definitions for the report ledger.
// Compatible with both SQLite and PostgreSQL.

// schemaReports stores one row per ledger entry. Position is the entry's
// index in the ledger and defines chronological order.
const schemaReports = `
CREATE TABLE IF NOT EXISTS reports (
    position INTEGER PRIMARY KEY,
    timestamp TEXT NOT NULL,
    group_id TEXT NOT NULL,
    reason TEXT NOT NULL,
    checks TEXT NOT NULL,
    num_members INTEGER NOT NULL DEFAULT 0,
    total_amount REAL NOT NULL DEFAULT 0,
    risk_score INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_reports_group ON reports(group_id);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaReports,
	}
}
