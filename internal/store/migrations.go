package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// dialect captures the few DDL differences between SQLite and Postgres.
type dialect struct {
	name      string
	serialKey string
	double    string
}

var (
	sqliteDialect   = dialect{name: "sqlite", serialKey: "INTEGER PRIMARY KEY AUTOINCREMENT", double: "REAL"}
	postgresDialect = dialect{name: "postgres", serialKey: "BIGSERIAL PRIMARY KEY", double: "DOUBLE PRECISION"}
)

// Timestamps are stored as unix nanoseconds so both backends compare and
// order them identically.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS action_proposals (
    id                TEXT PRIMARY KEY,
    company_id        TEXT NOT NULL,
    action_type       TEXT NOT NULL,
    agent             TEXT NOT NULL,
    title             TEXT NOT NULL DEFAULT '',
    description       TEXT NOT NULL DEFAULT '',
    draft_content     TEXT NOT NULL DEFAULT '',
    reasoning         TEXT NOT NULL DEFAULT '',
    entity_snapshot   TEXT NOT NULL DEFAULT '{}',
    risk_level        TEXT NOT NULL,
    rule_id           TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL,
    assigned_reviewer TEXT NOT NULL DEFAULT '',
    reviewed_by       TEXT NOT NULL DEFAULT '',
    edited_content    TEXT NOT NULL DEFAULT '',
    rejection_reason  TEXT NOT NULL DEFAULT '',
    edit_similarity   {{double}},
    created_at        BIGINT NOT NULL,
    expires_at        BIGINT,
    reviewed_at       BIGINT,
    executed_at       BIGINT
);
CREATE INDEX IF NOT EXISTS idx_actions_status_expiry ON action_proposals(status, expires_at);
CREATE INDEX IF NOT EXISTS idx_actions_company_status ON action_proposals(company_id, status, created_at);

CREATE TABLE IF NOT EXISTS autonomy_rules (
    id                     TEXT PRIMARY KEY,
    company_id             TEXT NOT NULL,
    action_type            TEXT NOT NULL,
    agent                  TEXT NOT NULL,
    name                   TEXT NOT NULL DEFAULT '',
    description            TEXT NOT NULL DEFAULT '',
    condition_json         TEXT NOT NULL DEFAULT '',
    risk_level             TEXT NOT NULL,
    priority               INTEGER NOT NULL DEFAULT 0,
    promotion_threshold    {{double}} NOT NULL,
    active                 INTEGER NOT NULL DEFAULT 1,
    level3_enabled         INTEGER NOT NULL DEFAULT 0,
    level3_changed_at      BIGINT,
    total_actions          BIGINT NOT NULL DEFAULT 0,
    approved_without_edits BIGINT NOT NULL DEFAULT 0,
    approved_with_edits    BIGINT NOT NULL DEFAULT 0,
    rejected               BIGINT NOT NULL DEFAULT 0,
    auto_executed          BIGINT NOT NULL DEFAULT 0,
    created_at             BIGINT NOT NULL,
    updated_at             BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rules_scope ON autonomy_rules(action_type, active, company_id, agent);

CREATE TABLE IF NOT EXISTS audit_entries (
    seq        {{serial}},
    id         TEXT NOT NULL UNIQUE,
    action_id  TEXT NOT NULL DEFAULT '',
    rule_id    TEXT NOT NULL DEFAULT '',
    company_id TEXT NOT NULL DEFAULT '',
    event_type TEXT NOT NULL,
    actor      TEXT NOT NULL,
    ts         BIGINT NOT NULL,
    payload    TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_entries(action_id, ts);
CREATE INDEX IF NOT EXISTS idx_audit_rule ON audit_entries(rule_id, ts);
CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_entries(ts);
`,
	},
}

func (d dialect) render(sql string) string {
	return strings.NewReplacer("{{serial}}", d.serialKey, "{{double}}", d.double).Replace(sql)
}

// migrate applies every migration not yet recorded in schema_versions.
func migrate(ctx context.Context, db *sqlx.DB, d dialect) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_versions (
    version    INTEGER PRIMARY KEY,
    applied_at BIGINT NOT NULL DEFAULT 0
)`); err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := db.GetContext(ctx, &count, db.Rebind(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`), m.version); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, d.render(m.sql)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO schema_versions(version) VALUES (?)`), m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}
