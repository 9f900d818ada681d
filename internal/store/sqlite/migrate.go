package sqlite

import (
	"database/sql"
	"fmt"
)

// Migrate runs all schema migrations. Every statement is idempotent.
func Migrate(db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS organizations (
		id                TEXT PRIMARY KEY,
		name              TEXT NOT NULL DEFAULT '',
		organization_type TEXT NOT NULL
		                  CHECK(organization_type IN ('DEMO','TRIAL','PAID')),
		is_active         INTEGER NOT NULL DEFAULT 1,
		trial_started_at  TEXT,
		trial_expires_at  TEXT,
		trial_tokens_used INTEGER NOT NULL DEFAULT 0,
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS organization_limits (
		organization_id       TEXT PRIMARY KEY,
		max_projects          INTEGER NOT NULL,
		max_users             INTEGER NOT NULL,
		max_ai_calls_per_day  INTEGER NOT NULL,
		max_initiatives       INTEGER NOT NULL,
		max_storage_mb        INTEGER NOT NULL,
		max_total_tokens      INTEGER NOT NULL,
		ai_roles_enabled_json TEXT NOT NULL DEFAULT '[]'
	)`,

	`CREATE TABLE IF NOT EXISTS org_ai_policies (
		organization_id    TEXT PRIMARY KEY,
		policy_level       TEXT NOT NULL
		                   CHECK(policy_level IN ('ADVISORY','ASSISTED','PROACTIVE','AUTONOMOUS')),
		auto_approve_rules TEXT NOT NULL DEFAULT '[]',
		updated_at         TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS usage_counters (
		organization_id   TEXT NOT NULL,
		counter_date      TEXT NOT NULL,
		ai_calls_count    INTEGER NOT NULL DEFAULT 0,
		projects_count    INTEGER NOT NULL DEFAULT 0,
		users_count       INTEGER NOT NULL DEFAULT 0,
		initiatives_count INTEGER NOT NULL DEFAULT 0,
		storage_used_mb   INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (organization_id, counter_date)
	)`,

	`CREATE TABLE IF NOT EXISTS ai_actions (
		id                    TEXT PRIMARY KEY,
		user_id               TEXT NOT NULL,
		organization_id       TEXT NOT NULL,
		project_id            TEXT,
		action_type           TEXT NOT NULL,
		payload               TEXT NOT NULL DEFAULT '{}',
		draft_content         TEXT,
		ai_role               TEXT,
		required_policy_level TEXT NOT NULL,
		current_policy_level  TEXT NOT NULL,
		requires_approval     INTEGER NOT NULL,
		status                TEXT NOT NULL
		                      CHECK(status IN ('PENDING','APPROVED','REJECTED','EXECUTED')),
		approved_by           TEXT,
		approved_at           TEXT,
		executed_at           TEXT,
		created_at            TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_ai_actions_status ON ai_actions(status, created_at)`,

	`CREATE TABLE IF NOT EXISTS ai_audit_logs (
		id                 TEXT PRIMARY KEY,
		user_id            TEXT NOT NULL,
		organization_id    TEXT NOT NULL,
		project_id         TEXT,
		action_id          TEXT NOT NULL,
		action_type        TEXT NOT NULL,
		action_description TEXT NOT NULL DEFAULT '',
		ai_role            TEXT,
		policy_level       TEXT NOT NULL,
		user_decision      TEXT NOT NULL CHECK(user_decision IN ('APPROVED','REJECTED')),
		user_feedback      TEXT,
		created_at         TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_ai_audit_logs_org ON ai_audit_logs(organization_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS project_ai_settings (
		project_id      TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		ai_role         TEXT NOT NULL DEFAULT 'ADVISOR',
		regulatory_mode INTEGER NOT NULL DEFAULT 0,
		updated_at      TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS tasks (
		id               TEXT PRIMARY KEY,
		project_id       TEXT NOT NULL,
		created_by       TEXT NOT NULL,
		title            TEXT NOT NULL,
		description      TEXT NOT NULL DEFAULT '',
		priority         TEXT NOT NULL DEFAULT 'MEDIUM',
		assignee_id      TEXT,
		status           TEXT NOT NULL,
		source_action_id TEXT NOT NULL,
		created_at       TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS initiatives (
		id               TEXT PRIMARY KEY,
		organization_id  TEXT NOT NULL,
		project_id       TEXT,
		name             TEXT NOT NULL,
		summary          TEXT NOT NULL DEFAULT '',
		objective        TEXT NOT NULL DEFAULT '',
		owner_id         TEXT NOT NULL,
		status           TEXT NOT NULL,
		source_action_id TEXT NOT NULL,
		created_at       TEXT NOT NULL
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_source_action ON tasks(source_action_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_initiatives_source_action ON initiatives(source_action_id)`,
}
