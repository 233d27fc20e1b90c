package store

import (
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS activities (
		id          TEXT PRIMARY KEY,
		type        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		actor_id    TEXT NOT NULL,
		actor_name  TEXT NOT NULL DEFAULT '',
		actor_role  TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		amount      REAL,
		entity_id   TEXT,
		entity_type TEXT,
		metadata    TEXT,
		created_at  DATETIME NOT NULL,
		updated_at  DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activities_created_at ON activities(created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_activities_type_created ON activities(type, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_activities_actor_created ON activities(actor_id, created_at DESC)`,
}

// migrate applies the schema. Statements are idempotent so startup can run
// them unconditionally.
func migrate(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
