package repository

import (
	"context"
	"fmt"

	"github.com/junobuild/satellite/common/db"
)

// Migrate creates the satellite tables. Run through the bootstrap DB init
// hook; every statement is idempotent.
func Migrate(database *db.DB) error {
	ctx := context.Background()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS stable_collection (
			collection TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS stable_asset (
			collection  TEXT NOT NULL REFERENCES stable_collection(collection),
			full_path   TEXT NOT NULL,
			owner       UUID NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			payload     JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL,
			version     BIGINT NOT NULL,
			PRIMARY KEY (collection, full_path)
		)`,
		`CREATE TABLE IF NOT EXISTS proposal (
			proposal_id   BIGINT PRIMARY KEY,
			owner         UUID NOT NULL,
			proposal_type TEXT NOT NULL,
			status        TEXT NOT NULL,
			sha256        BYTEA,
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL,
			executed_at   TIMESTAMPTZ,
			version       BIGINT NOT NULL
		)`,
		`CREATE SEQUENCE IF NOT EXISTS proposal_id_seq START 1`,
		`CREATE TABLE IF NOT EXISTS staged_asset (
			proposal_id BIGINT NOT NULL REFERENCES proposal(proposal_id),
			full_path   TEXT NOT NULL,
			payload     JSONB NOT NULL,
			PRIMARY KEY (proposal_id, full_path)
		)`,
	}

	for _, statement := range statements {
		if _, err := database.Exec(ctx, statement); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
