package database

import (
	"context"
	"fmt"
)

// CreateSchema creates the schema for the consent event mirror. The ledger
// remains the source of truth; these tables only exist so activity feeds can
// be paged without replaying chaincode queries.
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.Info("Creating database schema...")

	statements := []string{
		createConsentEventsTable,
		createConsentEventsIndexes,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}

	db.logger.Info("Database schema created successfully")
	return nil
}

const (
	createConsentEventsTable = `
		CREATE TABLE IF NOT EXISTS consent_events (
			id UUID PRIMARY KEY,
			patient_id VARCHAR(128) NOT NULL,
			actor_id VARCHAR(128) NOT NULL,
			requester_id VARCHAR(128) NOT NULL,
			action VARCHAR(32) NOT NULL,
			request_index BIGINT NOT NULL DEFAULT -1,
			expires_at BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`

	createConsentEventsIndexes = `
		CREATE INDEX IF NOT EXISTS idx_consent_events_patient
			ON consent_events (patient_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_consent_events_requester
			ON consent_events (requester_id, created_at DESC);`
)
