package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carevault/dlt-consent/pkg/logger"
	"github.com/carevault/dlt-consent/pkg/types"
)

// ConsentEventStore persists the off-chain mirror of consent activity
type ConsentEventStore interface {
	Record(ctx context.Context, event *types.ConsentEvent) error
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*types.ConsentEvent, error)
}

// ConsentEventsRepository is the PostgreSQL-backed event store
type ConsentEventsRepository struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewConsentEventsRepository creates a new consent events repository
func NewConsentEventsRepository(db *sql.DB, log *logger.Logger) *ConsentEventsRepository {
	return &ConsentEventsRepository{
		db:     db,
		logger: log,
	}
}

// Record inserts one consent event row
func (r *ConsentEventsRepository) Record(ctx context.Context, event *types.ConsentEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO consent_events (
			id, patient_id, actor_id, requester_id, action,
			request_index, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.PatientID,
		event.ActorID,
		event.RequesterID,
		event.Action,
		event.RequestIndex,
		event.ExpiresAt,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record consent event: %w", err)
	}

	r.logger.WithPatient(event.PatientID).WithField("action", event.Action).Debug("Consent event recorded")
	return nil
}

// ListByPatient returns a patient's consent events, newest first
func (r *ConsentEventsRepository) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*types.ConsentEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, patient_id, actor_id, requester_id, action,
			   request_index, expires_at, created_at
		FROM consent_events
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list consent events: %w", err)
	}
	defer rows.Close()

	var events []*types.ConsentEvent
	for rows.Next() {
		var event types.ConsentEvent
		if err := rows.Scan(
			&event.ID,
			&event.PatientID,
			&event.ActorID,
			&event.RequesterID,
			&event.Action,
			&event.RequestIndex,
			&event.ExpiresAt,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan consent event: %w", err)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate consent events: %w", err)
	}

	return events, nil
}
