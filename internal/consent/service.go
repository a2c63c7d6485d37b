package consent

import (
	"context"
	"time"

	"github.com/carevault/dlt-consent/pkg/logger"
	"github.com/carevault/dlt-consent/pkg/monitoring"
	"github.com/carevault/dlt-consent/pkg/repository"
	"github.com/carevault/dlt-consent/pkg/types"
)

// ConsentService orchestrates consent operations: it validates input, drives
// the ledger client, and mirrors successful mutations into the off-chain
// event store. The ledger is the source of truth; mirror failures are logged
// and counted, never surfaced to the caller.
type ConsentService struct {
	client  ConsentClient
	events  repository.ConsentEventStore
	logger  *logger.Logger
	metrics *monitoring.MetricsCollector
}

// NewConsentService creates a new consent service. The event store may be nil
// when the service runs without a database.
func NewConsentService(client ConsentClient, events repository.ConsentEventStore, log *logger.Logger, metrics *monitoring.MetricsCollector) *ConsentService {
	return &ConsentService{
		client:  client,
		events:  events,
		logger:  log,
		metrics: metrics,
	}
}

// RequestAccess submits an access request by the caller against the patient
func (s *ConsentService) RequestAccess(ctx context.Context, caller, patientID string, durationHours uint64) (uint64, error) {
	start := time.Now()

	requestID, err := s.client.RequestAccess(ctx, caller, patientID, durationHours)
	s.recordOperation("request_access", err, start)
	s.logger.ConsentOp("request_access", caller, patientID, err == nil, map[string]interface{}{
		"duration_hours": durationHours,
	})
	if err != nil {
		return 0, err
	}

	s.mirrorEvent(ctx, &types.ConsentEvent{
		PatientID:    patientID,
		ActorID:      caller,
		RequesterID:  caller,
		Action:       types.EventAccessRequested,
		RequestIndex: int64(requestID),
	})

	return requestID, nil
}

// RespondToRequest resolves a pending request on the patient's behalf
func (s *ConsentService) RespondToRequest(ctx context.Context, caller, patientID string, requestID uint64, approve bool) error {
	start := time.Now()

	err := s.client.RespondToRequest(ctx, caller, patientID, requestID, approve)
	s.recordOperation("respond_to_request", err, start)
	s.logger.ConsentOp("respond_to_request", caller, patientID, err == nil, map[string]interface{}{
		"request_id": requestID,
		"approve":    approve,
	})
	if err != nil {
		return err
	}

	action := types.EventAccessRejected
	var expiresAt int64
	var requesterID string
	if approve {
		action = types.EventAccessApproved
	}
	// Look the resolved request back up so the mirror carries the requester
	// and the stamped expiry.
	if requests, lookupErr := s.client.GetRequests(ctx, caller, patientID); lookupErr == nil && requestID < uint64(len(requests)) {
		requesterID = requests[requestID].Requester
		expiresAt = requests[requestID].ExpiresAt
	}

	s.mirrorEvent(ctx, &types.ConsentEvent{
		PatientID:    patientID,
		ActorID:      caller,
		RequesterID:  requesterID,
		Action:       action,
		RequestIndex: int64(requestID),
		ExpiresAt:    expiresAt,
	})

	return nil
}

// RevokeAccess removes a requester's grant on the patient's behalf
func (s *ConsentService) RevokeAccess(ctx context.Context, caller, patientID, requesterID string) error {
	start := time.Now()

	err := s.client.RevokeAccess(ctx, caller, patientID, requesterID)
	s.recordOperation("revoke_access", err, start)
	s.logger.ConsentOp("revoke_access", caller, patientID, err == nil, map[string]interface{}{
		"requester_id": requesterID,
	})
	if err != nil {
		return err
	}

	s.mirrorEvent(ctx, &types.ConsentEvent{
		PatientID:    patientID,
		ActorID:      caller,
		RequesterID:  requesterID,
		Action:       types.EventAccessRevoked,
		RequestIndex: -1,
	})

	return nil
}

// ExtendAccess pushes out the expiry of an active grant on the patient's behalf
func (s *ConsentService) ExtendAccess(ctx context.Context, caller, patientID, requesterID string, additionalHours uint64) error {
	start := time.Now()

	err := s.client.ExtendAccess(ctx, caller, patientID, requesterID, additionalHours)
	s.recordOperation("extend_access", err, start)
	s.logger.ConsentOp("extend_access", caller, patientID, err == nil, map[string]interface{}{
		"requester_id":     requesterID,
		"additional_hours": additionalHours,
	})
	if err != nil {
		return err
	}

	var expiresAt int64
	if expiry, lookupErr := s.client.GetAccessExpiry(ctx, caller, patientID, requesterID); lookupErr == nil {
		expiresAt = expiry
	}

	s.mirrorEvent(ctx, &types.ConsentEvent{
		PatientID:    patientID,
		ActorID:      caller,
		RequesterID:  requesterID,
		Action:       types.EventAccessExtended,
		RequestIndex: -1,
		ExpiresAt:    expiresAt,
	})

	return nil
}

// HasAccess evaluates whether the requester currently holds access
func (s *ConsentService) HasAccess(ctx context.Context, caller, patientID, requesterID string) (bool, error) {
	granted, err := s.client.HasAccess(ctx, caller, patientID, requesterID)
	if err != nil {
		return false, err
	}

	if s.metrics != nil {
		s.metrics.RecordAccessCheck(granted)
	}
	s.logger.AccessCheck(patientID, requesterID, granted)

	return granted, nil
}

// GetAccessExpiry returns the stored expiry for the requester, 0 when absent
func (s *ConsentService) GetAccessExpiry(ctx context.Context, caller, patientID, requesterID string) (int64, error) {
	return s.client.GetAccessExpiry(ctx, caller, patientID, requesterID)
}

// GetActiveAccessors returns the patient's accessor index
func (s *ConsentService) GetActiveAccessors(ctx context.Context, caller, patientID string) ([]types.ActiveAccessor, error) {
	return s.client.GetActiveAccessors(ctx, caller, patientID)
}

// GetRequests returns the patient's request history
func (s *ConsentService) GetRequests(ctx context.Context, caller, patientID string) ([]types.AccessRequest, error) {
	return s.client.GetRequests(ctx, caller, patientID)
}

// AddRecord appends record metadata to the patient's ledger
func (s *ConsentService) AddRecord(ctx context.Context, caller, patientID, contentHash, displayName string) error {
	start := time.Now()

	err := s.client.AddRecord(ctx, caller, patientID, contentHash, displayName)
	s.recordOperation("add_record", err, start)
	s.logger.ConsentOp("add_record", caller, patientID, err == nil, nil)
	if err != nil {
		return err
	}

	s.mirrorEvent(ctx, &types.ConsentEvent{
		PatientID:    patientID,
		ActorID:      caller,
		RequesterID:  caller,
		Action:       types.EventRecordAdded,
		RequestIndex: -1,
	})

	return nil
}

// GetRecords returns the patient's record ledger
func (s *ConsentService) GetRecords(ctx context.Context, caller, patientID string) ([]types.Record, error) {
	return s.client.GetRecords(ctx, caller, patientID)
}

// ListConsentEvents pages through the off-chain consent activity mirror
func (s *ConsentService) ListConsentEvents(ctx context.Context, patientID string, limit, offset int) ([]*types.ConsentEvent, error) {
	if s.events == nil {
		return []*types.ConsentEvent{}, nil
	}
	return s.events.ListByPatient(ctx, patientID, limit, offset)
}

func (s *ConsentService) recordOperation(operation string, err error, start time.Time) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordConsentOperation(operation, status, time.Since(start))
}

// mirrorEvent writes one event row, best effort
func (s *ConsentService) mirrorEvent(ctx context.Context, event *types.ConsentEvent) {
	if s.events == nil {
		return
	}

	err := s.events.Record(ctx, event)
	status := "success"
	if err != nil {
		status = "error"
		s.logger.WithError(err).WithField("action", event.Action).Warn("Failed to mirror consent event")
	}
	if s.metrics != nil {
		s.metrics.RecordEventMirrorWrite(event.Action, status)
	}
}
