package consentgrant

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"github.com/carevault/dlt-consent/pkg/types"
)

// World-state key prefixes. One consent document per patient keeps the
// request history and the accessor index in a single PutState, so a
// transition and its index maintenance commit together or not at all.
const (
	consentKeyPrefix = "consent_"
	recordsKeyPrefix = "records_"
)

const secondsPerHour = 3600

// SmartContract owns the access-grant state machine: the per-patient request
// history, the accessor index derived from it, and the record ledger the
// index gates.
type SmartContract struct {
	contractapi.Contract

	// clock is read exactly once per operation. Overridable so tests can
	// drive the expiry arithmetic deterministically.
	clock func() time.Time
}

func (s *SmartContract) now() int64 {
	if s.clock != nil {
		return s.clock().Unix()
	}
	return time.Now().Unix()
}

// RequestAccess appends a pending access request for the caller against the
// given patient's records and returns its index in the patient's history.
// Any authenticated caller may request access to any patient; requesting is
// how authorization begins. Duplicate pending requests from the same
// requester are tolerated and tracked independently.
func (s *SmartContract) RequestAccess(ctx contractapi.TransactionContextInterface, patientID string, durationHours uint64) (uint64, error) {
	if patientID == "" {
		return 0, types.NewValidationError(types.ErrCodeInvalidInput, "patient ID is required")
	}
	if durationHours == 0 {
		return 0, types.NewInvalidDurationError("requested duration must be at least one hour")
	}

	caller, err := s.callerIdentity(ctx)
	if err != nil {
		return 0, err
	}

	state, err := s.loadConsent(ctx, patientID)
	if err != nil {
		return 0, err
	}

	state.Requests = append(state.Requests, types.AccessRequest{
		Requester:              caller,
		RequestedAt:            s.now(),
		Status:                 types.StatusPending,
		RequestedDurationHours: durationHours,
	})

	if err := s.saveConsent(ctx, patientID, state); err != nil {
		return 0, err
	}

	return uint64(len(state.Requests) - 1), nil
}

// RespondToRequest resolves a pending request. Only the patient who owns the
// request may respond, and a request is resolved exactly once. Approval
// stamps grantedAt and expiresAt atomically and upserts the accessor index;
// rejection leaves the index untouched.
func (s *SmartContract) RespondToRequest(ctx contractapi.TransactionContextInterface, patientID string, requestID uint64, approve bool) error {
	caller, err := s.callerIdentity(ctx)
	if err != nil {
		return err
	}
	if caller != patientID {
		return types.NewNotAuthorizedError("only the patient may respond to an access request")
	}

	state, err := s.loadConsent(ctx, patientID)
	if err != nil {
		return err
	}
	if requestID >= uint64(len(state.Requests)) {
		return types.NewRequestNotFoundError(fmt.Sprintf("request %d does not exist for patient %s", requestID, patientID))
	}

	req := &state.Requests[requestID]
	if req.Status != types.StatusPending {
		return types.NewInvalidStateError(fmt.Sprintf("request %d is already %s", requestID, req.Status))
	}

	if approve {
		now := s.now()
		req.Status = types.StatusApproved
		req.GrantedAt = now
		req.ExpiresAt = now + int64(req.RequestedDurationHours)*secondsPerHour
		upsertAccessor(state, req.Requester, req.ExpiresAt, now, int(requestID))
	} else {
		req.Status = types.StatusRejected
	}

	return s.saveConsent(ctx, patientID, state)
}

// RevokeAccess removes the requester from the patient's accessor index.
// Revoking an absent requester is a no-op, not an error, so client retries
// stay trivial. The request history is never rewritten; only the index
// changes.
func (s *SmartContract) RevokeAccess(ctx contractapi.TransactionContextInterface, patientID string, requesterID string) error {
	caller, err := s.callerIdentity(ctx)
	if err != nil {
		return err
	}
	if caller != patientID {
		return types.NewNotAuthorizedError("only the patient may revoke access")
	}

	state, err := s.loadConsent(ctx, patientID)
	if err != nil {
		return err
	}

	kept := state.Accessors[:0]
	for _, acc := range state.Accessors {
		if acc.Requester != requesterID {
			kept = append(kept, acc)
		}
	}
	state.Accessors = kept

	return s.saveConsent(ctx, patientID, state)
}

// ExtendAccess pushes out the expiry of a currently active grant. An expired
// or revoked grant cannot be extended; it must be re-requested. Both the
// index entry and the approved request it originated from are updated in the
// same transaction so the materialized view never drifts from the history.
func (s *SmartContract) ExtendAccess(ctx contractapi.TransactionContextInterface, patientID string, requesterID string, additionalHours uint64) error {
	caller, err := s.callerIdentity(ctx)
	if err != nil {
		return err
	}
	if caller != patientID {
		return types.NewNotAuthorizedError("only the patient may extend access")
	}
	if additionalHours == 0 {
		return types.NewInvalidDurationError("extension must be at least one hour")
	}

	state, err := s.loadConsent(ctx, patientID)
	if err != nil {
		return err
	}

	acc := findAccessor(state, requesterID)
	if acc == nil {
		return types.NewNotActiveError(fmt.Sprintf("requester %s holds no grant for patient %s", requesterID, patientID))
	}
	if s.now() >= acc.ExpiresAt {
		return types.NewNotActiveError(fmt.Sprintf("grant for requester %s has expired and must be re-requested", requesterID))
	}

	acc.ExpiresAt += int64(additionalHours) * secondsPerHour
	if acc.RequestIndex >= 0 && acc.RequestIndex < len(state.Requests) {
		state.Requests[acc.RequestIndex].ExpiresAt = acc.ExpiresAt
	}

	return s.saveConsent(ctx, patientID, state)
}

// HasAccess reports whether the requester holds an unrevoked, unexpired
// grant for the patient. Pure query: liveness is recomputed from now() and
// the stored expiry on every read, never by a background sweep.
func (s *SmartContract) HasAccess(ctx contractapi.TransactionContextInterface, patientID string, requesterID string) (bool, error) {
	state, err := s.loadConsent(ctx, patientID)
	if err != nil {
		return false, err
	}

	acc := findAccessor(state, requesterID)
	if acc == nil {
		return false, nil
	}
	return s.now() < acc.ExpiresAt, nil
}

// GetAccessExpiry returns the stored expiry for the requester's index entry,
// in unix seconds, or 0 when no entry exists. The value may lie in the past:
// callers combine it with their own clock so UIs can tell "expired" apart
// from "never granted".
func (s *SmartContract) GetAccessExpiry(ctx contractapi.TransactionContextInterface, patientID string, requesterID string) (int64, error) {
	state, err := s.loadConsent(ctx, patientID)
	if err != nil {
		return 0, err
	}

	if acc := findAccessor(state, requesterID); acc != nil {
		return acc.ExpiresAt, nil
	}
	return 0, nil
}

// GetActiveAccessors returns the patient's full accessor index, including
// entries whose expiry has passed. Order is insertion order of first
// approval; re-approvals and extensions update entries in place.
func (s *SmartContract) GetActiveAccessors(ctx contractapi.TransactionContextInterface, patientID string) ([]types.ActiveAccessor, error) {
	state, err := s.loadConsent(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return state.Accessors, nil
}

// GetRequests returns the patient's complete request history in creation
// order. Never filtered, never deleted.
func (s *SmartContract) GetRequests(ctx contractapi.TransactionContextInterface, patientID string) ([]types.AccessRequest, error) {
	state, err := s.loadConsent(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return state.Requests, nil
}

// AddRecord appends a record metadata entry to the patient's ledger. The
// submitter is the caller, who must be the patient or hold an active grant.
func (s *SmartContract) AddRecord(ctx contractapi.TransactionContextInterface, patientID string, contentHash string, displayName string) error {
	if contentHash == "" {
		return types.NewValidationError(types.ErrCodeInvalidInput, "content hash is required")
	}

	caller, err := s.callerIdentity(ctx)
	if err != nil {
		return err
	}
	allowed, err := s.callerMayRead(ctx, patientID, caller)
	if err != nil {
		return err
	}
	if !allowed {
		return types.NewNotAuthorizedError("caller holds no active grant for this patient")
	}

	records, err := s.loadRecords(ctx, patientID)
	if err != nil {
		return err
	}

	records = append(records, types.Record{
		ContentHash: contentHash,
		DisplayName: displayName,
		Submitter:   caller,
		CreatedAt:   s.now(),
	})

	return s.saveRecords(ctx, patientID, records)
}

// GetRecords returns the patient's record ledger. HasAccess is the sole gate
// before record metadata is released to a non-owner caller.
func (s *SmartContract) GetRecords(ctx contractapi.TransactionContextInterface, patientID string) ([]types.Record, error) {
	caller, err := s.callerIdentity(ctx)
	if err != nil {
		return nil, err
	}
	allowed, err := s.callerMayRead(ctx, patientID, caller)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, types.NewNotAuthorizedError("caller holds no active grant for this patient")
	}

	return s.loadRecords(ctx, patientID)
}

// Helper functions

// callerMayRead reports whether caller is the patient or an active accessor.
func (s *SmartContract) callerMayRead(ctx contractapi.TransactionContextInterface, patientID, caller string) (bool, error) {
	if caller == patientID {
		return true, nil
	}
	return s.HasAccess(ctx, patientID, caller)
}

// callerIdentity gets the identity of the transaction caller
func (s *SmartContract) callerIdentity(ctx contractapi.TransactionContextInterface) (string, error) {
	id, err := ctx.GetClientIdentity().GetID()
	if err != nil {
		return "", fmt.Errorf("failed to get client ID: %v", err)
	}
	return id, nil
}

func (s *SmartContract) loadConsent(ctx contractapi.TransactionContextInterface, patientID string) (*types.ConsentState, error) {
	data, err := ctx.GetStub().GetState(consentKeyPrefix + patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to read consent state from world state: %v", err)
	}
	if data == nil {
		return &types.ConsentState{}, nil
	}

	var state types.ConsentState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal consent state: %v", err)
	}
	return &state, nil
}

func (s *SmartContract) saveConsent(ctx contractapi.TransactionContextInterface, patientID string, state *types.ConsentState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := ctx.GetStub().PutState(consentKeyPrefix+patientID, data); err != nil {
		return fmt.Errorf("failed to put consent state to world state: %v", err)
	}
	return nil
}

func (s *SmartContract) loadRecords(ctx contractapi.TransactionContextInterface, patientID string) ([]types.Record, error) {
	data, err := ctx.GetStub().GetState(recordsKeyPrefix + patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to read records from world state: %v", err)
	}
	if data == nil {
		return []types.Record{}, nil
	}

	var records []types.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal records: %v", err)
	}
	return records, nil
}

func (s *SmartContract) saveRecords(ctx contractapi.TransactionContextInterface, patientID string, records []types.Record) error {
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	if err := ctx.GetStub().PutState(recordsKeyPrefix+patientID, data); err != nil {
		return fmt.Errorf("failed to put records to world state: %v", err)
	}
	return nil
}

// upsertAccessor replaces the requester's index entry in place, or appends
// when none exists. Updating in place keeps the index ordered by first
// approval: a re-approval must not move the entry to the end.
func upsertAccessor(state *types.ConsentState, requester string, expiresAt, grantedAt int64, requestIndex int) {
	for i := range state.Accessors {
		if state.Accessors[i].Requester == requester {
			state.Accessors[i].ExpiresAt = expiresAt
			state.Accessors[i].GrantedAt = grantedAt
			state.Accessors[i].RequestIndex = requestIndex
			return
		}
	}
	state.Accessors = append(state.Accessors, types.ActiveAccessor{
		Requester:    requester,
		ExpiresAt:    expiresAt,
		GrantedAt:    grantedAt,
		RequestIndex: requestIndex,
	})
}

func findAccessor(state *types.ConsentState, requester string) *types.ActiveAccessor {
	for i := range state.Accessors {
		if state.Accessors[i].Requester == requester {
			return &state.Accessors[i]
		}
	}
	return nil
}
