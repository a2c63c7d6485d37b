package types

import "time"

// RequestStatus tracks the lifecycle of an access request. Transitions are
// monotonic: a request leaves pending exactly once and never returns.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// AccessRequest is one request event, not one requester: the same requester
// may appear in a patient's history any number of times. GrantedAt and
// ExpiresAt are zero until the pending->approved transition stamps them;
// ExpiresAt may later grow through extensions but never shrinks. All
// timestamps are unix seconds.
type AccessRequest struct {
	Requester              string        `json:"requester"`
	RequestedAt            int64         `json:"requested_at"`
	Status                 RequestStatus `json:"status"`
	RequestedDurationHours uint64        `json:"requested_duration_hours"`
	GrantedAt              int64         `json:"granted_at,omitempty"`
	ExpiresAt              int64         `json:"expires_at,omitempty"`
}

// ActiveAccessor is one entry of the per-patient accessor index: the
// materialized view of "who holds a grant". Entries are not pruned when the
// expiry passes; only an explicit revocation removes them. RequestIndex
// points at the approved request the grant originated from so extensions can
// update both in the same transaction.
type ActiveAccessor struct {
	Requester    string `json:"requester"`
	ExpiresAt    int64  `json:"expires_at"`
	GrantedAt    int64  `json:"granted_at"`
	RequestIndex int    `json:"request_index"`
}

// ConsentState is the per-patient consent document stored on the ledger.
// Requests is the append-only source of truth; Accessors is the index
// maintained in lockstep with it.
type ConsentState struct {
	Requests  []AccessRequest  `json:"requests"`
	Accessors []ActiveAccessor `json:"accessors"`
}

// Record is one entry of a patient's record ledger. Records hold the content
// hash and display metadata only; the content itself lives off-chain.
// Entries are never mutated or deleted.
type Record struct {
	ContentHash string `json:"content_hash"`
	DisplayName string `json:"display_name"`
	Submitter   string `json:"submitter"`
	CreatedAt   int64  `json:"created_at"`
}

// ConsentEvent is one row of the off-chain consent event mirror, written
// after each successful consent mutation so UIs can page through activity
// without querying the ledger.
type ConsentEvent struct {
	ID           string    `json:"id"`
	PatientID    string    `json:"patient_id"`
	ActorID      string    `json:"actor_id"`
	RequesterID  string    `json:"requester_id"`
	Action       string    `json:"action"`
	RequestIndex int64     `json:"request_index"`
	ExpiresAt    int64     `json:"expires_at,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Consent event actions.
const (
	EventAccessRequested = "access_requested"
	EventAccessApproved  = "access_approved"
	EventAccessRejected  = "access_rejected"
	EventAccessRevoked   = "access_revoked"
	EventAccessExtended  = "access_extended"
	EventRecordAdded     = "record_added"
)
