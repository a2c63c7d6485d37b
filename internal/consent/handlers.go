package consent

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/carevault/dlt-consent/pkg/logger"
	"github.com/carevault/dlt-consent/pkg/types"
)

// ConsentAPI is the surface the HTTP handlers drive. ConsentService is the
// production implementation; tests substitute their own.
type ConsentAPI interface {
	RequestAccess(ctx context.Context, caller, patientID string, durationHours uint64) (uint64, error)
	RespondToRequest(ctx context.Context, caller, patientID string, requestID uint64, approve bool) error
	RevokeAccess(ctx context.Context, caller, patientID, requesterID string) error
	ExtendAccess(ctx context.Context, caller, patientID, requesterID string, additionalHours uint64) error
	HasAccess(ctx context.Context, caller, patientID, requesterID string) (bool, error)
	GetAccessExpiry(ctx context.Context, caller, patientID, requesterID string) (int64, error)
	GetActiveAccessors(ctx context.Context, caller, patientID string) ([]types.ActiveAccessor, error)
	GetRequests(ctx context.Context, caller, patientID string) ([]types.AccessRequest, error)
	AddRecord(ctx context.Context, caller, patientID, contentHash, displayName string) error
	GetRecords(ctx context.Context, caller, patientID string) ([]types.Record, error)
	ListConsentEvents(ctx context.Context, patientID string, limit, offset int) ([]*types.ConsentEvent, error)
}

// Handlers handles HTTP requests for the consent service
type Handlers struct {
	service ConsentAPI
	logger  *logger.Logger
}

// NewHandlers creates new HTTP handlers
func NewHandlers(service ConsentAPI, log *logger.Logger) *Handlers {
	return &Handlers{
		service: service,
		logger:  log,
	}
}

// RegisterRoutes registers HTTP routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	// Access request lifecycle
	router.HandleFunc("/patients/{patientID}/access-requests", h.RequestAccess).Methods("POST")
	router.HandleFunc("/patients/{patientID}/access-requests", h.GetRequests).Methods("GET")
	router.HandleFunc("/patients/{patientID}/access-requests/{requestID}/response", h.RespondToRequest).Methods("POST")

	// Accessor index
	router.HandleFunc("/patients/{patientID}/accessors", h.GetActiveAccessors).Methods("GET")
	router.HandleFunc("/patients/{patientID}/accessors/{requesterID}", h.GetAccessStatus).Methods("GET")
	router.HandleFunc("/patients/{patientID}/accessors/{requesterID}", h.RevokeAccess).Methods("DELETE")
	router.HandleFunc("/patients/{patientID}/accessors/{requesterID}/extend", h.ExtendAccess).Methods("POST")

	// Record ledger
	router.HandleFunc("/patients/{patientID}/records", h.AddRecord).Methods("POST")
	router.HandleFunc("/patients/{patientID}/records", h.GetRecords).Methods("GET")

	// Off-chain activity mirror
	router.HandleFunc("/patients/{patientID}/consent-events", h.ListConsentEvents).Methods("GET")
}

// RequestAccess handles access request submission
func (h *Handlers) RequestAccess(w http.ResponseWriter, r *http.Request) {
	caller := CallerID(r.Context())
	if caller == "" {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Caller identity not found in request")
		return
	}

	patientID := mux.Vars(r)["patientID"]

	var body struct {
		DurationHours uint64 `json:"duration_hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}

	requestID, err := h.service.RequestAccess(r.Context(), caller, patientID, body.DurationHours)
	if err != nil {
		h.writeServiceError(w, r, err, "request_failed")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"request_id": requestID,
		"status":     types.StatusPending,
	})
}

// GetRequests handles request history retrieval
func (h *Handlers) GetRequests(w http.ResponseWriter, r *http.Request) {
	caller := CallerID(r.Context())
	if caller == "" {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Caller identity not found in request")
		return
	}

	patientID := mux.Vars(r)["patientID"]

	requests, err := h.service.GetRequests(r.Context(), caller, patientID)
	if err != nil {
		h.writeServiceError(w, r, err, "retrieval_failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests": requests,
		"count":    len(requests),
	})
}

// RespondToRequest handles approval or rejection of a pending request
func (h *Handlers) RespondToRequest(w http.ResponseWriter, r *http.Request) {
	caller := CallerID(r.Context())
	if caller == "" {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Caller identity not found in request")
		return
	}

	vars := mux.Vars(r)
	patientID := vars["patientID"]

	requestID, err := strconv.ParseUint(vars["requestID"], 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Request ID must be a non-negative integer")
		return
	}

	var body struct {
		Approve bool `json:"approve"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}

	if err := h.service.RespondToRequest(r.Context(), caller, patientID, requestID, body.Approve); err != nil {
		h.writeServiceError(w, r, err, "response_failed")
		return
	}

	status := types.StatusRejected
	if body.Approve {
		status = types.StatusApproved
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"request_id": requestID,
		"status":     status,
	})
}

// GetActiveAccessors handles accessor index retrieval
func (h *Handlers) GetActiveAccessors(w http.ResponseWriter, r *http.Request) {
	caller := CallerID(r.Context())
	if caller == "" {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Caller identity not found in request")
		return
	}

	patientID := mux.Vars(r)["patientID"]

	accessors, err := h.service.GetActiveAccessors(r.Context(), caller, patientID)
	if err != nil {
		h.writeServiceError(w, r, err, "retrieval_failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"accessors": accessors,
		"count":     len(accessors),
	})
}

// GetAccessStatus handles the combined access predicate and expiry query
func (h *Handlers) GetAccessStatus(w http.ResponseWriter, r *http.Request) {
	caller := CallerID(r.Context())
	if caller == "" {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Caller identity not found in request")
		return
	}

	vars := mux.Vars(r)
	patientID := vars["patientID"]
	requesterID := vars["requesterID"]

	hasAccess, err := h.service.HasAccess(r.Context(), caller, patientID, requesterID)
	if err != nil {
		h.writeServiceError(w, r, err, "retrieval_failed")
		return
	}

	expiry, err := h.service.GetAccessExpiry(r.Context(), caller, patientID, requesterID)
	if err != nil {
		h.writeServiceError(w, r, err, "retrieval_failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"requester_id": requesterID,
		"has_access":   hasAccess,
		"expires_at":   expiry,
	})
}

// RevokeAccess handles grant revocation
func (h *Handlers) RevokeAccess(w http.ResponseWriter, r *http.Request) {
	caller := CallerID(r.Context())
	if caller == "" {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Caller identity not found in request")
		return
	}

	vars := mux.Vars(r)
	patientID := vars["patientID"]
	requesterID := vars["requesterID"]

	if err := h.service.RevokeAccess(r.Context(), caller, patientID, requesterID); err != nil {
		h.writeServiceError(w, r, err, "revocation_failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Access revoked"})
}

// ExtendAccess handles grant extension
func (h *Handlers) ExtendAccess(w http.ResponseWriter, r *http.Request) {
	caller := CallerID(r.Context())
	if caller == "" {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Caller identity not found in request")
		return
	}

	vars := mux.Vars(r)
	patientID := vars["patientID"]
	requesterID := vars["requesterID"]

	var body struct {
		AdditionalHours uint64 `json:"additional_hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}

	if err := h.service.ExtendAccess(r.Context(), caller, patientID, requesterID, body.AdditionalHours); err != nil {
		h.writeServiceError(w, r, err, "extension_failed")
		return
	}

	expiry, err := h.service.GetAccessExpiry(r.Context(), caller, patientID, requesterID)
	if err != nil {
		h.writeServiceError(w, r, err, "retrieval_failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"requester_id": requesterID,
		"expires_at":   expiry,
	})
}

// AddRecord handles record metadata submission
func (h *Handlers) AddRecord(w http.ResponseWriter, r *http.Request) {
	caller := CallerID(r.Context())
	if caller == "" {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Caller identity not found in request")
		return
	}

	patientID := mux.Vars(r)["patientID"]

	var body struct {
		ContentHash string `json:"content_hash"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}

	if err := h.service.AddRecord(r.Context(), caller, patientID, body.ContentHash, body.DisplayName); err != nil {
		h.writeServiceError(w, r, err, "record_failed")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{"message": "Record added"})
}

// GetRecords handles record ledger retrieval
func (h *Handlers) GetRecords(w http.ResponseWriter, r *http.Request) {
	caller := CallerID(r.Context())
	if caller == "" {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Caller identity not found in request")
		return
	}

	patientID := mux.Vars(r)["patientID"]

	records, err := h.service.GetRecords(r.Context(), caller, patientID)
	if err != nil {
		h.writeServiceError(w, r, err, "retrieval_failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

// ListConsentEvents handles consent activity feed retrieval
func (h *Handlers) ListConsentEvents(w http.ResponseWriter, r *http.Request) {
	caller := CallerID(r.Context())
	if caller == "" {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Caller identity not found in request")
		return
	}

	patientID := mux.Vars(r)["patientID"]

	// The activity feed belongs to the patient alone.
	if caller != patientID {
		h.writeError(w, http.StatusForbidden, "access_denied", "Only the patient may view their consent activity")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	events, err := h.service.ListConsentEvents(r.Context(), patientID, limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err, "retrieval_failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// writeServiceError maps consent error codes onto HTTP statuses
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallbackCode string) {
	h.logger.WithError(err).WithField("path", r.URL.Path).Warn("Consent operation failed")

	switch {
	case types.HasCode(err, types.ErrCodeInvalidDuration), types.HasCode(err, types.ErrCodeInvalidInput):
		h.writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case types.HasCode(err, types.ErrCodeNotAuthorized):
		h.writeError(w, http.StatusForbidden, "access_denied", err.Error())
	case types.HasCode(err, types.ErrCodeRequestNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", err.Error())
	case types.HasCode(err, types.ErrCodeInvalidState), types.HasCode(err, types.ErrCodeNotActive):
		h.writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, fallbackCode, err.Error())
	}
}

// writeJSON writes a JSON response
func (h *Handlers) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

// writeError writes a JSON error response
func (h *Handlers) writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	h.writeJSON(w, statusCode, map[string]string{
		"error":   errorCode,
		"message": message,
	})
}
