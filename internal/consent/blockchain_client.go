package consent

import (
	"context"
	"crypto/x509"
	"sync"
	"time"

	"github.com/hyperledger/fabric-chaincode-go/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/shim"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"github.com/carevault/dlt-consent/chaincode/consent/consentgrant"
	"github.com/carevault/dlt-consent/pkg/config"
	"github.com/carevault/dlt-consent/pkg/logger"
	"github.com/carevault/dlt-consent/pkg/monitoring"
	"github.com/carevault/dlt-consent/pkg/types"
)

// ConsentClient is the ledger-facing interface of the consent service. The
// caller argument is the authenticated identity the transaction executes as.
type ConsentClient interface {
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
}

// LedgerClient runs the ConsentGrant contract in-process against a private
// world state. Deployments that front a real Fabric network swap this for a
// gateway-backed client; the contract code is identical either way, so the
// semantics cannot drift between the two.
type LedgerClient struct {
	config   *config.FabricConfig
	contract *consentgrant.SmartContract
	state    map[string][]byte
	mu       sync.Mutex
	logger   *logger.Logger
	metrics  *monitoring.MetricsCollector
}

// NewLedgerClient creates a ledger client with an empty world state
func NewLedgerClient(cfg *config.FabricConfig, log *logger.Logger, metrics *monitoring.MetricsCollector) *LedgerClient {
	return &LedgerClient{
		config:   cfg,
		contract: &consentgrant.SmartContract{},
		state:    make(map[string][]byte),
		logger:   log,
		metrics:  metrics,
	}
}

// invoke executes one contract function under the world-state lock, which
// stands in for Fabric's per-key transaction ordering.
func (c *LedgerClient) invoke(caller, function string, args []string, fn func(tctx contractapi.TransactionContextInterface) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	tctx := &ledgerTxContext{
		stub:     &worldStateStub{state: c.state},
		identity: &staticIdentity{id: caller, msp: c.config.MSPID},
	}

	err := fn(tctx)

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.RecordLedgerTransaction(function, status, time.Since(start))
	}
	c.logger.LedgerTransaction(function, args, err == nil, nil)

	return err
}

// RequestAccess submits a RequestAccess transaction as the caller
func (c *LedgerClient) RequestAccess(ctx context.Context, caller, patientID string, durationHours uint64) (uint64, error) {
	var requestID uint64
	err := c.invoke(caller, "RequestAccess", []string{patientID}, func(tctx contractapi.TransactionContextInterface) error {
		var err error
		requestID, err = c.contract.RequestAccess(tctx, patientID, durationHours)
		return err
	})
	return requestID, err
}

// RespondToRequest submits a RespondToRequest transaction as the caller
func (c *LedgerClient) RespondToRequest(ctx context.Context, caller, patientID string, requestID uint64, approve bool) error {
	return c.invoke(caller, "RespondToRequest", []string{patientID}, func(tctx contractapi.TransactionContextInterface) error {
		return c.contract.RespondToRequest(tctx, patientID, requestID, approve)
	})
}

// RevokeAccess submits a RevokeAccess transaction as the caller
func (c *LedgerClient) RevokeAccess(ctx context.Context, caller, patientID, requesterID string) error {
	return c.invoke(caller, "RevokeAccess", []string{patientID, requesterID}, func(tctx contractapi.TransactionContextInterface) error {
		return c.contract.RevokeAccess(tctx, patientID, requesterID)
	})
}

// ExtendAccess submits an ExtendAccess transaction as the caller
func (c *LedgerClient) ExtendAccess(ctx context.Context, caller, patientID, requesterID string, additionalHours uint64) error {
	return c.invoke(caller, "ExtendAccess", []string{patientID, requesterID}, func(tctx contractapi.TransactionContextInterface) error {
		return c.contract.ExtendAccess(tctx, patientID, requesterID, additionalHours)
	})
}

// HasAccess evaluates the access predicate
func (c *LedgerClient) HasAccess(ctx context.Context, caller, patientID, requesterID string) (bool, error) {
	var granted bool
	err := c.invoke(caller, "HasAccess", []string{patientID, requesterID}, func(tctx contractapi.TransactionContextInterface) error {
		var err error
		granted, err = c.contract.HasAccess(tctx, patientID, requesterID)
		return err
	})
	return granted, err
}

// GetAccessExpiry queries the stored expiry for a requester
func (c *LedgerClient) GetAccessExpiry(ctx context.Context, caller, patientID, requesterID string) (int64, error) {
	var expiry int64
	err := c.invoke(caller, "GetAccessExpiry", []string{patientID, requesterID}, func(tctx contractapi.TransactionContextInterface) error {
		var err error
		expiry, err = c.contract.GetAccessExpiry(tctx, patientID, requesterID)
		return err
	})
	return expiry, err
}

// GetActiveAccessors queries the patient's accessor index
func (c *LedgerClient) GetActiveAccessors(ctx context.Context, caller, patientID string) ([]types.ActiveAccessor, error) {
	var accessors []types.ActiveAccessor
	err := c.invoke(caller, "GetActiveAccessors", []string{patientID}, func(tctx contractapi.TransactionContextInterface) error {
		var err error
		accessors, err = c.contract.GetActiveAccessors(tctx, patientID)
		return err
	})
	return accessors, err
}

// GetRequests queries the patient's request history
func (c *LedgerClient) GetRequests(ctx context.Context, caller, patientID string) ([]types.AccessRequest, error) {
	var requests []types.AccessRequest
	err := c.invoke(caller, "GetRequests", []string{patientID}, func(tctx contractapi.TransactionContextInterface) error {
		var err error
		requests, err = c.contract.GetRequests(tctx, patientID)
		return err
	})
	return requests, err
}

// AddRecord submits an AddRecord transaction as the caller
func (c *LedgerClient) AddRecord(ctx context.Context, caller, patientID, contentHash, displayName string) error {
	return c.invoke(caller, "AddRecord", []string{patientID}, func(tctx contractapi.TransactionContextInterface) error {
		return c.contract.AddRecord(tctx, patientID, contentHash, displayName)
	})
}

// GetRecords queries the patient's record ledger as the caller
func (c *LedgerClient) GetRecords(ctx context.Context, caller, patientID string) ([]types.Record, error) {
	var records []types.Record
	err := c.invoke(caller, "GetRecords", []string{patientID}, func(tctx contractapi.TransactionContextInterface) error {
		var err error
		records, err = c.contract.GetRecords(tctx, patientID)
		return err
	})
	return records, err
}

// worldStateStub backs the contract with the client's shared state map. Only
// the key-value surface the ConsentGrant contract touches is implemented.
type worldStateStub struct {
	shim.ChaincodeStubInterface
	state map[string][]byte
}

func (s *worldStateStub) GetState(key string) ([]byte, error) {
	return s.state[key], nil
}

func (s *worldStateStub) PutState(key string, value []byte) error {
	s.state[key] = value
	return nil
}

func (s *worldStateStub) DelState(key string) error {
	delete(s.state, key)
	return nil
}

// staticIdentity presents the authenticated service caller as the
// transaction's client identity.
type staticIdentity struct {
	id  string
	msp string
}

func (i *staticIdentity) GetID() (string, error)    { return i.id, nil }
func (i *staticIdentity) GetMSPID() (string, error) { return i.msp, nil }
func (i *staticIdentity) GetX509Certificate() (*x509.Certificate, error) {
	return nil, nil
}
func (i *staticIdentity) GetAttributeValue(string) (string, bool, error) {
	return "", false, nil
}
func (i *staticIdentity) AssertAttributeValue(string, string) error { return nil }

type ledgerTxContext struct {
	stub     *worldStateStub
	identity *staticIdentity
}

func (c *ledgerTxContext) GetStub() shim.ChaincodeStubInterface { return c.stub }
func (c *ledgerTxContext) GetClientIdentity() cid.ClientIdentity {
	return c.identity
}
