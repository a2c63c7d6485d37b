package consent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carevault/dlt-consent/pkg/config"
	"github.com/carevault/dlt-consent/pkg/logger"
	"github.com/carevault/dlt-consent/pkg/types"
)

// MockConsentEventStore mocks the consent event store
type MockConsentEventStore struct {
	mock.Mock
}

func (m *MockConsentEventStore) Record(ctx context.Context, event *types.ConsentEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockConsentEventStore) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*types.ConsentEvent, error) {
	args := m.Called(ctx, patientID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.ConsentEvent), args.Error(1)
}

func newTestService(events *MockConsentEventStore) *ConsentService {
	log := logger.New("error")
	client := NewLedgerClient(&config.FabricConfig{}, log, nil)

	if events == nil {
		return NewConsentService(client, nil, log, nil)
	}
	return NewConsentService(client, events, log, nil)
}

func TestConsentService_GrantLifecycle(t *testing.T) {
	events := new(MockConsentEventStore)
	events.On("Record", mock.Anything, mock.Anything).Return(nil)
	svc := newTestService(events)
	ctx := context.Background()

	requestID, err := svc.RequestAccess(ctx, "dr-rivera", "patient-1", 24)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), requestID)

	granted, err := svc.HasAccess(ctx, "dr-rivera", "patient-1", "dr-rivera")
	require.NoError(t, err)
	assert.False(t, granted)

	require.NoError(t, svc.RespondToRequest(ctx, "patient-1", "patient-1", requestID, true))

	granted, err = svc.HasAccess(ctx, "dr-rivera", "patient-1", "dr-rivera")
	require.NoError(t, err)
	assert.True(t, granted)

	accessors, err := svc.GetActiveAccessors(ctx, "patient-1", "patient-1")
	require.NoError(t, err)
	require.Len(t, accessors, 1)
	assert.Equal(t, "dr-rivera", accessors[0].Requester)

	require.NoError(t, svc.RevokeAccess(ctx, "patient-1", "patient-1", "dr-rivera"))

	granted, err = svc.HasAccess(ctx, "patient-1", "patient-1", "dr-rivera")
	require.NoError(t, err)
	assert.False(t, granted)

	// request, approval, revocation all mirrored
	events.AssertNumberOfCalls(t, "Record", 3)
}

func TestConsentService_MirrorsApprovalWithRequester(t *testing.T) {
	events := new(MockConsentEventStore)
	var approved *types.ConsentEvent
	events.On("Record", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		event := args.Get(1).(*types.ConsentEvent)
		if event.Action == types.EventAccessApproved {
			approved = event
		}
	}).Return(nil)
	svc := newTestService(events)
	ctx := context.Background()

	requestID, err := svc.RequestAccess(ctx, "dr-rivera", "patient-1", 24)
	require.NoError(t, err)
	require.NoError(t, svc.RespondToRequest(ctx, "patient-1", "patient-1", requestID, true))

	require.NotNil(t, approved)
	assert.Equal(t, "patient-1", approved.ActorID)
	assert.Equal(t, "dr-rivera", approved.RequesterID)
	assert.NotZero(t, approved.ExpiresAt)
}

func TestConsentService_MirrorFailureDoesNotFailOperation(t *testing.T) {
	events := new(MockConsentEventStore)
	events.On("Record", mock.Anything, mock.Anything).Return(assert.AnError)
	svc := newTestService(events)

	_, err := svc.RequestAccess(context.Background(), "dr-rivera", "patient-1", 24)
	assert.NoError(t, err, "the ledger write succeeded; a mirror failure is logged, not returned")
}

func TestConsentService_LedgerErrorsPassThrough(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	_, err := svc.RequestAccess(ctx, "dr-rivera", "patient-1", 0)
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeInvalidDuration))

	requestID, err := svc.RequestAccess(ctx, "dr-rivera", "patient-1", 24)
	require.NoError(t, err)

	err = svc.RespondToRequest(ctx, "dr-rivera", "patient-1", requestID, true)
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeNotAuthorized))
}

func TestConsentService_ExtendUpdatesExpiry(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	requestID, err := svc.RequestAccess(ctx, "dr-rivera", "patient-1", 24)
	require.NoError(t, err)
	require.NoError(t, svc.RespondToRequest(ctx, "patient-1", "patient-1", requestID, true))

	before, err := svc.GetAccessExpiry(ctx, "patient-1", "patient-1", "dr-rivera")
	require.NoError(t, err)

	require.NoError(t, svc.ExtendAccess(ctx, "patient-1", "patient-1", "dr-rivera", 48))

	after, err := svc.GetAccessExpiry(ctx, "patient-1", "patient-1", "dr-rivera")
	require.NoError(t, err)
	assert.Equal(t, before+48*3600, after)
}

func TestConsentService_RecordLedger(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	require.NoError(t, svc.AddRecord(ctx, "patient-1", "patient-1", "QmHash1", "blood-panel.pdf"))

	// An outsider can neither write nor read.
	err := svc.AddRecord(ctx, "dr-rivera", "patient-1", "QmHash2", "mri.dcm")
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeNotAuthorized))

	_, err = svc.GetRecords(ctx, "dr-rivera", "patient-1")
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeNotAuthorized))

	records, err := svc.GetRecords(ctx, "patient-1", "patient-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "QmHash1", records[0].ContentHash)
}

func TestConsentService_ListConsentEvents(t *testing.T) {
	events := new(MockConsentEventStore)
	stored := []*types.ConsentEvent{
		{PatientID: "patient-1", Action: types.EventAccessRequested},
	}
	events.On("ListByPatient", mock.Anything, "patient-1", 10, 0).Return(stored, nil)
	svc := newTestService(events)

	got, err := svc.ListConsentEvents(context.Background(), "patient-1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, stored, got)
}

func TestConsentService_ListConsentEventsWithoutStore(t *testing.T) {
	svc := newTestService(nil)

	events, err := svc.ListConsentEvents(context.Background(), "patient-1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}
