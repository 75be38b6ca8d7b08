package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-club/backend/internal/models"
	"github.com/meridian-club/backend/pkg/errs"
)

type fakeRegStore struct {
	regs        map[uuid.UUID]*models.Registration
	markPaidOK  bool
	paidCalls   int
	failedCalls int
}

func newFakeRegStore(regs ...*models.Registration) *fakeRegStore {
	s := &fakeRegStore{regs: make(map[uuid.UUID]*models.Registration), markPaidOK: true}
	for _, r := range regs {
		s.regs[r.ID] = r
	}
	return s
}

func (s *fakeRegStore) GetByID(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	r, ok := s.regs[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *fakeRegStore) MarkPaid(_ context.Context, id uuid.UUID, amountCents int, reference string) (bool, error) {
	s.paidCalls++
	r := s.regs[id]
	if !s.markPaidOK || r.PaymentStatus != models.PaymentStatusPending {
		// Simulate losing the conditional write: another capture settled first.
		r.PaymentStatus = models.PaymentStatusPaid
		return false, nil
	}
	r.PaymentStatus = models.PaymentStatusPaid
	r.AmountPaidCents = amountCents
	r.PaymentReference = &reference
	return true, nil
}

func (s *fakeRegStore) MarkFailed(_ context.Context, id uuid.UUID) (bool, error) {
	s.failedCalls++
	r := s.regs[id]
	if r.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}
	r.PaymentStatus = models.PaymentStatusFailed
	return true, nil
}

type fakeGateway struct {
	result   *CaptureResult
	err      error
	captures int
}

func (g *fakeGateway) CreateOrder(context.Context, CreateOrderRequest) (*Order, error) {
	return &Order{ID: "ORDER-1", ApprovalLink: "https://gateway.example/approve"}, nil
}

func (g *fakeGateway) CaptureOrder(context.Context, string) (*CaptureResult, error) {
	g.captures++
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

func pendingReg() *models.Registration {
	return &models.Registration{ID: uuid.New(), EventID: uuid.New(), UserID: uuid.New(),
		PaymentStatus: models.PaymentStatusPending}
}

func TestCaptureRecordsGatewayAmount(t *testing.T) {
	reg := pendingReg()
	store := newFakeRegStore(reg)
	// Gateway reports 5000 even though the event price was 4500: the gateway
	// total is what lands on the registration.
	gw := &fakeGateway{result: &CaptureResult{Status: CaptureStatusCompleted, CapturedAmountCents: 5000, TransactionID: "TXN-1"}}
	svc := NewService(store, gw, nil)

	outcome, err := svc.Capture(context.Background(), reg.ID, "tok")
	require.NoError(t, err)
	assert.False(t, outcome.AlreadyProcessed)
	assert.Equal(t, models.PaymentStatusPaid, outcome.Registration.PaymentStatus)
	assert.Equal(t, 5000, outcome.Registration.AmountPaidCents)
	require.NotNil(t, outcome.Registration.PaymentReference)
	assert.Equal(t, "TXN-1", *outcome.Registration.PaymentReference)
}

func TestCaptureAlreadyPaidSkipsGateway(t *testing.T) {
	reg := pendingReg()
	reg.PaymentStatus = models.PaymentStatusPaid
	reg.AmountPaidCents = 5000
	store := newFakeRegStore(reg)
	gw := &fakeGateway{result: &CaptureResult{Status: CaptureStatusCompleted}}
	svc := NewService(store, gw, nil)

	outcome, err := svc.Capture(context.Background(), reg.ID, "tok")
	require.NoError(t, err)
	assert.True(t, outcome.AlreadyProcessed)
	assert.Equal(t, 5000, outcome.Registration.AmountPaidCents)
	assert.Zero(t, gw.captures, "terminal registration must not hit the gateway")
	assert.Zero(t, store.paidCalls)
}

func TestCaptureFailedIsTerminalToo(t *testing.T) {
	reg := pendingReg()
	reg.PaymentStatus = models.PaymentStatusFailed
	store := newFakeRegStore(reg)
	gw := &fakeGateway{}
	svc := NewService(store, gw, nil)

	outcome, err := svc.Capture(context.Background(), reg.ID, "tok")
	require.NoError(t, err)
	assert.True(t, outcome.AlreadyProcessed)
	assert.Equal(t, models.PaymentStatusFailed, outcome.Registration.PaymentStatus)
	assert.Zero(t, gw.captures)
}

func TestCaptureGatewayErrorMarksFailed(t *testing.T) {
	reg := pendingReg()
	store := newFakeRegStore(reg)
	gw := &fakeGateway{err: errors.New("request timed out")}
	svc := NewService(store, gw, nil)

	_, err := svc.Capture(context.Background(), reg.ID, "tok")
	require.Error(t, err)
	assert.Equal(t, errs.CodeUpstream, errs.CodeOf(err))
	assert.Equal(t, models.PaymentStatusFailed, store.regs[reg.ID].PaymentStatus,
		"a gateway error must not leave the registration pending")
}

func TestCaptureDeclined(t *testing.T) {
	reg := pendingReg()
	store := newFakeRegStore(reg)
	gw := &fakeGateway{result: &CaptureResult{Status: "DECLINED"}}
	svc := NewService(store, gw, nil)

	_, err := svc.Capture(context.Background(), reg.ID, "tok")
	require.ErrorIs(t, err, ErrDeclined)
	assert.Equal(t, models.PaymentStatusFailed, store.regs[reg.ID].PaymentStatus)
}

func TestCaptureMissingToken(t *testing.T) {
	reg := pendingReg()
	store := newFakeRegStore(reg)
	svc := NewService(store, &fakeGateway{}, nil)

	_, err := svc.Capture(context.Background(), reg.ID, "")
	require.Error(t, err)
	assert.Equal(t, errs.CodeValidation, errs.CodeOf(err))
}

func TestCaptureUnknownRegistration(t *testing.T) {
	store := newFakeRegStore()
	svc := NewService(store, &fakeGateway{}, nil)

	_, err := svc.Capture(context.Background(), uuid.New(), "tok")
	require.Error(t, err)
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
}

func TestCaptureLostRaceReturnsAlreadyProcessed(t *testing.T) {
	reg := pendingReg()
	store := newFakeRegStore(reg)
	store.markPaidOK = false
	gw := &fakeGateway{result: &CaptureResult{Status: CaptureStatusCompleted, CapturedAmountCents: 5000, TransactionID: "TXN-1"}}
	svc := NewService(store, gw, nil)

	outcome, err := svc.Capture(context.Background(), reg.ID, "tok")
	require.NoError(t, err)
	assert.True(t, outcome.AlreadyProcessed)
	assert.Equal(t, models.PaymentStatusPaid, outcome.Registration.PaymentStatus)
}
