package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-club/backend/internal/models"
	"github.com/meridian-club/backend/pkg/errs"
)

// ErrDeclined is returned when the gateway answered but did not complete the
// charge. The registration has already transitioned to failed; the caller
// should tell the member the payment was declined or cancelled, as opposed to
// a system error worth retrying.
var ErrDeclined = errors.New("payment declined")

// RegistrationStore is the slice of the registration repository the capture
// state machine owns: payment fields only.
type RegistrationStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	MarkPaid(ctx context.Context, id uuid.UUID, amountCents int, reference string) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID) (bool, error)
}

// CaptureOutcome is the result of one capture call.
type CaptureOutcome struct {
	Registration *models.Registration `json:"registration"`
	// AlreadyProcessed is true when the registration was terminal before this
	// call: duplicate webhooks and double-clicks resolve here without touching
	// the gateway.
	AlreadyProcessed bool `json:"already_processed"`
}

// Service reconciles gateway capture results with registration payment state.
// Transitions: pending→paid, pending→failed, each at most once per registration.
type Service struct {
	store   RegistrationStore
	gateway Gateway
	logger  *zap.Logger
}

// NewService creates a payment capture service.
func NewService(store RegistrationStore, gateway Gateway, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, gateway: gateway, logger: logger}
}

// Capture finalizes the charge identified by gatewayToken and applies the
// result to the registration. Terminal registrations are returned as-is
// without calling the gateway, making duplicate deliveries no-ops. A gateway
// error or non-completed status moves the registration to failed, never left
// pending: reaching paid after that requires a fresh registration and a fresh
// approval.
func (s *Service) Capture(ctx context.Context, registrationID uuid.UUID, gatewayToken string) (*CaptureOutcome, error) {
	reg, err := s.store.GetByID(ctx, registrationID)
	if err != nil {
		return nil, errs.Upstream("load registration", err)
	}
	if reg == nil {
		return nil, errs.NotFound("registration")
	}
	if reg.IsTerminal() {
		return &CaptureOutcome{Registration: reg, AlreadyProcessed: true}, nil
	}
	if gatewayToken == "" {
		return nil, errs.Validation("gateway token required")
	}

	result, err := s.gateway.CaptureOrder(ctx, gatewayToken)
	if err != nil {
		s.fail(ctx, registrationID, "gateway error", err)
		return nil, errs.Upstream("payment capture failed", err)
	}
	if result.Status != CaptureStatusCompleted {
		s.logger.Info("capture not completed",
			zap.String("registration_id", registrationID.String()), zap.String("status", result.Status))
		s.fail(ctx, registrationID, "capture status "+result.Status, nil)
		return nil, ErrDeclined
	}

	updated, err := s.store.MarkPaid(ctx, registrationID, result.CapturedAmountCents, result.TransactionID)
	if err != nil {
		return nil, errs.Upstream("record payment", err)
	}

	fresh, err := s.store.GetByID(ctx, registrationID)
	if err != nil || fresh == nil {
		return nil, errs.Upstream("reload registration", err)
	}
	if !updated {
		// Lost the write to a concurrent capture; its terminal state wins.
		return &CaptureOutcome{Registration: fresh, AlreadyProcessed: true}, nil
	}
	s.logger.Info("payment captured",
		zap.String("registration_id", registrationID.String()),
		zap.String("transaction_id", result.TransactionID),
		zap.Int("amount_cents", result.CapturedAmountCents))
	return &CaptureOutcome{Registration: fresh}, nil
}

// fail moves the registration to failed. Losing the conditional write means a
// concurrent capture already settled the state, which is fine.
func (s *Service) fail(ctx context.Context, id uuid.UUID, reason string, cause error) {
	if _, err := s.store.MarkFailed(ctx, id); err != nil {
		s.logger.Error("mark registration failed",
			zap.String("registration_id", id.String()), zap.String("reason", reason), zap.Error(err))
		return
	}
	s.logger.Info("payment failed",
		zap.String("registration_id", id.String()), zap.String("reason", reason), zap.Error(cause))
}
