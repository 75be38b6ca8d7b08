package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-club/backend/internal/auth"
	"github.com/meridian-club/backend/internal/events"
	"github.com/meridian-club/backend/internal/models"
	"github.com/meridian-club/backend/pkg/errs"
	"github.com/meridian-club/backend/pkg/queue"
	"github.com/meridian-club/backend/pkg/response"
)

// Handler handles payment capture HTTP endpoints.
type Handler struct {
	service   *Service
	userRepo  *auth.Repository
	eventRepo *events.Repository
	queue     *queue.Queue
	logger    *zap.Logger
}

// NewHandler creates a payments handler.
func NewHandler(service *Service, userRepo *auth.Repository, eventRepo *events.Repository, q *queue.Queue, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, userRepo: userRepo, eventRepo: eventRepo, queue: q, logger: logger}
}

// CaptureRequest is the body for POST /registrations/:id/capture.
type CaptureRequest struct {
	Token string `json:"token" binding:"required"`
}

// Capture handles POST /registrations/:id/capture, the gateway redirect return.
func (h *Handler) Capture(c *gin.Context) {
	registrationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	var req CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "token required")
		return
	}

	// The transition must finish even if the member closes the tab mid-capture,
	// otherwise a pending registration could be stranded.
	ctx := context.WithoutCancel(c.Request.Context())
	outcome, err := h.capture(ctx, registrationID, req.Token)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, outcome)
}

// WebhookEvent is the subset of the gateway webhook payload the portal consumes.
type WebhookEvent struct {
	EventType string `json:"event_type"`
	Resource  struct {
		ID            string `json:"id"`
		CustomID      string `json:"custom_id"`
		PurchaseUnits []struct {
			CustomID string `json:"custom_id"`
		} `json:"purchase_units"`
	} `json:"resource"`
}

// Webhook handles POST /webhooks/payment-capture. Duplicate deliveries resolve
// as idempotent no-ops inside the capture service.
func (h *Handler) Webhook(c *gin.Context) {
	var event WebhookEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		response.BadRequest(c, "invalid webhook payload")
		return
	}
	if event.EventType != "CHECKOUT.ORDER.APPROVED" {
		response.OK(c, gin.H{"ignored": true})
		return
	}

	customID := event.Resource.CustomID
	if customID == "" && len(event.Resource.PurchaseUnits) > 0 {
		customID = event.Resource.PurchaseUnits[0].CustomID
	}
	registrationID, err := uuid.Parse(customID)
	if err != nil {
		response.BadRequest(c, "invalid registration reference")
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	outcome, err := h.capture(ctx, registrationID, event.Resource.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, outcome)
}

func (h *Handler) capture(ctx context.Context, registrationID uuid.UUID, token string) (*CaptureOutcome, error) {
	outcome, err := h.service.Capture(ctx, registrationID, token)
	if err != nil {
		return nil, err
	}
	if !outcome.AlreadyProcessed && outcome.Registration.PaymentStatus == models.PaymentStatusPaid {
		h.enqueueReceipt(ctx, outcome.Registration)
	}
	return outcome, nil
}

func (h *Handler) enqueueReceipt(ctx context.Context, reg *models.Registration) {
	user, err := h.userRepo.GetByID(ctx, reg.UserID)
	if err != nil || user == nil {
		h.logger.Warn("receipt skipped: user lookup failed", zap.Error(err), zap.String("registration_id", reg.ID.String()))
		return
	}
	event, err := h.eventRepo.GetByID(ctx, reg.EventID)
	if err != nil || event == nil {
		h.logger.Warn("receipt skipped: event lookup failed", zap.Error(err), zap.String("registration_id", reg.ID.String()))
		return
	}
	payload := queue.EmailPayload{
		EmailType:      models.EmailTypePaymentReceipt,
		EventID:        reg.EventID,
		RegistrationID: reg.ID,
		RecipientEmail: user.Email,
		Subject:        "Payment received — " + event.Title,
		BodyHTML: fmt.Sprintf("<p>Hi %s,</p><p>We received your payment of %s %.2f for <b>%s</b>. See you there!</p>",
			user.FullName, event.Currency, float64(reg.AmountPaidCents)/100, event.Title),
	}
	if err := h.queue.EnqueueEmail(ctx, payload); err != nil {
		h.logger.Warn("receipt enqueue failed", zap.Error(err), zap.String("registration_id", reg.ID.String()))
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	if errors.Is(err, ErrDeclined) {
		// The charge was refused by the gateway, not broken by us.
		response.OK(c, gin.H{"payment_status": models.PaymentStatusFailed, "declined": true,
			"message": "payment was declined or cancelled"})
		return
	}
	switch errs.CodeOf(err) {
	case errs.CodeNotFound:
		response.NotFound(c, "registration not found")
	case errs.CodeValidation:
		response.BadRequest(c, err.Error())
	case errs.CodeUpstream:
		h.logger.Error("capture upstream failure", zap.Error(err))
		response.BadGateway(c, "payment system error, please retry later")
	default:
		h.logger.Error("capture failed", zap.Error(err))
		response.Internal(c, "payment capture failed")
	}
}
