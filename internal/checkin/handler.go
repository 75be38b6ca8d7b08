package checkin

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-club/backend/internal/middleware"
	"github.com/meridian-club/backend/internal/models"
	"github.com/meridian-club/backend/pkg/errs"
	"github.com/meridian-club/backend/pkg/queue"
	"github.com/meridian-club/backend/pkg/response"
)

// Handler handles check-in HTTP endpoints.
type Handler struct {
	service *Service
	queue   *queue.Queue
	logger  *zap.Logger
}

// NewHandler creates a check-in handler.
func NewHandler(service *Service, q *queue.Queue, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, queue: q, logger: logger}
}

// Request is the body for POST /events/:id/checkin.
type Request struct {
	QRCode string `json:"qr_code" binding:"required"`
}

// CheckIn handles POST /events/:id/checkin (staff-assisted scan).
func (h *Handler) CheckIn(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "qr_code required")
		return
	}

	var staffID *uuid.UUID
	if v, ok := c.Get(middleware.ContextUserID); ok {
		if id, ok := v.(uuid.UUID); ok {
			staffID = &id
		}
	}

	result, err := h.service.CheckIn(c.Request.Context(), req.QRCode, eventID, staffID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.notifyNewBadges(c, result)
	response.OK(c, result)
}

// SelfCheckIn handles POST /checkin, a member scanning themselves in at a kiosk.
type SelfCheckInRequest struct {
	QRCode  string    `json:"qr_code" binding:"required"`
	EventID uuid.UUID `json:"event_id" binding:"required"`
}

// SelfCheckIn handles POST /checkin. checked_in_by stays null for self-service.
func (h *Handler) SelfCheckIn(c *gin.Context) {
	var req SelfCheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "qr_code and event_id required")
		return
	}
	result, err := h.service.CheckIn(c.Request.Context(), req.QRCode, req.EventID, nil)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.notifyNewBadges(c, result)
	response.OK(c, result)
}

func (h *Handler) notifyNewBadges(c *gin.Context, result *Result) {
	if len(result.NewBadges) == 0 {
		return
	}
	reg := result.Registration
	payload := queue.EmailPayload{
		EmailType:      models.EmailTypeBadgeAwarded,
		EventID:        reg.EventID,
		RegistrationID: reg.ID,
		RecipientEmail: "", // resolved by the worker from the registration
		Subject:        "You earned a new badge!",
		BodyHTML: fmt.Sprintf("<p>Congratulations %s — you just earned: <b>%s</b>.</p>",
			result.MemberName, strings.Join(result.NewBadges, ", ")),
	}
	if err := h.queue.EnqueueEmail(c.Request.Context(), payload); err != nil {
		h.logger.Warn("badge email enqueue failed", zap.Error(err), zap.String("registration_id", reg.ID.String()))
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var coded *errs.Error
	switch {
	case errs.Is(err, errs.CodeNotFound):
		msg := "not found"
		if errors.As(err, &coded) {
			msg = coded.Message
		}
		response.NotFound(c, msg)
	case errs.Is(err, errs.CodeValidation):
		response.BadRequest(c, err.Error())
	case errs.Is(err, errs.CodeConflict):
		response.Conflict(c, "registration is not paid")
	default:
		h.logger.Error("check-in failed", zap.Error(err))
		response.ServiceUnavailable(c, "check-in temporarily unavailable")
	}
}
