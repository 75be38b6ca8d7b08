package registrations

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/meridian-club/backend/internal/auth"
	"github.com/meridian-club/backend/internal/events"
	"github.com/meridian-club/backend/internal/middleware"
	"github.com/meridian-club/backend/internal/models"
	"github.com/meridian-club/backend/internal/payments"
	"github.com/meridian-club/backend/pkg/queue"
	"github.com/meridian-club/backend/pkg/response"
)

// CheckoutURLs are the gateway redirect targets for the payment approval flow.
type CheckoutURLs struct {
	ReturnURL string
	CancelURL string
}

// Handler handles registration HTTP endpoints.
type Handler struct {
	repo      *Repository
	eventRepo *events.Repository
	userRepo  *auth.Repository
	gateway   payments.Gateway
	queue     *queue.Queue
	urls      CheckoutURLs
	logger    *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(repo *Repository, eventRepo *events.Repository, userRepo *auth.Repository,
	gateway payments.Gateway, q *queue.Queue, urls CheckoutURLs, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, eventRepo: eventRepo, userRepo: userRepo,
		gateway: gateway, queue: q, urls: urls, logger: logger}
}

// RegisterResponse is the body returned by POST /events/:id/register. For paid
// events the client follows ApprovalLink to the gateway and returns via the
// capture endpoint; for free events the registration is final immediately.
type RegisterResponse struct {
	Registration *models.Registration `json:"registration"`
	OrderID      string               `json:"order_id,omitempty"`
	ApprovalLink string               `json:"approval_link,omitempty"`
}

// Register handles POST /events/:id/register.
func (h *Handler) Register(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	userIDVal, _ := c.Get(middleware.ContextUserID)
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}

	event, err := h.eventRepo.GetByID(c.Request.Context(), eventID)
	if err != nil {
		response.Internal(c, "failed to load event")
		return
	}
	if event == nil {
		response.NotFound(c, "event not found")
		return
	}

	existing, err := h.repo.GetByEventAndUser(c.Request.Context(), eventID, userID)
	if err != nil {
		response.Internal(c, "failed to load registration")
		return
	}
	if existing != nil {
		response.Conflict(c, "already registered for this event")
		return
	}

	reg := &models.Registration{EventID: eventID, UserID: userID, PaymentStatus: models.PaymentStatusPending}
	if !event.IsPaid {
		// Free events never touch the gateway. They are stored already paid,
		// amount zero, with a fixed reference, so check-in's paid gate and the
		// paid-implies-reference rule hold without a special case.
		ref := models.FreePaymentReference
		reg.PaymentStatus = models.PaymentStatusPaid
		reg.PaymentReference = &ref
	}
	if err := h.repo.Create(c.Request.Context(), reg); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			response.Conflict(c, "already registered for this event")
			return
		}
		h.logger.Error("registration create failed", zap.Error(err))
		response.Internal(c, "failed to register")
		return
	}

	resp := &RegisterResponse{Registration: reg}
	if event.IsPaid {
		order, err := h.gateway.CreateOrder(c.Request.Context(), payments.CreateOrderRequest{
			AmountCents: event.PriceCents,
			Currency:    event.Currency,
			Description: event.Title,
			ReferenceID: reg.ID.String(),
			ReturnURL:   h.urls.ReturnURL,
			CancelURL:   h.urls.CancelURL,
		})
		if err != nil {
			h.logger.Error("order create failed", zap.Error(err), zap.String("registration_id", reg.ID.String()))
			response.BadGateway(c, "payment system error, please retry later")
			return
		}
		resp.OrderID = order.ID
		resp.ApprovalLink = order.ApprovalLink
	} else {
		h.enqueueConfirmation(c, reg, event)
	}
	response.Created(c, resp)
}

// ListMine handles GET /registrations/mine.
func (h *Handler) ListMine(c *gin.Context) {
	userIDVal, _ := c.Get(middleware.ContextUserID)
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	list, err := h.repo.ListByUser(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to list registrations")
		return
	}
	if list == nil {
		list = []models.Registration{}
	}
	response.OK(c, list)
}

// ListByEvent handles GET /events/:id/registrations (staff).
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	list, err := h.repo.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		response.Internal(c, "failed to list registrations")
		return
	}
	if list == nil {
		list = []models.Registration{}
	}
	response.OK(c, list)
}

func (h *Handler) enqueueConfirmation(c *gin.Context, reg *models.Registration, event *models.Event) {
	user, err := h.userRepo.GetByID(c.Request.Context(), reg.UserID)
	if err != nil || user == nil {
		h.logger.Warn("confirmation skipped: user lookup failed", zap.Error(err))
		return
	}
	payload := queue.EmailPayload{
		EmailType:      models.EmailTypeRegistrationConfirmation,
		EventID:        event.ID,
		RegistrationID: reg.ID,
		RecipientEmail: user.Email,
		Subject:        "You're registered — " + event.Title,
		BodyHTML: fmt.Sprintf("<p>Hi %s,</p><p>You're registered for <b>%s</b> on %s. Bring your QR code for check-in.</p>",
			user.FullName, event.Title, event.StartsAt.Format("Jan 2, 2006 at 3:04 PM")),
	}
	if err := h.queue.EnqueueEmail(c.Request.Context(), payload); err != nil {
		h.logger.Warn("confirmation enqueue failed", zap.Error(err), zap.String("registration_id", reg.ID.String()))
	}
}
