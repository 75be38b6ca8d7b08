package reminders

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-club/backend/internal/models"
	"github.com/meridian-club/backend/pkg/response"
)

// Handler handles reminder HTTP endpoints.
type Handler struct {
	repo     *Repository
	pipeline *Pipeline
	logger   *zap.Logger
}

// NewHandler creates a reminders handler.
func NewHandler(repo *Repository, pipeline *Pipeline, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, pipeline: pipeline, logger: logger}
}

// CreateRequest is the body for POST /events/:id/reminders.
type CreateRequest struct {
	Audience string    `json:"audience"`
	Subject  string    `json:"subject" binding:"required"`
	BodyHTML string    `json:"body_html"`
	SendAt   time.Time `json:"send_at" binding:"required"`
}

// Create handles POST /events/:id/reminders (admin).
func (h *Handler) Create(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "subject and send_at required")
		return
	}
	if req.Audience == "" {
		req.Audience = models.ReminderAudienceAll
	}
	if !models.ValidReminderAudience(req.Audience) {
		response.BadRequest(c, "unknown audience")
		return
	}

	job := &models.ReminderJob{
		EventID:  eventID,
		Audience: req.Audience,
		Subject:  req.Subject,
		BodyHTML: req.BodyHTML,
		SendAt:   req.SendAt,
	}
	if err := h.repo.CreateJob(c.Request.Context(), job); err != nil {
		h.logger.Error("reminder job create failed", zap.Error(err))
		response.Internal(c, "failed to create reminder")
		return
	}
	response.Created(c, job)
}

// ListByEvent handles GET /events/:id/reminders (admin).
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	jobs, err := h.repo.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		response.Internal(c, "failed to list reminders")
		return
	}
	if jobs == nil {
		jobs = []models.ReminderJob{}
	}
	response.OK(c, jobs)
}

// Run handles POST /reminders/run (admin): triggers one dispatch pass
// immediately instead of waiting for the worker tick. Overlap with the worker
// is fine; the delivery claims arbitrate.
func (h *Handler) Run(c *gin.Context) {
	report, err := h.pipeline.Process(c.Request.Context())
	if err != nil {
		h.logger.Error("reminder run failed", zap.Error(err))
		response.Internal(c, "reminder run failed")
		return
	}
	response.OK(c, report)
}
