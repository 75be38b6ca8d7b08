package emaillogs

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/meridian-club/backend/internal/models"
	"github.com/meridian-club/backend/pkg/response"
)

// Handler handles email log HTTP endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates an email logs handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// ListByEvent handles GET /events/:id/emails (admin).
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	list, err := h.repo.ListByEvent(c.Request.Context(), eventID, limit)
	if err != nil {
		response.Internal(c, "failed to list email logs")
		return
	}
	if list == nil {
		list = []models.EmailLog{}
	}
	response.OK(c, list)
}
