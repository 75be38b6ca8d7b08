package badges

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/meridian-club/backend/internal/middleware"
	"github.com/meridian-club/backend/pkg/response"
)

// Handler handles badge HTTP endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a badges handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// ListCatalog handles GET /badges. Returns active badge definitions.
func (h *Handler) ListCatalog(c *gin.Context) {
	list, err := h.repo.ListActive(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list badges")
		return
	}
	response.OK(c, list)
}

// ListMine handles GET /badges/mine. Returns the caller's earned badges.
func (h *Handler) ListMine(c *gin.Context) {
	userIDVal, _ := c.Get(middleware.ContextUserID)
	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	list, err := h.repo.ListEarned(c.Request.Context(), userID)
	if err != nil {
		response.Internal(c, "failed to list badges")
		return
	}
	response.OK(c, list)
}
