package auth

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/meridian-club/backend/internal/models"
	"github.com/meridian-club/backend/pkg/response"
	"github.com/meridian-club/backend/pkg/utils"
)

// Handler handles auth HTTP endpoints.
type Handler struct {
	repo       *Repository
	jwtService *JWTService
	logger     *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(repo *Repository, jwtService *JWTService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, jwtService: jwtService, logger: logger}
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name" binding:"required"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Register handles POST /auth/register. Creates a member account and mints its QR code.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	existing, err := h.repo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Internal(c, "failed to register")
		return
	}
	if existing != nil {
		response.Conflict(c, "email already registered")
		return
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		response.Internal(c, "failed to register")
		return
	}
	qrCode, err := generateQRCode()
	if err != nil {
		response.Internal(c, "failed to register")
		return
	}

	u := &models.User{
		Email:    req.Email,
		Password: hashed,
		FullName: req.FullName,
		Role:     models.RoleMember,
		QRCode:   qrCode,
	}
	if err := h.repo.Create(c.Request.Context(), u); err != nil {
		h.logger.Error("create user failed", zap.Error(err), zap.String("email", req.Email))
		response.Internal(c, "failed to register")
		return
	}

	token, err := h.jwtService.Generate(u.ID, u.Email, string(u.Role))
	if err != nil {
		response.Internal(c, "failed to issue token")
		return
	}
	response.Created(c, gin.H{"token": token, "user": u.ToPublic(), "qr_code": u.QRCode})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	u, err := h.repo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Internal(c, "failed to login")
		return
	}
	if u == nil || !utils.CheckPassword(req.Password, u.Password) {
		response.Unauthorized(c, "invalid credentials")
		return
	}

	token, err := h.jwtService.Generate(u.ID, u.Email, string(u.Role))
	if err != nil {
		response.Internal(c, "failed to issue token")
		return
	}
	response.OK(c, gin.H{"token": token, "user": u.ToPublic(), "qr_code": u.QRCode})
}

// List handles GET /users (admin).
func (h *Handler) List(c *gin.Context) {
	users, err := h.repo.List(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list users")
		return
	}
	response.OK(c, users)
}

func generateQRCode() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b)[:22], nil
}
