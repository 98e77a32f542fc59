package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"employee_directory/internal/service"
	"employee_directory/pkg/logger"
)

type AuthHandler struct {
	authService service.AuthService
	log         logger.Logger
}

func NewAuthHandler(authService service.AuthService, log logger.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		log:         log,
	}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid login request", "error", err)
		badRequest(c, err)
		return
	}

	response, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.log.Warn("Login failed", "error", err, "email", req.Email)
		_ = c.Error(err)
		return
	}

	h.log.Info("Employee logged in", "employee_id", response.Employee.ID)
	c.JSON(http.StatusOK, response)
}

func (h *AuthHandler) Me(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}

	employee, err := h.authService.Me(c.Request.Context(), who.UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, employee)
}
