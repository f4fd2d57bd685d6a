package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/adaudit/internal/dtos"
	"github.com/justsurfingit/adaudit/internal/services"
)

type UserHandler struct {
	Auth *services.AuthService
}

func NewUserHandler(a *services.AuthService) *UserHandler {
	return &UserHandler{Auth: a}
}

// Create is the admin-only POST /users endpoint
func (h *UserHandler) Create(c *gin.Context) {
	var req dtos.UserCreationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.Auth.CreateUser(req.Email, req.Name, req.Password, req.Role)
	if err != nil {
		respondError(c, "Failed to create user", err)
		return
	}
	c.JSON(http.StatusCreated, user)
}
