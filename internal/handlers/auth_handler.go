package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/justsurfingit/adaudit/internal/auth"
	"github.com/justsurfingit/adaudit/internal/dtos"
	"github.com/justsurfingit/adaudit/internal/models"
	"github.com/justsurfingit/adaudit/internal/services"
)

const (
	stateCookie       = "adaudit_oauth_state"
	stateCookieMaxAge = 600
)

type AuthHandler struct {
	Auth *services.AuthService

	// SecureCookies marks the oauth state cookie Secure; off for plain-http development.
	SecureCookies bool
}

func NewAuthHandler(a *services.AuthService, secureCookies bool) *AuthHandler {
	return &AuthHandler{Auth: a, SecureCookies: secureCookies}
}

// Login is the POST /auth/login endpoint
func (h *AuthHandler) Login(c *gin.Context) {
	var req dtos.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	token, user, err := h.Auth.Login(req.Email, req.Password)
	if err != nil {
		respondError(c, "Login failed", err)
		return
	}
	c.JSON(http.StatusOK, h.loginResponse(token, user))
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.Auth.Logout(bearerToken(c)); err != nil {
		respondError(c, "Logout failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

// GoogleURL hands the SPA the consent URL and pins the oauth state in a cookie.
func (h *AuthHandler) GoogleURL(c *gin.Context) {
	if h.Auth.Google == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Google sign-in is not configured"})
		return
	}
	state := auth.NewToken()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookie, state, stateCookieMaxAge, "/", "", h.SecureCookies, true)
	c.JSON(http.StatusOK, gin.H{"url": h.Auth.Google.AuthURL(state)})
}

func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	var req dtos.GoogleCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	expected, err := c.Cookie(stateCookie)
	if err != nil || !auth.KeyMatches(req.State, expected) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "OAuth state mismatch"})
		return
	}
	c.SetCookie(stateCookie, "", -1, "/", "", h.SecureCookies, true)

	token, user, err := h.Auth.LoginWithGoogle(c.Request.Context(), req.Code)
	if err != nil {
		respondError(c, "Google sign-in failed", err)
		return
	}
	c.JSON(http.StatusOK, h.loginResponse(token, user))
}

func (h *AuthHandler) loginResponse(token string, user *models.User) dtos.LoginResponse {
	return dtos.LoginResponse{Token: token, ExpiresAt: h.Auth.Now().Add(h.Auth.SessionTTL), User: user}
}
