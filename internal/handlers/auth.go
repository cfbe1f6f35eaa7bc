package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fleetmon/internal/middleware"
	"fleetmon/internal/store"
)

type loginRequest struct {
	Username string `json:"username" validate:"required,min=1,max=64"`
	Password string `json:"password" validate:"required,min=1,max=128"`
}

// APILogin authenticates an administrator and issues a JWT, both in the
// response body and as an HttpOnly cookie.
func (h *MonitorHandlers) APILogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
		return
	}
	if err := middleware.ValidateStruct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password required"})
		return
	}

	admin, err := h.store.GetAdminByUsername(middleware.SanitizeString(req.Username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Login failed"})
		return
	}
	if !h.store.CheckPassword(admin, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := h.auth.GenerateToken(admin.Username, admin.TenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Token generation failed"})
		return
	}

	middleware.SetAuthCookie(c, token)
	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"username":  admin.Username,
		"tenant_id": admin.TenantID,
	})
}

// APILogout clears the auth cookie.
func (h *MonitorHandlers) APILogout(c *gin.Context) {
	middleware.ClearAuthCookie(c)
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}
