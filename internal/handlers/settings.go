package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"fleetmon/internal/channels"
	"fleetmon/internal/middleware"
	"fleetmon/internal/models"
	"fleetmon/internal/store"
)

// APIAlertSettingGet returns the tenant's alert switch and contact points.
func (h *MonitorHandlers) APIAlertSettingGet(c *gin.Context) {
	tenantID := middleware.TenantFromContext(c)
	setting, err := h.store.AlertSetting(tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load alert settings"})
		return
	}
	if setting == nil {
		// Nothing stored yet; alerts default to enabled.
		setting = &models.AlertSetting{TenantID: tenantID, Enabled: true}
	}
	c.JSON(http.StatusOK, setting)
}

type alertSettingRequest struct {
	Enabled    bool   `json:"enabled"`
	AlertPhone string `json:"alert_phone" validate:"max=32"`
	AlertEmail string `json:"alert_email" validate:"omitempty,email"`
}

// APIAlertSettingPut creates or replaces the tenant's alert configuration.
func (h *MonitorHandlers) APIAlertSettingPut(c *gin.Context) {
	tenantID := middleware.TenantFromContext(c)

	var req alertSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
		return
	}
	if err := middleware.ValidateStruct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": err.Error()})
		return
	}

	err := h.store.SaveAlertSetting(models.AlertSetting{
		TenantID:   tenantID,
		Enabled:    req.Enabled,
		AlertPhone: middleware.SanitizeString(req.AlertPhone),
		AlertEmail: middleware.SanitizeString(req.AlertEmail),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save alert settings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

type optOutRequest struct {
	Channel string `json:"channel" validate:"required,oneof=sms email"`
	OptOut  bool   `json:"opt_out"`
}

// APIProfileOptOut flips the calling admin's opt-out flag for one channel.
func (h *MonitorHandlers) APIProfileOptOut(c *gin.Context) {
	var req optOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
		return
	}
	if err := middleware.ValidateStruct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": err.Error()})
		return
	}

	admin, err := h.callerAdmin(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unknown administrator"})
		return
	}

	if err := h.store.SetOptOut(int(admin.ID), models.Channel(req.Channel), req.OptOut); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update preference"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel": req.Channel, "opt_out": req.OptOut})
}

type smtpAccountRequest struct {
	Host        string `json:"host" validate:"required,min=1,max=255"`
	Port        int    `json:"port" validate:"required,min=1,max=65535"`
	Secure      string `json:"secure" validate:"omitempty,oneof=ssl tls none"`
	Username    string `json:"username" validate:"max=255"`
	Password    string `json:"password" validate:"max=255"`
	FromAddress string `json:"from_address" validate:"required,email"`
	DisplayName string `json:"display_name" validate:"max=128"`
}

// APISMTPAccountPut stores the calling admin's outbound mail credentials.
func (h *MonitorHandlers) APISMTPAccountPut(c *gin.Context) {
	var req smtpAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
		return
	}
	if err := middleware.ValidateStruct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": err.Error()})
		return
	}

	admin, err := h.callerAdmin(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unknown administrator"})
		return
	}

	err = h.store.SaveSMTPAccount(int(admin.ID), channels.SMTPAccount{
		Host:        middleware.SanitizeString(req.Host),
		Port:        req.Port,
		Secure:      req.Secure,
		Username:    middleware.SanitizeString(req.Username),
		Password:    req.Password,
		FromAddress: middleware.SanitizeString(req.FromAddress),
		DisplayName: middleware.SanitizeString(req.DisplayName),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save mail credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

func (h *MonitorHandlers) callerAdmin(c *gin.Context) (*store.AdminRecord, error) {
	username, ok := c.Get("username")
	if !ok {
		return nil, errors.New("no authenticated user")
	}
	name, ok := username.(string)
	if !ok || name == "" {
		return nil, errors.New("no authenticated user")
	}
	return h.store.GetAdminByUsername(name)
}
