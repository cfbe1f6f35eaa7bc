package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fleetmon/internal/middleware"
	"fleetmon/internal/models"
	"fleetmon/internal/store"
)

type targetRequest struct {
	DisplayName   string `json:"display_name" validate:"required,min=1,max=128"`
	Kind          string `json:"kind" validate:"required,oneof=server operator"`
	Endpoint      string `json:"endpoint" validate:"required,min=1,max=512"`
	CapacityLimit int    `json:"capacity_limit" validate:"min=0"`
	Enabled       *bool  `json:"enabled"`
	GroupKey      string `json:"group_key" validate:"max=64"`
}

// APITargetList returns all of the tenant's targets.
func (h *MonitorHandlers) APITargetList(c *gin.Context) {
	tenantID := middleware.TenantFromContext(c)
	targets, err := h.store.ListTargets(tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list targets"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"targets": targets})
}

// APITargetCreate registers a new monitored target.
func (h *MonitorHandlers) APITargetCreate(c *gin.Context) {
	tenantID := middleware.TenantFromContext(c)

	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
		return
	}
	if err := middleware.ValidateStruct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": err.Error()})
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	target, err := h.store.CreateTarget(models.Target{
		TenantID:      tenantID,
		DisplayName:   middleware.SanitizeString(req.DisplayName),
		Kind:          models.TargetKind(req.Kind),
		Endpoint:      middleware.SanitizeString(req.Endpoint),
		CapacityLimit: req.CapacityLimit,
		Enabled:       enabled,
		GroupKey:      middleware.SanitizeString(req.GroupKey),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create target"})
		return
	}
	c.JSON(http.StatusCreated, target)
}

// APITargetUpdate rewrites an existing target.
func (h *MonitorHandlers) APITargetUpdate(c *gin.Context) {
	tenantID := middleware.TenantFromContext(c)
	targetID, err := strconv.Atoi(c.Param("target_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Target not found"})
		return
	}

	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON format"})
		return
	}
	if err := middleware.ValidateStruct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": err.Error()})
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	err = h.store.UpdateTarget(models.Target{
		ID:            targetID,
		TenantID:      tenantID,
		DisplayName:   middleware.SanitizeString(req.DisplayName),
		Kind:          models.TargetKind(req.Kind),
		Endpoint:      middleware.SanitizeString(req.Endpoint),
		CapacityLimit: req.CapacityLimit,
		Enabled:       enabled,
		GroupKey:      middleware.SanitizeString(req.GroupKey),
	})
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Target not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update target"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// APITargetDelete removes a target and its cached snapshot.
func (h *MonitorHandlers) APITargetDelete(c *gin.Context) {
	tenantID := middleware.TenantFromContext(c)
	targetID, err := strconv.Atoi(c.Param("target_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Target not found"})
		return
	}

	err = h.store.DeleteTarget(tenantID, targetID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Target not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete target"})
		return
	}

	h.monitor.ForgetTarget(targetID)
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
