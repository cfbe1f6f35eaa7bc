package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fleetmon/internal/middleware"
	"fleetmon/internal/models"
)

// APIStatus returns the caller's latest snapshot table with summary counts.
func (h *MonitorHandlers) APIStatus(c *gin.Context) {
	tenantID := middleware.TenantFromContext(c)
	snapshots := h.monitor.Snapshots().GetForTenant(tenantID)

	var online, overloaded, offline int
	for _, s := range snapshots {
		switch s.Classification {
		case models.StatusOnline:
			online++
		case models.StatusOverloaded:
			overloaded++
		case models.StatusOffline:
			offline++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"active":     h.monitor.IsActive(),
		"targets":    len(snapshots),
		"online":     online,
		"overloaded": overloaded,
		"offline":    offline,
		"snapshots":  snapshots,
	})
}

// APITargetStatus returns the latest snapshot for one target.
func (h *MonitorHandlers) APITargetStatus(c *gin.Context) {
	targetID, err := strconv.Atoi(c.Param("target_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Target not found"})
		return
	}

	// A foreign tenant's target is indistinguishable from a missing one.
	snapshot, ok := h.monitor.Snapshots().Get(targetID)
	if !ok || snapshot.TenantID != middleware.TenantFromContext(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No snapshot for target"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// APIRefresh runs one polling cycle immediately for the caller's tenant.
func (h *MonitorHandlers) APIRefresh(c *gin.Context) {
	tenantID := middleware.TenantFromContext(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	snapshots, err := h.monitor.RunCycle(ctx, tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Refresh failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"refreshed": len(snapshots),
		"snapshots": snapshots,
	})
}

// APINotifications returns the caller's dashboard notification feed, newest first.
func (h *MonitorHandlers) APINotifications(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	tenantID := middleware.TenantFromContext(c)
	c.JSON(http.StatusOK, gin.H{"notifications": h.monitor.RecentNotifications(tenantID, limit)})
}

// APITelemetry returns the latest host metrics sample.
func (h *MonitorHandlers) APITelemetry(c *gin.Context) {
	telemetry := h.monitor.SystemTelemetry()
	if telemetry == nil {
		c.JSON(http.StatusOK, gin.H{"available": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"available": true,
		"telemetry": telemetry,
		"health":    h.monitor.SystemHealthPercent(),
	})
}
