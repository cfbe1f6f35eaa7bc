// Package handlers exposes the fleetmon HTTP API.
package handlers

import (
	"fleetmon/internal/middleware"
	"fleetmon/internal/monitor"
	"fleetmon/internal/store"
)

// MonitorHandlers bundles the collaborators the API endpoints need.
type MonitorHandlers struct {
	monitor *monitor.Monitor
	store   *store.Store
	auth    *middleware.AuthService
	hub     *middleware.Hub
}

func NewMonitorHandlers(m *monitor.Monitor, s *store.Store, auth *middleware.AuthService, hub *middleware.Hub) *MonitorHandlers {
	return &MonitorHandlers{monitor: m, store: s, auth: auth, hub: hub}
}
