package monitor

import (
	"strings"
	"time"

	"fleetmon/internal/models"
)

// maxDashboardNotifications caps the in-memory feed shown on the dashboard.
const maxDashboardNotifications = 50

// enqueueDashboardNotification prepends an entry to the dashboard feed,
// trimming the oldest entries past the cap.
func (m *Monitor) enqueueDashboardNotification(tenantID int, kind, event, title, message string, targetID int, source string) {
	entry := models.DashboardNotification{
		ID:        m.notificationSeq.Add(1),
		TenantID:  tenantID,
		Kind:      kind,
		Event:     event,
		Title:     title,
		Message:   message,
		TargetID:  targetID,
		Source:    source,
		CreatedAt: time.Now(),
	}

	m.notificationsMu.Lock()
	m.notifications = append([]models.DashboardNotification{entry}, m.notifications...)
	if len(m.notifications) > maxDashboardNotifications {
		m.notifications = m.notifications[:maxDashboardNotifications]
	}
	m.notificationsMu.Unlock()
}

// RecentNotifications returns the tenant's newest feed entries, newest first.
// A limit of zero or less returns everything the tenant has in the feed.
func (m *Monitor) RecentNotifications(tenantID, limit int) []models.DashboardNotification {
	m.notificationsMu.RLock()
	defer m.notificationsMu.RUnlock()

	var out []models.DashboardNotification
	for _, entry := range m.notifications {
		if entry.TenantID != tenantID {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func notificationKindForStatus(status models.Status) string {
	switch status {
	case models.StatusOffline:
		return models.NotificationKindDanger
	case models.StatusOverloaded:
		return models.NotificationKindWarning
	case models.StatusOnline:
		return models.NotificationKindSuccess
	default:
		return models.NotificationKindInfo
	}
}

func formatStatusLabel(status models.Status) string {
	switch status {
	case models.StatusOnline:
		return "Online"
	case models.StatusOverloaded:
		return "Online (overloaded)"
	case models.StatusOffline:
		return "Offline"
	default:
		return "Unknown"
	}
}

// renderTemplate substitutes {{token}} placeholders in a message template.
func renderTemplate(template string, tokens map[string]string) string {
	out := template
	for token, value := range tokens {
		out = strings.ReplaceAll(out, "{{"+token+"}}", value)
	}
	return out
}
