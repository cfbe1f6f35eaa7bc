package models

import "time"

// DashboardNotification represents a recent fleet alert surfaced in the UI feed.
type DashboardNotification struct {
	ID        uint64    `json:"id"`
	TenantID  int       `json:"tenant_id"`
	Kind      string    `json:"kind"`
	Event     string    `json:"event,omitempty"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	TargetID  int       `json:"target_id,omitempty"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	NotificationKindInfo    = "info"
	NotificationKindSuccess = "success"
	NotificationKindWarning = "warning"
	NotificationKindDanger  = "danger"
)
