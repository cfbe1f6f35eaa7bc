package models

// AlertSetting is the per-tenant alert switch and contact points consulted
// before any fan-out. When Enabled is false, transitions are still recorded
// but no SMS/email is dispatched.
type AlertSetting struct {
	TenantID   int    `json:"tenant_id"`
	Enabled    bool   `json:"enabled"`
	AlertPhone string `json:"alert_phone,omitempty"`
	AlertEmail string `json:"alert_email,omitempty"`
}
