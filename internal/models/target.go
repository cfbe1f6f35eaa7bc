package models

import "time"

// TargetKind distinguishes how a monitored endpoint is probed.
type TargetKind string

const (
	// KindServer is an upstream panel server answering an HTTP usage query.
	KindServer TargetKind = "server"
	// KindOperator is an operator endpoint checked for plain reachability.
	KindOperator TargetKind = "operator"
)

// Target is one monitored upstream endpoint. Targets are immutable during a
// polling cycle; disabled targets are skipped entirely and treated as
// "unknown" rather than offline.
type Target struct {
	ID            int        `json:"id"`
	TenantID      int        `json:"tenant_id"`
	DisplayName   string     `json:"display_name"`
	Kind          TargetKind `json:"kind"`
	Endpoint      string     `json:"endpoint"`
	CapacityLimit int        `json:"capacity_limit"`
	Enabled       bool       `json:"enabled"`
	GroupKey      string     `json:"group_key,omitempty"`
}

// ProbeResult is the point-in-time outcome of checking one target. It lives
// for a single polling cycle; only the derived StatusSnapshot persists.
type ProbeResult struct {
	TargetID    int       `json:"target_id"`
	Reachable   bool      `json:"reachable"`
	CurrentLoad int       `json:"current_load"`
	Timestamp   time.Time `json:"timestamp"`
}

// Status classifies a target's condition from a single probe.
type Status string

const (
	StatusUnknown    Status = "unknown"
	StatusOnline     Status = "online"
	StatusOverloaded Status = "overloaded"
	StatusOffline    Status = "offline"
)

// StatusSnapshot is the latest computed status for one target, overwritten
// each cycle and read back by the dashboard.
type StatusSnapshot struct {
	TargetID           int       `json:"target_id"`
	TenantID           int       `json:"tenant_id"`
	DisplayName        string    `json:"display_name"`
	GroupKey           string    `json:"group_key,omitempty"`
	Classification     Status    `json:"classification"`
	UtilizationPercent int       `json:"utilization_percent"`
	AsOf               time.Time `json:"as_of"`
}

// TransitionEvent records a classification change between consecutive polls.
// It is consumed once by the notifier fan-out and then discarded.
type TransitionEvent struct {
	TargetID    int       `json:"target_id"`
	DisplayName string    `json:"display_name"`
	Endpoint    string    `json:"endpoint"`
	Previous    Status    `json:"previous"`
	Current     Status    `json:"current"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Recipient is an administrator subscribed to fleet alerts. Owned by the
// identity system; read-only here.
type Recipient struct {
	AdminID     int    `json:"admin_id"`
	TenantID    int    `json:"tenant_id"`
	Username    string `json:"username"`
	SMSOptOut   bool   `json:"sms_opt_out"`
	EmailOptOut bool   `json:"email_opt_out"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
}

// Channel names a notification dispatch path.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// DispatchOutcome records one recipient/channel attempt within a fan-out.
type DispatchOutcome struct {
	AdminID   int     `json:"admin_id"`
	Channel   Channel `json:"channel"`
	Attempted bool    `json:"attempted"`
	Succeeded bool    `json:"succeeded"`
	ErrorKind string  `json:"error_kind,omitempty"`
}

// FanOutResult aggregates the per-recipient, per-channel outcomes of a single
// transition alert.
type FanOutResult struct {
	TargetID   int               `json:"target_id"`
	Event      Status            `json:"event"`
	Outcomes   []DispatchOutcome `json:"outcomes"`
	DispatchAt time.Time         `json:"dispatch_at"`
}

// Attempted counts how many channel attempts were actually made.
func (r *FanOutResult) Attempted() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, o := range r.Outcomes {
		if o.Attempted {
			n++
		}
	}
	return n
}

// Succeeded counts how many channel attempts completed without error.
func (r *FanOutResult) Succeeded() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, o := range r.Outcomes {
		if o.Succeeded {
			n++
		}
	}
	return n
}
