package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fleetmon/internal/models"
)

// ConfigError marks a target whose configuration cannot be probed at all
// (missing or malformed endpoint). The target is skipped for the cycle and
// excluded from the snapshot table rather than reported Offline, so a typo in
// an endpoint never raises a false alarm.
type ConfigError struct {
	TargetID int
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("target %d misconfigured: %s", e.TargetID, e.Reason)
}

// Prober performs a point-in-time check of one target. Implementations fold
// transient network failure (timeout, refused connection) into
// Reachable=false and never block past the caller's context deadline.
type Prober interface {
	Probe(ctx context.Context, target models.Target) (models.ProbeResult, error)
}

// PanelProber checks upstream panel servers by querying their HTTP usage
// endpoint for the current active session count.
type PanelProber struct {
	client *http.Client
}

// NewPanelProber returns a prober using the provided client, or a default one.
// Per-probe deadlines come from the caller's context, not the client timeout.
func NewPanelProber(client *http.Client) *PanelProber {
	if client == nil {
		client = &http.Client{}
	}
	return &PanelProber{client: client}
}

// usageResponse is the JSON body panel servers answer on their status URL.
type usageResponse struct {
	ActiveConnections int `json:"active_connections"`
}

// Probe queries the panel's status endpoint. Any transport failure or non-2xx
// answer yields an unreachable result with zero load.
func (p *PanelProber) Probe(ctx context.Context, target models.Target) (models.ProbeResult, error) {
	result := models.ProbeResult{TargetID: target.ID, Timestamp: time.Now()}

	endpoint := strings.TrimSpace(target.Endpoint)
	if endpoint == "" {
		return result, &ConfigError{TargetID: target.ID, Reason: "endpoint not set"}
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return result, &ConfigError{TargetID: target.ID, Reason: fmt.Sprintf("invalid endpoint %q", endpoint)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return result, &ConfigError{TargetID: target.ID, Reason: err.Error()}
	}
	resp, err := p.client.Do(req)
	if err != nil {
		// Timeout, refused, DNS failure: the panel is unreachable, not broken config.
		return result, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return result, nil
	}
	var usage usageResponse
	if err := json.Unmarshal(body, &usage); err != nil {
		return result, nil
	}

	result.Reachable = true
	result.CurrentLoad = usage.ActiveConnections
	if result.CurrentLoad < 0 {
		result.CurrentLoad = 0
	}
	return result, nil
}

// OperatorProber checks operator endpoints for plain TCP reachability; load
// is always reported as zero.
type OperatorProber struct {
	dialer *net.Dialer
}

// NewOperatorProber returns a prober with a default dialer. Per-probe
// deadlines come from the caller's context.
func NewOperatorProber() *OperatorProber {
	return &OperatorProber{dialer: &net.Dialer{}}
}

// Probe dials the operator endpoint (host:port). Dial failure folds into an
// unreachable result.
func (p *OperatorProber) Probe(ctx context.Context, target models.Target) (models.ProbeResult, error) {
	result := models.ProbeResult{TargetID: target.ID, Timestamp: time.Now()}

	endpoint := strings.TrimSpace(target.Endpoint)
	if endpoint == "" {
		return result, &ConfigError{TargetID: target.ID, Reason: "endpoint not set"}
	}
	if _, _, err := net.SplitHostPort(endpoint); err != nil {
		return result, &ConfigError{TargetID: target.ID, Reason: fmt.Sprintf("endpoint %q is not host:port", endpoint)}
	}

	conn, err := p.dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return result, nil
	}
	conn.Close()

	result.Reachable = true
	return result, nil
}

// defaultProbers wires the standard prober per target kind.
func defaultProbers() map[models.TargetKind]Prober {
	return map[models.TargetKind]Prober{
		models.KindServer:   NewPanelProber(nil),
		models.KindOperator: NewOperatorProber(),
	}
}
