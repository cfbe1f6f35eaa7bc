// Package monitor orchestrates fleet polling, status evaluation, transition
// detection, and alert fan-out for fleetmon.
package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"fleetmon/internal/channels"
	"fleetmon/internal/models"
	"fleetmon/internal/utils"
)

const (
	defaultPollIntervalSeconds = 60
	defaultProbeTimeoutSeconds = 5
	defaultConcurrency         = 8
	defaultAlertRatePerMinute  = 6
	defaultAlertBurst          = 3
)

// TargetSource supplies the monitored fleet. Queries are always scoped to a
// tenant; the source is expected to return only that tenant's targets.
type TargetSource interface {
	ListEnabledTargets(tenantID int) ([]models.Target, error)
	GetTarget(tenantID, targetID int) (*models.Target, error)
}

// RecipientSource supplies alert subscribers and their dispatch settings.
type RecipientSource interface {
	ListRecipients(tenantID int) ([]models.Recipient, error)
	AlertSetting(tenantID int) (*models.AlertSetting, error)
	SMTPAccountFor(adminID int) (channels.SMTPAccount, error)
}

// Monitor owns the polling schedule, the snapshot cache, the transition
// detector, and the notification fan-out. Exported fields with JSON tags are
// persisted to the config file; everything else is runtime state.
type Monitor struct {
	Active     bool          `json:"-"`
	ConfigFile string        `json:"-"`
	Log        *utils.Logger `json:"-"`
	AlertLog   *utils.Logger `json:"-"`

	Paths   *utils.Paths `json:"paths"`
	Port    int          `json:"port"`
	Tenants []int        `json:"tenants"`

	PollIntervalSeconds int `json:"poll_interval_seconds"`
	ProbeTimeoutSeconds int `json:"probe_timeout_seconds"`
	Concurrency         int `json:"concurrency"`

	// AlertOn lists the classifications whose transitions trigger fan-out.
	// The original behavior alerts only on going down.
	AlertOn []models.Status `json:"alert_on"`

	// Alert flood guard: at most AlertRatePerMinute fan-outs per minute with
	// a small burst allowance. Zero disables the guard.
	AlertRatePerMinute int `json:"alert_rate_per_minute"`
	AlertBurst         int `json:"alert_burst"`

	// SMS gateway settings
	SMSGatewayURL string `json:"sms_gateway_url"`
	SMSGatewayKey string `json:"sms_gateway_key"`
	SMSSenderID   string `json:"sms_sender_id"`

	// DefaultWebhook receives a JSON copy of every dispatched alert.
	DefaultWebhook string `json:"default_webhook"`

	// Per-classification message templates.
	// Tokens: {{target_name}}, {{endpoint}}, {{previous}}, {{status}}, {{timestamp}}
	NotifyMsgOffline    string `json:"notify_msg_offline"`
	NotifyMsgOnline     string `json:"notify_msg_online"`
	NotifyMsgOverloaded string `json:"notify_msg_overloaded"`
	NotifySubject       string `json:"notify_subject"`

	// Security and auth
	JWTSecret string `json:"jwt_secret"`
	// TLS settings for serving HTTPS. Effective at process start.
	TLSEnabled  bool   `json:"tls_enabled"`
	TLSCertPath string `json:"tls_cert"`
	TLSKeyPath  string `json:"tls_key"`

	// OnCycleComplete is an optional callback invoked with the snapshot table
	// after each tenant's cycle finishes. Handlers set this to push realtime
	// updates to dashboards.
	OnCycleComplete func(tenantID int, snapshots []models.StatusSnapshot) `json:"-"`

	targets    TargetSource
	recipients RecipientSource
	sms        channels.SMSSender
	mailer     channels.EmailSender
	probers    map[models.TargetKind]Prober

	cache        *SnapshotCache
	detector     *TransitionDetector
	alertLimiter *rate.Limiter

	notificationSeq atomic.Uint64
	notificationsMu sync.RWMutex
	notifications   []models.DashboardNotification

	fanoutWG sync.WaitGroup
	cycleWG  sync.WaitGroup

	loopMu     sync.Mutex
	loopCancel func()
	loopDone   chan struct{}

	telemetryMu     sync.RWMutex
	telemetryStop   chan struct{}
	telemetryWG     sync.WaitGroup
	systemTelemetry *models.SystemTelemetry
	lastCPUTotal    float64
	lastCPUIdle     float64
}

// NewMonitor loads (or creates) the config file and prepares the monitor for
// use. Sources and channels are wired afterwards with SetSources/SetChannels.
func NewMonitor(configFile string) *Monitor {
	m := &Monitor{
		ConfigFile:          configFile,
		Tenants:             []int{1},
		PollIntervalSeconds: defaultPollIntervalSeconds,
		ProbeTimeoutSeconds: defaultProbeTimeoutSeconds,
		Concurrency:         defaultConcurrency,
		AlertOn:             []models.Status{models.StatusOffline},
		AlertRatePerMinute:  defaultAlertRatePerMinute,
		AlertBurst:          defaultAlertBurst,
		Port:                8520,
		cache:               NewSnapshotCache(),
		detector:            NewTransitionDetector(),
		probers:             defaultProbers(),
	}

	if err := m.LoadConfig(); err != nil {
		writeToStartupLog(fmt.Sprintf("Error loading config (%s): %v", configFile, err))
		return m
	}

	if m.Paths == nil || m.Paths.RootPath == "" {
		m.Paths = utils.NewPaths(defaultRootPath())
	}
	m.Paths.DeployRoot(nil)
	m.Log = utils.NewLogger(m.Paths.LogFile())
	m.AlertLog = utils.NewLogger(m.Paths.AlertLogFile())

	if m.AlertRatePerMinute > 0 {
		burst := m.AlertBurst
		if burst < 1 {
			burst = 1
		}
		m.alertLimiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(m.AlertRatePerMinute)), burst)
	}

	if err := m.SaveConfig(); err != nil {
		m.Log.Write(fmt.Sprintf("Error saving config: %v", err))
	}

	m.Active = true
	return m
}

// SetSources wires the target registry and recipient directory.
func (m *Monitor) SetSources(targets TargetSource, recipients RecipientSource) {
	m.targets = targets
	m.recipients = recipients
}

// SetChannels wires the SMS and email dispatch collaborators.
func (m *Monitor) SetChannels(sms channels.SMSSender, mailer channels.EmailSender) {
	m.sms = sms
	m.mailer = mailer
}

// BuildSMSSender constructs the SMS gateway client from config. Returns nil
// when no gateway URL is configured, which disables the SMS channel.
func (m *Monitor) BuildSMSSender() channels.SMSSender {
	if m.SMSGatewayURL == "" {
		return nil
	}
	return channels.NewSMSGateway(m.SMSGatewayURL, m.SMSGatewayKey, m.SMSSenderID)
}

// BuildEmailSender constructs the SMTP mailer. Credentials are resolved per
// admin at dispatch time.
func (m *Monitor) BuildEmailSender() channels.EmailSender {
	return channels.NewSMTPMailer()
}

// SetProber overrides the prober for a target kind.
func (m *Monitor) SetProber(kind models.TargetKind, prober Prober) {
	if m.probers == nil {
		m.probers = make(map[models.TargetKind]Prober)
	}
	m.probers[kind] = prober
}

// IsActive reports whether initialization succeeded.
func (m *Monitor) IsActive() bool {
	return m != nil && m.Active
}

// Snapshots exposes the snapshot cache for read-back.
func (m *Monitor) Snapshots() *SnapshotCache {
	return m.cache
}

// ForgetTarget drops a removed target's cached snapshot and transition state.
func (m *Monitor) ForgetTarget(targetID int) {
	m.cache.Delete(targetID)
	m.detector.Forget(targetID)
}

// PollInterval returns the configured cycle interval.
func (m *Monitor) PollInterval() time.Duration {
	if m.PollIntervalSeconds <= 0 {
		return defaultPollIntervalSeconds * time.Second
	}
	return time.Duration(m.PollIntervalSeconds) * time.Second
}

// ProbeTimeout returns the per-probe deadline.
func (m *Monitor) ProbeTimeout() time.Duration {
	if m.ProbeTimeoutSeconds <= 0 {
		return defaultProbeTimeoutSeconds * time.Second
	}
	return time.Duration(m.ProbeTimeoutSeconds) * time.Second
}

func (m *Monitor) concurrency() int {
	if m.Concurrency <= 0 {
		return defaultConcurrency
	}
	return m.Concurrency
}

// TenantList returns the tenants covered by the scheduled polling loop.
func (m *Monitor) TenantList() []int {
	if len(m.Tenants) == 0 {
		return []int{1}
	}
	out := make([]int, len(m.Tenants))
	copy(out, m.Tenants)
	return out
}

func (m *Monitor) shouldAlert(status models.Status) bool {
	for _, s := range m.AlertOn {
		if s == status {
			return true
		}
	}
	return false
}

// LoadConfig reads the config file into the monitor. A missing file leaves
// the defaults in place.
func (m *Monitor) LoadConfig() error {
	if m.ConfigFile == "" {
		return errors.New("config file path not set")
	}
	data, err := os.ReadFile(m.ConfigFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, m)
}

// SaveConfig writes the config file atomically.
func (m *Monitor) SaveConfig() error {
	if m.ConfigFile == "" {
		return errors.New("config file path not set")
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(m.ConfigFile); dir != "" && dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	tmp := m.ConfigFile + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, m.ConfigFile)
}

// Shutdown stops the polling loop and telemetry sampler and waits for any
// in-flight fan-outs to finish.
func (m *Monitor) Shutdown() {
	if m == nil {
		return
	}
	m.Stop()
	m.StopTelemetryMonitor()
	if m.Log != nil {
		m.Log.Write("Monitor shut down")
	}
}

func defaultRootPath() string {
	exe, err := os.Executable()
	if err != nil {
		return filepath.Join(os.TempDir(), "fleetmon")
	}
	if resolved, rerr := filepath.EvalSymlinks(exe); rerr == nil && resolved != "" {
		exe = resolved
	}
	return filepath.Dir(exe)
}

func writeToStartupLog(message string) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", time.Now().Format("2006-01-02 15:04:05"), message)
}
