package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"fleetmon/internal/middleware"
	"fleetmon/internal/models"
	"fleetmon/internal/monitor"
	"fleetmon/internal/store"
)

type fixedProber struct {
	result models.ProbeResult
}

func (p *fixedProber) Probe(ctx context.Context, target models.Target) (models.ProbeResult, error) {
	result := p.result
	result.TargetID = target.ID
	return result, nil
}

type testEnv struct {
	router  *gin.Engine
	monitor *monitor.Monitor
	store   *store.Store
	auth    *middleware.AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	configFile := filepath.Join(root, "fleetmon.json")
	seed := []byte(`{"paths": {"root_path": "` + root + `"}, "port": 8520}`)
	if err := os.WriteFile(configFile, seed, 0o600); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	m := monitor.NewMonitor(configFile)
	if !m.IsActive() {
		t.Fatal("monitor failed to initialize")
	}
	t.Cleanup(m.Shutdown)

	db, err := store.Open(m.Paths.DatabaseFile())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m.SetSources(db, db)

	auth := middleware.NewAuthService("handlers-test-secret")
	hub := middleware.NewHub(nil)
	h := NewMonitorHandlers(m, db, auth, hub)

	r := gin.New()
	r.POST("/api/login", h.APILogin)
	api := r.Group("/api")
	api.Use(auth.RequireAPIAuth())
	{
		api.GET("/status", h.APIStatus)
		api.GET("/status/:target_id", h.APITargetStatus)
		api.POST("/refresh", h.APIRefresh)
		api.GET("/notifications", h.APINotifications)
		api.GET("/targets", h.APITargetList)
		api.POST("/targets", h.APITargetCreate)
		api.PUT("/targets/:target_id", h.APITargetUpdate)
		api.DELETE("/targets/:target_id", h.APITargetDelete)
		api.GET("/alerts/settings", h.APIAlertSettingGet)
		api.PUT("/alerts/settings", h.APIAlertSettingPut)
		api.PATCH("/profile/optout", h.APIProfileOptOut)
	}

	return &testEnv{router: r, monitor: m, store: db, auth: auth}
}

func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	return e.tokenFor(t, "admin", 1)
}

func (e *testEnv) tokenFor(t *testing.T, username string, tenantID int) string {
	t.Helper()
	if _, err := e.store.GetAdminByUsername(username); err != nil {
		if _, cerr := e.store.CreateAdmin(tenantID, username, "correct-horse", "", username+"@example.com"); cerr != nil {
			t.Fatalf("create admin: %v", cerr)
		}
	}
	token, err := e.auth.GenerateToken(username, tenantID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func (e *testEnv) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestAPILogin(t *testing.T) {
	env := newTestEnv(t)
	env.token(t) // ensures the admin exists

	w := env.request(t, http.MethodPost, "/api/login", "", gin.H{
		"username": "admin", "password": "correct-horse",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["token"] == "" || resp["username"] != "admin" {
		t.Fatalf("unexpected login response: %v", resp)
	}

	w = env.request(t, http.MethodPost, "/api/login", "", gin.H{
		"username": "admin", "password": "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", w.Code)
	}
}

func TestAPIStatusRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodGet, "/api/status", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
}

func TestTargetLifecycleAndRefresh(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	// Probes always succeed at 80% load for this test.
	env.monitor.SetProber(models.KindServer, &fixedProber{
		result: models.ProbeResult{Reachable: true, CurrentLoad: 80},
	})

	w := env.request(t, http.MethodPost, "/api/targets", token, gin.H{
		"display_name":   "panel-a",
		"kind":           "server",
		"endpoint":       "http://panel-a.example/status",
		"capacity_limit": 100,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created models.Target
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode target: %v", err)
	}

	w = env.request(t, http.MethodPost, "/api/refresh", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh failed: %d %s", w.Code, w.Body.String())
	}

	w = env.request(t, http.MethodGet, "/api/status", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status failed: %d", w.Code)
	}
	var status struct {
		Online    int                     `json:"online"`
		Snapshots []models.StatusSnapshot `json:"snapshots"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Online != 1 || len(status.Snapshots) != 1 {
		t.Fatalf("expected one online target, got %+v", status)
	}
	if status.Snapshots[0].UtilizationPercent != 80 {
		t.Fatalf("expected 80%% utilization, got %d", status.Snapshots[0].UtilizationPercent)
	}

	// Delete clears the snapshot too.
	w = env.request(t, http.MethodDelete, "/api/targets/"+itoa(created.ID), token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete failed: %d", w.Code)
	}
	w = env.request(t, http.MethodGet, "/api/status/"+itoa(created.ID), token, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestStatusScopedToTenant(t *testing.T) {
	env := newTestEnv(t)
	owner := env.token(t)
	outsider := env.tokenFor(t, "rival", 2)

	env.monitor.SetProber(models.KindServer, &fixedProber{
		result: models.ProbeResult{Reachable: true, CurrentLoad: 40},
	})

	w := env.request(t, http.MethodPost, "/api/targets", owner, gin.H{
		"display_name":   "tenant-one-panel",
		"kind":           "server",
		"endpoint":       "http://panel-one.example/status",
		"capacity_limit": 100,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", w.Code, w.Body.String())
	}
	var created models.Target
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode target: %v", err)
	}
	if w := env.request(t, http.MethodPost, "/api/refresh", owner, nil); w.Code != http.StatusOK {
		t.Fatalf("refresh failed: %d %s", w.Code, w.Body.String())
	}

	// The owning tenant reads its snapshot back.
	w = env.request(t, http.MethodGet, "/api/status/"+itoa(created.ID), owner, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("owner status read failed: %d", w.Code)
	}

	// Another tenant's admin sees none of it.
	w = env.request(t, http.MethodGet, "/api/status", outsider, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status failed: %d", w.Code)
	}
	var status struct {
		Targets   int                     `json:"targets"`
		Snapshots []models.StatusSnapshot `json:"snapshots"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Targets != 0 || len(status.Snapshots) != 0 {
		t.Fatalf("tenant 2 admin must not see tenant 1 snapshots, got %+v", status)
	}
	if strings.Contains(w.Body.String(), "tenant-one-panel") {
		t.Fatalf("tenant 1 data leaked into tenant 2 response: %s", w.Body.String())
	}

	w = env.request(t, http.MethodGet, "/api/status/"+itoa(created.ID), outsider, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign target snapshot, got %d", w.Code)
	}

	w = env.request(t, http.MethodGet, "/api/notifications", outsider, nil)
	if strings.Contains(w.Body.String(), "tenant-one-panel") {
		t.Fatalf("tenant 1 alerts leaked into tenant 2 feed: %s", w.Body.String())
	}
}

func TestTargetCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	w := env.request(t, http.MethodPost, "/api/targets", token, gin.H{
		"display_name": "bad-kind",
		"kind":         "mainframe",
		"endpoint":     "http://x",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid kind, got %d", w.Code)
	}
}

func TestAlertSettingRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	w := env.request(t, http.MethodGet, "/api/alerts/settings", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get settings failed: %d", w.Code)
	}
	var setting models.AlertSetting
	if err := json.Unmarshal(w.Body.Bytes(), &setting); err != nil {
		t.Fatalf("decode setting: %v", err)
	}
	if !setting.Enabled {
		t.Fatal("alerts should default to enabled")
	}

	w = env.request(t, http.MethodPut, "/api/alerts/settings", token, gin.H{
		"enabled":     false,
		"alert_email": "ops@example.com",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("put settings failed: %d %s", w.Code, w.Body.String())
	}

	w = env.request(t, http.MethodGet, "/api/alerts/settings", token, nil)
	if err := json.Unmarshal(w.Body.Bytes(), &setting); err != nil {
		t.Fatalf("decode setting: %v", err)
	}
	if setting.Enabled || setting.AlertEmail != "ops@example.com" {
		t.Fatalf("unexpected setting after save: %+v", setting)
	}
}

func TestProfileOptOut(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	w := env.request(t, http.MethodPatch, "/api/profile/optout", token, gin.H{
		"channel": "sms", "opt_out": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("optout failed: %d %s", w.Code, w.Body.String())
	}

	recipients, err := env.store.ListRecipients(1)
	if err != nil {
		t.Fatalf("ListRecipients: %v", err)
	}
	if len(recipients) != 1 || !recipients[0].SMSOptOut {
		t.Fatalf("expected SMS opt-out to persist, got %+v", recipients)
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
