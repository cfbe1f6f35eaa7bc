package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"fleetmon/internal/handlers"
	"fleetmon/internal/middleware"
	"fleetmon/internal/models"
	"fleetmon/internal/monitor"
	"fleetmon/internal/store"
	"fleetmon/internal/version"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type App struct {
	monitor     *monitor.Monitor
	store       *store.Store
	authService *middleware.AuthService
	wsHub       *middleware.Hub
	rateLimiter *middleware.RateLimiter
	tlsEnabled  bool
	tlsCertPath string
	tlsKeyPath  string
}

var app *App

const (
	envConfig  = "FLEETMON_CONFIG"
	envUseTLS  = "FLEETMON_USE_TLS"
	envTLSCert = "FLEETMON_TLS_CERT"
	envTLSKey  = "FLEETMON_TLS_KEY"
)

func envBool(key string) bool {
	val := os.Getenv(key)
	if val == "" {
		return false
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return false
	}
	return parsed
}

func configFilePath() string {
	if path := os.Getenv(envConfig); path != "" {
		return path
	}
	exe, err := os.Executable()
	if err != nil {
		return "fleetmon.json"
	}
	return filepath.Join(filepath.Dir(exe), "fleetmon.json")
}

func main() {
	// Set Gin mode
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	m := monitor.NewMonitor(configFilePath())
	if !m.IsActive() {
		log.Fatal("Monitor failed to initialize")
	}

	db, err := store.Open(m.Paths.DatabaseFile())
	if err != nil {
		log.Fatalf("Database failed to open: %v", err)
	}
	defer db.Close()

	m.SetSources(db, db)
	m.SetChannels(m.BuildSMSSender(), m.BuildEmailSender())

	app = &App{
		monitor:     m,
		store:       db,
		authService: middleware.NewAuthService(m.JWTSecret),
		wsHub:       middleware.NewHub(m.Log),
		rateLimiter: middleware.NewRateLimiter(rate.Every(time.Minute/100), 10),
		tlsEnabled:  m.TLSEnabled || envBool(envUseTLS),
		tlsCertPath: firstNonEmptyString(os.Getenv(envTLSCert), m.TLSCertPath),
		tlsKeyPath:  firstNonEmptyString(os.Getenv(envTLSKey), m.TLSKeyPath),
	}

	// Push each finished cycle to connected dashboards.
	m.OnCycleComplete = func(tenantID int, snapshots []models.StatusSnapshot) {
		app.wsHub.BroadcastJSON("cycle", gin.H{
			"tenant_id": tenantID,
			"snapshots": snapshots,
		})
	}

	// Start WebSocket hub, host telemetry sampler, and the polling loop
	go app.wsHub.Run()
	m.StartTelemetryMonitor()
	m.Start()

	r := setupRouter()

	srv := &http.Server{
		Addr:           ":" + strconv.Itoa(m.Port),
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	if app.tlsEnabled {
		if app.tlsCertPath == "" || app.tlsKeyPath == "" {
			log.Fatalf("TLS is enabled but %s or %s not provided", envTLSCert, envTLSKey)
		}
		go func() {
			log.Printf("Starting fleetmon %s HTTPS server on port %d", version.String(), m.Port)
			if err := srv.ListenAndServeTLS(app.tlsCertPath, app.tlsKeyPath); err != nil && err != http.ErrServerClosed {
				log.Fatalf("HTTPS server failed to start: %v", err)
			}
		}()
	} else {
		go func() {
			log.Printf("Starting fleetmon %s server on port %d", version.String(), m.Port)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server failed to start: %v", err)
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Stop polling and fan-out first so no alerts are lost mid-dispatch
	app.monitor.Shutdown()
	app.rateLimiter.Stop()

	// Give server 5 seconds to finish handling requests
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}

func firstNonEmptyString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func setupRouter() *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())

	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))

	// Security middleware
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())

	// Rate limiting - 100 requests per minute per IP
	r.Use(app.rateLimiter.Middleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.String()})
	})

	h := handlers.NewMonitorHandlers(app.monitor, app.store, app.authService, app.wsHub)

	// Public routes
	r.POST("/api/login", h.APILogin)
	r.POST("/api/logout", h.APILogout)

	// API routes (require token authentication)
	api := r.Group("/api")
	api.Use(app.authService.RequireAPIAuth())
	{
		api.GET("/status", h.APIStatus)
		api.GET("/status/:target_id", h.APITargetStatus)
		api.POST("/refresh", h.APIRefresh)
		api.GET("/notifications", h.APINotifications)
		api.GET("/telemetry", h.APITelemetry)

		api.GET("/targets", h.APITargetList)
		api.POST("/targets", h.APITargetCreate)
		api.PUT("/targets/:target_id", h.APITargetUpdate)
		api.DELETE("/targets/:target_id", h.APITargetDelete)

		api.GET("/alerts/settings", h.APIAlertSettingGet)
		api.PUT("/alerts/settings", h.APIAlertSettingPut)
		api.PATCH("/profile/optout", h.APIProfileOptOut)
		api.PUT("/profile/smtp", h.APISMTPAccountPut)
	}

	// WebSocket endpoint
	r.GET("/ws", app.wsHub.HandleWebSocket())

	return r
}
