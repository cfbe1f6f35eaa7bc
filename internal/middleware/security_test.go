package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestMutationGuardBlocksNonAPI(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders())
	// A generic handler that would succeed if reached
	r.POST("/foo", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	req := httptest.NewRequest(http.MethodPost, "/foo", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for non-API POST, got %d", w.Code)
	}
}

func TestMutationGuardAllowsAPI(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders())
	r.POST("/api/test", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	r.GET("/status", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	req := httptest.NewRequest(http.MethodPost, "/api/test", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected API POST to succeed (200), got %d", w.Code)
	}

	// Reads outside /api/ are untouched by the guard
	req2 := httptest.NewRequest(http.MethodGet, "/status", nil)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected GET outside /api/ to succeed (200), got %d", w2.Code)
	}
}

func TestAuthServiceTokenRoundTrip(t *testing.T) {
	auth := NewAuthService("test-secret")
	token, err := auth.GenerateToken("admin", 3)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Username != "admin" || claims.TenantID != 3 {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestAuthServiceRejectsForeignToken(t *testing.T) {
	auth := NewAuthService("secret-a")
	other := NewAuthService("secret-b")
	token, err := other.GenerateToken("admin", 1)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := auth.ValidateToken(token); err == nil {
		t.Fatal("expected token signed with another secret to be rejected")
	}
}
