package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	TokenExpiry = 24 * time.Hour
	CookieName  = "auth_token"
)

type Claims struct {
	Username string `json:"username"`
	TenantID int    `json:"tenant_id"`
	jwt.RegisteredClaims
}

type AuthService struct {
	secret      []byte
	mu          sync.Mutex
	apiFailures map[string]*apiFailure
}

type apiFailure struct {
	count        int
	lastAttempt  time.Time
	lockoutUntil time.Time
}

// NewAuthService builds the JWT auth service. The signing secret comes from
// the argument, falling back to FLEETMON_JWT_SECRET, then to a random
// per-process secret (which invalidates tokens on restart).
func NewAuthService(secret string) *AuthService {
	if strings.TrimSpace(secret) == "" {
		secret = os.Getenv("FLEETMON_JWT_SECRET")
	}
	if strings.TrimSpace(secret) == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err == nil {
			secret = hex.EncodeToString(buf)
		} else {
			secret = fmt.Sprintf("fleetmon-%d", time.Now().UnixNano())
		}
	}
	return &AuthService{
		secret:      []byte(secret),
		apiFailures: make(map[string]*apiFailure),
	}
}

func (a *AuthService) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func (a *AuthService) CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

func (a *AuthService) GenerateToken(username string, tenantID int) (string, error) {
	claims := Claims{
		Username: username,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(TokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// Helper to detect if current request is effectively HTTPS (behind proxy or direct)
func requestIsSecure(c *gin.Context) bool {
	if c.Request.TLS != nil {
		return true
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); strings.EqualFold(proto, "https") {
		return true
	}
	return false
}

func forceSecureCookies() bool {
	return strings.EqualFold(os.Getenv("FLEETMON_COOKIE_FORCE_SECURE"), "true")
}

func cookieShouldBeSecure(c *gin.Context) bool {
	if forceSecureCookies() {
		return true
	}
	return requestIsSecure(c)
}

// Resolve SameSite setting based on env; defaults to Lax for the JSON dashboard
func resolveSameSite() http.SameSite {
	switch strings.ToLower(os.Getenv("FLEETMON_COOKIE_SAMESITE")) {
	case "none":
		return http.SameSiteNoneMode
	case "strict":
		return http.SameSiteStrictMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}

// Sets the auth cookie with appropriate flags
func SetAuthCookie(c *gin.Context, token string) {
	sameSite := resolveSameSite()
	secure := cookieShouldBeSecure(c)
	// SameSite=None requires Secure=true; fallback to Lax if connection isn't secure
	if sameSite == http.SameSiteNoneMode && !secure {
		sameSite = http.SameSiteLaxMode
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		MaxAge:   int(TokenExpiry.Seconds()),
	})
}

// Clears the auth cookie using the same attributes
func ClearAuthCookie(c *gin.Context) {
	sameSite := resolveSameSite()
	secure := cookieShouldBeSecure(c)
	if sameSite == http.SameSiteNoneMode && !secure {
		sameSite = http.SameSiteLaxMode
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		MaxAge:   -1,
	})
}

// API Authentication middleware (JSON responses, with per-IP lockout)
func (a *AuthService) RequireAPIAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := a.apiFailureKey(c)
		if retryAfter, locked := a.checkAPILockout(key); locked {
			c.Header("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many unauthorized attempts",
				"retry_after": int(retryAfter.Seconds()),
			})
			return
		}

		// Prefer Authorization header but fall back to cookie for browser requests
		tokenString := c.GetHeader("Authorization")
		if tokenString == "" {
			if cookieToken, err := c.Cookie(CookieName); err == nil {
				tokenString = cookieToken
			}
		}

		if tokenString == "" {
			retryAfter, locked := a.recordAPIFailure(key)
			if locked {
				c.Header("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
					"error":       "Too many unauthorized attempts",
					"retry_after": int(retryAfter.Seconds()),
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header or cookie required"})
			return
		}

		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		claims, err := a.ValidateToken(tokenString)
		if err != nil {
			retryAfter, locked := a.recordAPIFailure(key)
			if locked {
				c.Header("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
					"error":       "Too many unauthorized attempts",
					"retry_after": int(retryAfter.Seconds()),
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		a.clearAPIFailures(key)
		c.Set("username", claims.Username)
		c.Set("tenant_id", claims.TenantID)
		c.Next()
	}
}

// TenantFromContext returns the tenant id set by RequireAPIAuth, defaulting
// to tenant 1 for tokens issued before tenants existed.
func TenantFromContext(c *gin.Context) int {
	if v, ok := c.Get("tenant_id"); ok {
		if id, ok := v.(int); ok && id > 0 {
			return id
		}
	}
	return 1
}

func (a *AuthService) apiFailureKey(c *gin.Context) string {
	return c.ClientIP()
}

func (a *AuthService) checkAPILockout(key string) (time.Duration, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.apiFailures[key]
	if !ok {
		return 0, false
	}
	now := time.Now()
	if rec.lockoutUntil.After(now) {
		return rec.lockoutUntil.Sub(now), true
	}
	return 0, false
}

func (a *AuthService) recordAPIFailure(key string) (time.Duration, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	rec, ok := a.apiFailures[key]
	if !ok {
		rec = &apiFailure{}
		a.apiFailures[key] = rec
	}

	if rec.lockoutUntil.After(now) {
		return rec.lockoutUntil.Sub(now), true
	}

	if now.Sub(rec.lastAttempt) > 5*time.Minute {
		rec.count = 0
	}

	rec.lastAttempt = now
	rec.count++

	if rec.count >= 3 {
		lockout := time.Duration(rec.count) * 15 * time.Second
		if lockout > 2*time.Minute {
			lockout = 2 * time.Minute
		}
		rec.lockoutUntil = now.Add(lockout)
		rec.count = 0
		return lockout, true
	}

	return 0, false
}

func (a *AuthService) clearAPIFailures(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.apiFailures, key)
}
