package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joshua-takyi/reviewtrust/internal/helpers"
)

const secret = "middleware-secret"

func signed(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	claims := &helpers.CustomClaims{}
	claims.Subject = subject
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	claims.AppMetadata.Roles = roles
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := gin.New()
	r.Use(RequestID())
	r.GET("/me", AuthMiddleware(helpers.NewHMACValidator(secret), logger), func(c *gin.Context) {
		user, _ := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"id": user.UserID, "role": user.GetSafeRole()})
	})
	r.GET("/admin", AuthMiddleware(helpers.NewHMACValidator(secret), logger), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter()
	tests := []struct {
		name   string
		path   string
		header string
		cookie string
		want   int
	}{
		{"missing", "/me", "", "", http.StatusUnauthorized},
		{"garbage", "/me", "Bearer nope", "", http.StatusUnauthorized},
		{"wrong scheme", "/me", "Basic " + signed(t, "u1"), "", http.StatusUnauthorized},
		{"bearer", "/me", "Bearer " + signed(t, "u1"), "", http.StatusOK},
		{"cookie", "/me", "", signed(t, "u1"), http.StatusOK},
		{"non admin", "/admin", "Bearer " + signed(t, "u1", "owner"), "", http.StatusForbidden},
		{"admin", "/admin", "bearer " + signed(t, "u1", "owner", "admin"), "", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "access_token", Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestAuthMiddlewareWithoutValidator(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(nil, slog.New(slog.NewTextHandler(io.Discard, nil))), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	r := newRouter()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q, want req-123", got)
	}
}

func TestAnonymousRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limit, err := AnonymousRateLimit("2-M", nil)
	if err != nil {
		t.Fatalf("AnonymousRateLimit: %v", err)
	}
	r := gin.New()
	r.GET("/x", limit, func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	for i := 0; i < 2; i++ {
		if code := send("198.51.100.1"); code != http.StatusOK {
			t.Fatalf("request %d = %d", i+1, code)
		}
	}
	if code := send("198.51.100.1"); code != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", code)
	}
	if code := send("198.51.100.2"); code != http.StatusOK {
		t.Errorf("other client = %d, want 200", code)
	}

	if _, err := AnonymousRateLimit("lots", nil); err == nil {
		t.Error("expected error for malformed rate")
	}
}
