package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveWithSecurity(t *testing.T, opt SecurityOptions, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders(opt))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	w := serveWithSecurity(t, SecurityOptions{EnablePolicy: true}, nil)

	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("nosniff missing")
	}
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("frame options missing")
	}
	if w.Header().Get("Permissions-Policy") == "" {
		t.Fatalf("permissions policy missing")
	}
	// HSTS must never appear on plain HTTP.
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS emitted for HTTP request")
	}
}

func TestSecurityHeaders_HSTSOnlyOverHTTPS(t *testing.T) {
	opt := SecurityOptions{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour}

	plain := serveWithSecurity(t, opt, nil)
	if plain.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS emitted without HTTPS")
	}

	proxied := serveWithSecurity(t, opt, func(r *http.Request) {
		r.Header.Set("X-Forwarded-Proto", "https")
	})
	hsts := proxied.Header().Get("Strict-Transport-Security")
	if !strings.Contains(hsts, "max-age=86400") {
		t.Fatalf("HSTS = %q", hsts)
	}
}

func TestSecurityHeaders_NoStore(t *testing.T) {
	w := serveWithSecurity(t, SecurityOptions{NoStore: true}, nil)
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("no-store missing")
	}
}
