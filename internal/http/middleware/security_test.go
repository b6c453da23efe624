package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name      string
		opts      SecurityOptions
		https     bool
		wantHSTS  string
		wantCache string
	}{
		{"baseline", SecurityOptions{}, false, "", ""},
		{"hsts over plain http", SecurityOptions{EnableHSTS: true}, false, "", ""},
		{"hsts default age", SecurityOptions{EnableHSTS: true}, true, "max-age=15552000; includeSubDomains; preload", ""},
		{"hsts custom age + no-store", SecurityOptions{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour, NoStore: true}, true, "max-age=86400; includeSubDomains; preload", "no-store"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(RequestID())
			r.Use(SecurityHeaders(tc.opts))
			r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

			req := httptest.NewRequest(http.MethodGet, "/ok", nil)
			if tc.https {
				req.Header.Set("X-Forwarded-Proto", "https")
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			h := w.Header()
			if h.Get("X-Content-Type-Options") != "nosniff" || h.Get("X-Frame-Options") != "DENY" ||
				h.Get("Referrer-Policy") != "no-referrer" || h.Get("Permissions-Policy") == "" {
				t.Fatalf("baseline headers missing: %#v", h)
			}
			if got := h.Get("Strict-Transport-Security"); got != tc.wantHSTS {
				t.Fatalf("HSTS = %q; want %q", got, tc.wantHSTS)
			}
			if got := h.Get("Cache-Control"); got != tc.wantCache {
				t.Fatalf("Cache-Control = %q; want %q", got, tc.wantCache)
			}
			if got := h.Get("Access-Control-Expose-Headers"); got != requestIDHeader {
				t.Fatalf("expose headers = %q", got)
			}
		})
	}
}

func TestSecurityHeaders_ExposeAppends(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Expose-Headers", "Content-Length")
		c.Header(requestIDHeader, "rid")
		c.Next()
	})
	r.Use(SecurityHeaders(SecurityOptions{}))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if got := w.Header().Get("Access-Control-Expose-Headers"); got != "Content-Length, X-Request-ID" {
		t.Fatalf("expose headers = %q", got)
	}
}

func Test_isHTTPS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if isHTTPS(req) {
		t.Fatalf("plain HTTP should not be https")
	}
	req.TLS = &tls.ConnectionState{}
	if !isHTTPS(req) {
		t.Fatalf("TLS request should be https")
	}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "HTTPS")
	if !isHTTPS(req) {
		t.Fatalf("X-Forwarded-Proto=https should be https")
	}
}
