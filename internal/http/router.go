// Package httpapi wires the Gin engine: middleware, probes, metrics and the
// Telegram webhook.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/go-anon-relay/internal/config"
	"github.com/tbourn/go-anon-relay/internal/http/handlers"
	"github.com/tbourn/go-anon-relay/internal/http/middleware"
)

// maxUpdateBytes caps webhook bodies. Updates reference files by id, so
// even large media arrive as a few KB of JSON.
const maxUpdateBytes = 1 << 20

// RegisterRoutes attaches middleware and endpoints to r.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID
//  3. RedactingLogger (never logs bodies, masks the webhook secret)
//  4. Recovery
//  5. Body size limit
//  6. gzip for the text endpoints (/metrics compresses itself)
//  7. Metrics
//  8. CORS and security headers
//
// The webhook route is mounted only when cfg.Bot.WebhookMode() is true.
func RegisterRoutes(r *gin.Engine, cfg config.Config, h *handlers.Handlers) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxUpdateBytes))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{cfg.Bot.WebhookPath, "/metrics"})))
	r.Use(middleware.Metrics())
	r.Use(corsMiddleware(cfg.CORS))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
		NoStore:    true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", h.Health)
	r.HEAD("/health", h.Health)
	r.GET("/", h.Status)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.Bot.WebhookMode() {
		r.POST(cfg.Bot.WebhookPath, h.Webhook)
	}
}

// corsMiddleware allows any origin when none are configured, otherwise only
// the listed ones. Only the read-only probes are meant for browsers.
func corsMiddleware(cc config.CORSConfig) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:     []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cc.AllowedOrigins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cc.AllowedOrigins
	}
	return cors.New(c)
}

// limitBody caps request bodies at maxBytes; oversized reads fail downstream.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
