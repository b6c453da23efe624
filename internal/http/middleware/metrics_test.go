package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountersAndPathFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.POST("/webhook", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	const tokenPath = "/bot123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw4/x"
	baseOK := testutil.ToFloat64(httpReqs.WithLabelValues("POST", "/webhook", "200"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/bot[REDACTED:token]/x", "404"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"update_id":1}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("POST /webhook -> %d", w.Code)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tokenPath, nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET %s -> %d", tokenPath, w.Code)
	}

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("POST", "/webhook", "200")); got != baseOK+1 {
		t.Fatalf("counter /webhook 200 = %v; want %v", got, baseOK+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/bot[REDACTED:token]/x", "404")); got != base404+1 {
		t.Fatalf("404 fallback should use the redacted path, got %v", got)
	}
	if inFlight := testutil.ToFloat64(httpInflight); inFlight != 0 {
		t.Fatalf("httpInflight = %v; want 0", inFlight)
	}
	if n := testutil.CollectAndCount(httpReqSize); n == 0 {
		t.Fatalf("request size histogram not observed")
	}
}
