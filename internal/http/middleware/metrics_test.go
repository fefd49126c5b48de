package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/jobs/:id", func(c *gin.Context) { c.String(http.StatusOK, "job") })
	r.GET("/metrics", func(c *gin.Context) { c.String(http.StatusOK, "# metrics") })

	baseJob := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/jobs/:id", "200"))
	baseMiss := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "unmatched", "404"))
	baseScrape := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/metrics", "200"))

	for _, p := range []string{"/jobs/a", "/jobs/b", "/nope/1", "/nope/2", "/metrics"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/jobs/:id", "200")); got != baseJob+2 {
		t.Fatalf("route counter = %v, want %v", got, baseJob+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "unmatched", "404")); got != baseMiss+2 {
		t.Fatalf("unmatched counter = %v, want %v", got, baseMiss+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/metrics", "200")); got != baseScrape {
		t.Fatal("scrapes should not be counted")
	}
	if v := testutil.ToFloat64(httpInflight); v != 0 {
		t.Fatalf("inflight = %v", v)
	}
}
