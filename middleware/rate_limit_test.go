package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimitPerIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(4))
	r.GET("/", func(ctx *gin.Context) { ctx.Status(http.StatusOK) })

	hit := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	// burst is half the per-minute allowance
	assert.Equal(t, http.StatusOK, hit("10.0.0.1"))
	assert.Equal(t, http.StatusOK, hit("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, hit("10.0.0.1"))

	assert.Equal(t, http.StatusOK, hit("10.0.0.2"))
}

func TestRateLimitSweepsIdleClientsPeriodically(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start
	s := newIPLimiters(60)
	s.now = func() time.Time { return clock }
	at := func(d time.Duration, ip string) {
		clock = start.Add(d)
		assert.True(t, s.allow(ip))
	}

	at(0, "10.0.0.1")
	at(4*time.Minute, "10.0.0.2")
	at(limiterIdle, "10.0.0.3")

	// 10.0.0.1 is idle now, but the next sweep is not due yet
	at(limiterIdle+time.Minute, "10.0.0.3")
	assert.Len(t, s.limiters, 3)

	at(2*limiterIdle, "10.0.0.3")
	assert.Len(t, s.limiters, 1)
	assert.Contains(t, s.limiters, "10.0.0.3")
}
