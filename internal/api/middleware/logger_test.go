package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mirae/stylegen/internal/logger"
)

func newLoggerTestRouter(capture func(c *gin.Context)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(LoggerMiddleware(logger.NewDefault()))
	r.GET("/ping", func(c *gin.Context) {
		capture(c)
		c.String(200, "pong")
	})
	return r
}

func TestLoggerMiddleware_GeneratesRequestID(t *testing.T) {
	var gotID string
	r := newLoggerTestRouter(func(c *gin.Context) {
		gotID = logger.GetRequestID(c.Request.Context())
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ping", nil))

	if gotID == "" {
		t.Fatal("no request id injected into the request context")
	}
	if hdr := w.Header().Get("X-Request-ID"); hdr != gotID {
		t.Errorf("X-Request-ID header = %q, context holds %q", hdr, gotID)
	}
}

func TestLoggerMiddleware_ReusesInboundRequestID(t *testing.T) {
	var gotID string
	r := newLoggerTestRouter(func(c *gin.Context) {
		gotID = logger.GetRequestID(c.Request.Context())
	})

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if gotID != "req-42" {
		t.Errorf("request id = %q, want the inbound one reused", gotID)
	}
	if hdr := w.Header().Get("X-Request-ID"); hdr != "req-42" {
		t.Errorf("X-Request-ID header = %q, want req-42", hdr)
	}
}

func TestLoggerMiddleware_SurfacesSessionID(t *testing.T) {
	var gotSession string
	r := newLoggerTestRouter(func(c *gin.Context) {
		gotSession = logger.GetSessionID(c.Request.Context())
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ping?sessionId=sess-9", nil))
	if gotSession != "sess-9" {
		t.Errorf("session id = %q, want sess-9", gotSession)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ping", nil))
	if gotSession != "" {
		t.Errorf("session id = %q, want empty without a query parameter", gotSession)
	}
}
