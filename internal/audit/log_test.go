package audit_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/weixiao/campus-bridge/internal/audit"
)

func requestSetup() (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest("GET", "/score-report/o123", nil)
	req.RemoteAddr = "203.0.113.9:51234"
	return req, httptest.NewRecorder()
}

func TestMiddleware_CapturesRequestInfo(t *testing.T) {
	testAgent := "kettle/1.0"

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entry := audit.Log(r.Context())
		assert.Equal(t, testAgent, entry.UserAgent)
		assert.Equal(t, "/score-report/o123", entry.Path)
		assert.Equal(t, "203.0.113.9", entry.SourceIP)

		w.WriteHeader(http.StatusTeapot)
	})

	middleware := audit.Middleware()(handler)

	req, w := requestSetup()
	req.Header.Set("User-Agent", testAgent)

	middleware.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Result().StatusCode)
}

func TestMiddleware_CapturesStatusCode(t *testing.T) {
	var capturedContext context.Context

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedContext = r.Context()
		w.WriteHeader(http.StatusTeapot)
	})

	req, w := requestSetup()

	middleware := audit.Middleware()(handler)
	middleware.ServeHTTP(w, req)

	entry := audit.Log(capturedContext)

	assert.Equal(t, http.StatusTeapot, w.Result().StatusCode)
	assert.Equal(t, http.StatusTeapot, entry.Status)
}

func TestMiddleware_ForwardedForPreferred(t *testing.T) {
	var capturedContext context.Context

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedContext = r.Context()
	})

	req, w := requestSetup()
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")

	audit.Middleware()(handler).ServeHTTP(w, req)

	assert.Equal(t, "198.51.100.7", audit.Log(capturedContext).SourceIP)
}

func TestMiddleware_RepanicsAfterLogging(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	})

	req, w := requestSetup()

	assert.Panics(t, func() {
		audit.Middleware()(handler).ServeHTTP(w, req)
	})
}

func TestLog_DetachedEntryWithoutMiddleware(t *testing.T) {
	entry := audit.Log(context.Background())

	assert.NotNil(t, entry)
	entry.OpenID = "o123" // must not panic
}
