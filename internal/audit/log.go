// Package audit writes one structured log line per inbound request,
// capturing who asked for what and how the gateway answered. The entry is
// carried in the request context so middleware and handlers can annotate
// it as the request progresses.
package audit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level is the log level audit entries are written at.
const Level = zerolog.InfoLevel

// Entry accumulates the audit fields for a single request.
type Entry struct {
	Method    string
	Path      string
	SourceIP  string
	UserAgent string

	// OpenID is the platform identity a handler resolved for the request,
	// when one applies.
	OpenID string

	// SignatureValid records the outcome of the webhook signature gate.
	SignatureValid bool

	Status int
	Error  string
}

type contextKey struct{}

// Log returns the audit entry for the request context. When no middleware
// has installed an entry (tests, background work), a detached entry is
// returned so callers never need to nil-check; annotations on it are
// simply not written.
func Log(ctx context.Context) *Entry {
	if entry, ok := ctx.Value(contextKey{}).(*Entry); ok {
		return entry
	}
	return &Entry{}
}

// Middleware installs an audit entry on the request context and writes it
// when the request completes. The entry is written even when the handler
// panics; the panic is re-raised for the server's recovery handling.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			entry := &Entry{
				Method:    r.Method,
				Path:      r.URL.Path,
				SourceIP:  clientIP(r),
				UserAgent: r.UserAgent(),
			}

			r = r.WithContext(context.WithValue(r.Context(), contextKey{}, entry))

			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				entry.Status = ww.status

				if rec := recover(); rec != nil {
					entry.Error = fmt.Sprintf("panic: %v", rec)
					entry.write(r.Context())
					panic(rec)
				}

				entry.write(r.Context())
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func (e *Entry) write(ctx context.Context) {
	ev := log.Ctx(ctx).WithLevel(Level).
		Str("method", e.Method).
		Str("path", e.Path).
		Str("source_ip", e.SourceIP).
		Str("user_agent", e.UserAgent).
		Bool("signature_valid", e.SignatureValid).
		Int("status", e.Status)

	if e.OpenID != "" {
		ev = ev.Str("openid", e.OpenID)
	}
	if e.Error != "" {
		ev = ev.Str("error", e.Error)
	}

	ev.Msg("request audit")
}

// statusWriter captures the response status for the audit entry.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// clientIP prefers the X-Forwarded-For header set by the fronting proxy,
// falling back to the connection's remote address.
func clientIP(r *http.Request) string {
	forwardedFor := r.Header.Get("X-Forwarded-For")
	if forwardedFor != "" {
		ips := strings.Split(forwardedFor, ",")
		return strings.TrimSpace(ips[0])
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
