// Package gate verifies that inbound webhook requests genuinely originate
// from the messaging platform before they reach any business handler.
package gate

import (
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/weixiao/campus-bridge/internal/audit"
	"github.com/weixiao/campus-bridge/internal/signature"
)

// Verify returns middleware that checks the platform signature supplied in
// the query string against the shared token. A request that fails
// verification (including one missing any of the parameters) is rejected
// with 403 before reaching the wrapped handler, with no detail beyond the
// status.
func Verify(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()

			ok := signature.Verify(token, q.Get("timestamp"), q.Get("nonce"), q.Get("signature"))

			entry := audit.Log(r.Context())
			entry.SignatureValid = ok

			if !ok {
				entry.Error = "platform signature verification failed"
				log.Info().
					Str("path", r.URL.Path).
					Msg("webhook signature verification failed")

				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
