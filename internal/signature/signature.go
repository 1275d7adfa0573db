// Package signature implements the WeChat platform signing schemes: the
// webhook request signature used to verify that an inbound request
// originates from the platform, and the JS-API signature that authorizes
// client-side capabilities for a page.
package signature

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Verify checks an inbound webhook signature. The platform computes the
// signature as the SHA-1 of the shared token, the timestamp and the nonce
// sorted lexicographically and concatenated. A missing value never
// verifies: absence fails closed.
func Verify(token, timestamp, nonce, sig string) bool {
	if token == "" || timestamp == "" || nonce == "" || sig == "" {
		return false
	}

	return Request(token, timestamp, nonce) == sig
}

// Request computes the webhook request signature for the given inputs.
func Request(token, timestamp, nonce string) string {
	parts := []string{token, timestamp, nonce}
	sort.Strings(parts)

	sum := sha1.Sum([]byte(strings.Join(parts, "")))

	return hex.EncodeToString(sum[:])
}

// JSAPI computes the JS-API signature for a page. The fields are joined as
// key=value pairs in lexicographic key order, which for this fixed set is
// jsapi_ticket, noncestr, timestamp, url. The url must be the exact
// caller-visible URL without fragment: the platform recomputes the
// signature against the URL the client reports, so any difference breaks
// verification on the client side.
func JSAPI(ticket, nonceStr string, timestamp int64, url string) string {
	payload := fmt.Sprintf(
		"jsapi_ticket=%s&noncestr=%s&timestamp=%d&url=%s",
		ticket, nonceStr, timestamp, url,
	)

	sum := sha1.Sum([]byte(payload))

	return hex.EncodeToString(sum[:])
}

const nonceAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NonceString returns a 16-character random nonce for JS-API payloads.
func NonceString() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand reads from the OS; failure means the process
		// environment is fundamentally broken.
		panic(fmt.Sprintf("nonce generation failed: %v", err))
	}

	for i, b := range buf {
		buf[i] = nonceAlphabet[int(b)%len(nonceAlphabet)]
	}

	return string(buf)
}
