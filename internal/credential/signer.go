package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/weixiao/campus-bridge/internal/signature"
)

// JSAPIConfig is the payload a page embeds to prove to the client runtime
// that this server holds a valid ticket for the page URL. Field names
// follow the client-side SDK configuration object.
type JSAPIConfig struct {
	AppID     string   `json:"appId"`
	NonceStr  string   `json:"nonceStr"`
	Timestamp int64    `json:"timestamp"`
	Signature string   `json:"signature"`
	JSAPIList []string `json:"jsApiList"`
}

// Signer produces JS-API signatures for page URLs.
type Signer struct {
	appID  string
	ticket TicketSource

	// test seams
	now   func() time.Time
	nonce func() string
}

func NewSigner(appID string, ticket TicketSource) *Signer {
	return &Signer{
		appID:  appID,
		ticket: ticket,
		now:    time.Now,
		nonce:  signature.NonceString,
	}
}

// Sign builds the JS-API payload for the given page URL and capability
// list. pageURL must be the exact caller-visible URL (scheme, host, path,
// query; no fragment): the platform recomputes the signature against the
// URL the client reports, so any mismatch is a non-recoverable client-side
// failure. The capability list is opaque to the signer and forwarded for
// the client runtime to interpret.
func (s *Signer) Sign(ctx context.Context, pageURL string, capabilities []string) (JSAPIConfig, error) {
	ticket, err := s.ticket(ctx)
	if err != nil {
		return JSAPIConfig{}, fmt.Errorf("jsapi signing unavailable: %w", err)
	}

	nonce := s.nonce()
	timestamp := s.now().Unix()

	return JSAPIConfig{
		AppID:     s.appID,
		NonceStr:  nonce,
		Timestamp: timestamp,
		Signature: signature.JSAPI(ticket, nonce, timestamp, pageURL),
		JSAPIList: capabilities,
	}, nil
}
