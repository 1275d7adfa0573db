// Package events relays webhook event deliveries to the downstream
// processor that produces replies. The gateway only gatekeeps: the message
// protocol inside the body is the processor's concern.
package events

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/weixiao/campus-bridge/internal/config"
)

// Responder produces the platform reply for a raw event delivery body.
type Responder interface {
	Respond(ctx context.Context, body []byte) ([]byte, error)
}

// PlatformAck is the platform's no-op acknowledgement: replying "success"
// tells it the event was received and no message should be sent back.
const PlatformAck = Static("success")

// Static replies with a fixed body for every delivery.
type Static string

func (s Static) Respond(ctx context.Context, body []byte) ([]byte, error) {
	return []byte(s), nil
}

// Forwarder posts the raw delivery body to the downstream processor and
// relays its reply.
type Forwarder struct {
	client *http.Client
	url    string
}

func NewForwarder(url string, timeout time.Duration) *Forwarder {
	return &Forwarder{
		client: &http.Client{
			Transport: http.DefaultTransport,
			Timeout:   timeout,
		},
		url: url,
	}
}

func (f *Forwarder) Respond(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not create processor request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")

	res, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("event processor unreachable: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("event processor returned status %d", res.StatusCode)
	}

	reply, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("could not read processor reply: %w", err)
	}

	return reply, nil
}

// FromConfig selects the forwarder when a processor is configured, the
// platform acknowledgement otherwise.
func FromConfig(cfg config.WeChatConfig) Responder {
	if cfg.EventHandlerURL == "" {
		return PlatformAck
	}

	return NewForwarder(cfg.EventHandlerURL, time.Duration(cfg.EventHandlerTimeoutSeconds)*time.Second)
}
