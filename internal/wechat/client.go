// Package wechat is the client for the messaging platform's server-side
// API: access token issuance and JS-API ticket grants.
package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/weixiao/campus-bridge/internal/config"
)

// DefaultAPIURL is the production API host for the platform.
const DefaultAPIURL = "https://api.weixin.qq.com"

// Credentials is a matched access token / JS-API ticket pair issued by a
// single grant. ExpiresIn is the platform-advertised validity in seconds;
// callers cache for less than this to keep a safety margin.
type Credentials struct {
	AccessToken string `json:"accessToken"`
	Ticket      string `json:"ticket"`
	ExpiresIn   int    `json:"expiresIn"`
}

type Client struct {
	client  *http.Client
	baseURL *url.URL

	appID     string
	appSecret string
}

func New(cfg config.WeChatConfig) (Client, error) {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}

	u, err := url.Parse(apiURL)
	if err != nil {
		return Client{}, fmt.Errorf("invalid platform API URL: %w", err)
	}

	// The refresh timeout bounds each platform call: a hung upstream is
	// reported as a refresh failure rather than blocking the request.
	client := &http.Client{
		Transport: http.DefaultTransport,
		Timeout:   time.Duration(cfg.RefreshTimeoutSeconds) * time.Second,
	}

	return Client{
		client:    client,
		baseURL:   u,
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
	}, nil
}

// AppID returns the account identifier, embedded in JS-API payloads.
func (c Client) AppID() string {
	return c.appID
}

// GrantTicket obtains a fresh access token and the JS-API ticket derived
// from it, as one combined operation.
//
// The grant is deliberately not split into independent calls: issuing a
// ticket rotates the access token upstream, so a token fetched separately
// from its ticket can be stale or mismatched. Keeping both sides of the
// pair inside one call preserves the required ordering.
func (c Client) GrantTicket(ctx context.Context) (Credentials, error) {
	token, expiresIn, err := c.fetchAccessToken(ctx)
	if err != nil {
		return Credentials{}, fmt.Errorf("access token request failed: %w", err)
	}

	ticket, err := c.fetchJSAPITicket(ctx, token)
	if err != nil {
		return Credentials{}, fmt.Errorf("jsapi ticket request failed: %w", err)
	}

	return Credentials{
		AccessToken: token,
		Ticket:      ticket,
		ExpiresIn:   expiresIn,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
}

func (c Client) fetchAccessToken(ctx context.Context) (string, int, error) {
	q := url.Values{}
	q.Set("grant_type", "client_credential")
	q.Set("appid", c.appID)
	q.Set("secret", c.appSecret)

	var resp tokenResponse
	if err := c.get(ctx, "cgi-bin/token", q, &resp); err != nil {
		return "", 0, err
	}

	if resp.AccessToken == "" {
		return "", 0, platformError(resp.ErrCode, resp.ErrMsg)
	}

	// a token without a lifetime cannot be cached safely
	if resp.ExpiresIn <= 0 {
		return "", 0, fmt.Errorf("platform response missing token expiry")
	}

	return resp.AccessToken, resp.ExpiresIn, nil
}

type ticketResponse struct {
	Ticket    string `json:"ticket"`
	ExpiresIn int    `json:"expires_in"`
	ErrCode   int    `json:"errcode"`
	ErrMsg    string `json:"errmsg"`
}

func (c Client) fetchJSAPITicket(ctx context.Context, accessToken string) (string, error) {
	q := url.Values{}
	q.Set("access_token", accessToken)
	q.Set("type", "jsapi")

	var resp ticketResponse
	if err := c.get(ctx, "cgi-bin/ticket/getticket", q, &resp); err != nil {
		return "", err
	}

	if resp.ErrCode != 0 || resp.Ticket == "" {
		return "", platformError(resp.ErrCode, resp.ErrMsg)
	}

	return resp.Ticket, nil
}

func (c Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL.JoinPath(path)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("could not create platform request: %w", err)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("could not read platform response: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		log.Info().Int("status", res.StatusCode).Str("path", path).Msg("platform API request failed")
		return fmt.Errorf("platform returned status %d", res.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("malformed platform response: %w", err)
	}

	return nil
}

func platformError(code int, msg string) error {
	if msg == "" {
		msg = "unknown platform error"
	}
	return fmt.Errorf("platform error %d: %s", code, msg)
}
