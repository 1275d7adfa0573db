// Package campus fronts the collaborators that perform simulated logins
// against the school information systems. The scraping protocol lives in
// those collaborators; this client only forwards credential pairs and
// surfaces the returned human-readable status message verbatim.
package campus

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/weixiao/campus-bridge/internal/config"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// BindFn submits a credential pair for an identity and returns the
// collaborator's status message.
type BindFn func(ctx context.Context, openID, id, password string) (string, error)

type Client struct {
	client     *http.Client
	scoreURL   string
	libraryURL string
}

func New(cfg config.CampusConfig) Client {
	return Client{
		client: &http.Client{
			Transport: http.DefaultTransport,
			Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		scoreURL:   cfg.ScoreURL,
		libraryURL: cfg.LibraryURL,
	}
}

// BindScore verifies a student id/password pair against the educational
// administration system and stores the binding on success. The returned
// message is user-facing and forwarded as-is.
func (c Client) BindScore(ctx context.Context, openID, studentID, studentPwd string) (string, error) {
	form := url.Values{}
	form.Set("openid", openID)
	form.Set("studentid", studentID)
	form.Set("studentpwd", studentPwd)

	return c.post(ctx, c.scoreURL, form)
}

// BindLibrary verifies a library card id/password pair against the library
// system and stores the binding on success.
func (c Client) BindLibrary(ctx context.Context, openID, libraryID, libraryPwd string) (string, error) {
	form := url.Values{}
	form.Set("openid", openID)
	form.Set("libraryid", libraryID)
	form.Set("librarypwd", libraryPwd)

	return c.post(ctx, c.libraryURL, form)
}

func (c Client) post(ctx context.Context, endpoint string, form url.Values) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("collaborator endpoint not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("could not create collaborator request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		log.Info().Int("status", res.StatusCode).Str("endpoint", endpoint).Msg("collaborator request failed")
		return "", fmt.Errorf("collaborator returned status %d", res.StatusCode)
	}

	message, err := readMessage(res)
	if err != nil {
		return "", fmt.Errorf("could not read collaborator response: %w", err)
	}

	return message, nil
}

// readMessage reads the status message, decoding the legacy GBK/GB2312
// encoding some school systems still reply with.
func readMessage(res *http.Response) (string, error) {
	var reader io.Reader = io.LimitReader(res.Body, 64<<10)

	if gbkResponse(res.Header.Get("Content-Type")) {
		reader = transform.NewReader(reader, simplifiedchinese.GBK.NewDecoder())
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(body)), nil
}

func gbkResponse(contentType string) bool {
	if contentType == "" {
		return false
	}

	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	switch strings.ToLower(params["charset"]) {
	case "gbk", "gb2312", "gb18030":
		return true
	}
	return false
}
