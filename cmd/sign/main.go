// This command is only used for local testing: it prints the signed query
// string for a webhook request, so a local server can be exercised with
// curl without a real platform in front of it.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/weixiao/campus-bridge/internal/signature"
)

type Config struct {
	Token   string `env:"UTIL_WECHAT_TOKEN, required"`
	EchoStr string `env:"UTIL_ECHOSTR, default=local-echo"`
}

func main() {
	cfg := Config{}
	err := envconfig.Process(context.Background(), &cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading config: %v\n", err)
		os.Exit(1)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	nonce := signature.NonceString()

	q := url.Values{}
	q.Set("signature", signature.Request(cfg.Token, timestamp, nonce))
	q.Set("timestamp", timestamp)
	q.Set("nonce", nonce)
	q.Set("echostr", cfg.EchoStr)

	fmt.Printf("%s", q.Encode())
}
