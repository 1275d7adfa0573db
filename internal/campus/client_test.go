package campus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weixiao/campus-bridge/internal/config"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func TestBindScore_ForwardsFormAndReturnsMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "o123", r.PostForm.Get("openid"))
		assert.Equal(t, "12345", r.PostForm.Get("studentid"))
		assert.Equal(t, "pw", r.PostForm.Get("studentpwd"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		w.Write([]byte("绑定成功"))
	}))
	defer server.Close()

	client := New(config.CampusConfig{ScoreURL: server.URL, TimeoutSeconds: 2})

	msg, err := client.BindScore(context.Background(), "o123", "12345", "pw")
	require.NoError(t, err)
	assert.Equal(t, "绑定成功", msg)
}

func TestBindLibrary_ForwardsFormAndReturnsMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "o123", r.PostForm.Get("openid"))
		assert.Equal(t, "67890", r.PostForm.Get("libraryid"))
		assert.Equal(t, "000000", r.PostForm.Get("librarypwd"))

		w.Write([]byte("卡号或者密码错误"))
	}))
	defer server.Close()

	client := New(config.CampusConfig{LibraryURL: server.URL, TimeoutSeconds: 2})

	msg, err := client.BindLibrary(context.Background(), "o123", "67890", "000000")
	require.NoError(t, err)
	assert.Equal(t, "卡号或者密码错误", msg)
}

func TestBind_DecodesGBKResponse(t *testing.T) {
	encoded, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte("密码错误，请重试"))
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=gb2312")
		w.Write(encoded)
	}))
	defer server.Close()

	client := New(config.CampusConfig{ScoreURL: server.URL, TimeoutSeconds: 2})

	msg, err := client.BindScore(context.Background(), "o123", "12345", "pw")
	require.NoError(t, err)
	assert.Equal(t, "密码错误，请重试", msg)
}

func TestBind_UpstreamStatusFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(config.CampusConfig{ScoreURL: server.URL, TimeoutSeconds: 2})

	_, err := client.BindScore(context.Background(), "o123", "12345", "pw")
	assert.ErrorContains(t, err, "status 503")
}

func TestBind_UnconfiguredEndpoint(t *testing.T) {
	client := New(config.CampusConfig{TimeoutSeconds: 2})

	_, err := client.BindScore(context.Background(), "o123", "12345", "pw")
	assert.ErrorContains(t, err, "not configured")
}
