package integration

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-session/internal/authclient"
	"wallet-session/internal/provider/localwallet"
	"wallet-session/internal/session"
)

// 这些测试假设 auth-server 已经在运行 (例如通过 Docker Compose)
// 运行命令: AUTH_SERVER_URL=http://localhost:8000 go test -v ./tests/integration/...
func baseURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("AUTH_SERVER_URL")
	if url == "" {
		url = "http://localhost:8000"
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url + "/health")
	if err != nil {
		t.Skip("Skipping integration test: server not running? " + err.Error())
	}
	defer resp.Body.Close()
	return url
}

func TestHealthCheck(t *testing.T) {
	url := baseURL(t)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url + "/api/v1/ping")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWalletLoginRoundTrip(t *testing.T) {
	url := baseURL(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	signer, err := localwallet.NewMnemonicSigner("test test test test test test test test test test test junk", "", 1)
	require.NoError(t, err)
	backend := authclient.New(url)
	s := session.New(localwallet.New(signer), backend)
	defer s.Close()

	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Authenticate(ctx))

	snap := s.Snapshot()
	require.True(t, snap.Authenticated())

	me, err := backend.Me(ctx, snap.AuthToken)
	require.NoError(t, err)
	assert.Equal(t, snap.Address, me.Address)

	require.NoError(t, backend.Logout(ctx, snap.AuthToken))
	_, err = backend.Me(ctx, snap.AuthToken)
	assert.Error(t, err)
}
