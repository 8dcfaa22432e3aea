package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/calehh/dao-keeper/config"
	"github.com/calehh/dao-keeper/store"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func init() {
	gin.SetMode(gin.TestMode)
}

// countingNode records every JSON-RPC request it receives.
func countingNode(t *testing.T) (*httptest.Server, *atomic.Int64) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testConfig(t *testing.T, rpcURL string) *config.Config {
	cfg := config.DefaultConfig(t.TempDir())
	cfg.DBPath = store.MemoryPath
	cfg.Ledger.RPCURL = rpcURL
	cfg.Ledger.RelayerPrivateKey = testKeyHex
	return cfg
}

func get(t *testing.T, app *KeeperApp, path string) (int, map[string]interface{}) {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	app.Service().Handler().ServeHTTP(w, req)
	body := map[string]interface{}{}
	if path != "/metrics" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w.Code, body
}

func TestDaemonWithoutDAOAddressNeverDials(t *testing.T) {
	srv, hits := countingNode(t)
	cfg := testConfig(t, srv.URL)

	app, err := NewKeeperApp(cfg, cmtlog.NewNopLogger())
	require.NoError(t, err)
	defer app.Stop(context.Background())

	d, err := app.Daemon()
	assert.Nil(t, d)
	assert.ErrorIs(t, err, config.ErrMisconfigured)
	r, err := app.Relayer()
	assert.NotNil(t, r)
	assert.NoError(t, err)

	status, body := get(t, app, "/daemon")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "server_misconfigured", body["error"])
	assert.Equal(t, int64(0), hits.Load())
}

func TestNothingConfigured(t *testing.T) {
	cfg := config.DefaultConfig(t.TempDir())
	cfg.DBPath = store.MemoryPath

	app, err := NewKeeperApp(cfg, cmtlog.NewNopLogger())
	require.NoError(t, err)
	defer app.Stop(context.Background())

	_, err = app.Relayer()
	assert.ErrorIs(t, err, config.ErrMisconfigured)
	status, body := get(t, app, "/daemon")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "server_misconfigured", body["error"])

	status, _ = get(t, app, "/metrics")
	assert.Equal(t, http.StatusOK, status)
}

func TestMalformedRelayerKey(t *testing.T) {
	srv, hits := countingNode(t)
	cfg := testConfig(t, srv.URL)
	cfg.Ledger.DAOAddress = "0x00000000000000000000000000000000000000da"
	cfg.Ledger.RelayerPrivateKey = "0x1234"

	app, err := NewKeeperApp(cfg, cmtlog.NewNopLogger())
	require.NoError(t, err)
	defer app.Stop(context.Background())

	status, body := get(t, app, "/daemon")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_relayer_private_key_format", body["error"])
	assert.Equal(t, int64(0), hits.Load())
}

func TestFullyConfigured(t *testing.T) {
	srv, hits := countingNode(t)
	cfg := testConfig(t, srv.URL)
	cfg.Ledger.DAOAddress = "0x00000000000000000000000000000000000000da"

	app, err := NewKeeperApp(cfg, cmtlog.NewNopLogger())
	require.NoError(t, err)
	defer app.Stop(context.Background())

	d, err := app.Daemon()
	require.NoError(t, err)
	assert.NotNil(t, d)
	assert.Equal(t, int64(0), hits.Load())
}
