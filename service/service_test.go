package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/calehh/dao-keeper/config"
	"github.com/calehh/dao-keeper/daemon"
	"github.com/calehh/dao-keeper/failure"
	"github.com/calehh/dao-keeper/relay"
	"github.com/calehh/dao-keeper/store"
	"github.com/calehh/dao-keeper/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockScanner struct {
	mtx   sync.Mutex
	res   *types.ScanResult
	err   error
	calls int
}

func (m *mockScanner) Scan(ctx context.Context) (*types.ScanResult, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.calls++
	return m.res, m.err
}

type mockRelayer struct {
	hash common.Hash
	err  error
	got  *relay.Submission
}

func (m *mockRelayer) Relay(ctx context.Context, s *relay.Submission) (common.Hash, error) {
	m.got = s
	return m.hash, m.err
}

type mockHistory struct {
	executions   []store.Execution
	relays       []store.RelayRecord
	lastAddress  string
	lastProposal uint64
	lastPage     int
	lastSize     int
}

func (m *mockHistory) GetExecutions(proposalID uint64, page int, pageSize int) ([]store.Execution, uint64, error) {
	m.lastProposal, m.lastPage, m.lastSize = proposalID, page, pageSize
	return m.executions, uint64(len(m.executions)), nil
}

func (m *mockHistory) GetRelays(address string, page int, pageSize int) ([]store.RelayRecord, uint64, error) {
	m.lastAddress, m.lastPage, m.lastSize = address, page, pageSize
	return m.relays, uint64(len(m.relays)), nil
}

const validRelayBody = `{
	"forwarder": "0x00000000000000000000000000000000000000f0",
	"request": {
		"from": "0x00000000000000000000000000000000000000a1",
		"to": "0x00000000000000000000000000000000000000da",
		"value": "0",
		"gas": "200000",
		"nonce": "0",
		"data": "0x"
	},
	"signature": "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
}`

func do(t *testing.T, s *Service, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	out := map[string]interface{}{}
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func newTestService(opts Options) *Service {
	return NewService(cmtlog.NewNopLogger(), opts)
}

func TestDaemonMisconfigured(t *testing.T) {
	s := newTestService(Options{ScannerErr: config.ErrMisconfigured})
	w, body := do(t, s, http.MethodGet, "/daemon", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "server_misconfigured", body["error"])

	s = newTestService(Options{})
	w, body = do(t, s, http.MethodGet, "/daemon", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "server_misconfigured", body["error"])
}

func TestDaemonInvalidRelayerKey(t *testing.T) {
	s := newTestService(Options{ScannerErr: config.ErrInvalidRelayerKey})
	w, body := do(t, s, http.MethodGet, "/daemon", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_relayer_private_key_format", body["error"])
}

func TestDaemonScan(t *testing.T) {
	res := types.NewScanResult()
	res.AddExecuted(5, "0xabc")
	res.AddSkipped(1, "not_found")
	res.CheckedProposals = 5
	res.Timestamp = "2026-01-01T00:00:00.000Z"
	s := newTestService(Options{Scanner: &mockScanner{res: res}})

	w, body := do(t, s, http.MethodGet, "/daemon", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "5", body["checkedProposals"])
	assert.Equal(t, "2026-01-01T00:00:00.000Z", body["timestamp"])
	executed := body["executed"].([]interface{})
	require.Len(t, executed, 1)
	assert.Equal(t, "5", executed[0].(map[string]interface{})["id"])
	assert.Equal(t, "0xabc", executed[0].(map[string]interface{})["tx"])
	skipped := body["skipped"].([]interface{})
	assert.Equal(t, "not_found", skipped[0].(map[string]interface{})["reason"])
}

func TestDaemonErrors(t *testing.T) {
	s := newTestService(Options{Scanner: &mockScanner{err: daemon.ErrScanInProgress}})
	w, body := do(t, s, http.MethodGet, "/daemon", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "scan_in_progress", body["error"])

	s = newTestService(Options{Scanner: &mockScanner{err: failure.Classify(errors.New("dial tcp: connection refused"))}})
	w, body = do(t, s, http.MethodGet, "/daemon", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "network_error", body["error"])
	assert.Equal(t, true, body["retryable"])
}

func TestRelayOK(t *testing.T) {
	rl := &mockRelayer{hash: common.HexToHash("0x1234")}
	s := newTestService(Options{Relayer: rl})

	w, body := do(t, s, http.MethodPost, "/relay", validRelayBody)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, common.HexToHash("0x1234").Hex(), body["hash"])
	require.NotNil(t, rl.got)
	assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000a1"), rl.got.Request.From)
}

func TestRelayErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid signature", failure.New(failure.KindInvalidSignature, ""), http.StatusBadRequest, "invalid_signature"},
		{"replay", failure.New(failure.KindNonceAlreadyUsed, ""), http.StatusConflict, "nonce_already_used"},
		{"relayer broke", failure.New(failure.KindInsufficientRelayerFunds, ""), http.StatusServiceUnavailable, "insufficient_relayer_funds"},
		{"network", errors.New("i/o timeout"), http.StatusServiceUnavailable, "network_error"},
		{"reverted", failure.New(failure.KindContractReverted, "Already voted"), http.StatusInternalServerError, "contract_reverted"},
		{"unknown", errors.New("something odd"), http.StatusInternalServerError, "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestService(Options{Relayer: &mockRelayer{err: tc.err}})
			w, body := do(t, s, http.MethodPost, "/relay", validRelayBody)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, body["error"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestRelayBadRequest(t *testing.T) {
	rl := &mockRelayer{}
	s := newTestService(Options{Relayer: rl})

	w, body := do(t, s, http.MethodPost, "/relay", `{"forwarder":"0x00000000000000000000000000000000000000f0"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "bad_request", body["error"])
	assert.Nil(t, rl.got)

	s = newTestService(Options{Relayer: &mockRelayer{err: failure.New(failure.KindBadRequest, relay.ReasonUnknownForwarder)}})
	w, body = do(t, s, http.MethodPost, "/relay", validRelayBody)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, relay.ReasonUnknownForwarder, body["reason"])
}

func TestRelayMisconfigured(t *testing.T) {
	s := newTestService(Options{RelayerErr: config.ErrMisconfigured})
	w, body := do(t, s, http.MethodPost, "/relay", validRelayBody)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "server_misconfigured", body["error"])

	s = newTestService(Options{RelayerErr: config.ErrInvalidRelayerKey})
	w, body = do(t, s, http.MethodPost, "/relay", validRelayBody)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_relayer_private_key_format", body["error"])
}

func TestRelayRateLimited(t *testing.T) {
	s := newTestService(Options{Relayer: &mockRelayer{}, RateLimit: 0.001, RateBurst: 1})

	w, _ := do(t, s, http.MethodPost, "/relay", validRelayBody)
	assert.Equal(t, http.StatusOK, w.Code)
	w, body := do(t, s, http.MethodPost, "/relay", validRelayBody)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", body["error"])
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRequestID(t *testing.T) {
	s := newTestService(Options{})

	w, body := do(t, s, http.MethodGet, "/daemon", "")
	id := w.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, id)
	assert.Equal(t, id, body["requestId"])

	req := httptest.NewRequest(http.MethodGet, "/daemon", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestHistory(t *testing.T) {
	h := &mockHistory{
		executions: []store.Execution{{Id: 1, ProposalId: 3, TxHash: "0x01"}},
		relays:     []store.RelayRecord{{Id: 1, FromAddress: "0x00000000000000000000000000000000000000A1", Status: store.RelayStatusRelayed}},
	}
	s := newTestService(Options{History: h})

	w, body := do(t, s, http.MethodPost, "/getExecutions", `{"page":1,"pageSize":500}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["total"])
	assert.Equal(t, 1, h.lastPage)
	assert.Equal(t, maxPageSize, h.lastSize)
	assert.Zero(t, h.lastProposal)

	w, _ = do(t, s, http.MethodPost, "/getExecutions", `{"proposalId":3}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint64(3), h.lastProposal)
	assert.Equal(t, defaultPageSize, h.lastSize)

	w, body = do(t, s, http.MethodPost, "/getRelays", `{"address":"0x00000000000000000000000000000000000000a1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["relays"], 1)
	assert.Equal(t, common.HexToAddress("0xa1").Hex(), h.lastAddress)
	assert.Equal(t, defaultPageSize, h.lastSize)

	w, _ = do(t, s, http.MethodPost, "/getRelays", `{"address":"bob"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryWithoutStore(t *testing.T) {
	s := newTestService(Options{})
	w, body := do(t, s, http.MethodPost, "/getExecutions", `{}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["executions"])
}

func TestStopTwice(t *testing.T) {
	s := newTestService(Options{RateLimit: 1, RateBurst: 1})
	assert.NotPanics(t, func() {
		assert.NoError(t, s.Stop(context.Background()))
		assert.NoError(t, s.Stop(context.Background()))
	})
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "daokeeper_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()
	s := newTestService(Options{Gatherer: reg})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.Contains(w.Body.Bytes(), []byte("daokeeper_test_total 1")))
}
