package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumauth-io/hedera-wallet-agent/internal/confirm"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/metrics"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/session"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/vault"
	"github.com/quantumauth-io/hedera-wallet-agent/internal/walleterr"
)

const testToken = "test-token"

type fakeWallet struct {
	mu       sync.Mutex
	state    session.State
	bundle   vault.Bundle
	password string
	calls    []string
	err      error
}

func (f *fakeWallet) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeWallet) Initialize(_ context.Context, b vault.Bundle, password string) error {
	f.mu.Lock()
	f.bundle, f.password = b, password
	f.mu.Unlock()
	if err := f.record("initialize"); err != nil {
		return err
	}
	f.state = session.Unlocked
	return nil
}

func (f *fakeWallet) Unlock(context.Context, string) error { return f.record("unlock") }
func (f *fakeWallet) Lock(context.Context) error           { return f.record("lock") }
func (f *fakeWallet) DisconnectAll(context.Context) error  { return f.record("disconnect") }
func (f *fakeWallet) Pair(_ context.Context, uri string) error {
	return f.record("pair " + uri)
}
func (f *fakeWallet) ChangePassword(context.Context, string, string) error {
	return f.record("password")
}
func (f *fakeWallet) ClearData(context.Context) error { return f.record("clear") }
func (f *fakeWallet) Status() session.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return session.Status{State: f.state}
}

func newTestServer(t *testing.T, w Wallet, approvals Approvals) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s, err := NewServer(Config{
		Addr:           "127.0.0.1:0",
		Token:          testToken,
		AllowedOrigins: []string{"http://localhost:5173"},
		Wallet:         w,
		Approvals:      approvals,
		Metrics:        metrics.New(),
	})
	require.NoError(t, err)
	assert.Equal(t, testToken, s.Token())
	return s.Handler()
}

func do(h http.Handler, method, path string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "127.0.0.1:40000"
	req.Host = "127.0.0.1:8765"
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(AgentSessionHeader, testToken)
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGuards(t *testing.T) {
	h := newTestServer(t, &fakeWallet{state: session.Uninitialized}, nil)

	tests := []struct {
		name   string
		path   string
		mutate func(*http.Request)
		want   int
	}{
		{"health", "/healthz", nil, http.StatusOK},
		{"health remote", "/healthz", func(r *http.Request) { r.RemoteAddr = "10.0.0.5:1234" }, http.StatusForbidden},
		{"status", "/status", nil, http.StatusOK},
		{"status no token", "/status", func(r *http.Request) { r.Header.Del(AgentSessionHeader) }, http.StatusUnauthorized},
		{"status wrong token", "/status", func(r *http.Request) { r.Header.Set(AgentSessionHeader, "nope") }, http.StatusUnauthorized},
		{"status rebinding host", "/status", func(r *http.Request) { r.Host = "evil.example:8765" }, http.StatusForbidden},
		{"status remote", "/status", func(r *http.Request) { r.RemoteAddr = "192.168.1.2:1234" }, http.StatusForbidden},
		{"metrics", "/metrics", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mutate []func(*http.Request)
			if tt.mutate != nil {
				mutate = append(mutate, tt.mutate)
			}
			rec := do(h, http.MethodGet, tt.path, nil, mutate...)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestInitialize(t *testing.T) {
	w := &fakeWallet{state: session.Uninitialized}
	h := newTestServer(t, w, nil)

	body := map[string]string{
		"ecdsaAccountId":    "0.0.6006",
		"ecdsaPrivateKey":   "0xkey",
		"ed25519AccountId":  "0.0.5005",
		"ed25519PrivateKey": "302e",
		"network":           "testnet",
		"projectId":         "p1",
		"password":          "hunter2",
	}
	rec := do(h, http.MethodPost, "/wallet/initialize", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "hunter2")
	assert.NotContains(t, rec.Body.String(), "0xkey")
	assert.Equal(t, "0.0.5005", w.bundle.LedgerAccountID)
	assert.Equal(t, "hunter2", w.password)

	var out struct {
		OK     bool           `json:"ok"`
		Status session.Status `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.OK)
	assert.Equal(t, session.Unlocked, out.Status.State)

	body["network"] = "previewnet"
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/wallet/initialize", body).Code)

	delete(body, "network")
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/wallet/initialize", body).Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, http.StatusOK},
		{"state", walleterr.State("cannot unlock while unlocked"), http.StatusConflict},
		{"decryption", errors.Wrap(walleterr.ErrDecryption, "open"), http.StatusUnauthorized},
		{"validation", walleterr.Validation("bad uri"), http.StatusBadRequest},
		{"network", walleterr.Network(nil, "relay down"), http.StatusInternalServerError},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWallet{state: session.Locked, err: tt.err}
			h := newTestServer(t, w, nil)

			assert.Equal(t, tt.want, do(h, http.MethodPost, "/wallet/unlock", map[string]string{"password": "x"}).Code)
			assert.Equal(t, tt.want, do(h, http.MethodPost, "/wallet/lock", nil).Code)
			assert.Equal(t, tt.want, do(h, http.MethodPost, "/wallet/pair", map[string]string{"uri": "wc:x"}).Code)
			assert.Equal(t, tt.want, do(h, http.MethodPost, "/wallet/disconnect", nil).Code)
			assert.Equal(t, tt.want, do(h, http.MethodPost, "/wallet/password",
				map[string]string{"oldPassword": "a", "newPassword": "b"}).Code)
			assert.Equal(t, tt.want, do(h, http.MethodPost, "/wallet/clear", nil).Code)
			assert.Equal(t, []string{"unlock", "lock", "pair wc:x", "disconnect", "password", "clear"}, w.calls)
		})
	}
}

func TestMissingBodyFields(t *testing.T) {
	w := &fakeWallet{}
	h := newTestServer(t, w, nil)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/wallet/unlock", map[string]string{}).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/wallet/pair", nil).Code)
	assert.Empty(t, w.calls)
}

func TestApprovals(t *testing.T) {
	q := confirm.NewQueue(0)
	h := newTestServer(t, &fakeWallet{}, q)

	done := make(chan bool, 1)
	go func() {
		ok, _ := q.Confirm(context.Background(), confirm.Prompt{Kind: confirm.KindRequest, Method: "personal_sign", Summary: "sign Hello"})
		done <- ok
	}()
	require.Eventually(t, func() bool { return len(q.List()) == 1 }, 2*time.Second, 5*time.Millisecond)

	rec := do(h, http.MethodGet, "/approvals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Approvals []confirm.Pending `json:"approvals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Approvals, 1)
	assert.Equal(t, "sign Hello", list.Approvals[0].Summary)

	id := list.Approvals[0].ID
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/approvals/"+id, map[string]string{}).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/approvals/"+id, map[string]bool{"approve": true}).Code)
	assert.True(t, <-done)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodPost, "/approvals/"+id, map[string]bool{"approve": false}).Code)
}

func TestApprovalsDisabled(t *testing.T) {
	h := newTestServer(t, &fakeWallet{}, nil)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/approvals", nil).Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, &fakeWallet{}, nil)
	rec := do(h, http.MethodOptions, "/status", nil, func(r *http.Request) {
		r.Header.Set("Origin", "http://localhost:5173")
		r.Header.Set("Access-Control-Request-Method", "POST")
	})
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), AgentSessionHeader))
}
