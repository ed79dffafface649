package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/stretchr/testify/require"

	"chargecore/internal/commands"
	"chargecore/internal/ledger"
	"chargecore/internal/ocpp"
	"chargecore/internal/registry"
)

type recordingConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
}

func (c *recordingConn) ChargePointID() string { return c.id }

func (c *recordingConn) Send(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, msg)
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func newTestAPI(t *testing.T, secret string) (*httptest.Server, *registry.Registry) {
	t.Helper()

	reg := registry.New()
	pending := ocpp.NewPendingCalls(30*time.Second, zap.NewNop())
	sender := ocpp.NewCallSender(reg, pending, nil, zap.NewNop())
	dispatcher := commands.NewDispatcher(sender, zap.NewNop())

	txLedger, err := ledger.New(context.Background(), nil, zap.NewNop())
	require.NoError(t, err)

	api := NewServer(secret, reg, txLedger, dispatcher, zap.NewNop())
	server := httptest.NewServer(api.Routes())
	t.Cleanup(server.Close)
	return server, reg
}

func doRequest(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("X-Internal-Token", token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthIsOpen(t *testing.T) {
	server, _ := newTestAPI(t, "secret-1")

	resp := doRequest(t, http.MethodGet, server.URL+"/health", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInternalRoutesRequireSecret(t *testing.T) {
	server, _ := newTestAPI(t, "secret-1")

	resp := doRequest(t, http.MethodGet, server.URL+"/internal/charge-points", "", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, server.URL+"/internal/charge-points", "wrong", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, server.URL+"/internal/charge-points", "secret-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRemoteStartSendsCall(t *testing.T) {
	server, reg := newTestAPI(t, "secret-1")

	conn := &recordingConn{id: "CP-1"}
	reg.Register(conn)

	resp := doRequest(t, http.MethodPost, server.URL+"/internal/commands/remote-start", "secret-1",
		`{"cpId":"CP-1","idTag":"TAG-1","connectorId":1}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, 1, conn.frameCount())
}

func TestRemoteStartDisconnectedChargePointConflicts(t *testing.T) {
	server, _ := newTestAPI(t, "secret-1")

	resp := doRequest(t, http.MethodPost, server.URL+"/internal/commands/remote-start", "secret-1",
		`{"cpId":"CP-offline","idTag":"TAG-1"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRemoteStartValidatesBody(t *testing.T) {
	server, _ := newTestAPI(t, "secret-1")

	resp := doRequest(t, http.MethodPost, server.URL+"/internal/commands/remote-start", "secret-1", `not json`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doRequest(t, http.MethodPost, server.URL+"/internal/commands/remote-start", "secret-1", `{"cpId":"CP-1"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRemoteStopValidatesBody(t *testing.T) {
	server, _ := newTestAPI(t, "secret-1")

	resp := doRequest(t, http.MethodPost, server.URL+"/internal/commands/remote-stop", "secret-1", `{"cpId":"CP-1"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChangeAvailabilitySendsCall(t *testing.T) {
	server, reg := newTestAPI(t, "secret-1")

	conn := &recordingConn{id: "CP-1"}
	reg.Register(conn)

	resp := doRequest(t, http.MethodPost, server.URL+"/internal/commands/change-availability", "secret-1",
		`{"cpId":"CP-1","connectorId":1,"type":"Inoperative"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, 1, conn.frameCount())

	resp = doRequest(t, http.MethodPost, server.URL+"/internal/commands/change-availability", "secret-1",
		`{"cpId":"CP-1","connectorId":1,"type":"Sideways"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChangeConfigurationValidatesBody(t *testing.T) {
	server, reg := newTestAPI(t, "secret-1")

	conn := &recordingConn{id: "CP-1"}
	reg.Register(conn)

	resp := doRequest(t, http.MethodPost, server.URL+"/internal/commands/change-configuration", "secret-1",
		`{"cpId":"CP-1","key":"HeartbeatInterval","value":"60"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, 1, conn.frameCount())

	resp = doRequest(t, http.MethodPost, server.URL+"/internal/commands/change-configuration", "secret-1",
		`{"cpId":"CP-1"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChargePointSnapshots(t *testing.T) {
	server, reg := newTestAPI(t, "secret-1")

	reg.UpdateBootInfo("CP-1", "VendorX", "ModelY", "SN-1", "1.0.0")

	resp := doRequest(t, http.MethodGet, server.URL+"/internal/charge-points", "secret-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []registry.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	require.Equal(t, "CP-1", list[0].Identifier)

	resp = doRequest(t, http.MethodGet, server.URL+"/internal/charge-points/CP-1", "secret-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var one registry.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&one))
	require.Equal(t, "VendorX", one.Vendor)

	resp = doRequest(t, http.MethodGet, server.URL+"/internal/charge-points/CP-missing", "secret-1", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
