package httpd_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/calldeck/calldeck/internal/adapters/httpd"
	"github.com/calldeck/calldeck/internal/app"
	"github.com/calldeck/calldeck/internal/config"
	"github.com/calldeck/calldeck/internal/core"
	"github.com/calldeck/calldeck/internal/domain"
)

type apiEnvelope struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	User    *domain.User      `json:"user"`
	Users   []domain.User     `json:"users"`
	Logs    []domain.LogEntry `json:"logs"`
}

func newTestRouter(t *testing.T) (http.Handler, httpd.Deps) {
	t.Helper()
	cfg := &config.Config{
		Mode:            "release",
		Secret:          "test-secret",
		StaticPath:      t.TempDir(),
		PresenceTimeout: 30 * time.Second,
	}
	steps := app.NewStepLog()
	deps := httpd.Deps{
		Directory:   app.NewDirectory(steps, cfg.PresenceTimeout),
		Steps:       steps,
		Switchboard: app.NewSwitchboard(steps),
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return httpd.SetupRouter(ctx, cfg, deps), deps
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, apiEnvelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env apiEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func TestRegisterEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w, env := doJSON(t, r, http.MethodPost, "/api/register", map[string]string{"username": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, env.Success)
	require.Equal(t, "alice", env.User.Username)
	require.Equal(t, "192.168.100.10", env.User.InternalIP)
	require.Equal(t, 5060, env.User.SIPPort)
}

func TestRegisterRejectsEmptyUsername(t *testing.T) {
	r, _ := newTestRouter(t)

	w, env := doJSON(t, r, http.MethodPost, "/api/register", map[string]string{"username": ""})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.False(t, env.Success)
}

func TestHeartbeatEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w, _ := doJSON(t, r, http.MethodPost, "/api/heartbeat", map[string]string{"username": "ghost"})
	require.Equal(t, http.StatusNotFound, w.Code)

	doJSON(t, r, http.MethodPost, "/api/register", map[string]string{"username": "alice"})
	w, env := doJSON(t, r, http.MethodPost, "/api/heartbeat", map[string]string{"username": "alice"})
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, env.Success)
}

func TestUsersEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	_, env := doJSON(t, r, http.MethodGet, "/api/users", nil)
	require.True(t, env.Success)
	require.Empty(t, env.Users)

	doJSON(t, r, http.MethodPost, "/api/register", map[string]string{"username": "bob"})
	doJSON(t, r, http.MethodPost, "/api/register", map[string]string{"username": "alice"})

	_, env = doJSON(t, r, http.MethodGet, "/api/users", nil)
	require.Len(t, env.Users, 2)
	require.Equal(t, "alice", env.Users[0].Username)
	require.Equal(t, "bob", env.Users[1].Username)
}

func TestLogsEndpointAndClear(t *testing.T) {
	r, _ := newTestRouter(t)

	doJSON(t, r, http.MethodPost, "/api/register", map[string]string{"username": "alice"})

	_, env := doJSON(t, r, http.MethodGet, "/api/logs", nil)
	require.True(t, env.Success)
	require.NotEmpty(t, env.Logs)
	require.Equal(t, "USER REGISTERED", env.Logs[0].Step)

	w, _ := doJSON(t, r, http.MethodDelete, "/api/logs", nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, env = doJSON(t, r, http.MethodGet, "/api/logs", nil)
	require.Empty(t, env.Logs)
}

func TestInitiateCallEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w, _ := doJSON(t, r, http.MethodPost, "/api/call/initiate", map[string]string{"caller": "", "callee": "bob"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/api/call/initiate", map[string]string{"caller": "ghost", "callee": "bob"})
	require.Equal(t, http.StatusNotFound, w.Code)

	doJSON(t, r, http.MethodPost, "/api/register", map[string]string{"username": "alice"})

	// Known caller but the callee has no signal connection attached.
	w, env := doJSON(t, r, http.MethodPost, "/api/call/initiate", map[string]string{"caller": "alice", "callee": "bob"})
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, domain.ErrPeerUnavailable.Error(), env.Error)
}

func wsURL(t *testing.T, srv *httptest.Server, path string) string {
	t.Helper()
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestLogsWebsocketSnapshotAndTrigger(t *testing.T) {
	r, deps := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(t, srv, "/ws/logs"), nil)
	require.NoError(t, err)
	defer conn.Close()

	deps.Steps.Append("BOOT", nil)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(core.LogRequestToken)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	env := readEnvelopeOfType(t, conn, core.MsgAllLogs)
	require.Len(t, env.Logs, 1)
	require.Equal(t, "BOOT", env.Logs[0].Step)

	// A later append arrives as a payload-free trigger.
	deps.Steps.Append("SECOND", nil)
	env = readEnvelopeOfType(t, conn, core.MsgLogUpdate)
	require.Empty(t, env.Logs)
}

// readEnvelopeOfType skips interleaved messages of other types; trigger
// and snapshot ordering is not guaranteed relative to each other.
func readEnvelopeOfType(t *testing.T, conn *websocket.Conn, msgType string) core.Envelope {
	t.Helper()
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		env, err := core.DecodeEnvelope(data)
		require.NoError(t, err)
		if env.Type == msgType {
			return env
		}
	}
}

func TestSignalWebsocketRequiresRegistration(t *testing.T) {
	r, _ := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(t, srv, "/ws/signal?username=ghost"), nil)
	require.Error(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSignalWebsocketCallFlow(t *testing.T) {
	r, _ := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	doJSON(t, r, http.MethodPost, "/api/register", map[string]string{"username": "alice"})
	doJSON(t, r, http.MethodPost, "/api/register", map[string]string{"username": "bob"})

	alice, _, err := websocket.DefaultDialer.Dial(wsURL(t, srv, "/ws/signal?username=alice"), nil)
	require.NoError(t, err)
	defer alice.Close()
	bob, _, err := websocket.DefaultDialer.Dial(wsURL(t, srv, "/ws/signal?username=bob"), nil)
	require.NoError(t, err)
	defer bob.Close()

	alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	bob.SetReadDeadline(time.Now().Add(2 * time.Second))

	require.Equal(t, core.MsgAttached, readEnvelopeOfType(t, alice, core.MsgAttached).Type)
	require.Equal(t, core.MsgAttached, readEnvelopeOfType(t, bob, core.MsgAttached).Type)

	invite, err := core.Envelope{Type: core.MsgInvite, To: "bob", SDP: "offer"}.Encode()
	require.NoError(t, err)
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, invite))

	gotInvite := readEnvelopeOfType(t, bob, core.MsgInvite)
	require.Equal(t, "alice", gotInvite.From)
	require.Equal(t, "offer", gotInvite.SDP)

	gotRinging := readEnvelopeOfType(t, alice, core.MsgRinging)
	require.Equal(t, gotInvite.CallID, gotRinging.CallID)

	accept, err := core.Envelope{Type: core.MsgAccept, CallID: gotInvite.CallID, SDP: "answer"}.Encode()
	require.NoError(t, err)
	require.NoError(t, bob.WriteMessage(websocket.TextMessage, accept))

	gotAccepted := readEnvelopeOfType(t, alice, core.MsgAccepted)
	require.Equal(t, "answer", gotAccepted.SDP)

	// Dropping bob's socket delivers a bye to alice.
	bob.Close()
	gotBye := readEnvelopeOfType(t, alice, core.MsgBye)
	require.Equal(t, gotInvite.CallID, gotBye.CallID)
}
