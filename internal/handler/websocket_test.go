package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookbin/hookbin/internal/ws"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
}

func dialWS(t *testing.T, srv *httptest.Server, cookie *http.Cookie) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	if cookie != nil {
		header.Set("Cookie", cookie.String())
	}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocket_UnauthenticatedClosedWithPolicyViolation(t *testing.T) {
	_, r, _ := newTestHandler(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn := dialWS(t, srv, nil)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

func TestWebSocket_ReceivesCaptureEventsForOwnSessionOnly(t *testing.T) {
	h, r, s := newTestHandler(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	_, _, mine := seedSession(t, h, s, "my-hook")
	_, _, theirs := seedSession(t, h, s, "their-hook")

	myConn := dialWS(t, srv, mine)
	theirConn := dialWS(t, srv, theirs)

	// The upgrade handler registers asynchronously; wait for both.
	require.Eventually(t, func() bool { return h.Registry.Sessions() == 2 },
		2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(srv.URL+"/my-hook/cb", "application/json", strings.NewReader(`{"n":1}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	myConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := myConn.ReadMessage()
	require.NoError(t, err)

	var ev ws.Event
	require.NoError(t, json.Unmarshal(frame, &ev))
	assert.Equal(t, "new_webhook", ev.Type)

	webhook, ok := ev.Webhook.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "POST", webhook["method"])
	assert.Equal(t, "/cb", webhook["pathname"])
	// Broadcast payloads keep sensitive fields encrypted.
	body, _ := webhook["body"].(string)
	assert.NotContains(t, body, `"n":1`)

	// The other session must see nothing.
	theirConn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = theirConn.ReadMessage()
	assert.Error(t, err, "expected read timeout, got an event")
}

func TestWebSocket_DisconnectUnregisters(t *testing.T) {
	h, r, s := newTestHandler(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	_, _, cookie := seedSession(t, h, s, "brief")
	conn := dialWS(t, srv, cookie)
	require.Eventually(t, func() bool { return h.Registry.Sessions() == 1 },
		2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return h.Registry.Sessions() == 0 },
		2*time.Second, 10*time.Millisecond)
}
