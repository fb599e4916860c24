package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func dial(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/" + sessionID + "/dictation"
	conn, err := websocket.Dial(url, "", "http://localhost/")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func TestDictationStreamAppendsFinalFragments(t *testing.T) {
	f := newAPIFixture(t)
	id := startSession(t, f)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	conn := dial(t, srv, id)
	var out DictationOutbound
	require.NoError(t, websocket.JSON.Receive(conn, &out))
	require.Equal(t, "capture", out.Type)
	assert.True(t, out.Capture.Capturing)

	require.NoError(t, websocket.JSON.Send(conn, DictationInbound{Type: "fragment", Text: "pain when"}))
	require.NoError(t, websocket.JSON.Receive(conn, &out))
	assert.Equal(t, "pain when", out.Capture.Interim)
	assert.Empty(t, out.Transcript)

	require.NoError(t, websocket.JSON.Send(conn, DictationInbound{Type: "fragment", Text: "pain when lifting", Final: true}))
	require.NoError(t, websocket.JSON.Receive(conn, &out))
	assert.Equal(t, "pain when lifting ", out.Transcript)
	assert.Empty(t, out.Capture.Interim)

	require.NoError(t, websocket.JSON.Send(conn, DictationInbound{Type: "ping"}))
	require.NoError(t, websocket.JSON.Receive(conn, &out))
	assert.Equal(t, "pong", out.Type)
}

func TestDictationUnavailableDisablesCapture(t *testing.T) {
	f := newAPIFixture(t)
	id := startSession(t, f)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	conn := dial(t, srv, id)
	var out DictationOutbound
	require.NoError(t, websocket.JSON.Receive(conn, &out))

	require.NoError(t, websocket.JSON.Send(conn, DictationInbound{Type: "unavailable"}))
	require.NoError(t, websocket.JSON.Receive(conn, &out))
	assert.False(t, out.Capture.DictationAvailable)
	assert.False(t, out.Capture.Capturing)

	view, err := f.svc.View(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, view.Capture.Capturing)

	conn2 := dial(t, srv, id)
	require.NoError(t, websocket.JSON.Receive(conn2, &out))
	assert.Equal(t, "error", out.Type)
}
