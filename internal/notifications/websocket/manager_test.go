package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, m *Manager) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = m.HandleConnection(w, r, r.URL.Query().Get("user"))
	}))
}

func dial(t *testing.T, srv *httptest.Server, user string) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	conn, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	return conn
}

func TestSendToUserDeliversToEverySocket(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(zap.NewNop(), nil)
	srv := newTestServer(t, m)
	defer srv.Close()
	defer m.Close()

	a := dial(t, srv, "u1")
	defer a.Close()
	b := dial(t, srv, "u1")
	defer b.Close()

	require.Eventually(t, func() bool { return m.GetConnectionCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, m.IsConnected("u1"))
	assert.False(t, m.IsConnected("u2"))

	err := m.SendToUser("u1", Message{Type: MessageTypeRedirect, Data: map[string]any{"url": "/portal"}})
	require.NoError(t, err)

	for _, c := range []*gorilla.Conn{a, b} {
		_ = c.SetReadDeadline(time.Now().Add(time.Second))
		var got Message
		require.NoError(t, c.ReadJSON(&got))
		assert.Equal(t, MessageTypeRedirect, got.Type)
		assert.Equal(t, "/portal", got.Data["url"])
		assert.Equal(t, "u1", got.Target)
		assert.False(t, got.Timestamp.IsZero())
	}

	assert.ErrorIs(t, m.SendToUser("u2", Message{Type: MessageTypeStatus}), ErrUserNotConnected)
}

func TestPingGetsPong(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(zap.NewNop(), nil)
	srv := newTestServer(t, m)
	defer srv.Close()
	defer m.Close()

	c := dial(t, srv, "u1")
	defer c.Close()

	require.NoError(t, c.WriteJSON(Message{Type: MessageTypePing}))
	_ = c.SetReadDeadline(time.Now().Add(time.Second))
	var got Message
	require.NoError(t, c.ReadJSON(&got))
	assert.Equal(t, MessageTypePong, got.Type)
}

func TestDisconnectUnregisters(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(zap.NewNop(), nil)
	srv := newTestServer(t, m)
	defer srv.Close()
	defer m.Close()

	c := dial(t, srv, "u1")
	require.Eventually(t, func() bool { return m.IsConnected("u1") }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	require.Eventually(t, func() bool { return !m.IsConnected("u1") }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, m.GetConnectionCount())
}

func TestCloseStopsEverything(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(zap.NewNop(), nil)
	srv := newTestServer(t, m)
	defer srv.Close()

	c := dial(t, srv, "u1")
	defer c.Close()
	require.Eventually(t, func() bool { return m.IsConnected("u1") }, time.Second, 5*time.Millisecond)

	m.Close()
	m.Close()

	assert.Equal(t, 0, m.GetConnectionCount())
	assert.ErrorIs(t, m.SendToUser("u1", Message{Type: MessageTypeStatus}), ErrManagerClosed)
	assert.ErrorIs(t, m.Broadcast(Message{Type: MessageTypeStatus}), ErrManagerClosed)

	_ = c.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := c.ReadMessage()
	assert.Error(t, err)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.clinic.test"})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://app.clinic.test")
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://evil.test")
	assert.False(t, check(r))

	assert.True(t, originChecker([]string{"*"})(r))
}
