// ABOUTME: Tests for the websocket monitoring surface
// ABOUTME: Dials real websocket connections against an httptest server
package monitor

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mix2go/stream-go/pkg/stream"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/monitor"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func waitForClients(t *testing.T, m *Monitor, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for m.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count never reached %d, have %d", n, m.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStateBroadcast(t *testing.T) {
	m := New(nil)
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	waitForClients(t, m, 1)

	m.StreamStateChanged(stream.Streaming)

	msg := readMessage(t, conn)
	assert.Equal(t, TypeState, msg.Type)
	payload := msg.Payload.(map[string]interface{})
	assert.Equal(t, "Streaming", payload["state"])
}

func TestStatsBroadcast(t *testing.T) {
	m := New(nil)
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	waitForClients(t, m, 1)

	m.StreamStatsUpdated(42, 4200)

	msg := readMessage(t, conn)
	assert.Equal(t, TypeStats, msg.Type)
	payload := msg.Payload.(map[string]interface{})
	assert.Equal(t, float64(42), payload["packets_sent"])
	assert.Equal(t, float64(4200), payload["bytes_sent"])
}

func TestHelloOnConnect(t *testing.T) {
	m := New(func() (string, StatsPayload) {
		return "Streaming", StatsPayload{PacketsSent: 7}
	})
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	msg := readMessage(t, conn)
	assert.Equal(t, TypeHello, msg.Type)
	payload := msg.Payload.(map[string]interface{})
	assert.Equal(t, "Streaming", payload["state"])
}

func TestMultipleClientsReceiveBroadcast(t *testing.T) {
	m := New(nil)
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	a := dial(t, srv)
	defer a.Close()
	b := dial(t, srv)
	defer b.Close()
	waitForClients(t, m, 2)

	m.StreamStateChanged(stream.Error)

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, TypeState, msg.Type)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	m := New(nil)
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	waitForClients(t, m, 1)

	conn.Close()
	waitForClients(t, m, 0)

	// Broadcasting to no clients is fine.
	m.StreamStateChanged(stream.Disconnected)
}

func TestStopDisconnectsClients(t *testing.T) {
	m := New(nil)
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	waitForClients(t, m, 1)

	m.Stop()
	assert.Equal(t, 0, m.ClientCount())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "server side closed the connection")
}
