// ABOUTME: WebSocket monitoring surface for the streaming pipeline
// ABOUTME: Broadcasts state transitions and stats to connected clients
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mix2go/stream-go/pkg/stream"
)

// StatusFunc supplies the current pipeline status for the hello
// message sent to a freshly connected client.
type StatusFunc func() (state string, stats StatsPayload)

// Monitor serves a websocket endpoint at /monitor and fans stream
// events out to every connected client. It implements both
// stream.Listener and stream.StatsListener, so registering it with a
// coordinator is all the wiring a caller needs.
type Monitor struct {
	upgrader websocket.Upgrader
	status   StatusFunc

	mu      sync.Mutex
	clients map[*client]struct{}

	httpServer *http.Server
	stopOnce   sync.Once
}

type client struct {
	conn *websocket.Conn
	send chan Message
}

// New creates a monitor. status may be nil, in which case new clients
// get no hello message.
func New(status StatusFunc) *Monitor {
	return &Monitor{
		upgrader: websocket.Upgrader{
			// Local-network tooling surface, any origin may watch.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		status:  status,
		clients: make(map[*client]struct{}),
	}
}

// Handler returns the HTTP handler serving the /monitor endpoint.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/monitor", m.handleWebSocket)
	return mux
}

// Start serves the monitoring endpoint on the given port.
func (m *Monitor) Start(port int) error {
	m.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: m.Handler(),
	}

	logrus.WithField("port", port).Info("monitor: listening")
	go func() {
		if err := m.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logrus.WithError(err).Error("monitor: server failed")
		}
	}()
	return nil
}

// Stop disconnects all clients and shuts the HTTP server down.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		for c := range m.clients {
			close(c.send)
			delete(m.clients, c)
		}
		m.mu.Unlock()

		if m.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			m.httpServer.Shutdown(ctx)
		}
		logrus.Info("monitor: stopped")
	})
}

// ClientCount returns the number of connected clients.
func (m *Monitor) ClientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// StreamStateChanged broadcasts a lifecycle transition.
func (m *Monitor) StreamStateChanged(s stream.State) {
	m.broadcast(Message{Type: TypeState, Payload: StatePayload{State: s.String()}})
}

// StreamStatsUpdated broadcasts transmission counters.
func (m *Monitor) StreamStatsUpdated(packetsSent, bytesSent uint64) {
	m.broadcast(Message{Type: TypeStats, Payload: StatsPayload{
		PacketsSent: packetsSent,
		BytesSent:   bytesSent,
	}})
}

// Broadcast sends an arbitrary message to every client.
func (m *Monitor) Broadcast(msg Message) {
	m.broadcast(msg)
}

func (m *Monitor) broadcast(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for c := range m.clients {
		select {
		case c.send <- msg:
		default:
			// Slow consumer, drop it rather than stall the pipeline.
			close(c.send)
			delete(m.clients, c)
		}
	}
}

func (m *Monitor) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("monitor: upgrade failed")
		return
	}

	c := &client{
		conn: conn,
		send: make(chan Message, 64),
	}

	if m.status != nil {
		state, stats := m.status()
		c.send <- Message{Type: TypeHello, Payload: map[string]interface{}{
			"state": state,
			"stats": stats,
		}}
	}

	m.mu.Lock()
	m.clients[c] = struct{}{}
	m.mu.Unlock()

	logrus.WithField("remote", r.RemoteAddr).Info("monitor: client connected")
	go c.writeLoop()
	c.readLoop(m)
}

// writeLoop serializes queued messages onto the websocket until the
// send channel closes.
func (c *client) writeLoop() {
	for msg := range c.send {
		data, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			break
		}
	}
	c.conn.Close()
}

// readLoop drains incoming frames so pings are answered, and
// unregisters the client when the connection drops.
func (c *client) readLoop(m *Monitor) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}

	m.mu.Lock()
	if _, ok := m.clients[c]; ok {
		close(c.send)
		delete(m.clients, c)
	}
	m.mu.Unlock()
}
