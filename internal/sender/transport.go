// ABOUTME: Datagram transport abstraction for the sender worker
// ABOUTME: UDP implementation over net.PacketConn plus the interface tests mock
package sender

import (
	"fmt"
	"net"
	"sync"
)

// Transport is the connectionless datagram surface the sender needs.
// No ordering, delivery, or duplication guarantees are assumed.
type Transport interface {
	// Bind acquires a local ephemeral endpoint.
	Bind() error

	// WriteTo transmits one datagram to host:port and reports the
	// number of bytes sent.
	WriteTo(b []byte, host string, port int) (int, error)

	// Close releases the endpoint. Safe to call when unbound.
	Close() error
}

// UDPTransport sends datagrams from an ephemeral UDP port.
type UDPTransport struct {
	mu       sync.Mutex
	conn     net.PacketConn
	lastDest string
	lastAddr *net.UDPAddr
}

// NewUDPTransport returns an unbound UDP transport.
func NewUDPTransport() *UDPTransport {
	return &UDPTransport{}
}

// Bind opens a UDP socket on an ephemeral local port.
func (t *UDPTransport) Bind() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return nil
	}

	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return fmt.Errorf("bind udp socket: %w", err)
	}
	t.conn = conn
	return nil
}

// WriteTo sends one datagram. The resolved destination is cached until
// the target changes, keeping per-tick work off the resolver.
func (t *UDPTransport) WriteTo(b []byte, host string, port int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return 0, ErrNotBound
	}

	dest := fmt.Sprintf("%s:%d", host, port)
	if dest != t.lastDest {
		addr, err := net.ResolveUDPAddr("udp", dest)
		if err != nil {
			return 0, fmt.Errorf("resolve %s: %w", dest, err)
		}
		t.lastDest = dest
		t.lastAddr = addr
	}

	return t.conn.WriteTo(b, t.lastAddr)
}

// Close releases the socket.
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.lastDest = ""
	t.lastAddr = nil
	return err
}
