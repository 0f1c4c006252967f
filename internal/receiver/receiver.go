// ABOUTME: UDP receiver decoding datagrams into packets
// ABOUTME: Runs a read loop goroutine and fans decoded packets to a handler
package receiver

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mix2go/stream-go/pkg/packet"
)

// maxDatagram is the largest datagram the read loop accepts.
const maxDatagram = 65535

// PacketFunc is called for every successfully decoded packet, from the
// receiver's read goroutine.
type PacketFunc func(p *packet.Packet, from net.Addr)

// Receiver listens on a UDP port and decodes incoming datagrams.
type Receiver struct {
	mu      sync.Mutex
	conn    net.PacketConn
	done    chan struct{}
	running bool

	tracker *Tracker
	handler PacketFunc
}

// New creates a receiver. The handler may be nil.
func New(handler PacketFunc) *Receiver {
	return &Receiver{
		tracker: NewTracker(),
		handler: handler,
	}
}

// Start binds the UDP port and launches the read loop. Starting twice
// is an error.
func (r *Receiver) Start(port int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("receiver already running")
	}

	conn, err := net.ListenPacket("udp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to bind port %d: %w", port, err)
	}

	r.conn = conn
	r.done = make(chan struct{})
	r.running = true

	logrus.WithField("addr", conn.LocalAddr().String()).Info("receiver: listening")
	go r.readLoop(conn, r.done)
	return nil
}

// Stop closes the socket and waits for the read loop to exit.
func (r *Receiver) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	conn := r.conn
	done := r.done
	r.running = false
	r.mu.Unlock()

	conn.Close()
	<-done
	logrus.Info("receiver: stopped")
}

// LocalAddr returns the bound address, or nil before Start.
func (r *Receiver) LocalAddr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Stats returns a snapshot of the reception counters.
func (r *Receiver) Stats() Stats {
	return r.tracker.Snapshot()
}

func (r *Receiver) readLoop(conn net.PacketConn, done chan struct{}) {
	defer close(done)

	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			// Closed socket ends the loop.
			return
		}

		p, err := packet.Deserialize(buf[:n])
		if err != nil {
			r.tracker.ObserveMalformed(n)
			continue
		}

		r.tracker.Observe(p, n)
		if r.handler != nil {
			r.handler(p, addr)
		}
	}
}
