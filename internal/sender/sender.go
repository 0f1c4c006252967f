// ABOUTME: Paced sender worker for audio datagrams
// ABOUTME: Drains packets via a fill callback and transmits them over a datagram transport
package sender

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mix2go/stream-go/pkg/packet"
)

const (
	// DefaultInterval is the pacing between send ticks (~100 packets/s).
	DefaultInterval = 10 * time.Millisecond

	// StopGrace bounds how long Stop waits for the worker to exit.
	StopGrace = 2 * time.Second
)

// FillFunc produces the next packet to transmit. It returns false when
// no packet is available for this tick (for example on a ring underrun).
type FillFunc func(*packet.Packet) bool

// Sender owns the datagram socket and a worker goroutine that pulls
// packets from the fill callback at a fixed interval and transmits
// them to the configured target.
type Sender struct {
	callback FillFunc

	settingsMu sync.Mutex
	host       string
	port       int
	lastError  string

	transport Transport

	intervalNs atomic.Int64
	running    atomic.Bool

	stopChan chan struct{}
	done     chan struct{}

	packetsSent atomic.Uint64
	bytesSent   atomic.Uint64
}

// New creates a sender over the given transport. A nil transport
// defaults to UDP.
func New(transport Transport) *Sender {
	if transport == nil {
		transport = NewUDPTransport()
	}
	s := &Sender{
		transport: transport,
		host:      "127.0.0.1",
		port:      12345,
	}
	s.intervalNs.Store(int64(DefaultInterval))
	return s
}

// SetTarget configures the destination address and port.
func (s *Sender) SetTarget(host string, port int) {
	s.settingsMu.Lock()
	s.host = host
	s.port = port
	s.settingsMu.Unlock()
}

// Target returns the current destination.
func (s *Sender) Target() (string, int) {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	return s.host, s.port
}

// SetCallback installs the packet source. Set once before Start.
func (s *Sender) SetCallback(fn FillFunc) {
	s.callback = fn
}

// SetInterval changes the pacing; takes effect on the next tick.
func (s *Sender) SetInterval(d time.Duration) {
	s.intervalNs.Store(int64(d))
}

// Start binds the transport and launches the worker goroutine.
// Returns nil when already running.
func (s *Sender) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}

	if err := s.transport.Bind(); err != nil {
		s.setLastError(err.Error())
		s.running.Store(false)
		logrus.WithError(err).Error("sender: bind failed")
		return fmt.Errorf("%w: %v", ErrBindFailed, err)
	}

	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stopChan, s.done)

	return nil
}

// Stop signals the worker, waits up to StopGrace for it to exit, and
// releases the socket. Safe to call repeatedly.
func (s *Sender) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	close(s.stopChan)

	select {
	case <-s.done:
	case <-time.After(StopGrace):
		// The worker is stuck on a send. Closing the socket below
		// unblocks it; we do not wait again.
		logrus.Warn("sender: worker did not stop within grace period")
	}

	if err := s.transport.Close(); err != nil {
		logrus.WithError(err).Warn("sender: close failed")
	}
}

// IsActive reports whether the worker is running.
func (s *Sender) IsActive() bool {
	return s.running.Load()
}

// PacketsSent returns the number of datagrams transmitted. The counter
// is cumulative across restarts.
func (s *Sender) PacketsSent() uint64 {
	return s.packetsSent.Load()
}

// BytesSent returns the number of payload bytes transmitted,
// cumulative across restarts.
func (s *Sender) BytesSent() uint64 {
	return s.bytesSent.Load()
}

// LastError returns the most recent bind or send failure message.
func (s *Sender) LastError() string {
	s.settingsMu.Lock()
	defer s.settingsMu.Unlock()
	return s.lastError
}

func (s *Sender) setLastError(msg string) {
	s.settingsMu.Lock()
	s.lastError = msg
	s.settingsMu.Unlock()
}

func (s *Sender) run(stopChan, done chan struct{}) {
	defer close(done)

	host, port := s.Target()
	logrus.WithFields(logrus.Fields{
		"host": host,
		"port": port,
	}).Info("sender: worker started")

	for {
		s.tick()

		interval := time.Duration(s.intervalNs.Load())
		if interval <= 0 {
			select {
			case <-stopChan:
				logrus.Info("sender: worker stopped")
				return
			default:
				continue
			}
		}

		select {
		case <-stopChan:
			logrus.Info("sender: worker stopped")
			return
		case <-time.After(interval):
		}
	}
}

// tick pulls one packet and transmits it. Underruns produce no packet
// and no send; send failures are recorded and the loop continues.
func (s *Sender) tick() {
	if s.callback == nil {
		return
	}

	pkt := packet.New()
	if !s.callback(pkt) {
		return
	}

	data, err := pkt.Serialize()
	if err != nil {
		s.setLastError(err.Error())
		return
	}

	host, port := s.Target()
	n, err := s.transport.WriteTo(data, host, port)
	if err != nil {
		s.setLastError(err.Error())
		return
	}

	s.packetsSent.Add(1)
	s.bytesSent.Add(uint64(n))
}
