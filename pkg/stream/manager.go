// ABOUTME: Stream coordinator owning the ring buffer and sender worker
// ABOUTME: Handles lifecycle, silence gating, sequencing, timestamps, and observers
package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mix2go/stream-go/internal/ringbuf"
	"github.com/mix2go/stream-go/internal/sender"
	"github.com/mix2go/stream-go/pkg/packet"
)

const (
	// SilenceThreshold is the peak magnitude below which a block is
	// treated as silent (~ -60 dBFS).
	SilenceThreshold = 0.001

	// SilentBlockLimit is how many consecutive silent blocks flip
	// HasAudioSignal to false.
	SilentBlockLimit = 10
)

// Manager coordinates the audio streaming pipeline: the real-time
// callback pushes sample blocks through a silence gate into a lock-free
// ring, and a paced sender worker drains the ring into timestamped,
// sequenced datagrams.
//
// PushAudio is the only method safe to call from the real-time audio
// thread. Everything else belongs to a non-real-time control thread.
type Manager struct {
	mu            sync.Mutex
	sampleRate    float64
	blockSize     int
	channels      int
	packetSamples int
	targetHost    string
	targetPort    int
	state         State
	sessionID     string

	ring *ringbuf.Ring
	send *sender.Sender

	isStreaming  atomic.Bool
	silentBlocks atomic.Int32

	// Touched only by the sender goroutine between Start and Stop.
	sequence  uint32
	startTime time.Time
	scratch   [][]float32

	listenerMu sync.Mutex
	listeners  []Listener
}

// NewManager creates a coordinator. A nil transport defaults to UDP;
// tests pass a mock.
func NewManager(transport sender.Transport) *Manager {
	m := &Manager{
		ring:       ringbuf.New(),
		send:       sender.New(transport),
		targetHost: "127.0.0.1",
		targetPort: 12345,
		state:      Disconnected,
	}
	m.send.SetCallback(m.fillPacket)
	return m
}

// Prepare caches the audio settings, sizes the ring for ~2 seconds of
// audio, and derives the packet granule (~10 ms of samples). Callers
// are expected to Stop before re-preparing.
func (m *Manager) Prepare(sampleRate float64, blockSize, channels int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sampleRate = sampleRate
	m.blockSize = blockSize
	m.channels = channels
	m.packetSamples = int(sampleRate * 0.01)

	m.ring.Prepare(channels, int(sampleRate)*2)

	m.scratch = make([][]float32, channels)
	for ch := range m.scratch {
		m.scratch[ch] = make([]float32, m.packetSamples)
	}

	logrus.WithFields(logrus.Fields{
		"sample_rate":    sampleRate,
		"block_size":     blockSize,
		"channels":       channels,
		"packet_samples": m.packetSamples,
	}).Info("stream: prepared")
}

// SetTarget configures the destination address and port.
func (m *Manager) SetTarget(host string, port int) {
	m.mu.Lock()
	m.targetHost = host
	m.targetPort = port
	m.mu.Unlock()
	m.send.SetTarget(host, port)
}

// SetSendInterval adjusts the sender pacing; takes effect on the next
// tick.
func (m *Manager) SetSendInterval(d time.Duration) {
	m.send.SetInterval(d)
}

// Target returns the configured destination.
func (m *Manager) Target() (string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.targetHost, m.targetPort
}

// Start begins streaming: resets the ring and sequence counter,
// records the stream start instant, and launches the sender. Returns
// true when already streaming. On a bind failure the state becomes
// Error and Start returns false.
func (m *Manager) Start() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Streaming {
		return true
	}
	if m.packetSamples <= 0 {
		logrus.Warn("stream: start called before prepare")
		return false
	}

	m.setStateLocked(Connecting)

	m.ring.Reset()
	m.sequence = 0
	m.startTime = time.Now()
	m.sessionID = uuid.NewString()

	if err := m.send.Start(); err != nil {
		m.setStateLocked(Error)
		return false
	}

	m.isStreaming.Store(true)
	m.setStateLocked(Streaming)

	logrus.WithFields(logrus.Fields{
		"session": m.sessionID,
		"host":    m.targetHost,
		"port":    m.targetPort,
	}).Info("stream: started")
	return true
}

// Stop halts streaming, joins the sender worker, and clears the ring.
func (m *Manager) Stop() {
	m.isStreaming.Store(false)
	m.send.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ring.Reset()
	m.setStateLocked(Disconnected)

	logrus.Info("stream: stopped")
}

// IsStreaming reports whether audio is being accepted and transmitted.
func (m *Manager) IsStreaming() bool {
	return m.isStreaming.Load()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StateString returns the state as display text.
func (m *Manager) StateString() string {
	return m.State().String()
}

// SessionID returns the identifier assigned at the last Start.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// PushAudio feeds one block of samples from the real-time audio
// callback. Each channel slice must be the same length. Blocks whose
// peak magnitude stays below SilenceThreshold are gated out.
//
// This path never allocates, locks, logs, or performs I/O.
func (m *Manager) PushAudio(block [][]float32) {
	if !m.isStreaming.Load() {
		return
	}

	var peak float32
	for ch := range block {
		for _, s := range block[ch] {
			if s < 0 {
				s = -s
			}
			if s > peak {
				peak = s
			}
		}
	}

	if peak < SilenceThreshold {
		m.silentBlocks.Add(1)
		return
	}

	m.silentBlocks.Store(0)
	m.ring.Push(block)
}

// HasAudioSignal reports whether recent blocks carried audible audio.
func (m *Manager) HasAudioSignal() bool {
	return m.silentBlocks.Load() < SilentBlockLimit
}

// Statistics forwarders.

// PacketsSent returns datagrams transmitted, cumulative across restarts.
func (m *Manager) PacketsSent() uint64 { return m.send.PacketsSent() }

// BytesSent returns bytes transmitted, cumulative across restarts.
func (m *Manager) BytesSent() uint64 { return m.send.BytesSent() }

// FIFOLevel returns the samples currently queued in the ring.
func (m *Manager) FIFOLevel() int { return m.ring.Ready() }

// FIFOOverruns returns the count of blocks dropped on a full ring.
func (m *Manager) FIFOOverruns() uint64 { return m.ring.Overruns() }

// FIFOUnderruns returns the count of sender ticks with too few samples.
func (m *Manager) FIFOUnderruns() uint64 { return m.ring.Underruns() }

// LastError returns the sender's most recent failure message.
func (m *Manager) LastError() string { return m.send.LastError() }

// AddListener registers a state observer; duplicates are ignored.
func (m *Manager) AddListener(l Listener) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	for _, existing := range m.listeners {
		if existing == l {
			return
		}
	}
	m.listeners = append(m.listeners, l)
}

// RemoveListener unregisters a state observer.
func (m *Manager) RemoveListener(l Listener) {
	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	for i, existing := range m.listeners {
		if existing == l {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			return
		}
	}
}

// BroadcastStats pushes the current packet and byte counts to every
// listener that implements StatsListener. Intended to be driven by a
// control-surface ticker.
func (m *Manager) BroadcastStats() {
	packets := m.send.PacketsSent()
	bytes := m.send.BytesSent()

	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	for _, l := range m.listeners {
		if sl, ok := l.(StatsListener); ok {
			sl.StreamStatsUpdated(packets, bytes)
		}
	}
}

// setStateLocked applies a transition and fans out to listeners.
// Caller holds m.mu.
func (m *Manager) setStateLocked(newState State) {
	if m.state == newState {
		return
	}
	m.state = newState

	m.listenerMu.Lock()
	defer m.listenerMu.Unlock()
	for _, l := range m.listeners {
		l.StreamStateChanged(newState)
	}
}

// fillPacket is the sender worker's packet source: it drains exactly
// one granule from the ring, interleaves it, and stamps sequence and
// timestamp. The sender goroutine is the ring's only consumer, so the
// sequence counter and start instant need no synchronization here.
func (m *Manager) fillPacket(p *packet.Packet) bool {
	ps := m.packetSamples
	if ps <= 0 {
		return false
	}

	if !m.ring.Pop(m.scratch, ps) {
		return false
	}

	p.PackFromChannels(m.scratch, m.channels, ps, uint32(m.sampleRate))
	p.Timestamp = uint64(time.Since(m.startTime).Microseconds())
	p.Sequence = m.sequence
	m.sequence++

	return true
}
