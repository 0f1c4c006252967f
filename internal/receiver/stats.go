// ABOUTME: Reception statistics with loss detection and a decaying peak meter
// ABOUTME: Tracker is safe for one observer goroutine and many readers
package receiver

import (
	"math"
	"sync"

	"github.com/mix2go/stream-go/pkg/packet"
)

// peakDecay is the per-packet multiplier applied to the peak meter so
// the level falls off smoothly between loud packets.
const peakDecay = 0.95

// Stats is a snapshot of reception counters.
type Stats struct {
	PacketsReceived uint64
	BytesReceived   uint64
	PacketsLost     uint64
	Malformed       uint64
	LastSequence    int64
	PeakLevel       float32
	SampleRate      uint32
	Channels        uint16
}

// PeakDB returns the peak level in dBFS, floored at -60.
func (s Stats) PeakDB() float64 {
	if s.PeakLevel <= 0 {
		return -60
	}
	db := 20 * math.Log10(float64(s.PeakLevel))
	if db < -60 {
		return -60
	}
	return db
}

// Tracker accumulates reception statistics. Sequence gaps count as
// lost packets; out-of-order arrivals reset the expectation rather
// than counting backwards.
type Tracker struct {
	mu    sync.Mutex
	stats Stats
}

// NewTracker creates a tracker with no packets seen yet.
func NewTracker() *Tracker {
	return &Tracker{stats: Stats{LastSequence: -1}}
}

// Observe records one decoded packet of the given wire size.
func (t *Tracker) Observe(p *packet.Packet, wireSize int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &t.stats
	s.PacketsReceived++
	s.BytesReceived += uint64(wireSize)
	s.SampleRate = p.SampleRate
	s.Channels = p.Channels

	if s.LastSequence >= 0 {
		gap := int64(p.Sequence) - s.LastSequence - 1
		if gap > 0 {
			s.PacketsLost += uint64(gap)
		}
	}
	s.LastSequence = int64(p.Sequence)

	var peak float32
	for _, v := range p.Audio {
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	decayed := s.PeakLevel * peakDecay
	if peak > decayed {
		s.PeakLevel = peak
	} else {
		s.PeakLevel = decayed
	}
}

// ObserveMalformed records a datagram that failed to decode.
func (t *Tracker) ObserveMalformed(wireSize int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Malformed++
	t.stats.BytesReceived += uint64(wireSize)
}

// Snapshot returns a copy of the current counters.
func (t *Tracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Reset clears all counters.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats = Stats{LastSequence: -1}
}
