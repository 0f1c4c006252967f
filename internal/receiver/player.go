// ABOUTME: Local playback of received packets through oto
// ABOUTME: Converts float32 samples to int16 PCM with software volume
package receiver

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/sirupsen/logrus"

	"github.com/mix2go/stream-go/pkg/packet"
)

// Player plays received audio on the local output device. Packets are
// queued as int16 PCM and drained by the audio backend; an empty queue
// plays silence.
type Player struct {
	mu     sync.Mutex
	otoCtx *oto.Context
	player *oto.Player
	queue  *pcmQueue
	volume int
	muted  bool
	ready  bool
}

// NewPlayer creates an uninitialized player at full volume.
func NewPlayer() *Player {
	return &Player{
		queue:  newPCMQueue(),
		volume: 100,
	}
}

// Initialize opens the audio device for the given format.
func (p *Player) Initialize(sampleRate, channels int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ready {
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create audio context: %w", err)
	}
	<-readyChan

	p.otoCtx = ctx
	p.player = ctx.NewPlayer(p.queue)
	p.player.Play()
	p.ready = true

	logrus.WithFields(logrus.Fields{
		"sample_rate": sampleRate,
		"channels":    channels,
	}).Info("player: output initialized")
	return nil
}

// Enqueue converts one packet to PCM and queues it for playback.
// Initializes the device lazily from the first packet's format.
func (p *Player) Enqueue(pkt *packet.Packet) error {
	p.mu.Lock()
	ready := p.ready
	p.mu.Unlock()
	if !ready {
		if err := p.Initialize(int(pkt.SampleRate), int(pkt.Channels)); err != nil {
			return err
		}
	}

	p.mu.Lock()
	gain := float32(p.volume) / 100
	if p.muted {
		gain = 0
	}
	p.mu.Unlock()

	p.queue.writeFloats(pkt.Audio, gain)
	return nil
}

// SetVolume sets playback volume, clamped to 0..100.
func (p *Player) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	p.mu.Lock()
	p.volume = volume
	p.mu.Unlock()
}

// Volume returns the current volume.
func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetMuted toggles mute without losing the volume setting.
func (p *Player) SetMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	p.mu.Unlock()
}

// Muted reports the mute state.
func (p *Player) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// Underruns returns how many bytes of silence were substituted when
// the queue ran dry.
func (p *Player) Underruns() uint64 { return p.queue.underruns() }

// Close suspends the audio device.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.otoCtx != nil {
		p.otoCtx.Suspend()
		p.ready = false
	}
}

// pcmQueue is a byte FIFO read by the audio backend. Reads never
// block; missing data comes out as silence.
type pcmQueue struct {
	mu       sync.Mutex
	buf      []byte
	underrun uint64
}

func newPCMQueue() *pcmQueue {
	return &pcmQueue{}
}

// writeFloats appends samples as little-endian int16 with gain applied.
func (q *pcmQueue) writeFloats(samples []float32, gain float32) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, s := range samples {
		v := s * gain
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		i := int16(v * 32767)
		q.buf = append(q.buf, byte(i), byte(i>>8))
	}
}

func (q *pcmQueue) Read(b []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := copy(b, q.buf)
	q.buf = q.buf[n:]
	if n < len(b) {
		for i := n; i < len(b); i++ {
			b[i] = 0
		}
		q.underrun += uint64(len(b) - n)
	}
	return len(b), nil
}

func (q *pcmQueue) underruns() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.underrun
}

func (q *pcmQueue) buffered() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}
