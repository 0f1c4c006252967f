// ABOUTME: Wire format for Mix2Go audio datagrams
// ABOUTME: Fixed 26-byte little-endian header followed by interleaved float32 samples
package packet

import (
	"encoding/binary"
	"math"
)

const (
	// Magic identifies a Mix2Go audio packet ("M2G0")
	Magic = 0x4D324730

	// HeaderSize is the number of bytes before the audio payload
	HeaderSize = 26

	// SampleSize is the wire size of one float32 sample
	SampleSize = 4
)

// Packet is a single audio datagram: header fields plus interleaved
// frame-major samples (s0c0, s0c1, s1c0, s1c1, ...).
type Packet struct {
	Magic      uint32
	SampleRate uint32
	Channels   uint16
	Samples    uint32 // samples per channel
	Timestamp  uint64 // microseconds since stream start
	Sequence   uint32
	Audio      []float32
}

// New returns a packet with the magic preset and no audio.
func New() *Packet {
	return &Packet{Magic: Magic}
}

// TotalSize returns the serialized size in bytes.
func (p *Packet) TotalSize() int {
	return HeaderSize + len(p.Audio)*SampleSize
}

// Serialize encodes the packet for network transmission.
// All integer fields are little-endian regardless of host byte order.
func (p *Packet) Serialize() ([]byte, error) {
	payload := len(p.Audio) * SampleSize
	if payload < 0 || payload > math.MaxInt32-HeaderSize {
		return nil, ErrTooLarge
	}

	buf := make([]byte, HeaderSize+payload)
	binary.LittleEndian.PutUint32(buf[0:4], p.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], p.SampleRate)
	binary.LittleEndian.PutUint16(buf[8:10], p.Channels)
	binary.LittleEndian.PutUint32(buf[10:14], p.Samples)
	binary.LittleEndian.PutUint64(buf[14:22], p.Timestamp)
	binary.LittleEndian.PutUint32(buf[22:26], p.Sequence)

	for i, s := range p.Audio {
		binary.LittleEndian.PutUint32(buf[HeaderSize+i*SampleSize:], math.Float32bits(s))
	}

	return buf, nil
}

// Deserialize decodes a packet from raw datagram bytes.
//
// Inputs shorter than the header or with a wrong magic are rejected.
// The payload is tolerant: trailing bytes that do not form a whole
// float32 are ignored, and a payload shorter than the header's
// channels*samples claim simply yields fewer samples.
func Deserialize(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, ErrTooShort
	}

	p := &Packet{
		Magic:      binary.LittleEndian.Uint32(data[0:4]),
		SampleRate: binary.LittleEndian.Uint32(data[4:8]),
		Channels:   binary.LittleEndian.Uint16(data[8:10]),
		Samples:    binary.LittleEndian.Uint32(data[10:14]),
		Timestamp:  binary.LittleEndian.Uint64(data[14:22]),
		Sequence:   binary.LittleEndian.Uint32(data[22:26]),
	}

	if p.Magic != Magic {
		return nil, ErrBadMagic
	}

	numFloats := (len(data) - HeaderSize) / SampleSize
	if numFloats > 0 {
		p.Audio = make([]float32, numFloats)
		for i := range p.Audio {
			bits := binary.LittleEndian.Uint32(data[HeaderSize+i*SampleSize:])
			p.Audio[i] = math.Float32frombits(bits)
		}
	}

	return p, nil
}

// PackFromChannels fills the packet's audio payload by interleaving
// channel-major input into frame-major wire order, and records the
// format fields. channelData must hold at least channels slices of at
// least samples entries each.
func (p *Packet) PackFromChannels(channelData [][]float32, channels, samples int, sampleRate uint32) {
	p.SampleRate = sampleRate
	p.Channels = uint16(channels)
	p.Samples = uint32(samples)

	need := channels * samples
	if cap(p.Audio) < need {
		p.Audio = make([]float32, need)
	} else {
		p.Audio = p.Audio[:need]
	}

	for s := 0; s < samples; s++ {
		for ch := 0; ch < channels; ch++ {
			p.Audio[s*channels+ch] = channelData[ch][s]
		}
	}
}

// UnpackToChannels deinterleaves the payload into channel-major slices.
// Only whole frames are returned; a short payload truncates.
func (p *Packet) UnpackToChannels() [][]float32 {
	channels := int(p.Channels)
	if channels == 0 {
		return nil
	}

	frames := len(p.Audio) / channels
	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, frames)
		for s := 0; s < frames; s++ {
			out[ch][s] = p.Audio[s*channels+ch]
		}
	}

	return out
}
