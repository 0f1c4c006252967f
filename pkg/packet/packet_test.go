// ABOUTME: Tests for the audio packet wire format
// ABOUTME: Covers round-trips, rejection cases, and payload tolerance
package packet

import (
	"encoding/binary"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderLayout(t *testing.T) {
	p := New()
	p.SampleRate = 48000
	p.Channels = 2
	p.Samples = 4
	p.Timestamp = 123456789
	p.Sequence = 42
	p.Audio = make([]float32, 8)

	data, err := p.Serialize()
	require.NoError(t, err)
	require.Len(t, data, HeaderSize+8*SampleSize)

	assert.Equal(t, uint32(Magic), binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(t, uint32(48000), binary.LittleEndian.Uint32(data[4:8]))
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(data[8:10]))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(data[10:14]))
	assert.Equal(t, uint64(123456789), binary.LittleEndian.Uint64(data[14:22]))
	assert.Equal(t, uint32(42), binary.LittleEndian.Uint32(data[22:26]))
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for channels := 1; channels <= 8; channels++ {
		for _, samples := range []int{0, 1, 7, 128, 441, 480, 4096} {
			p := New()
			p.SampleRate = 44100
			p.Channels = uint16(channels)
			p.Samples = uint32(samples)
			p.Timestamp = rng.Uint64()
			p.Sequence = rng.Uint32()
			p.Audio = make([]float32, channels*samples)
			for i := range p.Audio {
				p.Audio[i] = rng.Float32()*2 - 1
			}

			data, err := p.Serialize()
			require.NoError(t, err)
			require.Len(t, data, p.TotalSize())

			got, err := Deserialize(data)
			require.NoError(t, err)
			assert.Equal(t, p.SampleRate, got.SampleRate)
			assert.Equal(t, p.Channels, got.Channels)
			assert.Equal(t, p.Samples, got.Samples)
			assert.Equal(t, p.Timestamp, got.Timestamp)
			assert.Equal(t, p.Sequence, got.Sequence)
			if samples > 0 {
				assert.Equal(t, p.Audio, got.Audio)
			} else {
				assert.Empty(t, got.Audio)
			}
		}
	}
}

func TestRoundTripSpecialFloats(t *testing.T) {
	p := New()
	p.Channels = 1
	p.Samples = 5
	p.Audio = []float32{0, float32(math.Inf(1)), float32(math.Inf(-1)), math.MaxFloat32, -1e-38}

	data, err := p.Serialize()
	require.NoError(t, err)

	got, err := Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, p.Audio, got.Audio)
}

func TestDeserializeTooShort(t *testing.T) {
	for _, n := range []int{0, 1, 10, HeaderSize - 1} {
		_, err := Deserialize(make([]byte, n))
		assert.ErrorIs(t, err, ErrTooShort, "length %d", n)
	}
}

func TestDeserializeBadMagic(t *testing.T) {
	p := New()
	p.Channels = 1
	p.Samples = 1
	p.Audio = []float32{0.5}

	data, err := p.Serialize()
	require.NoError(t, err)

	binary.LittleEndian.PutUint32(data[0:4], 0xDEADBEEF)
	_, err = Deserialize(data)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestDeserializeTolerantPayload(t *testing.T) {
	p := New()
	p.Channels = 2
	p.Samples = 4
	p.Audio = make([]float32, 8)
	for i := range p.Audio {
		p.Audio[i] = float32(i)
	}

	data, err := p.Serialize()
	require.NoError(t, err)

	// Trailing garbage that is not a whole float is ignored.
	got, err := Deserialize(append(data, 0xAA, 0xBB, 0xCC))
	require.NoError(t, err)
	assert.Len(t, got.Audio, 8)

	// A short payload yields fewer samples than the header claims.
	got, err = Deserialize(data[:HeaderSize+5*SampleSize])
	require.NoError(t, err)
	assert.Len(t, got.Audio, 5)
	assert.Equal(t, uint32(4), got.Samples)
}

func TestPackFromChannelsInterleaves(t *testing.T) {
	left := []float32{1, 2, 3}
	right := []float32{10, 20, 30}

	p := New()
	p.PackFromChannels([][]float32{left, right}, 2, 3, 48000)

	assert.Equal(t, uint32(48000), p.SampleRate)
	assert.Equal(t, uint16(2), p.Channels)
	assert.Equal(t, uint32(3), p.Samples)
	assert.Equal(t, []float32{1, 10, 2, 20, 3, 30}, p.Audio)
}

func TestPackFromChannelsReusesStorage(t *testing.T) {
	p := New()
	p.Audio = make([]float32, 0, 16)
	backing := &p.Audio[:1][0]

	p.PackFromChannels([][]float32{{1, 2}, {3, 4}}, 2, 2, 44100)
	assert.Same(t, backing, &p.Audio[0])
}

func TestUnpackToChannels(t *testing.T) {
	p := New()
	p.PackFromChannels([][]float32{{1, 2, 3}, {4, 5, 6}}, 2, 3, 44100)

	chans := p.UnpackToChannels()
	require.Len(t, chans, 2)
	assert.Equal(t, []float32{1, 2, 3}, chans[0])
	assert.Equal(t, []float32{4, 5, 6}, chans[1])

	// Partial frames are dropped.
	p.Audio = p.Audio[:5]
	chans = p.UnpackToChannels()
	require.Len(t, chans, 2)
	assert.Len(t, chans[0], 2)
}

func TestTotalSize(t *testing.T) {
	p := New()
	assert.Equal(t, HeaderSize, p.TotalSize())

	p.Audio = make([]float32, 960*2)
	assert.Equal(t, HeaderSize+960*2*4, p.TotalSize())
}
