// ABOUTME: Tests for the SPSC sample ring
// ABOUTME: Covers wrap-around, counters, channel mismatches, and concurrent integrity
package ringbuf

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func block(channels, n int, fill func(ch, i int) float32) [][]float32 {
	b := make([][]float32, channels)
	for ch := range b {
		b[ch] = make([]float32, n)
		for i := range b[ch] {
			b[ch][i] = fill(ch, i)
		}
	}
	return b
}

func TestPushPopOrder(t *testing.T) {
	r := New()
	r.Prepare(2, 64)

	src := block(2, 10, func(ch, i int) float32 { return float32(ch*100 + i) })
	require.True(t, r.Push(src))
	assert.Equal(t, 10, r.Ready())
	assert.Equal(t, 54, r.Free())

	dst := block(2, 10, func(ch, i int) float32 { return -1 })
	require.True(t, r.Pop(dst, 10))
	assert.Equal(t, src, dst)
	assert.Equal(t, 0, r.Ready())
}

func TestWrapAround(t *testing.T) {
	r := New()
	r.Prepare(1, 16)

	dst := block(1, 12, func(ch, i int) float32 { return 0 })
	next := float32(0)

	// Repeated 12-sample cycles force the indices across the boundary.
	for cycle := 0; cycle < 10; cycle++ {
		src := block(1, 12, func(ch, i int) float32 { return next + float32(i) })
		require.True(t, r.Push(src), "cycle %d", cycle)
		require.True(t, r.Pop(dst, 12), "cycle %d", cycle)
		assert.Equal(t, src[0], dst[0], "cycle %d", cycle)
		next += 12
	}
}

func TestOverrun(t *testing.T) {
	r := New()
	r.Prepare(1, 8)

	require.True(t, r.Push(block(1, 8, func(ch, i int) float32 { return float32(i) })))
	assert.False(t, r.Push(block(1, 1, func(ch, i int) float32 { return 99 })))
	assert.Equal(t, uint64(1), r.Overruns())
	assert.Equal(t, 8, r.Ready())

	// The rejected push left the contents untouched.
	dst := block(1, 8, func(ch, i int) float32 { return -1 })
	require.True(t, r.Pop(dst, 8))
	assert.Equal(t, float32(0), dst[0][0])
	assert.Equal(t, float32(7), dst[0][7])
}

func TestUnderrun(t *testing.T) {
	r := New()
	r.Prepare(1, 8)

	require.True(t, r.Push(block(1, 3, func(ch, i int) float32 { return float32(i) })))

	dst := block(1, 5, func(ch, i int) float32 { return -1 })
	assert.False(t, r.Pop(dst, 5))
	assert.Equal(t, uint64(1), r.Underruns())
	assert.Equal(t, 3, r.Ready())
}

func TestChannelMismatch(t *testing.T) {
	r := New()
	r.Prepare(2, 32)

	// Mono push fills channel 0 and leaves channel 1 at its prior (zeroed) contents.
	require.True(t, r.Push(block(1, 4, func(ch, i int) float32 { return 1 })))

	dst := block(2, 4, func(ch, i int) float32 { return -1 })
	require.True(t, r.Pop(dst, 4))
	assert.Equal(t, []float32{1, 1, 1, 1}, dst[0])
	assert.Equal(t, []float32{0, 0, 0, 0}, dst[1])

	// Popping into fewer channels drops the high-index channel.
	require.True(t, r.Push(block(2, 4, func(ch, i int) float32 { return float32(ch) })))
	mono := block(1, 4, func(ch, i int) float32 { return -1 })
	require.True(t, r.Pop(mono, 4))
	assert.Equal(t, []float32{0, 0, 0, 0}, mono[0])
	assert.Equal(t, 0, r.Ready())
}

func TestReset(t *testing.T) {
	r := New()
	r.Prepare(1, 8)

	r.Push(block(1, 8, func(ch, i int) float32 { return 1 }))
	r.Push(block(1, 1, func(ch, i int) float32 { return 1 })) // overrun
	r.Reset()

	assert.Equal(t, 0, r.Ready())
	assert.Equal(t, 8, r.Free())
	assert.Equal(t, uint64(0), r.Overruns())
	assert.Equal(t, uint64(0), r.Underruns())
}

func TestPushPopNoAlloc(t *testing.T) {
	r := New()
	r.Prepare(2, 4096)

	src := block(2, 256, func(ch, i int) float32 { return float32(i) })
	dst := block(2, 256, func(ch, i int) float32 { return 0 })

	allocs := testing.AllocsPerRun(100, func() {
		r.Push(src)
		r.Pop(dst, 256)
	})
	assert.Zero(t, allocs)
}

// TestConcurrentIntegrity drives one producer and one consumer with
// random block sizes and verifies the consumer reads exactly the
// sequence the producer wrote, minus overrun-dropped blocks.
func TestConcurrentIntegrity(t *testing.T) {
	r := New()
	r.Prepare(1, 1024)

	const total = 200000
	written := make(chan []float32, 1)

	go func() {
		rng := rand.New(rand.NewSource(7))
		var accepted []float32
		next := float32(0)
		for int(next) < total {
			n := 1 + rng.Intn(256)
			src := make([][]float32, 1)
			src[0] = make([]float32, n)
			for i := range src[0] {
				src[0][i] = next + float32(i)
			}
			if r.Push(src) {
				accepted = append(accepted, src[0]...)
				next += float32(n)
			}
			// On overrun, retry the same block so the value sequence
			// stays contiguous for verification.
		}
		written <- accepted
	}()

	rng := rand.New(rand.NewSource(11))
	var got []float32
	dst := block(1, 512, func(ch, i int) float32 { return 0 })
	for len(got) < total {
		n := 1 + rng.Intn(512)
		if r.Pop(dst, n) {
			got = append(got, dst[0][:n]...)
		}
	}

	accepted := <-written
	require.GreaterOrEqual(t, len(accepted), total)
	for i, v := range got {
		if v != accepted[i] {
			t.Fatalf("sample %d torn or reordered: got %v want %v", i, v, accepted[i])
		}
	}
}
