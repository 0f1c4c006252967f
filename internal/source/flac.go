// ABOUTME: FLAC file source decoding through mewkiz/flac
// ABOUTME: Buffers leftover frame samples between reads and loops on EOF
package source

import (
	"fmt"
	"io"
	"os"

	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
)

// FLACSource reads from a FLAC file at its native channel count and
// bit depth, normalizing samples to float32 in [-1, 1].
type FLACSource struct {
	file       *os.File
	stream     *flac.Stream
	sampleRate int
	channels   int
	bitDepth   int
	title      string

	// Decoded samples not yet handed out. FLAC frames rarely line up
	// with the caller's block size.
	pending    [][]float32
	pendingPos int
	pendingLen int
}

// NewFLACSource opens and decodes a FLAC file.
func NewFLACSource(path string) (*FLACSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	info := stream.Info
	title := titleFromPath(path)
	logrus.WithFields(logrus.Fields{
		"title":       title,
		"sample_rate": info.SampleRate,
		"channels":    info.NChannels,
		"bit_depth":   info.BitsPerSample,
	}).Info("source: loaded FLAC")

	return &FLACSource{
		file:       f,
		stream:     stream,
		sampleRate: int(info.SampleRate),
		channels:   int(info.NChannels),
		bitDepth:   int(info.BitsPerSample),
		title:      title,
	}, nil
}

func (s *FLACSource) Read(block [][]float32) (int, error) {
	if len(block) < s.channels {
		return 0, fmt.Errorf("need %d channel slices, got %d", s.channels, len(block))
	}
	frames := len(block[0])
	written := 0

	for written < frames {
		if s.pendingPos >= s.pendingLen {
			if err := s.decodeNextFrame(); err != nil {
				return written, err
			}
		}

		n := s.pendingLen - s.pendingPos
		if n > frames-written {
			n = frames - written
		}
		for ch := 0; ch < s.channels; ch++ {
			copy(block[ch][written:written+n], s.pending[ch][s.pendingPos:s.pendingPos+n])
		}
		s.pendingPos += n
		written += n
	}

	return written, nil
}

// decodeNextFrame parses one FLAC frame into the pending buffer,
// rewinding the file and rebuilding the stream at EOF.
func (s *FLACSource) decodeNextFrame() error {
	frame, err := s.stream.ParseNext()
	if err == io.EOF {
		if _, seekErr := s.file.Seek(0, io.SeekStart); seekErr != nil {
			return fmt.Errorf("failed to seek to start: %w", seekErr)
		}
		newStream, decErr := flac.New(s.file)
		if decErr != nil {
			return fmt.Errorf("failed to create new stream: %w", decErr)
		}
		s.stream = newStream
		frame, err = s.stream.ParseNext()
	}
	if err != nil {
		return err
	}

	blockSize := int(frame.BlockSize)
	if s.pending == nil || cap(s.pending[0]) < blockSize {
		s.pending = make([][]float32, s.channels)
		for ch := range s.pending {
			s.pending[ch] = make([]float32, blockSize)
		}
	}

	scale := float32(int32(1) << (s.bitDepth - 1))
	for ch := 0; ch < s.channels; ch++ {
		dst := s.pending[ch][:blockSize]
		src := frame.Subframes[ch].Samples
		for i := 0; i < blockSize; i++ {
			dst[i] = float32(src[i]) / scale
		}
		s.pending[ch] = dst
	}

	s.pendingPos = 0
	s.pendingLen = blockSize
	return nil
}

func (s *FLACSource) SampleRate() int { return s.sampleRate }
func (s *FLACSource) Channels() int   { return s.channels }
func (s *FLACSource) Metadata() (string, string, string) {
	return s.title, "Unknown Artist", "Unknown Album"
}
func (s *FLACSource) Close() error { return s.file.Close() }
