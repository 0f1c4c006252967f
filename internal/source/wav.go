// ABOUTME: WAV file source decoding through go-audio/wav
// ABOUTME: Reads interleaved PCM into channel slices and loops on EOF
package source

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"
)

// WAVSource reads from a RIFF/WAVE file.
type WAVSource struct {
	file       *os.File
	decoder    *wav.Decoder
	sampleRate int
	channels   int
	bitDepth   int
	title      string
	buf        *audio.IntBuffer
}

// NewWAVSource opens and validates a WAV file.
func NewWAVSource(path string) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("not a valid WAV file: %s", path)
	}
	if err := decoder.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to locate PCM data: %w", err)
	}

	title := titleFromPath(path)
	logrus.WithFields(logrus.Fields{
		"title":       title,
		"sample_rate": decoder.SampleRate,
		"channels":    decoder.NumChans,
		"bit_depth":   decoder.BitDepth,
	}).Info("source: loaded WAV")

	return &WAVSource{
		file:       f,
		decoder:    decoder,
		sampleRate: int(decoder.SampleRate),
		channels:   int(decoder.NumChans),
		bitDepth:   int(decoder.BitDepth),
		title:      title,
	}, nil
}

func (s *WAVSource) Read(block [][]float32) (int, error) {
	if len(block) < s.channels {
		return 0, fmt.Errorf("need %d channel slices, got %d", s.channels, len(block))
	}
	frames := len(block[0])

	need := frames * s.channels
	if s.buf == nil || cap(s.buf.Data) < need {
		s.buf = &audio.IntBuffer{
			Data: make([]int, need),
			Format: &audio.Format{
				SampleRate:  s.sampleRate,
				NumChannels: s.channels,
			},
		}
	}
	s.buf.Data = s.buf.Data[:need]

	n, err := s.decoder.PCMBuffer(s.buf)
	if err != nil && err != io.EOF {
		return 0, err
	}

	if n == 0 {
		// Loop by rewinding and rebuilding the decoder.
		if _, seekErr := s.file.Seek(0, io.SeekStart); seekErr != nil {
			return 0, fmt.Errorf("failed to seek to start: %w", seekErr)
		}
		s.decoder = wav.NewDecoder(s.file)
		if fwdErr := s.decoder.FwdToPCM(); fwdErr != nil {
			return 0, fmt.Errorf("failed to locate PCM data: %w", fwdErr)
		}
		n, err = s.decoder.PCMBuffer(s.buf)
		if err != nil && err != io.EOF {
			return 0, err
		}
	}

	scale := float32(int64(1) << (s.bitDepth - 1))
	got := n / s.channels
	for i := 0; i < got; i++ {
		for ch := 0; ch < s.channels; ch++ {
			block[ch][i] = float32(s.buf.Data[i*s.channels+ch]) / scale
		}
	}

	return got, nil
}

func (s *WAVSource) SampleRate() int { return s.sampleRate }
func (s *WAVSource) Channels() int   { return s.channels }
func (s *WAVSource) Metadata() (string, string, string) {
	return s.title, "Unknown Artist", "Unknown Album"
}
func (s *WAVSource) Close() error { return s.file.Close() }
