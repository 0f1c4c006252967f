// ABOUTME: MP3 file source decoding through hajimehoshi/go-mp3
// ABOUTME: Loops back to the start of the file on EOF
package source

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/sirupsen/logrus"
)

// MP3Source reads from an MP3 file. The decoder always outputs stereo
// 16-bit PCM regardless of the encoded channel layout.
type MP3Source struct {
	file       *os.File
	decoder    *mp3.Decoder
	sampleRate int
	title      string
	buf        []byte
}

// NewMP3Source opens and decodes an MP3 file.
func NewMP3Source(path string) (*MP3Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	title := titleFromPath(path)
	logrus.WithFields(logrus.Fields{
		"title":       title,
		"sample_rate": decoder.SampleRate(),
	}).Info("source: loaded MP3")

	return &MP3Source{
		file:       f,
		decoder:    decoder,
		sampleRate: decoder.SampleRate(),
		title:      title,
	}, nil
}

func (s *MP3Source) Read(block [][]float32) (int, error) {
	if len(block) < 2 {
		return 0, fmt.Errorf("MP3 output is stereo, need 2 channel slices, got %d", len(block))
	}
	frames := len(block[0])

	// int16 stereo: 4 bytes per frame.
	need := frames * 4
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]

	n, err := s.decoder.Read(buf)
	if err != nil && err != io.EOF {
		return 0, err
	}

	got := n / 4
	for i := 0; i < got; i++ {
		l := int16(binary.LittleEndian.Uint16(buf[i*4:]))
		r := int16(binary.LittleEndian.Uint16(buf[i*4+2:]))
		block[0][i] = float32(l) / 32768.0
		block[1][i] = float32(r) / 32768.0
	}

	if err == io.EOF {
		// Loop the audio by rewinding and rebuilding the decoder.
		if _, seekErr := s.file.Seek(0, io.SeekStart); seekErr != nil {
			return got, fmt.Errorf("failed to seek to start: %w", seekErr)
		}
		newDecoder, decErr := mp3.NewDecoder(s.file)
		if decErr != nil {
			return got, fmt.Errorf("failed to create new decoder: %w", decErr)
		}
		s.decoder = newDecoder
	}

	return got, nil
}

func (s *MP3Source) SampleRate() int { return s.sampleRate }
func (s *MP3Source) Channels() int   { return 2 }
func (s *MP3Source) Metadata() (string, string, string) {
	return s.title, "Unknown Artist", "Unknown Album"
}
func (s *MP3Source) Close() error { return s.file.Close() }
