// ABOUTME: Audio source abstraction feeding the streaming pipeline
// ABOUTME: Decodes MP3, FLAC, and WAV files or generates a test tone
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Source provides blocks of PCM audio as float32 samples in [-1, 1].
type Source interface {
	// Read fills block (one slice per channel, all the same length)
	// and returns the number of frames written. A source that loops
	// never returns io.EOF; finite sources return io.EOF once drained.
	Read(block [][]float32) (int, error)
	// SampleRate returns the sample rate of the audio.
	SampleRate() int
	// Channels returns the number of channels.
	Channels() int
	// Metadata returns title, artist, album.
	Metadata() (title, artist, album string)
	// Close releases the underlying file or decoder.
	Close() error
}

// New creates a source from a file path. An empty path returns a test
// tone generator. The format is chosen by file extension.
func New(path string) (Source, error) {
	if path == "" {
		return NewToneSource(48000, 2), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("audio file not found: %s", path)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mp3":
		return NewMP3Source(path)
	case ".flac":
		return NewFLACSource(path)
	case ".wav":
		return NewWAVSource(path)
	default:
		return nil, fmt.Errorf("%w: %s (supported: .mp3, .flac, .wav)", ErrUnsupportedFormat, ext)
	}
}

// titleFromPath derives a display title from the file name.
func titleFromPath(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
