// ABOUTME: Audio sources feeding the S/PDIF transmitter
// ABOUTME: Opens test tones, MP3 and FLAC files or HTTP MP3 streams by name
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Source provides interleaved PCM samples in 24-bit range
type Source interface {
	// Read fills samples and returns how many were written. It returns
	// io.EOF once a non-looping source is exhausted.
	Read(samples []int32) (int, error)
	SampleRate() int
	Channels() int
	// Metadata returns title, artist, album
	Metadata() (title, artist, album string)
	Close() error
}

// Options tunes how NewSource opens a source
type Options struct {
	// Loop restarts file sources at end of file
	Loop bool
	// ToneRate is the sample rate of generated tones
	ToneRate int
}

// NewSource opens a source by name. An empty name or "tone" gives a
// 440/880 Hz test tone; "tone:<hz>" sets the left frequency and "ramp" a
// counting pattern. Otherwise the
// name is an HTTP(S) MP3 URL or a .mp3/.flac file path.
func NewSource(name string, opts Options) (Source, error) {
	switch {
	case name == "" || name == "tone":
		return NewTone(opts.ToneRate, 440), nil
	case name == "ramp":
		return NewRamp(opts.ToneRate), nil
	case strings.HasPrefix(name, "tone:"):
		hz, err := strconv.ParseFloat(strings.TrimPrefix(name, "tone:"), 64)
		if err != nil || hz <= 0 {
			return nil, fmt.Errorf("invalid tone frequency %q", name)
		}
		return NewTone(opts.ToneRate, hz), nil
	case strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://"):
		return NewHTTPMP3(name)
	}

	if _, err := os.Stat(name); err != nil {
		return nil, fmt.Errorf("audio file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".mp3":
		return NewMP3(name, opts.Loop)
	case ".flac":
		return NewFLAC(name, opts.Loop)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s (supported: .mp3, .flac)", ext)
	}
}

func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
