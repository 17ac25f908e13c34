// ABOUTME: FLAC file source
// ABOUTME: Decodes frames with mewkiz/flac and scales them to 24-bit
package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
)

// FLAC reads from a FLAC file
type FLAC struct {
	file       *os.File
	stream     *flac.Stream
	loop       bool
	sampleRate int
	channels   int
	bitDepth   int
	title      string

	pending *frame.Frame
	offset  int // next sample index within pending
}

// NewFLAC opens a FLAC file
func NewFLAC(path string, loop bool) (*FLAC, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open FLAC file: %w", err)
	}

	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}

	s := &FLAC{
		file:       f,
		stream:     stream,
		loop:       loop,
		sampleRate: int(stream.Info.SampleRate),
		channels:   int(stream.Info.NChannels),
		bitDepth:   int(stream.Info.BitsPerSample),
		title:      titleFromPath(path),
	}
	log.Info("loaded FLAC", "title", s.title, "rate", s.sampleRate, "channels", s.channels, "bits", s.bitDepth)
	return s, nil
}

// Read fills samples from decoded frames, keeping any remainder of a frame
// for the next call.
func (s *FLAC) Read(samples []int32) (int, error) {
	n := 0
	for n+s.channels <= len(samples) {
		if s.pending == nil || s.offset >= int(s.pending.BlockSize) {
			fr, err := s.stream.ParseNext()
			if errors.Is(err, io.EOF) {
				if !s.loop {
					return n, io.EOF
				}
				if err := s.rewind(); err != nil {
					return n, err
				}
				continue
			}
			if err != nil {
				return n, fmt.Errorf("flac frame: %w", err)
			}
			s.pending, s.offset = fr, 0
		}

		for ; s.offset < int(s.pending.BlockSize) && n+s.channels <= len(samples); s.offset++ {
			for ch := 0; ch < s.channels; ch++ {
				samples[n] = ScaleTo24(s.pending.Subframes[ch].Samples[s.offset], s.bitDepth)
				n++
			}
		}
	}
	return n, nil
}

func (s *FLAC) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	stream, err := flac.New(s.file)
	if err != nil {
		return fmt.Errorf("failed to restart stream: %w", err)
	}
	s.stream = stream
	s.pending = nil
	return nil
}

// ScaleTo24 moves a sample of the given bit depth into 24-bit range
func ScaleTo24(sample int32, bitDepth int) int32 {
	switch {
	case bitDepth == 24:
		return sample
	case bitDepth < 24:
		return sample << (24 - bitDepth)
	default:
		return sample >> (bitDepth - 24)
	}
}

func (s *FLAC) SampleRate() int { return s.sampleRate }
func (s *FLAC) Channels() int   { return s.channels }
func (s *FLAC) Metadata() (string, string, string) {
	return s.title, "", ""
}
func (s *FLAC) Close() error { return s.file.Close() }
