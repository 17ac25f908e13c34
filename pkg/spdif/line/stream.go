// ABOUTME: Capture file replay and recording of line words
// ABOUTME: Files hold little-endian uint32 words, first sample in bit 0
package line

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// StreamInput replays recorded line words. It has a fixed sample clock and
// so offers no Clock.
type StreamInput struct {
	r     io.Reader
	c     io.Closer
	words chan uint32
	done  chan struct{}
	once  sync.Once

	mu  sync.Mutex
	err error
}

// NewStreamInput starts reading words from r.
func NewStreamInput(r io.Reader) *StreamInput {
	s := &StreamInput{
		r:     bufio.NewReader(r),
		words: make(chan uint32, 64),
		done:  make(chan struct{}),
	}
	if c, ok := r.(io.Closer); ok {
		s.c = c
	}
	go s.read()
	return s
}

// OpenStream replays a capture file.
func OpenStream(path string) (*StreamInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	return NewStreamInput(f), nil
}

func (s *StreamInput) read() {
	defer close(s.words)
	var buf [4]byte
	for {
		if _, err := io.ReadFull(s.r, buf[:]); err != nil {
			if !errors.Is(err, io.EOF) {
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
			}
			return
		}
		select {
		case s.words <- binary.LittleEndian.Uint32(buf[:]):
		case <-s.done:
			return
		}
	}
}

func (s *StreamInput) Words() <-chan uint32 { return s.words }

// Err returns the read error that ended the stream, if any. A trailing
// partial word is reported as io.ErrUnexpectedEOF.
func (s *StreamInput) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the replay and closes the underlying reader.
func (s *StreamInput) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		if s.c != nil {
			err = s.c.Close()
		}
	})
	return err
}

// StreamOutput records transmitted words, one sample per unit interval.
type StreamOutput struct {
	mu    sync.Mutex
	w     *bufio.Writer
	c     io.Closer
	words uint64
}

// NewStreamOutput records to w.
func NewStreamOutput(w io.Writer) *StreamOutput {
	s := &StreamOutput{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	return s
}

// CreateStream records to a new capture file.
func CreateStream(path string) (*StreamOutput, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture: %w", err)
	}
	return NewStreamOutput(f), nil
}

// SetDelay is a no-op: a capture starts at the first word.
func (s *StreamOutput) SetDelay(int) error { return nil }

// SetDivider is a no-op: a capture holds one sample per unit interval.
func (s *StreamOutput) SetDivider(int) error { return nil }

func (s *StreamOutput) Write(ctx context.Context, word uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return ErrClosed
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], word)
	if _, err := s.w.Write(buf[:]); err != nil {
		return err
	}
	s.words++
	return nil
}

// Words returns the number of words recorded.
func (s *StreamOutput) Words() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.words
}

// Close flushes the recording and closes the underlying writer.
func (s *StreamOutput) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}
	err := s.w.Flush()
	s.w = nil
	if s.c != nil {
		if cerr := s.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
