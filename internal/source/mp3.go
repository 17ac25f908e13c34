// ABOUTME: MP3 file and HTTP stream sources
// ABOUTME: Decodes with go-mp3, which always yields 16-bit stereo
package source

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/hajimehoshi/go-mp3"

	"github.com/Resonate-Protocol/spdif-go/pkg/audio"
)

// MP3 reads from an MP3 file
type MP3 struct {
	file    *os.File
	decoder *mp3.Decoder
	loop    bool
	title   string
	buf     []byte
}

// NewMP3 opens an MP3 file
func NewMP3(path string, loop bool) (*MP3, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	s := &MP3{file: f, decoder: decoder, loop: loop, title: titleFromPath(path)}
	log.Info("loaded MP3", "title", s.title, "rate", decoder.SampleRate())
	return s, nil
}

func (s *MP3) Read(samples []int32) (int, error) {
	n, err := readPCM16(s.decoder, samples, &s.buf)
	if errors.Is(err, io.EOF) && s.loop {
		if _, seekErr := s.file.Seek(0, io.SeekStart); seekErr != nil {
			return n, fmt.Errorf("failed to seek to start: %w", seekErr)
		}
		decoder, decErr := mp3.NewDecoder(s.file)
		if decErr != nil {
			return n, fmt.Errorf("failed to restart decoder: %w", decErr)
		}
		s.decoder = decoder
		return n, nil
	}
	return n, err
}

func (s *MP3) SampleRate() int { return s.decoder.SampleRate() }
func (s *MP3) Channels() int   { return 2 }
func (s *MP3) Metadata() (string, string, string) {
	return s.title, "", ""
}
func (s *MP3) Close() error { return s.file.Close() }

// HTTPMP3 streams MP3 from an HTTP URL. It never loops.
type HTTPMP3 struct {
	response *http.Response
	decoder  *mp3.Decoder
	url      string
	buf      []byte
}

// NewHTTPMP3 starts streaming url
func NewHTTPMP3(url string) (*HTTPMP3, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch HTTP stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	decoder, err := mp3.NewDecoder(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to decode MP3 stream: %w", err)
	}

	log.Info("streaming MP3", "url", url, "rate", decoder.SampleRate())
	return &HTTPMP3{response: resp, decoder: decoder, url: url}, nil
}

func (s *HTTPMP3) Read(samples []int32) (int, error) {
	return readPCM16(s.decoder, samples, &s.buf)
}

func (s *HTTPMP3) SampleRate() int { return s.decoder.SampleRate() }
func (s *HTTPMP3) Channels() int   { return 2 }
func (s *HTTPMP3) Metadata() (string, string, string) {
	return s.url, "HTTP Stream", ""
}
func (s *HTTPMP3) Close() error { return s.response.Body.Close() }

// readPCM16 reads little-endian 16-bit samples and widens them to 24-bit
func readPCM16(r io.Reader, samples []int32, buf *[]byte) (int, error) {
	need := len(samples) * 2
	if cap(*buf) < need {
		*buf = make([]byte, need)
	}
	b := (*buf)[:need]

	n, err := io.ReadFull(r, b)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	count := n / 2
	for i := 0; i < count; i++ {
		samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(b[i*2:])))
	}
	return count, err
}
