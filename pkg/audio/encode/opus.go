// ABOUTME: Opus chunk encoder
// ABOUTME: Encodes 20ms frames of int32 samples to Opus packets
package encode

import (
	"fmt"

	"github.com/Resonate-Protocol/spdif-go/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

const maxPacketSize = 4000

// OpusRates lists the sample rates Opus accepts
var OpusRates = []int{8000, 12000, 16000, 24000, 48000}

// SupportsOpus reports whether rate can be carried as Opus
func SupportsOpus(rate int) bool {
	for _, r := range OpusRates {
		if r == rate {
			return true
		}
	}
	return false
}

// OpusEncoder encodes Opus audio
type OpusEncoder struct {
	encoder   *opus.Encoder
	channels  int
	frameSize int
	pcm       []int16
	packet    []byte
}

// NewOpus creates an Opus encoder producing 20ms packets
func NewOpus(format audio.Format) (Encoder, error) {
	if format.Codec != "opus" {
		return nil, fmt.Errorf("invalid codec for Opus encoder: %s", format.Codec)
	}
	if !SupportsOpus(format.SampleRate) {
		return nil, fmt.Errorf("opus does not support %d Hz", format.SampleRate)
	}

	enc, err := opus.NewEncoder(format.SampleRate, format.Channels, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	frameSize := format.SampleRate / 50
	return &OpusEncoder{
		encoder:   enc,
		channels:  format.Channels,
		frameSize: frameSize,
		pcm:       make([]int16, frameSize*format.Channels),
		packet:    make([]byte, maxPacketSize),
	}, nil
}

// FrameSize returns the samples per channel each Encode call expects
func (e *OpusEncoder) FrameSize() int {
	return e.frameSize
}

// Encode converts exactly one 20ms frame to an Opus packet
func (e *OpusEncoder) Encode(samples []int32) ([]byte, error) {
	if len(samples) != len(e.pcm) {
		return nil, fmt.Errorf("opus frame needs %d samples, got %d", len(e.pcm), len(samples))
	}
	for i, s := range samples {
		e.pcm[i] = audio.SampleToInt16(s)
	}

	n, err := e.encoder.Encode(e.pcm, e.packet)
	if err != nil {
		return nil, fmt.Errorf("opus encode error: %w", err)
	}
	out := make([]byte, n)
	copy(out, e.packet[:n])
	return out, nil
}

// Close releases resources
func (e *OpusEncoder) Close() error {
	return nil
}
