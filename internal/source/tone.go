// ABOUTME: Test tone generator
// ABOUTME: Left and right carry different pitches so channel swaps are audible
package source

import (
	"math"

	"github.com/Resonate-Protocol/spdif-go/pkg/audio"
)

const defaultToneRate = 48000

// Tone generates a stereo sine, the right channel an octave above the left
type Tone struct {
	index      uint64
	frequency  float64
	sampleRate int
	level      float64
}

// NewTone creates a tone at half scale
func NewTone(sampleRate int, frequency float64) *Tone {
	if sampleRate <= 0 {
		sampleRate = defaultToneRate
	}
	return &Tone{frequency: frequency, sampleRate: sampleRate, level: 0.5}
}

func (s *Tone) Read(samples []int32) (int, error) {
	frames := len(samples) / 2
	for i := 0; i < frames; i++ {
		t := float64(s.index+uint64(i)) / float64(s.sampleRate)
		samples[i*2] = s.sample(s.frequency, t)
		samples[i*2+1] = s.sample(s.frequency*2, t)
	}
	s.index += uint64(frames)
	return frames * 2, nil
}

func (s *Tone) sample(hz, t float64) int32 {
	return int32(math.Sin(2*math.Pi*hz*t) * audio.Max24Bit * s.level)
}

func (s *Tone) SampleRate() int { return s.sampleRate }
func (s *Tone) Channels() int   { return 2 }
func (s *Tone) Metadata() (string, string, string) {
	return "Test Tone", "spdif-tx", ""
}
func (s *Tone) Close() error { return nil }
