// ABOUTME: Counting test pattern whose samples identify their frame
// ABOUTME: Used to verify a round trip frame by frame
package source

// RampPeriod is the number of frames before the pattern repeats.
const RampPeriod = 1<<19 - 1

// Ramp carries (frame+1)<<4 on the left and its negation on the right, so
// the pattern survives truncation to 20 bits.
type Ramp struct {
	frame      int
	sampleRate int
}

// NewRamp creates a ramp at sampleRate
func NewRamp(sampleRate int) *Ramp {
	if sampleRate <= 0 {
		sampleRate = defaultToneRate
	}
	return &Ramp{sampleRate: sampleRate}
}

func (s *Ramp) Read(samples []int32) (int, error) {
	n := len(samples) / 2 * 2
	for i := 0; i < n; i += 2 {
		samples[i], samples[i+1] = RampSample(s.frame, 0), RampSample(s.frame, 1)
		s.frame = (s.frame + 1) % RampPeriod
	}
	return n, nil
}

func (s *Ramp) SampleRate() int { return s.sampleRate }
func (s *Ramp) Channels() int   { return 2 }
func (s *Ramp) Metadata() (string, string, string) {
	return "Ramp", "spdif-go", "Test Signals"
}
func (s *Ramp) Close() error { return nil }

// RampSample is the 24-bit sample a Ramp produces on channel ch of frame.
func RampSample(frame, ch int) int32 {
	v := int32(frame%RampPeriod+1) << 4
	if ch == 1 {
		return -v
	}
	return v
}

// RampFrame recovers the frame index from a 24-bit ramp sample. ok is false
// when the value cannot have come from channel ch.
func RampFrame(sample int32, ch int) (int, bool) {
	if ch == 1 {
		sample = -sample
	}
	if sample <= 0 || sample&0xf != 0 {
		return 0, false
	}
	return int(sample>>4) - 1, true
}
