// ABOUTME: Streaming linear resampler for feeding sources into the transmitter
// ABOUTME: Carries the last input frame across chunks so joins are seamless
package resample

import "fmt"

// Resampler performs linear interpolation between two sample rates. It keeps
// its phase and the last input frame between calls, so a source can be fed
// through it chunk by chunk.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	step       float64
	position   float64 // in input frames, relative to prev
	prev       []int32
	primed     bool
}

// New creates a resampler
func New(inputRate, outputRate, channels int) (*Resampler, error) {
	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("invalid rates %d -> %d", inputRate, outputRate)
	}
	if channels < 1 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		step:       float64(inputRate) / float64(outputRate),
		prev:       make([]int32, channels),
	}, nil
}

// Ratio returns output frames per input frame
func (r *Resampler) Ratio() float64 {
	return 1 / r.step
}

// Resample appends the output for the interleaved input to dst. Output
// lags input by one frame: the final input frame is held until the next
// call brings the frame after it.
func (r *Resampler) Resample(dst, input []int32) []int32 {
	ch := r.channels
	frames := len(input) / ch
	if frames == 0 {
		return dst
	}

	start := 0
	if !r.primed {
		copy(r.prev, input[:ch])
		r.primed = true
		start = 1
	}

	for i := start; i < frames; i++ {
		next := input[i*ch : (i+1)*ch]
		for r.position < 1 {
			frac := r.position
			for c := 0; c < ch; c++ {
				v := float64(r.prev[c])*(1-frac) + float64(next[c])*frac
				dst = append(dst, int32(v))
			}
			r.position += r.step
		}
		r.position--
		copy(r.prev, next)
	}
	return dst
}

// Reset drops the held frame and phase
func (r *Resampler) Reset() {
	r.position = 0
	r.primed = false
	for i := range r.prev {
		r.prev[i] = 0
	}
}

// OutputSamplesNeeded estimates the output produced from inputSamples
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	frames := inputSamples / r.channels
	return int(float64(frames)/r.step) * r.channels
}

// InputSamplesNeeded estimates the input needed for outputSamples
func (r *Resampler) InputSamplesNeeded(outputSamples int) int {
	frames := outputSamples / r.channels
	return (int(float64(frames)*r.step) + 1) * r.channels
}
