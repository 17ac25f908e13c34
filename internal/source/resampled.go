// ABOUTME: Resampling wrapper converting any source to the line rate
// ABOUTME: Also folds mono sources to stereo for the two S/PDIF channels
package source

import (
	"errors"
	"io"

	"github.com/Resonate-Protocol/spdif-go/pkg/audio/resample"
)

// Resampled presents a source at a target rate in stereo
type Resampled struct {
	source     Source
	resampler  *resample.Resampler
	targetRate int
	channels   int
	input      []int32
	pending    []int32
	eof        bool
}

// NewResampled wraps src. Sources already at targetRate pass through the
// resampler unchanged apart from a one frame delay.
func NewResampled(src Source, targetRate int) (*Resampled, error) {
	r, err := resample.New(src.SampleRate(), targetRate, src.Channels())
	if err != nil {
		return nil, err
	}
	return &Resampled{
		source:     src,
		resampler:  r,
		targetRate: targetRate,
		channels:   src.Channels(),
		input:      make([]int32, src.SampleRate()*src.Channels()/50),
	}, nil
}

// Read fills samples with stereo frames at the target rate
func (r *Resampled) Read(samples []int32) (int, error) {
	frames := len(samples) / 2
	for len(r.pending)/r.channels < frames && !r.eof {
		n, err := r.source.Read(r.input)
		r.pending = r.resampler.Resample(r.pending, r.input[:n])
		if errors.Is(err, io.EOF) {
			r.eof = true
		} else if err != nil {
			return 0, err
		}
	}

	avail := min(frames, len(r.pending)/r.channels)
	for i := 0; i < avail; i++ {
		src := r.pending[i*r.channels : (i+1)*r.channels]
		left := src[0]
		right := left
		if r.channels > 1 {
			right = src[1]
		}
		samples[i*2] = left
		samples[i*2+1] = right
	}
	r.pending = append(r.pending[:0], r.pending[avail*r.channels:]...)

	if avail == 0 && r.eof {
		return 0, io.EOF
	}
	return avail * 2, nil
}

func (r *Resampled) SampleRate() int { return r.targetRate }
func (r *Resampled) Channels() int   { return 2 }
func (r *Resampled) Metadata() (string, string, string) {
	return r.source.Metadata()
}
func (r *Resampled) Close() error { return r.source.Close() }
