// ABOUTME: Tests for the streaming resampler
// ABOUTME: Checks ratios, chunk continuity and interpolation
package resample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNewRejectsBadArguments(t *testing.T) {
	_, err := New(0, 48000, 2)
	assert.Error(t, err)
	_, err = New(44100, 48000, 0)
	assert.Error(t, err)
}

func TestIdentity(t *testing.T) {
	r, err := New(48000, 48000, 2)
	require.NoError(t, err)

	in := []int32{1, -1, 2, -2, 3, -3, 4, -4}
	out := r.Resample(nil, in)
	// last frame is held back
	assert.Equal(t, in[:6], out)
	out = r.Resample(nil, []int32{5, -5})
	assert.Equal(t, []int32{4, -4}, out)
}

func TestUpsampleInterpolates(t *testing.T) {
	r, err := New(24000, 48000, 1)
	require.NoError(t, err)

	out := r.Resample(nil, []int32{0, 100, 200})
	assert.Equal(t, []int32{0, 50, 100, 150}, out)
}

func TestDownsample(t *testing.T) {
	r, err := New(96000, 48000, 1)
	require.NoError(t, err)

	out := r.Resample(nil, []int32{0, 1, 2, 3, 4, 5, 6})
	assert.Equal(t, []int32{0, 2, 4}, out)
}

func TestChunkingDoesNotChangeOutput(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := rapid.SliceOfN(rapid.Int32Range(-1<<23, 1<<23-1), 2, 400).Draw(t, "input")
		split := rapid.IntRange(0, len(in)).Draw(t, "split")
		rates := []int{11025, 22050, 44100, 48000, 96000, 192000}
		from := rapid.SampledFrom(rates).Draw(t, "from")
		to := rapid.SampledFrom(rates).Draw(t, "to")

		whole, _ := New(from, to, 1)
		parts, _ := New(from, to, 1)

		want := whole.Resample(nil, in)
		got := parts.Resample(nil, in[:split])
		got = parts.Resample(got, in[split:])
		if len(want) != len(got) {
			t.Fatalf("length %d vs %d", len(want), len(got))
		}
		for i := range want {
			if want[i] != got[i] {
				t.Fatalf("sample %d: %d vs %d", i, want[i], got[i])
			}
		}
	})
}

func TestOutputSamplesNeeded(t *testing.T) {
	r, err := New(44100, 88200, 2)
	require.NoError(t, err)
	assert.Equal(t, 2000, r.OutputSamplesNeeded(1000))
	assert.InDelta(t, 2.0, r.Ratio(), 1e-9)
}
