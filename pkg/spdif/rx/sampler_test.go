// ABOUTME: Tests for edge interval extraction
// ABOUTME: Covers edges inside a word, across words and long idle gaps
package rx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSamplerIntervals(t *testing.T) {
	tests := []struct {
		name  string
		words []uint32
		want  []uint32
	}{
		{"idle", []uint32{0, 0}, nil},
		{"first edge only starts", []uint32{0xFFFFFFFF}, nil},
		{"runs in one word", []uint32{0b0001_1100_0110}, []uint32{2, 3, 3}},
		{"across words", []uint32{0xFFFF0000, 0x0000FFFF}, []uint32{32}},
		{"long gap", []uint32{1, 0, 0, 0x80000000}, []uint32{1, 126}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Sampler
			var got []uint32
			for _, w := range tt.words {
				got = s.Intervals(w, got)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSamplerMatchesLineRuns(t *testing.T) {
	words := modulate(frames(4))
	var s Sampler
	var got []uint32
	for _, w := range words {
		got = s.Intervals(w, got)
	}
	// Z opens with runs of 3, 1, 1, 3 UI
	assert.Equal(t, []uint32{3, 1, 1, 3}, got[:4])
	for _, n := range got {
		assert.True(t, n >= 1 && n <= 3, "interval %d", n)
	}

	s.Reset()
	assert.Empty(t, s.Intervals(0xFFFFFFFF, nil))
}
