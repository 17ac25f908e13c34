// ABOUTME: Turns packed line samples into transition intervals
// ABOUTME: Intervals are measured in sample ticks between successive edges
package rx

import (
	"math"
	"math/bits"
)

// Sampler finds level transitions in a stream of sample words and measures
// the ticks between them. The first transition only starts the clock.
type Sampler struct {
	prev uint32 // last sample of the previous word
	tick uint64 // ticks consumed before the current word
	last uint64 // tick of the last transition
	seen bool
}

// Intervals appends the intervals completed by word to dst.
func (s *Sampler) Intervals(word uint32, dst []uint32) []uint32 {
	edges := word ^ (word<<1 | s.prev)
	for edges != 0 {
		i := bits.TrailingZeros32(edges)
		edges &= edges - 1
		at := s.tick + uint64(i)
		if s.seen {
			n := at - s.last
			if n > math.MaxUint32 {
				n = math.MaxUint32
			}
			dst = append(dst, uint32(n))
		}
		s.last = at
		s.seen = true
	}
	s.prev = word >> 31
	s.tick += 32
	return dst
}

// Reset forgets the edge history.
func (s *Sampler) Reset() {
	*s = Sampler{}
}
