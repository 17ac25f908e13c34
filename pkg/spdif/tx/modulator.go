// ABOUTME: Biphase-mark modulation of subframe slots into line levels
// ABOUTME: A table maps each byte to 16 unit intervals starting from a low line
package tx

import (
	"math/bits"

	"github.com/Resonate-Protocol/spdif-go/pkg/spdif"
)

// bmc holds the 16 UI of eight biphase-mark cells, LSB first, for a line
// resting low. A line resting high takes the complement.
var bmc = func() (t [256]uint16) {
	for b := range t {
		var level, out uint16
		for i := 0; i < 8; i++ {
			level ^= 1
			out |= level << (2 * i)
			if b>>i&1 == 1 {
				level ^= 1
			}
			out |= level << (2*i + 1)
		}
		t[b] = out
	}
	return t
}()

// modulator accumulates line levels and hands them out 32 UI at a time.
type modulator struct {
	level uint32 // line level after the last UI pushed
	acc   uint64
	n     uint
}

func (m *modulator) push(levels uint64, count uint) {
	m.acc |= levels << m.n
	m.n += count
}

// preamble emits the 8 UI sync pattern. It leaves the line where it found it.
func (m *modulator) preamble(p spdif.Preamble) {
	l := uint64(p.Levels())
	if m.level == 1 {
		l ^= 0xFF
	}
	m.push(l, 8)
}

// bits modulates the low n bits of v, LSB first.
func (m *modulator) bits(v uint32, n int) {
	for n > 0 {
		k := n
		if k > 8 {
			k = 8
		}
		width := uint(2 * k)
		mask := uint64(1)<<width - 1
		levels := uint64(bmc[byte(v)]) & mask
		if m.level == 1 {
			levels ^= mask
		}
		m.push(levels, width)

		ones := bits.OnesCount32(v & (uint32(1)<<k - 1))
		m.level ^= uint32(k+ones) & 1
		v >>= 8
		n -= k
	}
}

func (m *modulator) take() uint32 {
	w := uint32(m.acc)
	m.acc >>= 32
	m.n -= 32
	return w
}
