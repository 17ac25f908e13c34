// ABOUTME: Line synthesis helpers shared by the receiver tests
// ABOUTME: Modulates subframes to unit intervals and resamples them at a tick rate
package rx

import (
	"github.com/Resonate-Protocol/spdif-go/pkg/spdif"
	"github.com/Resonate-Protocol/spdif-go/pkg/spdif/tx"
)

// sub is a subframe to put on the line. word holds slots 4..31.
type sub struct {
	pre  spdif.Preamble
	word uint32
}

// frames builds n frames of well-formed subframes carrying sampleFor values.
func frames(n int) []sub {
	var out []sub
	for f := 0; f < n; f++ {
		first := spdif.PreambleX
		if f%spdif.FramesPerBlock == 0 {
			first = spdif.PreambleZ
		}
		out = append(out,
			sub{first, spdif.Pack(uint32(sampleFor(f, 0))>>8, 0, 0, 0)},
			sub{spdif.PreambleY, spdif.Pack(uint32(sampleFor(f, 1))>>8, 0, 0, 0)})
	}
	return out
}

// sampleFor is the left-justified sample sent on a channel of frame f. It
// survives 20-bit truncation.
func sampleFor(f, ch int) int32 {
	v := int32(f+1) << 12
	if ch == 1 {
		return -v
	}
	return v
}

// modulate biphase-mark encodes subframes into UI-level words.
func modulate(subs []sub) []uint32 {
	var ui []uint32
	level := uint32(0)
	for _, s := range subs {
		lv := s.pre.Levels()
		for i := 0; i < 8; i++ {
			ui = append(ui, uint32(lv>>i&1)^level)
		}
		for c := 0; c < spdif.PayloadSlots; c++ {
			level ^= 1
			ui = append(ui, level)
			if s.word>>(spdif.SlotAudio+c)&1 == 1 {
				level ^= 1
			}
			ui = append(ui, level)
		}
	}
	return pack(ui)
}

// encode runs frames through the transmit encoder.
func encode(g spdif.Generation, n int) []uint32 {
	enc := tx.NewEncoder(g)
	enc.SetRate(48000)
	var words []uint32
	for f := 0; f < n; f++ {
		w := enc.EncodeFrame(sampleFor(f, 0), sampleFor(f, 1))
		words = append(words, w[:]...)
	}
	return words
}

func pack(levels []uint32) []uint32 {
	out := make([]uint32, 0, len(levels)/32+1)
	var acc uint32
	var n uint
	for _, l := range levels {
		acc |= l << n
		n++
		if n == 32 {
			out = append(out, acc)
			acc, n = 0, 0
		}
	}
	if n > 0 {
		out = append(out, acc)
	}
	return out
}

// oversample samples UI-level words every 1/ticksPerUI UI, starting phase
// ticks in.
func oversample(words []uint32, ticksPerUI, phase float64) []uint32 {
	total := len(words) * 32
	out := make([]uint32, 0, int(float64(total)*ticksPerUI)/32+1)
	var acc uint32
	var n uint
	for k := 0; ; k++ {
		pos := int((float64(k) + phase) / ticksPerUI)
		if pos >= total {
			break
		}
		acc |= (words[pos/32] >> (pos % 32) & 1) << n
		n++
		if n == 32 {
			out = append(out, acc)
			acc, n = 0, 0
		}
	}
	return out
}

// pipeline is the receive chain without the engine goroutine.
type pipeline struct {
	sampler Sampler
	clock   ClockState
	dec     *Decoder
	buf     []uint32
}

func newPipeline(g spdif.Generation, policy ParityPolicy, ticksPerUI float64) *pipeline {
	return &pipeline{
		clock: ClockState{Divider: 1, Unit: uint32(ticksPerUI * 256), Fixed: true},
		dec:   NewDecoder(g, policy),
	}
}

func (p *pipeline) feed(words []uint32) []spdif.Event {
	var events []spdif.Event
	for _, w := range words {
		p.buf = p.sampler.Intervals(w, p.buf[:0])
		for _, n := range p.buf {
			var sym Symbol
			p.clock, sym = Recover(p.clock, n)
			if e, ok := p.dec.Step(sym); ok {
				events = append(events, e)
			}
		}
	}
	return events
}
