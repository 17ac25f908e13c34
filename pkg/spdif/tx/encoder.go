// ABOUTME: Frame and block sequencing for the transmitter
// ABOUTME: Builds two modulated subframes per sample pair with Z every 192 frames
package tx

import "github.com/Resonate-Protocol/spdif-go/pkg/spdif"

// WordsPerFrame is the number of 32 UI line words in one frame.
const WordsPerFrame = spdif.UIPerFrame / 32

// Encoder turns sample pairs into line words. It is not safe for
// concurrent use.
type Encoder struct {
	gen     spdif.Generation
	mod     modulator
	frame   int
	rate    int
	active  [2]spdif.ChannelStatus
	pending [2]spdif.ChannelStatus
}

// NewEncoder returns an encoder positioned at the start of a block.
func NewEncoder(g spdif.Generation) *Encoder {
	return &Encoder{gen: g}
}

// SetRate updates the channel status sent from the next block on.
func (e *Encoder) SetRate(rate int) {
	bits := e.gen.SampleBits()
	e.rate = rate
	e.pending = [2]spdif.ChannelStatus{
		spdif.ConsumerStatus(rate, bits, 1),
		spdif.ConsumerStatus(rate, bits, 2),
	}
}

// Rate returns the rate last passed to SetRate.
func (e *Encoder) Rate() int { return e.rate }

// Frame returns the position in the block of the next frame.
func (e *Encoder) Frame() int { return e.frame }

// EncodeFrame modulates one frame. Samples are left-justified; bits below
// the generation's sample width are not sent.
func (e *Encoder) EncodeFrame(left, right int32) [WordsPerFrame]uint32 {
	if e.frame == 0 {
		e.active = e.pending
	}
	first := spdif.PreambleX
	if e.frame == 0 {
		first = spdif.PreambleZ
	}

	var out [WordsPerFrame]uint32
	e.subframe(first, left, e.active[0].Bit(e.frame))
	out[0], out[1] = e.mod.take(), e.mod.take()
	e.subframe(spdif.PreambleY, right, e.active[1].Bit(e.frame))
	out[2], out[3] = e.mod.take(), e.mod.take()

	e.frame = (e.frame + 1) % spdif.FramesPerBlock
	return out
}

func (e *Encoder) subframe(p spdif.Preamble, sample int32, status uint32) {
	audio := uint32(sample) >> 8
	if e.gen.SampleBits() < 24 {
		audio &^= 1<<(24-e.gen.SampleBits()) - 1
	}
	w := spdif.Pack(audio, 0, 0, status)
	e.mod.preamble(p)
	e.mod.bits(w>>spdif.SlotAudio, spdif.PayloadSlots)
}
