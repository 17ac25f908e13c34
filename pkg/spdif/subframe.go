// ABOUTME: Subframe slot layout, parity fold and the decoded sample event
// ABOUTME: Slots 4..31 carry audio, validity, user, channel status and parity
package spdif

const (
	// SlotsPerSubframe is the number of biphase cells in a subframe.
	SlotsPerSubframe = 32
	// UIPerFrame is the number of unit intervals in a frame (two subframes).
	UIPerFrame = 128
	// FramesPerBlock is the channel-status block length.
	FramesPerBlock = 192
	// PayloadSlots is the number of slots after the preamble.
	PayloadSlots = 28
)

// Slot positions within a subframe word.
const (
	SlotAudio         = 4
	SlotValidity      = 28
	SlotUser          = 29
	SlotChannelStatus = 30
	SlotParity        = 31
)

// Parity folds slots 4..31 of a subframe word. It returns 0 when the slots
// hold an even number of ones.
func Parity(word uint32) uint32 {
	w := word >> SlotAudio
	w ^= w >> 16
	w ^= w >> 8
	w ^= w >> 4
	w ^= w >> 2
	w ^= w >> 1
	return w & 1
}

// Pack places a 24-bit audio value and the status bits in slots 4..31 and
// sets the parity slot so the word has even parity.
func Pack(audio, validity, user, status uint32) uint32 {
	w := (audio&0xFFFFFF)<<SlotAudio |
		(validity&1)<<SlotValidity |
		(user&1)<<SlotUser |
		(status&1)<<SlotChannelStatus
	return w | Parity(w)<<SlotParity
}

// Event is one decoded subframe as handed to the application.
//
// Value holds the 24 audio slots left-justified in bits 31..8, the
// generation's preamble code in bits 7..4 and the V, U, C and P bits in
// bits 3..0.
type Event struct {
	Value       uint32
	Channel     int
	Preamble    Preamble
	ParityError bool

	sampleBits uint8
}

// NewEvent builds the event for a decoded subframe word (slots 4..31).
func NewEvent(g Generation, p Preamble, word uint32, parityError bool) Event {
	audio := (word >> SlotAudio) & 0xFFFFFF
	status := (word >> SlotValidity) & 1 << 3
	status |= (word >> SlotUser) & 1 << 2
	status |= (word >> SlotChannelStatus) & 1 << 1
	status |= (word >> SlotParity) & 1
	return Event{
		Value:       audio<<8 | uint32(g.Code(p)&0xF)<<4 | status,
		Channel:     p.Channel(),
		Preamble:    p,
		ParityError: parityError,
		sampleBits:  uint8(g.SampleBits()),
	}
}

// Sample returns the audio sample left-justified in an int32 with the bits
// below the generation's sample width cleared.
func (e Event) Sample() int32 {
	bits := int(e.sampleBits)
	if bits == 0 {
		bits = 24
	}
	shift := 32 - bits
	return int32(e.Value) >> shift << shift
}

// Validity reports the V bit. A set bit marks the sample unfit for conversion.
func (e Event) Validity() bool { return e.Value&0x8 != 0 }

// User returns the U bit.
func (e Event) User() uint32 { return (e.Value >> 2) & 1 }

// ChannelStatus returns the C bit.
func (e Event) ChannelStatus() uint32 { return (e.Value >> 1) & 1 }

// BlockStart reports whether the subframe opened a channel-status block.
func (e Event) BlockStart() bool { return e.Preamble == PreambleZ }
