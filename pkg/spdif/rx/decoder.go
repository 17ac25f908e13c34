// ABOUTME: Frame and subframe synchronization over classified edge intervals
// ABOUTME: Finds preambles, decodes biphase-mark data and checks parity and alternation
package rx

import "github.com/Resonate-Protocol/spdif-go/pkg/spdif"

// ParityPolicy decides what happens to a subframe that fails its parity check.
type ParityPolicy uint8

const (
	// ParityFlag delivers the subframe with Event.ParityError set.
	ParityFlag ParityPolicy = iota
	// ParityDrop suppresses the subframe.
	ParityDrop
)

func (p ParityPolicy) String() string {
	if p == ParityDrop {
		return "drop"
	}
	return "flag"
}

// ParseParityPolicy maps a configuration string to a ParityPolicy.
func ParseParityPolicy(s string) (ParityPolicy, bool) {
	switch s {
	case "", "flag":
		return ParityFlag, true
	case "drop":
		return ParityDrop, true
	default:
		return ParityFlag, false
	}
}

// LockThreshold is the number of clean subframes after which a decoder
// reports lock.
const LockThreshold = 16

// Counters tallies decoder anomalies. None of them stop decoding.
type Counters struct {
	Subframes     uint64 // subframes fully decoded
	SyncLosses    uint64 // lost subframe alignment after a good preamble
	ParityErrors  uint64
	ChannelErrors uint64 // preamble broke X/Z then Y alternation
	BlockErrors   uint64 // Z missing or out of place
	Dropped       uint64 // decoded but not delivered
}

type decodeState uint8

const (
	stateHunt decodeState = iota
	statePreamble
	stateData
	stateBoundary
)

// Decoder turns classified intervals into subframes.
type Decoder struct {
	gen    spdif.Generation
	policy ParityPolicy

	state decodeState
	tail  [3]int
	nt    int
	pre   spdif.Preamble
	word  uint32
	nbits int
	half  bool

	synced     bool
	expect     int // channel of the next subframe, -1 when unknown
	frame      int // frame in block, -1 until a Z is seen
	dropUntilZ bool
	drop       bool
	clean      int
	locked     bool

	counters Counters
}

// NewDecoder returns a decoder hunting for its first preamble.
func NewDecoder(g spdif.Generation, policy ParityPolicy) *Decoder {
	return &Decoder{gen: g, policy: policy, expect: -1, frame: -1}
}

// Counters returns the anomaly tallies so far.
func (d *Decoder) Counters() Counters { return d.counters }

// Locked reports whether the last LockThreshold subframes decoded cleanly.
func (d *Decoder) Locked() bool { return d.locked }

// Frame returns the position in the current block, or -1 before a Z.
func (d *Decoder) Frame() int { return d.frame }

// Step consumes one symbol. It returns an event when the symbol completes a
// subframe that is to be delivered.
func (d *Decoder) Step(sym Symbol) (spdif.Event, bool) {
	if sym == Invalid {
		d.lose()
		return spdif.Event{}, false
	}

	switch d.state {
	case stateHunt:
		if sym == Violation {
			d.beginPreamble()
		}

	case stateBoundary:
		if sym == Violation {
			d.beginPreamble()
		} else {
			d.lose()
		}

	case statePreamble:
		d.tail[d.nt] = sym.UI()
		d.nt++
		if d.nt == len(d.tail) {
			d.endPreamble()
		}

	case stateData:
		switch sym {
		case Violation:
			d.lose()
			d.beginPreamble()
		case Cell:
			if d.half {
				d.lose()
				return spdif.Event{}, false
			}
			return d.shift(0)
		case Half:
			if !d.half {
				d.half = true
				return spdif.Event{}, false
			}
			d.half = false
			return d.shift(1)
		}
	}
	return spdif.Event{}, false
}

func (d *Decoder) beginPreamble() {
	d.state = statePreamble
	d.nt = 0
}

func (d *Decoder) endPreamble() {
	p := d.gen.Classify(d.gen.Nibble(d.tail))
	if p == spdif.PreambleNone || d.tail != p.Tail() {
		d.lose()
		return
	}
	d.synced = true
	d.pre = p
	d.state = stateData
	d.word, d.nbits, d.half = 0, 0, false

	ch := p.Channel()
	if d.expect >= 0 && ch != d.expect {
		d.counters.ChannelErrors++
		d.clean = 0
		d.locked = false
		if p != spdif.PreambleZ {
			d.dropUntilZ = true
		}
	}
	d.expect = 1 - ch

	switch p {
	case spdif.PreambleZ:
		if d.frame >= 0 && d.frame != spdif.FramesPerBlock-1 {
			d.counters.BlockErrors++
		}
		d.frame = 0
		d.dropUntilZ = false
	case spdif.PreambleX:
		if d.frame >= 0 {
			d.frame++
			if d.frame >= spdif.FramesPerBlock {
				d.counters.BlockErrors++
				d.frame = -1
			}
		}
	}
	d.drop = d.dropUntilZ
}

func (d *Decoder) shift(bit uint32) (spdif.Event, bool) {
	d.word |= bit << (spdif.SlotAudio + d.nbits)
	d.nbits++
	if d.nbits < spdif.PayloadSlots {
		return spdif.Event{}, false
	}

	d.state = stateBoundary
	d.counters.Subframes++
	parityError := spdif.Parity(d.word) != 0
	if parityError {
		d.counters.ParityErrors++
		d.clean = 0
		d.locked = false
	} else {
		d.clean++
		if d.clean >= LockThreshold {
			d.locked = true
		}
	}

	if d.drop || (parityError && d.policy == ParityDrop) {
		d.counters.Dropped++
		return spdif.Event{}, false
	}
	return spdif.NewEvent(d.gen, d.pre, d.word, parityError), true
}

func (d *Decoder) lose() {
	if d.synced {
		d.counters.SyncLosses++
	}
	d.synced = false
	d.state = stateHunt
	d.expect = -1
	d.frame = -1
	d.clean = 0
	d.locked = false
}
