// ABOUTME: Adaptive bit-clock recovery as a pure state transition
// ABOUTME: Classifies edge intervals and retunes the sample divider
package rx

import "math"

// Symbol is a classified edge interval.
type Symbol uint8

const (
	Invalid   Symbol = iota
	Half             // 1 UI, half a bit cell
	Cell             // 2 UI, a whole bit cell
	Violation        // 3 UI, only found in preambles
)

// UI returns the interval length in unit intervals, 0 for Invalid.
func (s Symbol) UI() int {
	switch s {
	case Half:
		return 1
	case Cell:
		return 2
	case Violation:
		return 3
	default:
		return 0
	}
}

func (s Symbol) String() string {
	switch s {
	case Half:
		return "half"
	case Cell:
		return "cell"
	case Violation:
		return "violation"
	default:
		return "invalid"
	}
}

// Clock recovery tuning. Units are sample ticks per UI.
const (
	// TargetUnit is the oversampling the divider aims for.
	TargetUnit = 8
	// MinUnit and MaxUnit bound the lock band. Outside it the divider is retargeted.
	MinUnit = 3
	MaxUnit = 20
	// Window is the number of intervals between coarse measurements. It
	// always spans at least one preamble.
	Window = 64
	// Hysteresis is the number of consecutive windows that must agree before
	// the divider or the unit estimate is reset.
	Hysteresis = 2
	// MaxDivider is the largest input divider.
	MaxDivider = 255
	// fineShift sets fine tracking to move 1/16 of the error per interval.
	fineShift = 4
	minUnit   = 64 // a quarter tick in 8.8
	maxUnit   = 1 << 24
	maxWindow = 1 << 16
)

// ClockState is the receiver's view of the line bit clock.
type ClockState struct {
	// Divider divides the reference clock down to the sample clock.
	Divider int
	// Unit is the estimated ticks per UI in 8.8 fixed point.
	Unit uint32
	// Fixed marks a sample clock that cannot be reprogrammed. Only the unit
	// estimate adapts.
	Fixed bool

	// LongRuns counts consecutive windows oversampled beyond MaxUnit.
	LongRuns int
	// ShortRuns counts consecutive windows undersampled below MinUnit.
	ShortRuns int
	// Mismatches counts consecutive windows whose measured unit disagrees
	// with Unit by more than a quarter.
	Mismatches int
	// Retargets counts divider changes.
	Retargets int

	count     int
	windowMax uint32
}

// NewClockState seeds clock recovery from a rough rate estimate. A zero
// divider is derived from the estimate so the unit lands near TargetUnit.
func NewClockState(reference, estimate, divider int) ClockState {
	if estimate <= 0 {
		estimate = 48000
	}
	uiRate := float64(estimate) * 128
	if divider <= 0 {
		divider = int(math.Round(float64(reference) / (uiRate * TargetUnit)))
	}
	divider = clampDivider(divider)
	unit := int64(math.Round(float64(reference) / (float64(divider) * uiRate) * 256))
	return ClockState{Divider: divider, Unit: clampUnit(unit)}
}

// Recover classifies one interval of n ticks and advances the clock
// estimate. It never mutates its input.
func Recover(s ClockState, n uint32) (ClockState, Symbol) {
	sym := classify(n, s.Unit)
	if k := sym.UI(); k > 0 {
		target := int64(n) << 8 / int64(k)
		s.Unit = clampUnit(int64(s.Unit) + (target-int64(s.Unit))/(1<<fineShift))
	}

	if n > s.windowMax {
		s.windowMax = n
	}
	s.count++
	if s.count >= Window {
		s = s.retune()
	}
	return s, sym
}

// classify compares twice the interval against odd multiples of the unit so
// each symbol owns the half-UI either side of its length.
func classify(n, unit uint32) Symbol {
	if n >= 1<<22 {
		return Invalid
	}
	x := n << 9
	switch {
	case x < unit:
		return Invalid
	case x < 3*unit:
		return Half
	case x < 5*unit:
		return Cell
	case x < 7*unit:
		return Violation
	default:
		return Invalid
	}
}

// retune closes a measurement window. The longest interval of a window is a
// preamble's 3 UI run.
func (s ClockState) retune() ClockState {
	longest := s.windowMax
	if longest > maxWindow {
		longest = maxWindow
	}
	measured := longest << 8 / 3
	s.count, s.windowMax = 0, 0
	if measured == 0 {
		return s
	}

	switch {
	case measured > MaxUnit<<8:
		s.LongRuns++
		s.ShortRuns = 0
	case measured < MinUnit<<8:
		s.ShortRuns++
		s.LongRuns = 0
	default:
		s.LongRuns, s.ShortRuns = 0, 0
	}

	if !s.Fixed && (s.LongRuns >= Hysteresis || s.ShortRuns >= Hysteresis) {
		s.LongRuns, s.ShortRuns = 0, 0
		div := (uint64(s.Divider)*uint64(measured) + TargetUnit<<8/2) / (TargetUnit << 8)
		next := clampDivider(int(div))
		if next != s.Divider {
			s.Unit = clampUnit(int64(measured) * int64(s.Divider) / int64(next))
			s.Divider = next
			s.Retargets++
			s.Mismatches = 0
			return s
		}
	}

	diff := int64(measured) - int64(s.Unit)
	if diff < 0 {
		diff = -diff
	}
	if diff*4 > int64(s.Unit) {
		s.Mismatches++
	} else {
		s.Mismatches = 0
	}
	if s.Mismatches >= Hysteresis {
		s.Unit = measured
		s.Mismatches = 0
	}
	return s
}

// Rate returns the sample rate implied by the unit estimate for a sample
// clock of reference/Divider.
func (s ClockState) Rate(reference int) float64 {
	if s.Unit == 0 || s.Divider == 0 {
		return 0
	}
	ticksPerUI := float64(s.Unit) / 256
	return float64(reference) / float64(s.Divider) / ticksPerUI / 128
}

func clampUnit(u int64) uint32 {
	if u < minUnit {
		return minUnit
	}
	if u > maxUnit {
		return maxUnit
	}
	return uint32(u)
}

func clampDivider(d int) int {
	if d < 1 {
		return 1
	}
	if d > MaxDivider {
		return MaxDivider
	}
	return d
}
