// ABOUTME: Subframe preamble types and their line signatures
// ABOUTME: X and Z open a frame on channel A, Y opens channel B
package spdif

// Preamble identifies the synchronization pattern that opens a subframe.
type Preamble uint8

const (
	PreambleNone Preamble = iota
	PreambleX             // channel A, ordinary frame
	PreambleY             // channel B
	PreambleZ             // channel A, first frame of a block
)

func (p Preamble) String() string {
	switch p {
	case PreambleX:
		return "X"
	case PreambleY:
		return "Y"
	case PreambleZ:
		return "Z"
	default:
		return "none"
	}
}

// Channel returns the subframe index the preamble opens: 0 for X and Z, 1 for Y.
func (p Preamble) Channel() int {
	if p == PreambleY {
		return 1
	}
	return 0
}

// Levels returns the eight UI line levels of the preamble, first UI in bit 0,
// for a line resting low before it. A line resting high sends the complement.
func (p Preamble) Levels() uint8 {
	switch p {
	case PreambleX:
		return 0x47 // 11100010
	case PreambleY:
		return 0x27 // 11100100
	case PreambleZ:
		return 0x17 // 11101000
	default:
		return 0
	}
}

// Tail returns the lengths in UI of the three runs that follow the leading
// 3 UI run of the preamble. All three preambles span 8 UI.
func (p Preamble) Tail() [3]int {
	switch p {
	case PreambleX:
		return [3]int{3, 1, 1}
	case PreambleY:
		return [3]int{2, 1, 2}
	case PreambleZ:
		return [3]int{1, 1, 3}
	default:
		return [3]int{}
	}
}
