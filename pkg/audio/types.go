// ABOUTME: Audio type definitions shared by the bridge, sources and outputs
// ABOUTME: Samples are int32 in 24-bit range, interleaved by channel
package audio

import "time"

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Format describes an audio stream
type Format struct {
	Codec       string
	SampleRate  int
	Channels    int
	BitDepth    int
	CodecHeader []byte // Opus only
}

// FrameBytes returns the size of one interleaved PCM frame
func (f Format) FrameBytes() int {
	return f.Channels * f.BitDepth / 8
}

// Buffer is a run of interleaved PCM samples
type Buffer struct {
	Timestamp int64 // microseconds since the stream started
	Samples   []int32
	Format    Format
}

// Frames returns the number of multi-channel frames held
func (b Buffer) Frames() int {
	if b.Format.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Format.Channels
}

// Duration returns the playing time of the buffer
func (b Buffer) Duration() time.Duration {
	if b.Format.SampleRate == 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.Format.SampleRate)
}

// Clamp24 saturates a wide value to the 24-bit range
func Clamp24(v int64) int32 {
	if v > Max24Bit {
		return Max24Bit
	}
	if v < Min24Bit {
		return Min24Bit
	}
	return int32(v)
}

// SampleToInt16 converts a 24-bit sample to int16
func SampleToInt16(sample int32) int16 {
	return int16(sample >> 8)
}

// SampleFromInt16 converts an int16 sample to 24-bit range
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleTo24Bit packs a sample little-endian
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit unpacks a little-endian 24-bit sample with sign extension
func SampleFrom24Bit(b [3]byte) int32 {
	return int32(uint32(b[0])<<8|uint32(b[1])<<16|uint32(b[2])<<24) >> 8
}

// FromLeftJustified converts a sample left-justified in 32 bits, as carried
// on the S/PDIF line, to 24-bit range
func FromLeftJustified(sample int32) int32 {
	return sample >> 8
}

// ToLeftJustified converts a 24-bit sample to the left-justified form the
// transmitter takes
func ToLeftJustified(sample int32) int32 {
	return Clamp24(int64(sample)) << 8
}
