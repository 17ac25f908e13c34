// ABOUTME: Audio output interface definition
// ABOUTME: Playback backends used to monitor received S/PDIF audio
package output

// Output represents an audio output device
type Output interface {
	// Open initializes the device for interleaved 24-bit samples
	Open(sampleRate, channels int) error

	// Write plays samples, blocking until the device accepts them
	Write(samples []int32) error

	Close() error
}
