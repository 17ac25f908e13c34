// ABOUTME: PCM chunk decoder
// ABOUTME: Decodes little-endian 16-bit and 24-bit PCM to int32 samples
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/Resonate-Protocol/spdif-go/pkg/audio"
)

// PCMDecoder decodes PCM audio
type PCMDecoder struct {
	bitDepth int
	frame    int
}

// NewPCM creates a PCM decoder
func NewPCM(format audio.Format) (Decoder, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", format.Codec)
	}
	if format.BitDepth != 16 && format.BitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24)", format.BitDepth)
	}
	if format.Channels < 1 {
		return nil, fmt.Errorf("invalid channel count: %d", format.Channels)
	}
	return &PCMDecoder{bitDepth: format.BitDepth, frame: format.FrameBytes()}, nil
}

// Decode converts PCM bytes to int32 samples. A trailing partial frame is
// an error since the bridge only sends whole frames.
func (d *PCMDecoder) Decode(data []byte) ([]int32, error) {
	if len(data)%d.frame != 0 {
		return nil, fmt.Errorf("chunk of %d bytes is not a whole number of %d-byte frames", len(data), d.frame)
	}

	if d.bitDepth == 24 {
		samples := make([]int32, len(data)/3)
		for i := range samples {
			samples[i] = audio.SampleFrom24Bit([3]byte{data[i*3], data[i*3+1], data[i*3+2]})
		}
		return samples, nil
	}

	samples := make([]int32, len(data)/2)
	for i := range samples {
		samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(data[i*2:])))
	}
	return samples, nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
