// ABOUTME: Encoder interface and codec dispatch
// ABOUTME: Picks the encoder for the stream format a bridge client asked for
package encode

import (
	"fmt"

	"github.com/Resonate-Protocol/spdif-go/pkg/audio"
)

// Encoder encodes interleaved 24-bit samples to wire format
type Encoder interface {
	Encode(samples []int32) ([]byte, error)
	Close() error
}

// New returns the encoder for format.Codec
func New(format audio.Format) (Encoder, error) {
	switch format.Codec {
	case "pcm":
		return NewPCM(format)
	case "opus":
		return NewOpus(format)
	default:
		return nil, fmt.Errorf("unsupported codec: %q", format.Codec)
	}
}
