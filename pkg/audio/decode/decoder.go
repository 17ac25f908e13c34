// ABOUTME: Decoder interface and codec dispatch
// ABOUTME: Picks the decoder matching a bridge stream's format
package decode

import (
	"fmt"

	"github.com/Resonate-Protocol/spdif-go/pkg/audio"
)

// Decoder decodes one bridge audio chunk to interleaved 24-bit samples
type Decoder interface {
	Decode(data []byte) ([]int32, error)
	Close() error
}

// New returns the decoder for format.Codec
func New(format audio.Format) (Decoder, error) {
	switch format.Codec {
	case "pcm":
		return NewPCM(format)
	case "opus":
		return NewOpus(format)
	default:
		return nil, fmt.Errorf("unsupported codec: %q", format.Codec)
	}
}
