// ABOUTME: Pushes a source's frames into a transmitter
// ABOUTME: Converts 24-bit samples to the left-justified form on the line
package source

import (
	"context"
	"errors"
	"io"

	"github.com/Resonate-Protocol/spdif-go/pkg/audio"
)

// PairSink accepts stereo sample pairs; *tx.Transmitter implements it
type PairSink interface {
	OutputSamplePair(ctx context.Context, left, right int32) error
}

// Play writes src to sink until src ends, maxFrames frames are written
// (0 means no limit) or ctx is done. src must be stereo. It returns the
// number of frames written; io.EOF from src is not an error.
func Play(ctx context.Context, sink PairSink, src Source, maxFrames int64) (int64, error) {
	buf := make([]int32, 2*1024)
	var written int64

	for maxFrames == 0 || written < maxFrames {
		n, err := src.Read(buf)
		for i := 0; i+1 < n; i += 2 {
			if maxFrames != 0 && written == maxFrames {
				return written, nil
			}
			if werr := sink.OutputSamplePair(ctx, audio.ToLeftJustified(buf[i]), audio.ToLeftJustified(buf[i+1])); werr != nil {
				return written, werr
			}
			written++
		}
		if errors.Is(err, io.EOF) {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
