// ABOUTME: Audio fundamentals shared across the S/PDIF tools
// ABOUTME: Defines Format, Buffer and sample conversions
// Package audio provides the PCM types used around the S/PDIF engines.
//
// Samples are int32 values in 24-bit range, interleaved by channel. The
// engines themselves work with left-justified 32-bit samples; use
// FromLeftJustified and ToLeftJustified at that boundary.
//
//	buf := audio.Buffer{
//	    Format:  audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 24},
//	    Samples: []int32{audio.FromLeftJustified(ev.Sample()), 0},
//	}
package audio
