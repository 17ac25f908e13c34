// ABOUTME: Stream pump turning decoded subframes into timed audio chunks
// ABOUTME: Starts and ends client streams as the receiver locks, unlocks or changes rate
package bridge

import (
	"context"
	"time"

	"github.com/Resonate-Protocol/spdif-go/pkg/audio"
	"github.com/Resonate-Protocol/spdif-go/pkg/audio/encode"
	"github.com/Resonate-Protocol/spdif-go/pkg/protocol"
	"github.com/Resonate-Protocol/spdif-go/pkg/spdif"
	"github.com/Resonate-Protocol/spdif-go/pkg/spdif/rx"
)

// ChunkDuration is the audio carried by one binary message
const ChunkDuration = 20 * time.Millisecond

// checkInterval is how often lock and rate are re-read between chunks
const checkInterval = ChunkDuration

// rateAgreement is the number of consecutive checks that must report the same
// locked rate before a stream starts or changes rate
const rateAgreement = 3

type clientStream struct {
	format  audio.Format
	encoder encode.Encoder
}

func (c *client) closeStream() {
	if c.stream != nil {
		c.stream.encoder.Close()
		c.stream = nil
	}
}

// framer pairs left and right subframes into interleaved frames
type framer struct {
	left     int32
	haveLeft bool
	frames   []int32
	orphans  uint64
}

func (f *framer) add(e spdif.Event) {
	sample := audio.FromLeftJustified(e.Sample())
	if e.Channel == 0 {
		if f.haveLeft {
			f.orphans++
		}
		f.left, f.haveLeft = sample, true
		return
	}
	if !f.haveLeft {
		f.orphans++
		return
	}
	f.frames = append(f.frames, f.left, sample)
	f.haveLeft = false
}

func (f *framer) reset() {
	f.frames = f.frames[:0]
	f.haveLeft = false
}

// streamState is the pump's view of the current stream
type streamState struct {
	rate   int // 0 while no stream is running
	sent   int64
	framer framer

	pending int // candidate rate awaiting agreement
	seen    int
}

func (s *Server) pump(ctx context.Context) {
	statusTicker := time.NewTicker(s.config.StatusInterval)
	defer statusTicker.Stop()
	checkTicker := time.NewTicker(checkInterval)
	defer checkTicker.Stop()

	var st streamState
	s.publishStatus(&st)

	for {
		select {
		case <-ctx.Done():
			return

		case e := <-s.events:
			if st.rate == 0 {
				continue
			}
			st.framer.add(e)
			if len(st.framer.frames)/2 >= st.rate/int(time.Second/ChunkDuration) {
				s.flush(&st)
			}

		case <-checkTicker.C:
			s.check(&st)
			s.joinStream(&st)

		case <-statusTicker.C:
			s.publishStatus(&st)
		}
	}
}

// check starts, restarts or ends the stream to match the receiver. Losing
// lock ends the stream at once. A new rate must hold for rateAgreement checks
// so a retune passing through a neighbouring rate does not restart clients.
func (s *Server) check(st *streamState) {
	stats, ok := s.stats()
	want := 0
	if ok && stats.Locked {
		want = stats.Rate
	}
	if want == st.rate {
		st.pending, st.seen = 0, 0
		return
	}
	if want != 0 {
		if want != st.pending {
			st.pending, st.seen = want, 0
		}
		st.seen++
		if st.seen < rateAgreement {
			return
		}
	}
	st.pending, st.seen = 0, 0

	if st.rate != 0 {
		reason := "unlocked"
		if want != 0 {
			reason = "rate_change"
		}
		s.endStream(reason)
		s.log.Info("stream ended", "reason", reason, "rate", st.rate)
	}

	st.rate = want
	st.sent = 0
	st.framer.reset()
	if want != 0 {
		s.log.Info("stream starting", "rate", want)
	}
}

// joinStream gives every audio client without a stream one at the current rate
func (s *Server) joinStream(st *streamState) {
	if st.rate == 0 {
		return
	}
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, c := range s.clients {
		if c.statusOnly {
			continue
		}
		c.mu.Lock()
		if c.stream == nil {
			s.openStream(c, st.rate)
		}
		c.mu.Unlock()
	}
}

// openStream must be called with c.mu held
func (s *Server) openStream(c *client, rate int) {
	format := Negotiate(c.formats, rate)
	enc, err := encode.New(format)
	if err != nil {
		s.log.Warn("encoder setup failed", "client", c.name, "err", err)
		return
	}
	c.stream = &clientStream{format: format, encoder: enc}
	s.send(c, protocol.Message{Type: protocol.TypeStreamStart, Payload: protocol.NewStreamStart(format)})
	s.log.Debug("client stream started", "client", c.name, "codec", format.Codec, "rate", rate)
}

func (s *Server) endStream(reason string) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	msg := protocol.Message{Type: protocol.TypeStreamEnd, Payload: protocol.StreamEnd{Reason: reason}}
	for _, c := range s.clients {
		c.mu.Lock()
		if c.stream != nil {
			c.closeStream()
			s.send(c, msg)
		}
		c.mu.Unlock()
	}
}

// flush encodes the buffered frames once per client format and sends them
func (s *Server) flush(st *streamState) {
	frames := st.framer.frames
	timestamp := st.sent * int64(time.Second/time.Microsecond) / int64(st.rate)
	st.sent += int64(len(frames) / 2)

	s.clientsMu.RLock()
	for _, c := range s.clients {
		c.mu.Lock()
		if c.stream != nil {
			data, err := c.stream.encoder.Encode(frames)
			if err != nil {
				s.log.Warn("encode failed", "client", c.name, "err", err)
			} else {
				s.send(c, protocol.EncodeChunk(timestamp, data))
			}
		}
		c.mu.Unlock()
	}
	s.clientsMu.RUnlock()

	st.framer.frames = frames[:0]
}

func (s *Server) stats() (rx.Stats, bool) {
	src := s.source.Load()
	if src == nil {
		return rx.Stats{}, false
	}
	return (*src).Stats(), true
}

func (s *Server) publishStatus(st *streamState) {
	stats, _ := s.stats()
	status := protocol.ReceiverStatus{
		Locked:        stats.Locked,
		SampleRate:    stats.Rate,
		Measured:      stats.Measured,
		Divider:       stats.Divider,
		Unit:          stats.Unit,
		Subframes:     stats.Subframes,
		SyncLosses:    stats.SyncLosses,
		ParityErrors:  stats.ParityErrors,
		ChannelErrors: stats.ChannelErrors,
		BlockErrors:   stats.BlockErrors,
		Dropped:       stats.Dropped + s.dropped.Load() + st.framer.orphans,
		Overwritten:   stats.Overwritten,
		Retargets:     stats.Retargets,
		Clients:       s.clientCount(),
	}
	s.status.Store(&status)
	s.broadcast(protocol.TypeReceiverStatus, status)
	if s.config.OnStatus != nil {
		s.config.OnStatus(status)
	}
}

// Negotiate picks the first format in prefs the bridge can produce at
// rate, falling back to 24-bit stereo PCM.
func Negotiate(prefs []protocol.AudioFormat, rate int) audio.Format {
	for _, p := range prefs {
		if p.SampleRate != 0 && p.SampleRate != rate {
			continue
		}
		switch p.Codec {
		case "opus":
			if encode.SupportsOpus(rate) {
				return audio.Format{Codec: "opus", SampleRate: rate, Channels: 2, BitDepth: 16}
			}
		case "pcm":
			depth := p.BitDepth
			if depth != 16 {
				depth = 24
			}
			return audio.Format{Codec: "pcm", SampleRate: rate, Channels: 2, BitDepth: depth}
		}
	}
	return audio.Format{Codec: "pcm", SampleRate: rate, Channels: 2, BitDepth: 24}
}
