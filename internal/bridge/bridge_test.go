// ABOUTME: Tests for the bridge server
// ABOUTME: Drives a real server and protocol client over loopback TCP
package bridge

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/spdif-go/pkg/audio"
	"github.com/Resonate-Protocol/spdif-go/pkg/audio/decode"
	"github.com/Resonate-Protocol/spdif-go/pkg/protocol"
	"github.com/Resonate-Protocol/spdif-go/pkg/spdif"
	"github.com/Resonate-Protocol/spdif-go/pkg/spdif/rx"
)

const wait = 2 * time.Second

type fakeReceiver struct {
	mu    sync.Mutex
	stats rx.Stats
}

func (f *fakeReceiver) Stats() rx.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakeReceiver) set(locked bool, rate int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats.Locked = locked
	f.stats.Rate = rate
	f.stats.Subframes += 100
}

func startServer(t *testing.T) (*Server, *fakeReceiver, string) {
	t.Helper()
	srv := New(Config{Name: "test bridge", StatusInterval: 50 * time.Millisecond})
	rcv := &fakeReceiver{}
	srv.Attach(rcv)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()
	t.Cleanup(func() {
		srv.Stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(wait * 3):
			t.Error("server did not stop")
		}
	})
	return srv, rcv, ln.Addr().String()
}

func connect(t *testing.T, addr, id string, statusOnly bool, formats ...protocol.AudioFormat) *protocol.Client {
	t.Helper()
	c := protocol.NewClient(protocol.Config{
		ServerAddr:       addr,
		ClientID:         id,
		Name:             "client " + id,
		SupportedFormats: formats,
		StatusOnly:       statusOnly,
	})
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	t.Cleanup(c.Close)
	return c
}

func subframe(ch int, sample int32) spdif.Event {
	p := spdif.PreambleX
	if ch == 1 {
		p = spdif.PreambleY
	}
	return spdif.NewEvent(spdif.Current, p, spdif.Pack(uint32(sample)&0xFFFFFF, 0, 0, 0), false)
}

func expectStart(t *testing.T, c *protocol.Client) protocol.StreamStart {
	t.Helper()
	select {
	case start := <-c.StreamStart:
		return start
	case <-time.After(wait):
		t.Fatal("no stream/start")
	}
	return protocol.StreamStart{}
}

func expectEnd(t *testing.T, c *protocol.Client) protocol.StreamEnd {
	t.Helper()
	select {
	case end := <-c.StreamEnd:
		return end
	case <-time.After(wait):
		t.Fatal("no stream/end")
	}
	return protocol.StreamEnd{}
}

func TestStreamsPCMChunks(t *testing.T) {
	srv, rcv, addr := startServer(t)
	c := connect(t, addr, "a", false, protocol.AudioFormat{Codec: "pcm", Channels: 2, BitDepth: 24})
	assert.Equal(t, "test bridge", c.Server().Name)
	assert.Equal(t, "current", c.Server().Generation)

	rcv.set(true, 48000)
	start := expectStart(t, c)
	assert.Equal(t, protocol.StreamStart{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 24}, start)

	format, err := start.Format()
	require.NoError(t, err)
	dec, err := decode.New(format)
	require.NoError(t, err)

	const frames = 960 * 3
	// a right subframe with no left is discarded
	srv.Feed(subframe(1, 7))
	for i := 0; i < frames; i++ {
		srv.Feed(subframe(0, int32(i)))
		srv.Feed(subframe(1, -int32(i)))
	}

	next := 0
	for n := 0; n < 3; n++ {
		select {
		case chunk := <-c.AudioChunks:
			assert.Equal(t, int64(n*20000), chunk.Timestamp)
			samples, err := dec.Decode(chunk.Data)
			require.NoError(t, err)
			require.Len(t, samples, 960*2)
			for i := 0; i < len(samples); i += 2 {
				assert.Equal(t, int32(next), samples[i])
				assert.Equal(t, -int32(next), samples[i+1])
				next++
			}
		case <-time.After(wait):
			t.Fatalf("chunk %d missing", n)
		}
	}
}

func TestStreamFollowsLockAndRate(t *testing.T) {
	_, rcv, addr := startServer(t)
	c := connect(t, addr, "b", false)

	rcv.set(true, 44100)
	assert.Equal(t, 44100, expectStart(t, c).SampleRate)

	rcv.set(true, 96000)
	assert.Equal(t, "rate_change", expectEnd(t, c).Reason)
	assert.Equal(t, 96000, expectStart(t, c).SampleRate)

	rcv.set(false, 96000)
	assert.Equal(t, "unlocked", expectEnd(t, c).Reason)
}

func TestRateMustAgreeBeforeStreaming(t *testing.T) {
	srv := New(Config{})
	rcv := &fakeReceiver{}
	srv.Attach(rcv)
	var st streamState

	rcv.set(true, 44100)
	for i := 1; i < rateAgreement; i++ {
		srv.check(&st)
		assert.Zero(t, st.rate, "check %d", i)
	}
	srv.check(&st)
	assert.Equal(t, 44100, st.rate)

	// a single disagreeing reading does not change the stream
	rcv.set(true, 48000)
	srv.check(&st)
	rcv.set(true, 44100)
	for i := 0; i < rateAgreement; i++ {
		srv.check(&st)
	}
	assert.Equal(t, 44100, st.rate)

	rcv.set(true, 48000)
	for i := 0; i < rateAgreement; i++ {
		srv.check(&st)
	}
	assert.Equal(t, 48000, st.rate)

	rcv.set(false, 48000)
	srv.check(&st)
	assert.Zero(t, st.rate)
}

func TestLateJoinerGetsStream(t *testing.T) {
	_, rcv, addr := startServer(t)
	rcv.set(true, 48000)

	c := connect(t, addr, "late", false, protocol.AudioFormat{Codec: "opus", Channels: 2, SampleRate: 48000, BitDepth: 16})
	start := expectStart(t, c)
	assert.Equal(t, "opus", start.Codec)
}

func TestStatusOnlyClient(t *testing.T) {
	_, rcv, addr := startServer(t)
	rcv.set(true, 48000)
	c := connect(t, addr, "s", true)

	deadline := time.After(wait)
	for {
		select {
		case st := <-c.Status:
			if st.Locked {
				assert.Equal(t, 48000, st.SampleRate)
				assert.Equal(t, 1, st.Clients)
				select {
				case <-c.StreamStart:
					t.Fatal("status-only client got a stream")
				default:
				}
				return
			}
		case <-deadline:
			t.Fatal("no locked status")
		}
	}
}

func TestDuplicateClientRejected(t *testing.T) {
	_, _, addr := startServer(t)
	connect(t, addr, "dup", true)

	c := protocol.NewClient(protocol.Config{ServerAddr: addr, ClientID: "dup", Name: "again"})
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	err := c.Connect(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate_client_id")
}

func TestHelloAfterShutdownRefused(t *testing.T) {
	srv := New(Config{Name: "test bridge"})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+protocol.Path, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The connection is still waiting for its hello when the bridge stops.
	srv.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(wait * 3):
		t.Fatal("server did not stop")
	}

	require.NoError(t, conn.WriteJSON(protocol.Message{
		Type:    protocol.TypeClientHello,
		Payload: protocol.ClientHello{ClientID: "late", Name: "late client", Version: protocol.Version},
	}))
	conn.SetReadDeadline(time.Now().Add(wait))
	var reply struct {
		Type    string               `json:"type"`
		Payload protocol.ServerError `json:"payload"`
	}
	if err := conn.ReadJSON(&reply); err == nil {
		assert.Equal(t, protocol.TypeServerError, reply.Type)
		assert.Equal(t, "shutting_down", reply.Payload.Error)
	}
	assert.Zero(t, srv.clientCount())
}

func TestFeedNeverBlocks(t *testing.T) {
	srv := New(Config{})
	for i := 0; i < eventBuffer+10; i++ {
		srv.Feed(subframe(0, 0))
	}
	assert.Equal(t, uint64(10), srv.dropped.Load())
}

func TestFramer(t *testing.T) {
	var f framer
	f.add(subframe(0, 1))
	f.add(subframe(0, 2)) // replaces an unpaired left
	f.add(subframe(1, 3))
	f.add(subframe(1, 4)) // no left
	assert.Equal(t, []int32{2, 3}, f.frames)
	assert.Equal(t, uint64(2), f.orphans)
}

func TestNegotiate(t *testing.T) {
	opus := protocol.AudioFormat{Codec: "opus", Channels: 2, BitDepth: 16}
	pcm16 := protocol.AudioFormat{Codec: "pcm", Channels: 2, BitDepth: 16}
	pcm96 := protocol.AudioFormat{Codec: "pcm", Channels: 2, SampleRate: 96000, BitDepth: 24}

	tests := []struct {
		name  string
		prefs []protocol.AudioFormat
		rate  int
		want  audio.Format
	}{
		{"opus at 48k", []protocol.AudioFormat{opus, pcm16}, 48000, audio.Format{Codec: "opus", SampleRate: 48000, Channels: 2, BitDepth: 16}},
		{"opus unsupported at 44.1k", []protocol.AudioFormat{opus, pcm16}, 44100, audio.Format{Codec: "pcm", SampleRate: 44100, Channels: 2, BitDepth: 16}},
		{"rate pinned format skipped", []protocol.AudioFormat{pcm96, pcm16}, 48000, audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16}},
		{"no preferences", nil, 192000, audio.Format{Codec: "pcm", SampleRate: 192000, Channels: 2, BitDepth: 24}},
		{"unknown codec", []protocol.AudioFormat{{Codec: "flac"}}, 48000, audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 24}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Negotiate(tt.prefs, tt.rate))
		})
	}
}
