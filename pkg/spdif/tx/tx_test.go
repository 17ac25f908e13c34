// ABOUTME: Tests for the transmit modulator, encoder and engine
// ABOUTME: Demodulates emitted words and checks request ordering and errors
package tx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Resonate-Protocol/spdif-go/pkg/spdif"
)

// subframe is one demodulated subframe.
type subframe struct {
	pre  spdif.Preamble
	word uint32 // slots 4..31
}

// demodulate walks UI-level words and checks biphase-mark rules as it goes.
func demodulate(t testing.TB, words []uint32) []subframe {
	t.Helper()
	var ui []uint32
	for _, w := range words {
		for i := 0; i < 32; i++ {
			ui = append(ui, w>>i&1)
		}
	}
	require.Zero(t, len(ui)%64)

	var out []subframe
	level := uint32(0)
	for base := 0; base < len(ui); base += 64 {
		var levels uint8
		for i := 0; i < 8; i++ {
			levels |= uint8(ui[base+i]^level) << i
		}
		var pre spdif.Preamble
		for _, p := range []spdif.Preamble{spdif.PreambleX, spdif.PreambleY, spdif.PreambleZ} {
			if p.Levels() == levels {
				pre = p
			}
		}
		require.NotEqual(t, spdif.PreambleNone, pre, "bad preamble %08b at UI %d", levels, base)

		prev := ui[base+7]
		var word uint32
		for c := 0; c < spdif.PayloadSlots; c++ {
			a, b := ui[base+8+2*c], ui[base+9+2*c]
			require.NotEqual(t, prev, a, "no transition at cell %d of UI %d", c, base)
			word |= (a ^ b) << (spdif.SlotAudio + c)
			prev = b
		}
		require.Equal(t, level, prev, "subframe at UI %d does not return to rest level", base)
		out = append(out, subframe{pre: pre, word: word})
	}
	return out
}

func TestBiphaseTable(t *testing.T) {
	assert.Equal(t, uint16(0x3333), bmc[0x00])
	assert.Equal(t, uint16(0x5555), bmc[0xFF])
	// cell 0 carries a one, the rest zeros
	assert.Equal(t, uint16(0xCCCD), bmc[0x01])
}

func TestModulatorKeepsLevel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var m modulator
		m.level = rapid.Uint32Range(0, 1).Draw(t, "level")
		v := rapid.Uint32().Draw(t, "v")
		start := m.level
		m.preamble(spdif.PreambleX)
		if m.level != start {
			t.Fatalf("preamble moved rest level")
		}
		m.bits(v, 28)
		ones := 0
		for i := 0; i < 28; i++ {
			ones += int(v >> i & 1)
		}
		// 28 cell boundaries plus one mid-cell transition per one
		want := start ^ uint32(ones&1)
		if m.level != want {
			t.Fatalf("level %d after %d ones, want %d", m.level, ones, want)
		}
		if m.n != 64 {
			t.Fatalf("pushed %d UI", m.n)
		}
	})
}

func TestEncoderBlockSequence(t *testing.T) {
	enc := NewEncoder(spdif.Current)
	enc.SetRate(48000)

	var words []uint32
	for f := 0; f < 2*spdif.FramesPerBlock+5; f++ {
		w := enc.EncodeFrame(int32(f)<<8, -int32(f)<<8)
		words = append(words, w[:]...)
	}
	subs := demodulate(t, words)
	require.Len(t, subs, 2*(2*spdif.FramesPerBlock+5))

	status := [2]spdif.ChannelStatus{spdif.ConsumerStatus(48000, 24, 1), spdif.ConsumerStatus(48000, 24, 2)}
	for i, s := range subs {
		frame := i / 2
		ch := i % 2
		switch {
		case ch == 1:
			assert.Equal(t, spdif.PreambleY, s.pre, "frame %d", frame)
		case frame%spdif.FramesPerBlock == 0:
			assert.Equal(t, spdif.PreambleZ, s.pre, "frame %d", frame)
		default:
			assert.Equal(t, spdif.PreambleX, s.pre, "frame %d", frame)
		}
		assert.Zero(t, spdif.Parity(s.word), "odd parity in frame %d", frame)

		e := spdif.NewEvent(spdif.Current, s.pre, s.word, false)
		want := int32(frame) << 8
		if ch == 1 {
			want = -want
		}
		assert.Equal(t, want, e.Sample(), "frame %d channel %d", frame, ch)
		assert.Equal(t, status[ch].Bit(frame%spdif.FramesPerBlock), e.ChannelStatus(), "frame %d", frame)
		assert.False(t, e.Validity())
	}
	assert.Equal(t, 5, enc.Frame())
}

func TestEncoderRateLatchesAtBlockStart(t *testing.T) {
	enc := NewEncoder(spdif.Current)
	enc.SetRate(44100)
	enc.EncodeFrame(0, 0)
	enc.SetRate(96000)
	assert.Equal(t, 96000, enc.Rate())

	var words []uint32
	for f := 1; f < 2*spdif.FramesPerBlock; f++ {
		w := enc.EncodeFrame(0, 0)
		words = append(words, w[:]...)
	}
	subs := demodulate(t, words)

	var first, second spdif.ChannelStatus
	for i := 0; i < len(subs); i += 2 {
		frame := i/2 + 1
		bit := byte((subs[i].word >> spdif.SlotChannelStatus) & 1)
		if frame < spdif.FramesPerBlock {
			first[frame>>3] |= bit << (frame & 7)
		} else {
			f := frame - spdif.FramesPerBlock
			second[f>>3] |= bit << (f & 7)
		}
	}
	// frame 0 of the first block was not captured
	assert.Equal(t, byte(0x0), first.SampleRateCode())
	assert.Equal(t, byte(0xA), second.SampleRateCode())
}

func TestLegacyEncoderDropsLowBits(t *testing.T) {
	enc := NewEncoder(spdif.Legacy)
	enc.SetRate(48000)
	w := enc.EncodeFrame(0x12345678, 0)
	subs := demodulate(t, w[:])
	e := spdif.NewEvent(spdif.Legacy, subs[0].pre, subs[0].word, false)
	assert.Equal(t, uint32(0x12345000), uint32(e.Sample()))
	assert.Zero(t, subs[0].word>>spdif.SlotAudio&0xF)
}

type write struct {
	word    uint32
	divider int
}

type recorder struct {
	divider int
	delays  []int
	writes  []write
	fail    error
}

func (r *recorder) SetDivider(div int) error {
	r.divider = div
	return nil
}

func (r *recorder) SetDelay(ticks int) error {
	r.delays = append(r.delays, ticks)
	return nil
}

func (r *recorder) Write(_ context.Context, word uint32) error {
	if r.fail != nil {
		return r.fail
	}
	r.writes = append(r.writes, write{word: word, divider: r.divider})
	return nil
}

func startTransmitter(t *testing.T, rec *recorder, delay int) (*Transmitter, <-chan error) {
	t.Helper()
	tx, err := New(Config{Line: rec, Clock: rec, Delay: delay})
	require.NoError(t, err)
	errc := make(chan error, 1)
	go func() { errc <- tx.Run(context.Background()) }()
	return tx, errc
}

func waitRun(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("transmitter did not stop")
		return nil
	}
}

func TestTransmitterRequiresConfiguration(t *testing.T) {
	rec := &recorder{}
	tx, errc := startTransmitter(t, rec, 0)
	ctx := context.Background()

	err := tx.OutputSamplePair(ctx, 1, 2)
	assert.True(t, errors.Is(err, spdif.ErrNotConfigured))

	require.NoError(t, tx.Shutdown(ctx))
	require.NoError(t, waitRun(t, errc))
	assert.Empty(t, rec.writes)
}

func TestTransmitterRejectsDivider(t *testing.T) {
	rec := &recorder{}
	tx, errc := startTransmitter(t, rec, 0)
	ctx := context.Background()

	err := tx.ConfigureRate(ctx, 48000, spdif.MasterClock44k1)
	assert.True(t, errors.Is(err, spdif.ErrDividerRange))
	assert.True(t, errors.Is(tx.OutputSamplePair(ctx, 0, 0), spdif.ErrNotConfigured))

	require.NoError(t, tx.Shutdown(ctx))
	require.NoError(t, waitRun(t, errc))
	assert.Zero(t, tx.Stats().Reconfigurations)
}

func TestTransmitterReconfigureAtFrameBoundary(t *testing.T) {
	rec := &recorder{}
	tx, errc := startTransmitter(t, rec, 17)
	ctx := context.Background()

	rates := []int{48000, 96000, 192000, 48000}
	for i, rate := range rates {
		require.NoError(t, tx.ConfigureRate(ctx, rate, spdif.MasterClock48k))
		for f := 0; f < 3+i; f++ {
			require.NoError(t, tx.OutputSamplePair(ctx, int32(f)<<8, int32(i)<<8))
		}
	}
	require.NoError(t, tx.Shutdown(ctx))
	require.NoError(t, waitRun(t, errc))

	assert.Equal(t, []int{17}, rec.delays)
	require.Len(t, rec.writes, (3+4+5+6)*WordsPerFrame)

	var dividers []int
	for i, w := range rec.writes {
		if i == 0 || w.divider != rec.writes[i-1].divider {
			assert.Zero(t, i%WordsPerFrame, "divider changed inside a frame at word %d", i)
			dividers = append(dividers, w.divider)
		}
	}
	assert.Equal(t, []int{4, 2, 1, 4}, dividers)

	words := make([]uint32, len(rec.writes))
	for i, w := range rec.writes {
		words[i] = w.word
	}
	subs := demodulate(t, words)
	assert.Len(t, subs, 2*(3+4+5+6))

	s := tx.Stats()
	assert.Equal(t, uint64(18), s.Frames)
	assert.Equal(t, uint64(4), s.Reconfigurations)
	assert.Equal(t, 48000, s.Rate)
	assert.Equal(t, 4, s.Divider)
	assert.Equal(t, 18, s.BlockFrame)
}

func TestTransmitterStopped(t *testing.T) {
	rec := &recorder{}
	tx, errc := startTransmitter(t, rec, 0)
	ctx := context.Background()

	require.NoError(t, tx.ConfigureRate(ctx, 44100, spdif.MasterClock44k1))
	require.NoError(t, tx.Shutdown(ctx))
	require.NoError(t, waitRun(t, errc))

	assert.True(t, errors.Is(tx.OutputSamplePair(ctx, 0, 0), spdif.ErrStopped))
	assert.True(t, errors.Is(tx.Shutdown(ctx), spdif.ErrStopped))
	assert.True(t, errors.Is(tx.ConfigureRate(ctx, 44100, spdif.MasterClock44k1), spdif.ErrStopped))
	assert.Error(t, tx.Run(ctx))
}

func TestTransmitterLineFailure(t *testing.T) {
	rec := &recorder{fail: errors.New("line gone")}
	tx, errc := startTransmitter(t, rec, 0)
	ctx := context.Background()

	require.NoError(t, tx.ConfigureRate(ctx, 48000, spdif.MasterClock48k))
	require.NoError(t, tx.OutputSamplePair(ctx, 0, 0))
	err := waitRun(t, errc)
	assert.ErrorContains(t, err, "line gone")
}

func TestTransmitterContextCancel(t *testing.T) {
	rec := &recorder{}
	tx, err := New(Config{Line: rec})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- tx.Run(ctx) }()
	cancel()
	assert.True(t, errors.Is(waitRun(t, errc), context.Canceled))

	_, err = New(Config{})
	assert.Error(t, err)
}
