// ABOUTME: Tests for the loopback wire and capture streams
// ABOUTME: Checks resampling, divider changes, delay and file round trips
package line

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAll(t *testing.T, out Output, words []uint32) {
	t.Helper()
	go func() {
		for _, w := range words {
			if err := out.Write(context.Background(), w); err != nil {
				return
			}
		}
	}()
}

func readN(t *testing.T, in Input, n int) []uint32 {
	t.Helper()
	got := make([]uint32, 0, n)
	timeout := time.After(5 * time.Second)
	for len(got) < n {
		select {
		case w, ok := <-in.Words():
			require.True(t, ok, "input closed early")
			got = append(got, w)
		case <-timeout:
			t.Fatalf("timed out after %d words", len(got))
		}
	}
	return got
}

func TestLoopbackUnitRatio(t *testing.T) {
	l := NewLoopback(LoopbackConfig{MasterClock: 1000000, Reference: 1000000, Phase: 0.5})
	defer l.Close()

	words := []uint32{0x12345678, 0xFFFF0000, 0x0F0F0F0F, 0xDEADBEEF, 0}
	writeAll(t, l.Out(), words)
	assert.Equal(t, words[:4], readN(t, l.In(), 4))
}

func TestLoopbackInputDivider(t *testing.T) {
	l := NewLoopback(LoopbackConfig{MasterClock: 1000000, Reference: 1000000, Phase: 0.5})
	defer l.Close()
	require.NoError(t, l.In().SetDivider(2))
	assert.Equal(t, 2, l.In().Divider())

	// runs of four levels, half-rate sampling sees two of each
	words := []uint32{0xF0F0F0F0, 0xF0F0F0F0, 0, 0}
	writeAll(t, l.Out(), words)
	got := readN(t, l.In(), 1)
	assert.Equal(t, uint32(0xCCCCCCCC), got[0])
}

func TestLoopbackOutputDivider(t *testing.T) {
	l := NewLoopback(LoopbackConfig{MasterClock: 1000000, Reference: 1000000, Phase: 0.5})
	defer l.Close()
	require.NoError(t, l.Out().SetDivider(2))

	writeAll(t, l.Out(), []uint32{0x0000FFFF, 0, 0})
	got := readN(t, l.In(), 2)
	assert.Equal(t, []uint32{0xFFFFFFFF, 0}, got)
}

func TestLoopbackDelayIdlesLow(t *testing.T) {
	l := NewLoopback(LoopbackConfig{MasterClock: 1000000, Reference: 1000000, Phase: 0.5})
	defer l.Close()
	require.NoError(t, l.Out().SetDelay(8))

	writeAll(t, l.Out(), []uint32{0xFFFFFFFF, 0})
	got := readN(t, l.In(), 1)
	assert.Equal(t, uint32(0xFFFFFF00), got[0])
}

func TestLoopbackRejectsDividers(t *testing.T) {
	l := NewLoopback(LoopbackConfig{})
	defer l.Close()
	assert.Error(t, l.In().SetDivider(0))
	assert.Error(t, l.In().SetDivider(MaxRxDivider+1))
	assert.Error(t, l.Out().SetDivider(0))
	assert.Error(t, l.Out().SetDelay(-1))
}

func TestLoopbackClose(t *testing.T) {
	l := NewLoopback(LoopbackConfig{Buffer: 1})
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	// the segment buffer may still take a word before the pump is gone
	var err error
	for i := 0; i < 100 && err == nil; i++ {
		err = l.Out().Write(context.Background(), 0)
	}
	assert.True(t, errors.Is(err, ErrClosed))

	select {
	case _, ok := <-l.In().Words():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("input not closed")
	}
}

func TestStreamRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	out := NewStreamOutput(&buf)
	words := []uint32{1, 0x80000000, 0xCAFEF00D}
	for _, w := range words {
		require.NoError(t, out.Write(context.Background(), w))
	}
	assert.Equal(t, uint64(3), out.Words())
	require.NoError(t, out.Close())
	assert.Equal(t, 12, buf.Len())
	assert.Equal(t, []byte{0x0D, 0xF0, 0xFE, 0xCA}, buf.Bytes()[8:])
	assert.True(t, errors.Is(out.Write(context.Background(), 0), ErrClosed))

	in := NewStreamInput(bytes.NewReader(buf.Bytes()))
	var got []uint32
	for w := range in.Words() {
		got = append(got, w)
	}
	assert.Equal(t, words, got)
	assert.NoError(t, in.Err())
}

func TestStreamInputPartialWord(t *testing.T) {
	in := NewStreamInput(bytes.NewReader([]byte{1, 0, 0, 0, 2, 0}))
	var got []uint32
	for w := range in.Words() {
		got = append(got, w)
	}
	assert.Equal(t, []uint32{1}, got)
	assert.True(t, errors.Is(in.Err(), io.ErrUnexpectedEOF))
	assert.NoError(t, in.Close())
}

func TestOversampled(t *testing.T) {
	_, err := NewOversampled(NewStreamOutput(io.Discard), 0)
	assert.Error(t, err)

	var buf bytes.Buffer
	rec := NewStreamOutput(&buf)
	o, err := NewOversampled(rec, 4)
	require.NoError(t, err)
	require.NoError(t, o.SetDivider(3))
	require.NoError(t, o.Write(context.Background(), 0b101))
	require.NoError(t, rec.Close())

	require.Equal(t, uint64(4), rec.Words())
	in := NewStreamInput(bytes.NewReader(buf.Bytes()))
	var got []uint32
	for w := range in.Words() {
		got = append(got, w)
	}
	assert.Equal(t, []uint32{0x00000F0F, 0, 0, 0}, got)
}
