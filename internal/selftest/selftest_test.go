// ABOUTME: Tests for the loopback self test
// ABOUTME: Runs short round trips and checks clean-run detection and plotting
package selftest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/spdif-go/internal/source"
	"github.com/Resonate-Protocol/spdif-go/pkg/audio"
	"github.com/Resonate-Protocol/spdif-go/pkg/spdif"
)

func rampEvents(first, frames int) []spdif.Event {
	var out []spdif.Event
	for f := first; f < first+frames; f++ {
		for ch := 0; ch < 2; ch++ {
			out = append(out, spdif.Event{
				Channel: ch,
				Value:   uint32(audio.ToLeftJustified(source.RampSample(f, ch))),
			})
		}
	}
	return out
}

func TestCleanRun(t *testing.T) {
	t.Run("all clean", func(t *testing.T) {
		start, frames := cleanRun(rampEvents(5, 10))
		assert.Equal(t, 0, start)
		assert.Equal(t, 10, frames)
	})

	t.Run("glitch then clean", func(t *testing.T) {
		events := rampEvents(0, 3)
		events[5].ParityError = true
		events = append(events, rampEvents(3, 6)...)
		start, frames := cleanRun(events)
		assert.Equal(t, 6, start)
		assert.Equal(t, 6, frames)
	})

	t.Run("lone right subframe first", func(t *testing.T) {
		events := append(rampEvents(0, 4)[1:2], rampEvents(1, 4)...)
		start, frames := cleanRun(events)
		assert.Equal(t, 1, start)
		assert.Equal(t, 4, frames)
	})

	t.Run("trailing left dropped", func(t *testing.T) {
		events := rampEvents(0, 4)
		events = append(events, rampEvents(4, 1)[0])
		start, frames := cleanRun(events)
		assert.Equal(t, 0, start)
		assert.Equal(t, 4, frames)
	})

	t.Run("empty", func(t *testing.T) {
		_, frames := cleanRun(nil)
		assert.Zero(t, frames)
	})
}

func TestRunRates(t *testing.T) {
	if testing.Short() {
		t.Skip("round trips are slow")
	}
	dividers := map[int]int{44100: 2, 96000: 1}
	results, err := Run(context.Background(), Options{Rates: []int{44100, 96000}, Frames: 256})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.True(t, res.OK(256), "rate %d", res.Rate)
		assert.Equal(t, dividers[res.Rate], res.Divider)
		assert.Zero(t, res.Counters.ParityErrors)
		assert.NotEmpty(t, res.Trace)
	}
}

func TestRunRetargetsUnderSkew(t *testing.T) {
	if testing.Short() {
		t.Skip("round trips are slow")
	}
	results, err := Run(context.Background(), Options{
		Rates: []int{192000}, Estimate: 48000, SkewPPM: 20000, Frames: 256,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.GreaterOrEqual(t, results[0].Retargets, 1)
	assert.Equal(t, 1, results[0].Divider)
	assert.InDelta(t, 192000*1.02, results[0].Measured, 192000*0.02)
}

func TestRunReportsUnsupportedRate(t *testing.T) {
	results, err := Run(context.Background(), Options{Rates: []int{12345}})
	require.Error(t, err)
	assert.ErrorIs(t, err, spdif.ErrDividerRange)
	require.Len(t, results, 1)
	assert.False(t, results[0].OK(1))
}

func TestSavePlot(t *testing.T) {
	results := []Result{
		{Rate: 48000, Trace: []Point{{16, 9.5, 16}, {32, 8.2, 16}, {48, 8.0, 16}}},
		{Rate: 96000},
	}
	path := filepath.Join(t.TempDir(), "clock.png")
	require.NoError(t, SavePlot(results, path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.Error(t, SavePlot([]Result{{Rate: 48000}}, path))
}

func TestReport(t *testing.T) {
	results := []Result{
		{Rate: 48000, Locked: true, Divider: 2, Unit: 8.14, Measured: 48010, Matched: 400},
		{Rate: 12345, Err: assert.AnError},
	}
	out := Report(results, 384)
	assert.Contains(t, out, "48000")
	assert.Contains(t, out, "PASS")
	assert.Contains(t, out, "8.14")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, assert.AnError.Error())
}
