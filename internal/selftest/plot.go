// ABOUTME: Renders clock recovery traces from round trips
// ABOUTME: One line per rate showing ticks per unit interval over received subframes
package selftest

import (
	"errors"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// NewPlot builds a plot of every result's trace.
func NewPlot(results []Result) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Clock recovery"
	p.X.Label.Text = "Subframes received"
	p.Y.Label.Text = "Sample ticks per UI"
	p.Legend.Top = true

	n := 0
	for i, res := range results {
		if len(res.Trace) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(res.Trace))
		for j, pt := range res.Trace {
			pts[j].X = float64(pt.Subframe)
			pts[j].Y = pt.Unit
		}
		l, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("trace for %d Hz: %w", res.Rate, err)
		}
		l.Color = plotutil.Color(i)
		l.Dashes = plotutil.Dashes(i / 7)
		p.Add(l)
		p.Legend.Add(fmt.Sprintf("%d Hz", res.Rate), l)
		n++
	}
	if n == 0 {
		return nil, errors.New("no traces to plot")
	}
	p.Add(plotter.NewGrid())
	return p, nil
}

// SavePlot writes the traces to path; the extension picks the format.
func SavePlot(results []Result, path string) error {
	p, err := NewPlot(results)
	if err != nil {
		return err
	}
	return p.Save(10*vg.Inch, 5*vg.Inch, path)
}
