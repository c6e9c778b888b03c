// Package summary renders the per-question overview: histograms of version
// counts and edit distances, and the server's CSV table.
package summary

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"math"
	"slices"

	"github.com/montanaflynn/stats"
	chart "github.com/wcharczuk/go-chart/v2"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/csg33k/response-viewer/internal/domain"
)

const maxBins = 20

// Stats summarizes a series.
type Stats struct {
	Count  int
	Mean   float64
	Median float64
	Min    float64
	Max    float64
}

// Bin is one histogram bar covering [Lo, Hi).
type Bin struct {
	Lo, Hi float64
	Count  float64
}

// Chart is a rendered histogram, or the reason it is missing.
type Chart struct {
	Title       string
	Available   bool
	Unavailable string
	SVG         template.HTML
	Bins        []Bin
	Stats       Stats
}

// Describe computes summary statistics with montanaflynn/stats.
func Describe(values []float64) (Stats, error) {
	if len(values) == 0 {
		return Stats{}, stats.ErrEmptyInput
	}
	data := stats.Float64Data(values)
	var s Stats
	var err error
	s.Count = data.Len()
	if s.Mean, err = stats.Mean(data); err != nil {
		return Stats{}, err
	}
	if s.Median, err = stats.Median(data); err != nil {
		return Stats{}, err
	}
	if s.Min, err = stats.Min(data); err != nil {
		return Stats{}, err
	}
	if s.Max, err = stats.Max(data); err != nil {
		return Stats{}, err
	}
	return s, nil
}

// Bins splits values into at most maxBins equal-width bins. Integer data
// with a small spread gets one bin per value.
func Bins(values []float64) []Bin {
	if len(values) == 0 {
		return nil
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	lo, hi := sorted[0], sorted[len(sorted)-1]

	n := int(math.Floor(hi-lo)) + 1
	if n > maxBins {
		n = maxBins
	}
	if n < 1 {
		n = 1
	}
	dividers := floats.Span(make([]float64, n+1), lo, lo+float64(n)*math.Max(1, (hi+1-lo)/float64(n)))
	counts := stat.Histogram(nil, dividers, sorted, nil)

	out := make([]Bin, n)
	for i := range out {
		out[i] = Bin{Lo: dividers[i], Hi: dividers[i+1], Count: counts[i]}
	}
	return out
}

// Histogram renders series as an SVG bar chart. A missing series yields a
// Chart carrying the unavailable text instead.
func Histogram(title, unavailable string, series domain.Series, log *slog.Logger) Chart {
	c := Chart{Title: title, Unavailable: unavailable}
	if !series.Available || len(series.Values) == 0 {
		return c
	}
	st, err := Describe(series.Values)
	if err != nil {
		return c
	}
	c.Stats = st
	c.Bins = Bins(series.Values)

	svg, err := renderBars(c.Bins)
	if err != nil {
		if log != nil {
			log.Warn("histogram render failed", "title", title, "err", err)
		}
		return c
	}
	c.SVG = template.HTML(svg)
	c.Available = true
	return c
}

func renderBars(bins []Bin) (string, error) {
	var top float64
	bars := make([]chart.Value, len(bins))
	for i, b := range bins {
		bars[i] = chart.Value{Value: b.Count, Label: binLabel(b)}
		top = math.Max(top, b.Count)
	}
	bc := chart.BarChart{
		Width:    900,
		Height:   400,
		BarWidth: max(8, 600/len(bins)),
		Background: chart.Style{
			Padding: chart.Box{Top: 24, Left: 12, Right: 12, Bottom: 12},
		},
		YAxis: chart.YAxis{
			Name:  "Frequency",
			Range: &chart.ContinuousRange{Min: 0, Max: top},
		},
		Bars: bars,
	}
	var buf bytes.Buffer
	if err := bc.Render(chart.SVG, &buf); err != nil {
		return "", fmt.Errorf("summary: render bar chart: %w", err)
	}
	return buf.String(), nil
}

func binLabel(b Bin) string {
	if b.Hi-b.Lo == 1 && b.Lo == math.Trunc(b.Lo) {
		return fmt.Sprintf("%g", b.Lo)
	}
	return fmt.Sprintf("%.4g–%.4g", b.Lo, b.Hi)
}
