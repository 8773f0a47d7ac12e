// Package stats computes summary statistics and fixed-axis histograms over
// lighting intensity values.
package stats

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidHistogramRequest is returned for unusable bin counts or ranges.
var ErrInvalidHistogramRequest = errors.New("invalid histogram request")

// Summary holds the aggregates of a set of values. An empty input yields the
// zero Summary.
type Summary struct {
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// Histogram holds equal-width bins. All three slices have the same length.
type Histogram struct {
	BinStart []float64 `json:"bins_start"`
	BinEnd   []float64 `json:"bins_end"`
	Counts   []int     `json:"counts"`
}

// Summarize returns mean, min, max and count of values.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	s := Summary{
		Min:   values[0],
		Max:   values[0],
		Count: len(values),
	}
	var sum float64
	for _, v := range values {
		sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Mean = sum / float64(len(values))
	return s
}

// ComputeHistogram bins values into nbins equal-width bins over [lo, hi].
// Both ends are inclusive: a value equal to hi lands in the last bin. Values
// outside the range and NaN are not counted.
func ComputeHistogram(values []float64, lo, hi float64, nbins int) (Histogram, error) {
	if nbins < 1 {
		return Histogram{}, fmt.Errorf("%w: nbins must be >= 1, got %d", ErrInvalidHistogramRequest, nbins)
	}
	if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return Histogram{}, fmt.Errorf("%w: non-finite range [%v, %v]", ErrInvalidHistogramRequest, lo, hi)
	}
	if lo >= hi {
		return Histogram{}, fmt.Errorf("%w: lo %v must be below hi %v", ErrInvalidHistogramRequest, lo, hi)
	}

	edges := binEdges(lo, hi, nbins)
	h := Histogram{
		BinStart: append([]float64(nil), edges[:nbins]...),
		BinEnd:   append([]float64(nil), edges[1:]...),
		Counts:   make([]int, nbins),
	}

	width := (hi - lo) / float64(nbins)
	for _, v := range values {
		if !(v >= lo && v <= hi) {
			continue
		}
		i := int((v - lo) / width)
		if i >= nbins {
			i = nbins - 1
		}
		// rounding in the division can land a value one bin off its edges
		for i > 0 && v < edges[i] {
			i--
		}
		for i < nbins-1 && v >= edges[i+1] {
			i++
		}
		h.Counts[i]++
	}
	return h, nil
}

func binEdges(lo, hi float64, nbins int) []float64 {
	edges := make([]float64, nbins+1)
	step := (hi - lo) / float64(nbins)
	for i := range edges {
		edges[i] = lo + float64(i)*step
	}
	edges[nbins] = hi
	return edges
}
