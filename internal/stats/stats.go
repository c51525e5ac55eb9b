// Package stats provides the shared numeric primitives used by feature
// derivation and the weekly summary engine. All functions are pure: no
// side effects, no I/O, and deterministic for a given input.
package stats

import (
	"math"
	"sort"
	"time"
)

// zScoreEpsilon is the floor applied to the baseline standard deviation to
// avoid division blowup on near-constant baselines.
const zScoreEpsilon = 0.25

// DefaultMinSlopePoints is the default minimum number of points required for
// a meaningful slope.
const DefaultMinSlopePoints = 3

// Point is a time-stamped numeric value.
type Point struct {
	At    time.Time
	Value float64
}

// Mean returns the arithmetic mean of xs, or 0 for empty input.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Std returns the population standard deviation of xs, or 0 for fewer than
// two points.
func Std(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := Mean(xs)
	variance := 0.0
	for _, x := range xs {
		d := x - m
		variance += d * d
	}
	variance /= float64(len(xs))
	return math.Sqrt(variance)
}

// LinearSlope returns the ordinary least squares slope of value against
// elapsed days since the earliest point in the set. Input order is not
// guaranteed, so the points are sorted by time first. Returns 0 when there
// are fewer than minPoints points or when the time denominator is degenerate
// (all points at the same instant).
func LinearSlope(points []Point, minPoints int) float64 {
	if minPoints <= 0 {
		minPoints = DefaultMinSlopePoints
	}
	if len(points) < minPoints {
		return 0
	}

	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].At.Before(sorted[j].At)
	})

	start := sorted[0].At
	xs := make([]float64, len(sorted))
	ys := make([]float64, len(sorted))
	for i, p := range sorted {
		xs[i] = p.At.Sub(start).Hours() / 24
		ys[i] = p.Value
	}

	xMean := Mean(xs)
	yMean := Mean(ys)
	var num, den float64
	for i := range xs {
		dx := xs[i] - xMean
		num += dx * (ys[i] - yMean)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// ZScore returns (mean(recent) - mean(baseline)) / max(std(baseline), 0.25).
// Returns 0 when recent is empty or the baseline has fewer than three points.
func ZScore(recent, baseline []float64) float64 {
	if len(recent) == 0 || len(baseline) < 3 {
		return 0
	}
	sd := Std(baseline)
	if sd < zScoreEpsilon {
		sd = zScoreEpsilon
	}
	return (Mean(recent) - Mean(baseline)) / sd
}

// Clamp bounds v to [min, max].
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
