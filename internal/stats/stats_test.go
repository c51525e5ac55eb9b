package stats

import (
	"math"
	"testing"
	"time"
)

func day(n int) time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestMean(t *testing.T) {
	if got := Mean(nil); got != 0 {
		t.Fatalf("Mean(nil) = %v, want 0", got)
	}
	if got := Mean([]float64{2, 4, 6}); !almostEqual(got, 4) {
		t.Fatalf("Mean = %v, want 4", got)
	}
}

func TestStd(t *testing.T) {
	if got := Std([]float64{5}); got != 0 {
		t.Fatalf("Std of single point = %v, want 0", got)
	}
	// Population std of {2, 4, 4, 4, 5, 5, 7, 9} is exactly 2.
	got := Std([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if !almostEqual(got, 2) {
		t.Fatalf("Std = %v, want 2", got)
	}
}

func TestLinearSlopeOrderIndependent(t *testing.T) {
	ordered := []Point{
		{At: day(0), Value: 120},
		{At: day(1), Value: 121},
		{At: day(2), Value: 122},
		{At: day(3), Value: 123},
	}
	shuffled := []Point{ordered[2], ordered[0], ordered[3], ordered[1]}

	a := LinearSlope(ordered, 3)
	b := LinearSlope(shuffled, 3)
	if !almostEqual(a, b) {
		t.Fatalf("slope differs with input order: %v vs %v", a, b)
	}
	if !almostEqual(a, 1) {
		t.Fatalf("slope = %v, want 1 per day", a)
	}
}

func TestLinearSlopeTooFewPoints(t *testing.T) {
	points := []Point{
		{At: day(0), Value: 120},
		{At: day(1), Value: 140},
	}
	if got := LinearSlope(points, 3); got != 0 {
		t.Fatalf("slope with 2 points = %v, want 0", got)
	}
}

func TestLinearSlopeDegenerateTime(t *testing.T) {
	same := day(0)
	points := []Point{
		{At: same, Value: 1},
		{At: same, Value: 2},
		{At: same, Value: 3},
	}
	if got := LinearSlope(points, 3); got != 0 {
		t.Fatalf("slope with identical timestamps = %v, want 0", got)
	}
}

func TestLinearSlopeNegative(t *testing.T) {
	points := []Point{
		{At: day(0), Value: 90},
		{At: day(2), Value: 88},
		{At: day(4), Value: 86},
	}
	if got := LinearSlope(points, 3); !almostEqual(got, -1) {
		t.Fatalf("slope = %v, want -1 per day", got)
	}
}

func TestZScore(t *testing.T) {
	if got := ZScore(nil, []float64{1, 2, 3}); got != 0 {
		t.Fatalf("ZScore with empty recent = %v, want 0", got)
	}
	if got := ZScore([]float64{5}, []float64{1, 2}); got != 0 {
		t.Fatalf("ZScore with short baseline = %v, want 0", got)
	}

	// Constant baseline: std is 0, so the epsilon floor of 0.25 applies.
	got := ZScore([]float64{11}, []float64{10, 10, 10})
	if !almostEqual(got, 4) {
		t.Fatalf("ZScore with constant baseline = %v, want 4", got)
	}

	// Baseline {8,10,12} has mean 10 and population std ~1.633.
	got = ZScore([]float64{12}, []float64{8, 10, 12})
	want := 2.0 / Std([]float64{8, 10, 12})
	if !almostEqual(got, want) {
		t.Fatalf("ZScore = %v, want %v", got, want)
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(10, -5, 5); got != 5 {
		t.Fatalf("Clamp(10) = %v, want 5", got)
	}
	if got := Clamp(-10, -5, 5); got != -5 {
		t.Fatalf("Clamp(-10) = %v, want -5", got)
	}
	if got := Clamp(3, -5, 5); got != 3 {
		t.Fatalf("Clamp(3) = %v, want 3", got)
	}
}
