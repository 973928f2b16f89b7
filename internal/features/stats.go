package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return Missing
	}
	return stat.Mean(xs, nil)
}

// sampleStd is the n-1 standard deviation; a single observation has none.
func sampleStd(xs []float64) float64 {
	switch len(xs) {
	case 0:
		return Missing
	case 1:
		return 0
	}
	return stat.StdDev(xs, nil)
}

// slope fits y = a + b*i over the game index and returns b.
func slope(ys []float64) float64 {
	if len(ys) < 2 {
		return Missing
	}
	xs := make([]float64, len(ys))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, beta := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(beta) {
		return 0
	}
	return beta
}

func coefficientOfVariation(xs []float64) float64 {
	if len(xs) == 0 {
		return Missing
	}
	m := stat.Mean(xs, nil)
	if math.Abs(m) < cvMeanFloor {
		return 0
	}
	return sampleStd(xs) / m
}

func ratio(made, attempted []float64) float64 {
	if len(made) == 0 {
		return Missing
	}
	a := floats.Sum(attempted)
	if a == 0 {
		return 0
	}
	return floats.Sum(made) / a
}

func tail(xs []float64, n int) []float64 {
	if n >= len(xs) {
		return xs
	}
	return xs[len(xs)-n:]
}
