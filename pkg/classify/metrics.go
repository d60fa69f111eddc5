package classify

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metric names a distance or similarity function.
type Metric string

const (
	Euclidean Metric = "euclidean"
	Cosine    Metric = "cosine"
	Pearson   Metric = "pearson"
)

// IsValid reports whether m is a known metric.
func (m Metric) IsValid() bool {
	return m == Euclidean || m == Cosine || m == Pearson
}

// Metrics lists every metric in vote order.
var Metrics = []Metric{Euclidean, Cosine, Pearson}

// align returns a and b padded with zeros to a common length. Inputs already
// of equal length are returned as is.
func align(a, b []float64) ([]float64, []float64) {
	switch {
	case len(a) == len(b):
		return a, b
	case len(a) < len(b):
		p := make([]float64, len(b))
		copy(p, a)
		return p, b
	default:
		p := make([]float64, len(a))
		copy(p, b)
		return a, p
	}
}

// EuclideanDistance returns the L2 distance between a and b. Vectors of
// different length are compared as if the shorter one were zero-padded. A
// non-finite result is reported as math.MaxFloat64.
func EuclideanDistance(a, b []float64) float64 {
	a, b = align(a, b)
	if len(a) == 0 {
		return 0
	}
	d := floats.Distance(a, b, 2)
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return math.MaxFloat64
	}
	return d
}

// CosineSimilarity returns a·b / (|a||b|), or 0 when either vector has zero
// norm or the result is not finite.
func CosineSimilarity(a, b []float64) float64 {
	a, b = align(a, b)
	if len(a) == 0 {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return finite(floats.Dot(a, b) / (na * nb))
}

// PearsonCorrelation returns the correlation coefficient of a and b, or 0
// when either vector is constant or shorter than two samples.
func PearsonCorrelation(a, b []float64) float64 {
	a, b = align(a, b)
	if len(a) < 2 {
		return 0
	}
	return finite(stat.Correlation(a, b, nil))
}

// Similarity evaluates m between a and b. For [Euclidean] smaller is closer;
// for the others larger is closer.
func Similarity(m Metric, a, b []float64) (float64, error) {
	switch m {
	case Euclidean:
		return EuclideanDistance(a, b), nil
	case Cosine:
		return CosineSimilarity(a, b), nil
	case Pearson:
		return PearsonCorrelation(a, b), nil
	default:
		return 0, fmt.Errorf("classify: unknown metric %q", m)
	}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
