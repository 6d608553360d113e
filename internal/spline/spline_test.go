package spline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
)

func TestCurveInterpolatesKnots(t *testing.T) {
	xs := floats.Span(make([]float64, 21), -2, 2)
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = math.Sin(x) + 0.3*x*x
	}

	for _, order := range []int{Linear, Cubic} {
		c, err := NewCurve(xs, ys, order)
		require.NoError(t, err)
		for i, x := range xs {
			assert.InDelta(t, ys[i], c.Predict(x), 1e-12, "order %d knot %d", order, i)
		}
	}
}

func TestCurveLinearMatchesPiecewiseLinear(t *testing.T) {
	xs := []float64{0, 1, 2.5, 4}
	ys := []float64{1, -1, 2, 0}

	c, err := NewCurve(xs, ys, Linear)
	require.NoError(t, err)

	var ref interp.PiecewiseLinear
	require.NoError(t, ref.Fit(xs, ys))

	for _, x := range []float64{0.25, 0.9, 1.7, 3.1, 3.99} {
		assert.InDelta(t, ref.Predict(x), c.Predict(x), 1e-12)
		assert.Zero(t, c.PredictSecondDerivative(x))
	}
}

func TestCurveDerivativesMatchFiniteDifferences(t *testing.T) {
	xs := floats.Span(make([]float64, 41), 0, 4)
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = math.Exp(-x) * math.Cos(2*x)
	}

	c, err := NewCurve(xs, ys, Cubic)
	require.NoError(t, err)

	const h = 1e-6
	for _, x := range []float64{0.33, 1.01, 2.47, 3.6} {
		fd1 := (c.Predict(x+h) - c.Predict(x-h)) / (2 * h)
		fd2 := (c.PredictDerivative(x+h) - c.PredictDerivative(x-h)) / (2 * h)
		assert.InDelta(t, fd1, c.PredictDerivative(x), 1e-6, "first derivative at %g", x)
		assert.InDelta(t, fd2, c.PredictSecondDerivative(x), 1e-5, "second derivative at %g", x)
	}
}

func TestCurveNaturalEnds(t *testing.T) {
	c, err := NewCurve([]float64{0, 1, 2, 3}, []float64{0, 1, 0, 1}, Cubic)
	require.NoError(t, err)

	assert.InDelta(t, 0, c.PredictSecondDerivative(0), 1e-12)
	assert.InDelta(t, 0, c.PredictSecondDerivative(3), 1e-12)
}

func TestCurveFlatExtrapolation(t *testing.T) {
	c, err := NewCurve([]float64{0, 1, 2}, []float64{3, 5, 4}, Cubic)
	require.NoError(t, err)

	assert.Equal(t, c.Predict(0), c.Predict(-10))
	assert.Equal(t, c.Predict(2), c.Predict(7))
	assert.Zero(t, c.PredictDerivative(-1))
	assert.Zero(t, c.PredictSecondDerivative(5))

	lo, hi := c.Domain()
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 2.0, hi)
}

func TestCurveRejectsBadGrids(t *testing.T) {
	tests := []struct {
		name  string
		xs    []float64
		ys    []float64
		order int
	}{
		{name: "too few knots", xs: []float64{1}, ys: []float64{1}, order: Cubic},
		{name: "not increasing", xs: []float64{0, 2, 1}, ys: []float64{0, 0, 0}, order: Cubic},
		{name: "duplicate knot", xs: []float64{0, 1, 1}, ys: []float64{0, 0, 0}, order: Linear},
		{name: "length mismatch", xs: []float64{0, 1}, ys: []float64{0}, order: Linear},
		{name: "bad order", xs: []float64{0, 1, 2}, ys: []float64{0, 1, 2}, order: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCurve(tt.xs, tt.ys, tt.order)
			var ge *GridError
			assert.ErrorAs(t, err, &ge)
		})
	}
}

func bilinear(x, y float64) float64 { return 1.5 - 2*x + 0.5*y + 3*x*y }

func TestSurfaceReproducesBilinear(t *testing.T) {
	xs := []float64{-1, -0.4, 0.1, 0.8, 1.2}
	ys := []float64{-2, -1, 0.5, 2}
	z := mat.NewDense(len(xs), len(ys), nil)
	for i, x := range xs {
		for j, y := range ys {
			z.Set(i, j, bilinear(x, y))
		}
	}

	for _, order := range []int{Linear, Cubic} {
		s, err := NewSurface(xs, ys, z, order, order)
		require.NoError(t, err)

		for _, p := range [][2]float64{{0, 0}, {-0.7, 1.3}, {1.1, -1.9}, {0.35, 0.6}} {
			x, y := p[0], p[1]
			assert.InDelta(t, bilinear(x, y), s.Eval(x, y, 0, 0), 1e-12)
			assert.InDelta(t, -2+3*y, s.Eval(x, y, 1, 0), 1e-12)
			assert.InDelta(t, 0.5+3*x, s.Eval(x, y, 0, 1), 1e-12)
			assert.InDelta(t, 0, s.Eval(x, y, 2, 0), 1e-12)
			assert.InDelta(t, 0, s.Eval(x, y, 0, 2), 1e-12)
		}
	}
}

func TestSurfaceDerivativesMatchFiniteDifferences(t *testing.T) {
	xs := floats.Span(make([]float64, 31), -1, 1)
	ys := floats.Span(make([]float64, 25), -1, 1)
	z := mat.NewDense(len(xs), len(ys), nil)
	for i, x := range xs {
		for j, y := range ys {
			z.Set(i, j, math.Sin(2*x)*math.Cos(y)+x*x*y)
		}
	}

	s, err := NewSurface(xs, ys, z, Cubic, Cubic)
	require.NoError(t, err)

	const h = 1e-6
	for _, p := range [][2]float64{{0.13, -0.42}, {-0.55, 0.31}, {0.71, 0.77}} {
		x, y := p[0], p[1]
		fdx := (s.Eval(x+h, y, 0, 0) - s.Eval(x-h, y, 0, 0)) / (2 * h)
		fdy := (s.Eval(x, y+h, 0, 0) - s.Eval(x, y-h, 0, 0)) / (2 * h)
		fdxx := (s.Eval(x+h, y, 1, 0) - s.Eval(x-h, y, 1, 0)) / (2 * h)
		fdyy := (s.Eval(x, y+h, 0, 1) - s.Eval(x, y-h, 0, 1)) / (2 * h)

		assert.InDelta(t, fdx, s.Eval(x, y, 1, 0), 1e-6)
		assert.InDelta(t, fdy, s.Eval(x, y, 0, 1), 1e-6)
		assert.InDelta(t, fdxx, s.Eval(x, y, 2, 0), 1e-4)
		assert.InDelta(t, fdyy, s.Eval(x, y, 0, 2), 1e-4)

		// Close to the sampled function as well.
		assert.InDelta(t, math.Sin(2*x)*math.Cos(y)+x*x*y, s.Eval(x, y, 0, 0), 2e-3)
	}
}

func TestSurfaceFlatExtrapolation(t *testing.T) {
	xs := []float64{0, 1, 2}
	ys := []float64{0, 1}
	z := mat.NewDense(3, 2, []float64{
		0, 1,
		2, 3,
		4, 5,
	})

	s, err := NewSurface(xs, ys, z, Cubic, Linear)
	require.NoError(t, err)

	assert.InDelta(t, s.Eval(2, 0.5, 0, 0), s.Eval(9, 0.5, 0, 0), 1e-12)
	assert.Zero(t, s.Eval(9, 0.5, 1, 0))
	assert.Zero(t, s.Eval(1, -3, 0, 1))
	// Derivative along the axis that is still inside survives.
	assert.InDelta(t, 2, s.Eval(1, -3, 0, 0), 1e-12)
	assert.NotZero(t, s.Eval(1, -3, 1, 0))
}

func TestSurfaceShapeMismatch(t *testing.T) {
	_, err := NewSurface([]float64{0, 1}, []float64{0, 1, 2}, mat.NewDense(2, 2, nil), Linear, Linear)
	var ge *GridError
	assert.ErrorAs(t, err, &ge)
}
