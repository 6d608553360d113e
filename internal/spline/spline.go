// Package spline fits interpolating splines to gridded samples and evaluates
// them together with their first and second derivatives.
//
// Order 3 gives natural cubic splines, order 1 piecewise linear ones. Outside
// the sampled range the value is held at the boundary (flat extrapolation),
// so every derivative across that axis is zero there.
package spline

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
)

const (
	Linear = 1
	Cubic  = 3
)

// GridError describes why a set of knots cannot be fitted.
type GridError struct {
	Reason string
}

func (e *GridError) Error() string {
	return "spline grid: " + e.Reason
}

var _ interp.DerivativePredictor = (*Curve)(nil)

// Curve is a univariate interpolating spline.
type Curve struct {
	xs []float64
	ys []float64
	m  []float64 // second derivative at each knot
}

// NewCurve fits a spline of the given order through (xs[i], ys[i]).
// xs must be strictly increasing with at least two knots.
func NewCurve(xs, ys []float64, order int) (*Curve, error) {
	if len(xs) != len(ys) {
		return nil, &GridError{Reason: fmt.Sprintf("%d knots but %d values", len(xs), len(ys))}
	}
	g, err := curvatureOperator(xs, order)
	if err != nil {
		return nil, err
	}

	c := &Curve{
		xs: append([]float64(nil), xs...),
		ys: append([]float64(nil), ys...),
		m:  make([]float64, len(xs)),
	}
	if g != nil {
		mat.NewVecDense(len(c.m), c.m).MulVec(g, mat.NewVecDense(len(ys), c.ys))
	}
	return c, nil
}

// Predict returns the spline value at x.
func (c *Curve) Predict(x float64) float64 { return c.Eval(x, 0) }

// PredictDerivative returns the first derivative at x.
func (c *Curve) PredictDerivative(x float64) float64 { return c.Eval(x, 1) }

// PredictSecondDerivative returns the second derivative at x.
func (c *Curve) PredictSecondDerivative(x float64) float64 { return c.Eval(x, 2) }

// Domain returns the first and last knot.
func (c *Curve) Domain() (lo, hi float64) { return c.xs[0], c.xs[len(c.xs)-1] }

// Eval returns the deriv-th derivative (0, 1 or 2) at x.
func (c *Curve) Eval(x float64, deriv int) float64 {
	x, outside := clampTo(c.xs, x)
	if outside && deriv > 0 {
		return 0
	}
	k := segment(c.xs, x)
	a, b, cc, d := basis(c.xs, k, x, deriv)
	return a*c.ys[k] + b*c.ys[k+1] + cc*c.m[k] + d*c.m[k+1]
}

// validateKnots checks ordering and count.
func validateKnots(xs []float64) error {
	if len(xs) < 2 {
		return &GridError{Reason: fmt.Sprintf("need at least 2 knots, got %d", len(xs))}
	}
	for i := 1; i < len(xs); i++ {
		if !(xs[i] > xs[i-1]) {
			return &GridError{Reason: fmt.Sprintf("knots must be strictly increasing (index %d)", i)}
		}
	}
	return nil
}

// curvatureOperator returns G such that the knot second derivatives are G*y.
// Linear splines have no curvature and return a nil operator.
func curvatureOperator(xs []float64, order int) (*mat.Dense, error) {
	if err := validateKnots(xs); err != nil {
		return nil, err
	}
	switch order {
	case Linear:
		return nil, nil
	case Cubic:
	default:
		return nil, &GridError{Reason: fmt.Sprintf("unsupported spline order %d (want 1 or 3)", order)}
	}

	n := len(xs)
	a := mat.NewDense(n, n, nil)
	r := mat.NewDense(n, n, nil)

	// Natural end conditions: zero curvature at both ends.
	a.Set(0, 0, 1)
	a.Set(n-1, n-1, 1)
	for i := 1; i < n-1; i++ {
		h0 := xs[i] - xs[i-1]
		h1 := xs[i+1] - xs[i]
		a.Set(i, i-1, h0)
		a.Set(i, i, 2*(h0+h1))
		a.Set(i, i+1, h1)

		r.Set(i, i-1, 6/h0)
		r.Set(i, i, -6/h0-6/h1)
		r.Set(i, i+1, 6/h1)
	}

	var g mat.Dense
	if err := g.Solve(a, r); err != nil {
		return nil, fmt.Errorf("failed to solve spline system: %w", err)
	}
	return &g, nil
}

// clampTo holds x inside the knot range and reports whether it had to.
func clampTo(xs []float64, x float64) (float64, bool) {
	lo, hi := xs[0], xs[len(xs)-1]
	switch {
	case x < lo:
		return lo, true
	case x > hi:
		return hi, true
	}
	return x, false
}

// segment returns k such that xs[k] <= x <= xs[k+1], for x inside the range.
func segment(xs []float64, x float64) int {
	k := sort.SearchFloat64s(xs, x) - 1
	if k < 0 {
		k = 0
	}
	if k > len(xs)-2 {
		k = len(xs) - 2
	}
	return k
}

// basis returns the weights of y[k], y[k+1], m[k], m[k+1] for the deriv-th
// derivative of the cubic on segment k.
func basis(xs []float64, k int, x float64, deriv int) (a, b, c, d float64) {
	h := xs[k+1] - xs[k]
	b = (x - xs[k]) / h
	a = 1 - b

	switch deriv {
	case 0:
		return a, b, (a*a*a - a) * h * h / 6, (b*b*b - b) * h * h / 6
	case 1:
		return -1 / h, 1 / h, -(3*a*a - 1) * h / 6, (3*b*b - 1) * h / 6
	case 2:
		return 0, 0, a, b
	}
	panic(fmt.Sprintf("spline: unsupported derivative order %d", deriv))
}
