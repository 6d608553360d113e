package field

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/chargeanneal/internal/spline"
)

// Wire is a potential that only varies across a channel (x) and is
// translation invariant along it (y). Charges live on a ring of circumference
// Length, so y is periodic on [-Length/2, Length/2).
type Wire struct {
	potential  *spline.Curve
	derivative *spline.Curve
	length     float64
}

var _ Field = (*Wire)(nil)

// FitWire fits the potential sampled at xs. derivative may be nil; when given
// it holds samples of dV/dx at the same xs and is used for DVDX directly.
func FitWire(xs, potential, derivative []float64, length float64, opts FitOptions) (*Wire, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if !(length > 0) {
		return nil, &ValidationError{Field: "Length", Reason: fmt.Sprintf("must be positive, got %g", length)}
	}

	p, err := spline.NewCurve(xs, potential, opts.OrderX)
	if err != nil {
		return nil, fmt.Errorf("failed to fit wire potential: %w", err)
	}

	w := &Wire{potential: p, length: length}
	if derivative != nil {
		d, err := spline.NewCurve(xs, derivative, opts.OrderX)
		if err != nil {
			return nil, fmt.Errorf("failed to fit wire field derivative: %w", err)
		}
		w.derivative = d
	}

	slog.Debug("Fitted wire potential",
		"n", len(xs),
		"order", opts.OrderX,
		"length", length,
		"derivative_data", derivative != nil,
	)
	return w, nil
}

// Length returns the period along y.
func (w *Wire) Length() float64 { return w.length }

// YBounds returns the periodic y interval.
func (w *Wire) YBounds() (lo, hi float64) { return -w.length / 2, w.length / 2 }

// Domain returns the sampled x range and the periodic y interval.
func (w *Wire) Domain() (xlo, xhi, ylo, yhi float64) {
	xlo, xhi = w.potential.Domain()
	ylo, yhi = w.YBounds()
	return xlo, xhi, ylo, yhi
}

func evalCurve(c *spline.Curve, x []float64, deriv int) []float64 {
	out := make([]float64, len(x))
	for i, xi := range x {
		out[i] = c.Eval(xi, deriv)
	}
	return out
}

func (w *Wire) V(x, y []float64) []float64 {
	mustMatch(x, y)
	return evalCurve(w.potential, x, 0)
}

func (w *Wire) DVDX(x, y []float64) []float64 {
	mustMatch(x, y)
	if w.derivative != nil {
		return evalCurve(w.derivative, x, 0)
	}
	return evalCurve(w.potential, x, 1)
}

func (w *Wire) D2VDX2(x, y []float64) []float64 {
	mustMatch(x, y)
	return evalCurve(w.potential, x, 2)
}

func (w *Wire) DVDY(x, y []float64) []float64 {
	mustMatch(x, y)
	return make([]float64, len(x))
}

func (w *Wire) D2VDY2(x, y []float64) []float64 {
	mustMatch(x, y)
	return make([]float64, len(x))
}
