// Package field wraps a fitted electrostatic potential and exposes its value
// and partial derivatives at arbitrary charge positions.
//
// Potentials are energy landscapes in eV per elementary charge (-e*V_ext),
// coordinates are in metres.
package field

import (
	"fmt"

	"github.com/cwbudde/chargeanneal/internal/spline"
)

// Field is the capability set shared by all potential variants. Every method
// takes equal-length coordinate sequences and returns one value per charge.
type Field interface {
	V(x, y []float64) []float64
	DVDX(x, y []float64) []float64
	D2VDX2(x, y []float64) []float64
	DVDY(x, y []float64) []float64
	D2VDY2(x, y []float64) []float64
}

// FitOptions controls the interpolant built from grid samples.
type FitOptions struct {
	// OrderX and OrderY select linear (1) or cubic (3) interpolation per axis.
	OrderX int
	OrderY int

	// Smoothing must be 0; only interpolating splines are supported.
	Smoothing float64
}

// DefaultFitOptions returns cubic interpolation along both axes.
func DefaultFitOptions() FitOptions {
	return FitOptions{
		OrderX: spline.Cubic,
		OrderY: spline.Cubic,
	}
}

// Validate checks the options before fitting.
func (o FitOptions) Validate() error {
	if o.OrderX != spline.Linear && o.OrderX != spline.Cubic {
		return &ValidationError{Field: "OrderX", Reason: fmt.Sprintf("must be 1 or 3, got %d", o.OrderX)}
	}
	if o.OrderY != spline.Linear && o.OrderY != spline.Cubic {
		return &ValidationError{Field: "OrderY", Reason: fmt.Sprintf("must be 1 or 3, got %d", o.OrderY)}
	}
	if o.Smoothing != 0 {
		return &ValidationError{Field: "Smoothing", Reason: "smoothing splines are not supported, use 0"}
	}
	return nil
}

// ValidationError reports bad field input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "field validation error: " + e.Field + " " + e.Reason
}

func mustMatch(x, y []float64) {
	if len(x) != len(y) {
		panic(fmt.Sprintf("field: coordinate lengths must match (x=%d, y=%d)", len(x), len(y)))
	}
}
