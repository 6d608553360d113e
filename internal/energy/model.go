package energy

import (
	"github.com/cwbudde/chargeanneal/internal/constants"
	"github.com/cwbudde/chargeanneal/internal/coords"
	"github.com/cwbudde/chargeanneal/internal/field"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// Model is the total energy of N charges in an external field, in eV.
// It holds no mutable state and is safe for concurrent use as long as callers
// pass distinct position vectors.
type Model struct {
	Field field.Field
	Pairs Interaction
}

// NewModel combines a field with a non-periodic interaction.
func NewModel(f field.Field) *Model {
	return &Model{Field: f}
}

// NewWireModel uses the wire's period for the minimum-image interaction.
func NewWireModel(w *field.Wire) *Model {
	return &Model{
		Field: w,
		Pairs: Interaction{Periodic: true, Length: w.Length()},
	}
}

// Energy returns the field energy plus pair repulsion of the charges encoded
// in r, divided by the elementary charge.
func (m *Model) Energy(r []float64) float64 {
	x, y := coords.Decode(r)
	total := constants.ElementaryCharge * floats.Sum(m.Field.V(x, y))
	total += m.Pairs.Energy(x, y)
	return total / constants.ElementaryCharge
}

// Gradient writes dEnergy/dr into grad, which must have the length of r.
func (m *Model) Gradient(grad, r []float64) {
	if len(grad) != len(r) {
		panic("energy: gradient length mismatch")
	}
	x, y := coords.Decode(r)
	dx := m.Field.DVDX(x, y)
	dy := m.Field.DVDY(x, y)
	pair := m.Pairs.Gradient(x, y)

	for i := range x {
		grad[2*i] = dx[i] + pair[2*i]/constants.ElementaryCharge
		grad[2*i+1] = dy[i] + pair[2*i+1]/constants.ElementaryCharge
	}
}

// GradientOf allocates and returns the gradient at r.
func (m *Model) GradientOf(r []float64) []float64 {
	grad := make([]float64, len(r))
	m.Gradient(grad, r)
	return grad
}

// Breakdown splits the energy at r into its field and pair parts, in eV.
func (m *Model) Breakdown(r []float64) (fieldEnergy, pairEnergy float64) {
	x, y := coords.Decode(r)
	return floats.Sum(m.Field.V(x, y)), m.Pairs.Energy(x, y) / constants.ElementaryCharge
}

// Problem exposes the model as a gonum optimization problem.
func (m *Model) Problem() optimize.Problem {
	return optimize.Problem{
		Func: m.Energy,
		Grad: m.Gradient,
	}
}
