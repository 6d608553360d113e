// Package constants holds the SI constants shared by every component that
// converts between field energies, Coulomb repulsion and temperature.
package constants

import "math"

const (
	// ElementaryCharge in coulomb.
	ElementaryCharge = 1.602e-19

	// VacuumPermittivity in farad per metre.
	VacuumPermittivity = 8.85e-12

	// Boltzmann constant in joule per kelvin.
	Boltzmann = 1.38e-23
)

// Coulomb is k = 1/(4 pi eps0).
var Coulomb = 1 / (4 * math.Pi * VacuumPermittivity)

// PairPrefactor is k*qe^2, the numerator of the pair energy k*qe^2/r in joule metre.
var PairPrefactor = ElementaryCharge * ElementaryCharge * Coulomb
