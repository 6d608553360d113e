// Package analysis derives summary quantities from a solved configuration.
package analysis

import (
	"errors"
	"math"

	"github.com/cwbudde/chargeanneal/internal/coords"
	"github.com/cwbudde/chargeanneal/internal/energy"
	"gonum.org/v1/gonum/stat"
)

// ErrTooFewCharges is returned when a quantity needs at least two charges.
var ErrTooFewCharges = errors.New("need at least two charges")

// NearestNeighbours returns, for each charge, the distance to its closest
// neighbour under the given interaction's distance rule.
func NearestNeighbours(in energy.Interaction, x, y []float64) []float64 {
	n := len(x)
	d := in.Distances(x, y)
	nn := make([]float64, n)
	for i := 0; i < n; i++ {
		nn[i] = math.Inf(1)
		for j := 0; j < n; j++ {
			if i != j {
				nn[i] = math.Min(nn[i], d.At(i, j))
			}
		}
	}
	return nn
}

// ElectronDensity estimates the areal density in m^-2 as 1/mean(nn)^2, where
// nn are plain Euclidean nearest-neighbour distances.
func ElectronDensity(r []float64) (float64, error) {
	return Density(energy.Interaction{}, r)
}

// Density is ElectronDensity with a caller-chosen distance rule, so periodic
// systems can count neighbours across the boundary.
func Density(in energy.Interaction, r []float64) (float64, error) {
	x, y, err := coords.DecodeChecked(r)
	if err != nil {
		return 0, err
	}
	if len(x) < 2 {
		return 0, ErrTooFewCharges
	}
	mean := stat.Mean(NearestNeighbours(in, x, y), nil)
	return 1 / (mean * mean), nil
}

// TrappedElectrons counts charges with window.Lo < x < window.Hi.
func TrappedElectrons(r []float64, window coords.Bounds) int {
	x, _ := coords.Decode(r)
	var n int
	for _, v := range x {
		if v > window.Lo && v < window.Hi {
			n++
		}
	}
	return n
}

// Summary collects the post-processing results written with a solution.
type Summary struct {
	Charges     int     `json:"charges"`
	Density     float64 `json:"density_per_m2,omitempty"`
	MeanSpacing float64 `json:"mean_spacing_m,omitempty"`
	Trapped     *int    `json:"trapped,omitempty"`
}

// Summarize computes a Summary. The trapped count is only filled in when
// window is non-nil.
func Summarize(in energy.Interaction, r []float64, window *coords.Bounds) (Summary, error) {
	x, y, err := coords.DecodeChecked(r)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{Charges: len(x)}
	if len(x) >= 2 {
		s.MeanSpacing = stat.Mean(NearestNeighbours(in, x, y), nil)
		s.Density = 1 / (s.MeanSpacing * s.MeanSpacing)
	}
	if window != nil {
		n := TrappedElectrons(r, *window)
		s.Trapped = &n
	}
	return s, nil
}
