package opt

import (
	"fmt"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflySeeder wraps the external Mayfly library to search a bounding box
// for a good starting point before local minimization.
type MayflySeeder struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayflySeeder creates a new seeder. Mayfly v0.1.0 needs popSize >= 20.
func NewMayflySeeder(maxIters, popSize int, seed int64) *MayflySeeder {
	return &MayflySeeder{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Seed minimizes eval over the box [lower, upper] and returns the best point
// and its value.
//
// Mayfly only supports scalar bounds, so the search runs in the unit cube and
// every candidate is mapped onto the box before evaluation.
func (m *MayflySeeder) Seed(eval func([]float64) float64, lower, upper []float64) ([]float64, float64, error) {
	if len(lower) != len(upper) || len(lower) == 0 {
		return nil, 0, fmt.Errorf("invalid bounds: %d lower, %d upper", len(lower), len(upper))
	}
	dim := len(lower)

	toBox := func(u []float64) []float64 {
		x := make([]float64, dim)
		for i := range x {
			x[i] = lower[i] + u[i]*(upper[i]-lower[i])
		}
		return x
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(u []float64) float64 { return eval(toBox(u)) }
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return nil, 0, fmt.Errorf("mayfly search failed: %w", err)
	}

	return toBox(result.GlobalBest.Position), result.GlobalBest.Cost, nil
}
