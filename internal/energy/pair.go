// Package energy builds the cost function minimized to find equilibrium
// charge configurations: the external field energy plus the pairwise Coulomb
// repulsion, together with their analytic gradient.
package energy

import (
	"math"

	"github.com/cwbudde/chargeanneal/internal/constants"
	"github.com/cwbudde/chargeanneal/internal/coords"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// DiagonalEpsilon replaces the self-distance of every charge before the
// distance matrix is inverted. Its value is irrelevant as long as it is
// non-zero; self-energy is zeroed before summation.
const DiagonalEpsilon = 1e-15

// Interaction is the pairwise Coulomb repulsion between N identical charges.
//
// With Periodic set, y is taken modulo Length on [-Length/2, Length/2) and
// separations follow the minimum-image rule.
type Interaction struct {
	Periodic bool
	Length   float64

	// Workers > 1 evaluates gradient rows concurrently.
	Workers int
}

// shift moves the upper half of the periodic box down by one period.
func (in Interaction) shift(y float64) float64 {
	if y > 0 {
		return y - in.Length
	}
	return y
}

// wrap maps y into the periodic box; it is the identity when not periodic.
func (in Interaction) wrap(y []float64) []float64 {
	if !in.Periodic {
		return y
	}
	return coords.WrapAll(y, -in.Length/2, in.Length/2)
}

// separation returns the displacement of charge i relative to charge j and
// their distance. For periodic interactions the shifted y displacement is used
// whenever it gives a strictly shorter distance.
func (in Interaction) separation(xi, yi, xj, yj float64) (dx, dy, r float64) {
	dx = xi - xj
	dy = yi - yj
	r = math.Hypot(dx, dy)

	if in.Periodic {
		dys := in.shift(yi) - in.shift(yj)
		if rs := math.Hypot(dx, dys); rs < r {
			dy, r = dys, rs
		}
	}
	return dx, dy, math.Max(r, DiagonalEpsilon)
}

// Distances returns the symmetric matrix of pair separations with
// DiagonalEpsilon on the diagonal. x and y must be non-empty and of equal length.
func (in Interaction) Distances(x, y []float64) *mat.SymDense {
	n := len(x)
	y = in.wrap(y)

	d := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		d.SetSym(i, i, DiagonalEpsilon)
		for j := i + 1; j < n; j++ {
			_, _, r := in.separation(x[i], y[i], x[j], y[j])
			d.SetSym(i, j, r)
		}
	}
	return d
}

// EnergyMatrix returns k*q^2/(2*r_ij) in joule for every pair, counting each
// pair twice. The diagonal still holds the placeholder self-energy; callers
// must ZeroDiagonal before summing.
func (in Interaction) EnergyMatrix(x, y []float64) *mat.Dense {
	n := len(x)
	d := in.Distances(x, y)

	e := mat.NewDense(n, n, nil)
	e.Apply(func(_, _ int, r float64) float64 {
		return constants.PairPrefactor / (2 * r)
	}, d)
	return e
}

// ZeroDiagonal clears the self-energy entries of a square matrix in place.
func ZeroDiagonal(m *mat.Dense) {
	n, _ := m.Dims()
	for i := 0; i < n; i++ {
		m.Set(i, i, 0)
	}
}

// Energy returns the total pair repulsion in joule.
func (in Interaction) Energy(x, y []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	e := in.EnergyMatrix(x, y)
	ZeroDiagonal(e)
	return mat.Sum(e)
}

// Gradient returns dE/dr in joule per metre, interleaved like a position
// vector.
func (in Interaction) Gradient(x, y []float64) []float64 {
	n := len(x)
	grad := make([]float64, 2*n)
	if n < 2 {
		return grad
	}
	y = in.wrap(y)

	row := func(i int) {
		var gx, gy float64
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			dx, dy, r := in.separation(x[i], y[i], x[j], y[j])
			r3 := r * r * r
			gx -= constants.PairPrefactor * dx / r3
			gy -= constants.PairPrefactor * dy / r3
		}
		grad[2*i] = gx
		grad[2*i+1] = gy
	}

	if in.Workers <= 1 {
		for i := 0; i < n; i++ {
			row(i)
		}
		return grad
	}

	var g errgroup.Group
	g.SetLimit(in.Workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			row(i)
			return nil
		})
	}
	g.Wait()
	return grad
}
