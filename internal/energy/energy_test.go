package energy

import (
	"math"
	"math/rand"
	"testing"

	"github.com/cwbudde/chargeanneal/internal/constants"
	"github.com/cwbudde/chargeanneal/internal/coords"
	"github.com/cwbudde/chargeanneal/internal/field"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// flat is a field with zero potential everywhere.
type flat struct{}

func (flat) V(x, y []float64) []float64      { return make([]float64, len(x)) }
func (flat) DVDX(x, y []float64) []float64   { return make([]float64, len(x)) }
func (flat) D2VDX2(x, y []float64) []float64 { return make([]float64, len(x)) }
func (flat) DVDY(x, y []float64) []float64   { return make([]float64, len(x)) }
func (flat) D2VDY2(x, y []float64) []float64 { return make([]float64, len(x)) }

func trapSurface(t *testing.T) *field.Surface {
	t.Helper()
	xs := floats.Span(make([]float64, 81), -4e-6, 4e-6)
	ys := floats.Span(make([]float64, 81), -4e-6, 4e-6)
	z := mat.NewDense(len(xs), len(ys), nil)
	for i, x := range xs {
		for j, y := range ys {
			z.Set(i, j, 2e10*x*x+1e10*y*y+3e3*x*y)
		}
	}
	s, err := field.FitSurface(xs, ys, z, field.DefaultFitOptions())
	require.NoError(t, err)
	return s
}

func trapWire(t *testing.T, length float64) *field.Wire {
	t.Helper()
	xs := floats.Span(make([]float64, 81), -4e-6, 4e-6)
	pot := make([]float64, len(xs))
	for i, x := range xs {
		pot[i] = 5e10*x*x + 1e3*x
	}
	w, err := field.FitWire(xs, pot, nil, length, field.DefaultFitOptions())
	require.NoError(t, err)
	return w
}

// spread returns n charges on a jittered lattice so no two are close.
func spread(rng *rand.Rand, n int, pitch float64) []float64 {
	r := make([]float64, 2*n)
	side := int(math.Ceil(math.Sqrt(float64(n))))
	for k := 0; k < n; k++ {
		i, j := k%side, k/side
		r[2*k] = (float64(i)-float64(side-1)/2)*pitch + 0.2*pitch*(rng.Float64()-0.5)
		r[2*k+1] = (float64(j)-float64(side-1)/2)*pitch + 0.2*pitch*(rng.Float64()-0.5)
	}
	return r
}

func assertGradientMatches(t *testing.T, m *Model, r []float64) {
	t.Helper()
	analytic := m.GradientOf(r)
	numeric := fd.Gradient(nil, m.Energy, r, &fd.Settings{
		Formula: fd.Central,
		Step:    1e-12,
	})

	scale := floats.Norm(numeric, math.Inf(1))
	require.NotZero(t, scale)
	for i := range r {
		assert.InDelta(t, numeric[i], analytic[i], 1e-4*scale, "component %d", i)
	}
}

func TestGradientMatchesFiniteDifferenceSurface(t *testing.T) {
	m := NewModel(trapSurface(t))
	rng := rand.New(rand.NewSource(7))

	for _, n := range []int{2, 5, 9} {
		assertGradientMatches(t, m, spread(rng, n, 0.8e-6))
	}
}

func TestGradientMatchesFiniteDifferenceWire(t *testing.T) {
	m := NewWireModel(trapWire(t, 6e-6))
	require.True(t, m.Pairs.Periodic)

	// Charges straddle the periodic boundary so both image branches are used.
	r := []float64{
		0.1e-6, -2.6e-6,
		-0.3e-6, 2.5e-6,
		0.4e-6, 0.2e-6,
		-0.2e-6, -1.1e-6,
		0.25e-6, 1.4e-6,
	}
	assertGradientMatches(t, m, r)
}

func TestGradientParallelMatchesSerial(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	xs, ys := coords.Decode(spread(rng, 16, 1e-6))

	serial := Interaction{Periodic: true, Length: 5e-6}
	parallel := serial
	parallel.Workers = 4

	assert.Equal(t, serial.Gradient(xs, ys), parallel.Gradient(xs, ys))
}

func TestTwoChargesInZeroField(t *testing.T) {
	m := NewModel(flat{})
	r := []float64{0, 0, 1e-6, 0}

	want := constants.Coulomb * constants.ElementaryCharge / 1e-6
	assert.InEpsilon(t, want, m.Energy(r), 1e-12)

	g := m.GradientOf(r)
	assert.Greater(t, g[0], 0.0, "descent moves the left charge further left")
	assert.Less(t, g[2], 0.0, "descent moves the right charge further right")
	assert.InEpsilon(t, -g[0], g[2], 1e-12)
	assert.Zero(t, g[1])
	assert.Zero(t, g[3])

	wantForce := constants.Coulomb * constants.ElementaryCharge / (1e-6 * 1e-6)
	assert.InEpsilon(t, wantForce, g[0], 1e-12)
}

func TestSingleChargeHasNoPairContribution(t *testing.T) {
	for _, in := range []Interaction{{}, {Periodic: true, Length: 1e-5}} {
		x, y := []float64{1e-6}, []float64{3e-6}
		assert.Equal(t, 0.0, in.Energy(x, y))
		assert.Equal(t, []float64{0, 0}, in.Gradient(x, y))
	}

	m := NewModel(flat{})
	assert.Equal(t, 0.0, m.Energy([]float64{1e-6, 3e-6}))
	assert.Equal(t, []float64{0, 0}, m.GradientOf([]float64{1e-6, 3e-6}))
}

func TestNoChargesHasZeroEnergy(t *testing.T) {
	m := NewModel(flat{})
	assert.Equal(t, 0.0, m.Energy(nil))
	assert.Empty(t, m.GradientOf(nil))
}

func TestDiagonalMustBeZeroed(t *testing.T) {
	in := Interaction{}
	x := []float64{0, 1e-6, 0}
	y := []float64{0, 0, 1e-6}

	e := in.EnergyMatrix(x, y)
	raw := mat.Sum(e)
	for i := 0; i < 3; i++ {
		assert.InEpsilon(t, constants.PairPrefactor/(2*DiagonalEpsilon), e.At(i, i), 1e-12)
	}

	ZeroDiagonal(e)
	zeroed := mat.Sum(e)
	assert.NotEqual(t, raw, zeroed)
	assert.InEpsilon(t, in.Energy(x, y), zeroed, 1e-15)

	want := constants.PairPrefactor * (1/1e-6 + 1/1e-6 + 1/(math.Sqrt2*1e-6))
	assert.InEpsilon(t, want, zeroed, 1e-12)
}

func TestPeriodicMinimumImage(t *testing.T) {
	const length = 40e-6
	in := Interaction{Periodic: true, Length: length}
	x := []float64{0, 0}
	y := []float64{-15e-6, 15e-6}

	direct := Interaction{}.Distances(x, y).At(0, 1)
	wrapped := in.Distances(x, y).At(0, 1)

	assert.InDelta(t, 30e-6, direct, 1e-18)
	assert.Less(t, wrapped, direct)
	assert.InDelta(t, 10e-6, wrapped, 1e-18)
	assert.Equal(t, DiagonalEpsilon, in.Distances(x, y).At(1, 1))

	// Separations under half a period are left alone.
	near := in.Distances([]float64{0, 0}, []float64{-5e-6, 5e-6}).At(0, 1)
	assert.InDelta(t, 10e-6, near, 1e-18)
}

func TestPeriodicGradientUsesImage(t *testing.T) {
	in := Interaction{Periodic: true, Length: 40e-6}
	g := in.Gradient([]float64{0, 0}, []float64{-15e-6, 15e-6})

	// Through the boundary the upper charge sits just below the lower one,
	// so the lower charge is pushed up (descent along -g) and vice versa.
	assert.Less(t, g[1], 0.0)
	assert.Greater(t, g[3], 0.0)
	assert.InEpsilon(t, constants.PairPrefactor/(10e-6*10e-6), -g[1], 1e-9)
}

func TestPeriodicWrapsOutOfDomainCoordinates(t *testing.T) {
	in := Interaction{Periodic: true, Length: 40e-6}
	a := in.Energy([]float64{0, 0}, []float64{-15e-6, 15e-6})
	b := in.Energy([]float64{0, 0}, []float64{25e-6, 15e-6})
	assert.InEpsilon(t, a, b, 1e-9)
}

func TestBreakdownSumsToEnergy(t *testing.T) {
	m := NewModel(trapSurface(t))
	r := spread(rand.New(rand.NewSource(11)), 4, 1e-6)

	fe, pe := m.Breakdown(r)
	assert.InEpsilon(t, m.Energy(r), fe+pe, 1e-12)
	assert.Greater(t, pe, 0.0)
}

func TestProblemWiring(t *testing.T) {
	m := NewModel(trapSurface(t))
	p := m.Problem()
	r := []float64{0.5e-6, 0.1e-6, -0.5e-6, -0.1e-6}

	assert.Equal(t, m.Energy(r), p.Func(r))
	grad := make([]float64, len(r))
	p.Grad(grad, r)
	assert.Equal(t, m.GradientOf(r), grad)
}
