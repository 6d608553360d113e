package analysis

import (
	"testing"

	"github.com/cwbudde/chargeanneal/internal/coords"
	"github.com/cwbudde/chargeanneal/internal/energy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElectronDensitySquareLattice(t *testing.T) {
	const a = 2e-6
	var r []float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r = append(r, float64(i)*a, float64(j)*a)
		}
	}

	ns, err := ElectronDensity(r)
	require.NoError(t, err)
	assert.InEpsilon(t, 1/(a*a), ns, 1e-12)
}

func TestElectronDensityUnevenSpacing(t *testing.T) {
	// Nearest neighbours are 1, 1 and 3 µm apart.
	r := []float64{0, 0, 1e-6, 0, 4e-6, 0}
	ns, err := ElectronDensity(r)
	require.NoError(t, err)

	mean := (1e-6 + 1e-6 + 3e-6) / 3
	assert.InEpsilon(t, 1/(mean*mean), ns, 1e-12)
}

func TestElectronDensityErrors(t *testing.T) {
	_, err := ElectronDensity([]float64{0, 0})
	assert.ErrorIs(t, err, ErrTooFewCharges)

	_, err = ElectronDensity([]float64{0, 0, 1})
	assert.ErrorIs(t, err, coords.ErrShapeMismatch)
}

func TestPeriodicDensityUsesImage(t *testing.T) {
	// 1 µm apart across a 10 µm period, 9 µm apart otherwise.
	r := []float64{0, -4.5e-6, 0, 4.5e-6}
	in := energy.Interaction{Periodic: true, Length: 10e-6}

	ns, err := Density(in, r)
	require.NoError(t, err)
	assert.InEpsilon(t, 1/(1e-6*1e-6), ns, 1e-9)

	plain, err := ElectronDensity(r)
	require.NoError(t, err)
	assert.Less(t, plain, ns)
}

func TestTrappedElectrons(t *testing.T) {
	r := []float64{
		-5e-6, 0,
		-4e-6, 0, // on the boundary, excluded
		-3e-6, 1e-6,
		-2e-6, -1e-6,
		0, 0,
	}
	assert.Equal(t, 2, TrappedElectrons(r, coords.Bounds{Lo: -4e-6, Hi: -1.8e-6}))
	assert.Equal(t, 0, TrappedElectrons(nil, coords.Bounds{Lo: -1, Hi: 1}))
}

func TestSummarize(t *testing.T) {
	r := []float64{0, 0, 1e-6, 0}

	s, err := Summarize(energy.Interaction{}, r, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Charges)
	assert.InEpsilon(t, 1e-6, s.MeanSpacing, 1e-12)
	assert.Nil(t, s.Trapped)

	s, err = Summarize(energy.Interaction{}, r, &coords.Bounds{Lo: -1e-7, Hi: 1e-7})
	require.NoError(t, err)
	require.NotNil(t, s.Trapped)
	assert.Equal(t, 1, *s.Trapped)

	s, err = Summarize(energy.Interaction{}, []float64{1, 1}, nil)
	require.NoError(t, err)
	assert.Zero(t, s.Density)
}
