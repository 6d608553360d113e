package field

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/chargeanneal/internal/spline"
	"gonum.org/v1/gonum/mat"
)

// Surface is an unconstrained 2D potential backed by a bivariate spline.
type Surface struct {
	interp *spline.Surface
}

var _ Field = (*Surface)(nil)

// FitSurface fits the samples values[i][j] taken at (xs[i], ys[j]).
func FitSurface(xs, ys []float64, values mat.Matrix, opts FitOptions) (*Surface, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	s, err := spline.NewSurface(xs, ys, values, opts.OrderX, opts.OrderY)
	if err != nil {
		return nil, fmt.Errorf("failed to fit surface: %w", err)
	}

	slog.Debug("Fitted surface potential",
		"nx", len(xs),
		"ny", len(ys),
		"order_x", opts.OrderX,
		"order_y", opts.OrderY,
	)
	return &Surface{interp: s}, nil
}

// Domain returns the extent of the sampled grid.
func (s *Surface) Domain() (xlo, xhi, ylo, yhi float64) { return s.interp.Domain() }

func (s *Surface) eval(x, y []float64, dx, dy int) []float64 {
	mustMatch(x, y)
	out := make([]float64, len(x))
	for i := range x {
		out[i] = s.interp.Eval(x[i], y[i], dx, dy)
	}
	return out
}

func (s *Surface) V(x, y []float64) []float64      { return s.eval(x, y, 0, 0) }
func (s *Surface) DVDX(x, y []float64) []float64   { return s.eval(x, y, 1, 0) }
func (s *Surface) D2VDX2(x, y []float64) []float64 { return s.eval(x, y, 2, 0) }
func (s *Surface) DVDY(x, y []float64) []float64   { return s.eval(x, y, 0, 1) }
func (s *Surface) D2VDY2(x, y []float64) []float64 { return s.eval(x, y, 0, 2) }
