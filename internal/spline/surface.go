package spline

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Surface is a tensor-product spline over a rectangular grid.
//
// Besides the samples z it stores the curvature fields zxx = Gx*z,
// zyy = z*Gy^T and zxxyy = Gx*z*Gy^T so that any point and any derivative
// up to second order per axis is evaluated from the four surrounding knots.
type Surface struct {
	xs, ys []float64
	z      *mat.Dense
	zxx    *mat.Dense
	zyy    *mat.Dense
	zxxyy  *mat.Dense
}

// NewSurface fits z (len(xs) rows by len(ys) columns, z[i][j] sampled at
// (xs[i], ys[j])) with independent spline orders along x and y.
func NewSurface(xs, ys []float64, z mat.Matrix, kx, ky int) (*Surface, error) {
	r, c := z.Dims()
	if r != len(xs) || c != len(ys) {
		return nil, &GridError{Reason: fmt.Sprintf("values are %dx%d but grid is %dx%d", r, c, len(xs), len(ys))}
	}

	gx, err := curvatureOperator(xs, kx)
	if err != nil {
		return nil, fmt.Errorf("x axis: %w", err)
	}
	gy, err := curvatureOperator(ys, ky)
	if err != nil {
		return nil, fmt.Errorf("y axis: %w", err)
	}

	s := &Surface{
		xs:    append([]float64(nil), xs...),
		ys:    append([]float64(nil), ys...),
		z:     mat.DenseCopyOf(z),
		zxx:   mat.NewDense(r, c, nil),
		zyy:   mat.NewDense(r, c, nil),
		zxxyy: mat.NewDense(r, c, nil),
	}
	if gx != nil {
		s.zxx.Mul(gx, s.z)
	}
	if gy != nil {
		s.zyy.Mul(s.z, gy.T())
		if gx != nil {
			s.zxxyy.Mul(s.zxx, gy.T())
		}
	}
	return s, nil
}

// Domain returns the grid extent.
func (s *Surface) Domain() (xlo, xhi, ylo, yhi float64) {
	return s.xs[0], s.xs[len(s.xs)-1], s.ys[0], s.ys[len(s.ys)-1]
}

// Eval returns d^(dx+dy) f / dx^dx dy^dy at (x, y), with dx, dy in {0, 1, 2}.
func (s *Surface) Eval(x, y float64, dx, dy int) float64 {
	x, ox := clampTo(s.xs, x)
	y, oy := clampTo(s.ys, y)
	if (ox && dx > 0) || (oy && dy > 0) {
		return 0
	}

	k := segment(s.xs, x)
	l := segment(s.ys, y)
	ax, bx, cx, ex := basis(s.xs, k, x, dx)
	ay, by, cy, ey := basis(s.ys, l, y, dy)

	wx := [2]float64{ax, bx}
	vx := [2]float64{cx, ex}
	wy := [2]float64{ay, by}
	vy := [2]float64{cy, ey}

	var f float64
	for p := 0; p < 2; p++ {
		i := k + p
		for q := 0; q < 2; q++ {
			j := l + q
			f += wx[p] * wy[q] * s.z.At(i, j)
			f += vx[p] * wy[q] * s.zxx.At(i, j)
			f += wx[p] * vy[q] * s.zyy.At(i, j)
			f += vx[p] * vy[q] * s.zxxyy.At(i, j)
		}
	}
	return f
}
