// Package coords converts between the interleaved position vector handed to
// the minimizer and the separate x/y coordinate sequences used by the field
// and interaction code.
//
// A position vector for N charges has length 2N: r = [x0, y0, x1, y1, ...].
package coords

import (
	"fmt"
	"math"
)

// ErrShapeMismatch is returned when coordinate sequences of unequal length are
// combined. Use errors.Is(err, ErrShapeMismatch) to check for it.
var ErrShapeMismatch = &ShapeMismatchError{}

// ShapeMismatchError reports the offending lengths.
type ShapeMismatchError struct {
	LenX, LenY int
}

func (e *ShapeMismatchError) Error() string {
	if e.LenX == 0 && e.LenY == 0 {
		return "shape mismatch"
	}
	return fmt.Sprintf("shape mismatch: x has %d elements, y has %d", e.LenX, e.LenY)
}

func (e *ShapeMismatchError) Is(target error) bool {
	_, ok := target.(*ShapeMismatchError)
	return ok
}

// Decode splits r into its x (even indices) and y (odd indices) sequences.
// The returned slices are fresh copies; r is not retained.
func Decode(r []float64) (x, y []float64) {
	n := len(r) / 2
	x = make([]float64, n)
	y = make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = r[2*i]
		y[i] = r[2*i+1]
	}
	return x, y
}

// DecodeChecked is Decode for vectors of untrusted length.
func DecodeChecked(r []float64) (x, y []float64, err error) {
	if len(r)%2 != 0 {
		return nil, nil, &ShapeMismatchError{LenX: (len(r) + 1) / 2, LenY: len(r) / 2}
	}
	x, y = Decode(r)
	return x, y, nil
}

// Encode interleaves x and y into a position vector.
func Encode(x, y []float64) ([]float64, error) {
	if len(x) != len(y) {
		return nil, &ShapeMismatchError{LenX: len(x), LenY: len(y)}
	}
	r := make([]float64, 2*len(x))
	for i := range x {
		r[2*i] = x[i]
		r[2*i+1] = y[i]
	}
	return r, nil
}

// Count returns the number of charges encoded in r.
func Count(r []float64) int { return len(r) / 2 }

// Bounds is a closed interval [Lo, Hi].
type Bounds struct {
	Lo, Hi float64
}

// Width returns Hi - Lo.
func (b Bounds) Width() float64 { return b.Hi - b.Lo }

// Validate rejects empty or inverted intervals.
func (b Bounds) Validate() error {
	if !(b.Hi > b.Lo) {
		return fmt.Errorf("invalid bounds [%g, %g]", b.Lo, b.Hi)
	}
	return nil
}

// WrapInto maps v periodically into [lo, hi). Values already inside are
// returned unchanged.
func WrapInto(v, lo, hi float64) float64 {
	w := hi - lo
	m := math.Mod(v-lo, w)
	if m < 0 {
		m += w
	}
	return lo + m
}

// WrapAll applies WrapInto element-wise and returns a new slice.
func WrapAll(vs []float64, lo, hi float64) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = WrapInto(v, lo, hi)
	}
	return out
}

// MapIntoDomain brings charges that left the simulation box back inside.
// x is mirrored at the boundaries (a charge crossing the right edge by d ends
// up d inside it); y is clamped to its bounds. New slices are returned.
func MapIntoDomain(x, y []float64, xb, yb Bounds) ([]float64, []float64, error) {
	if len(x) != len(y) {
		return nil, nil, &ShapeMismatchError{LenX: len(x), LenY: len(y)}
	}
	if err := xb.Validate(); err != nil {
		return nil, nil, err
	}
	if err := yb.Validate(); err != nil {
		return nil, nil, err
	}

	l := xb.Width()
	xo := make([]float64, len(x))
	yo := make([]float64, len(y))
	for i := range x {
		m := math.Mod(x[i]-xb.Hi, 2*l)
		if m < 0 {
			m += 2 * l
		}
		xo[i] = math.Abs(l-m) + xb.Lo
		yo[i] = math.Max(yb.Lo, math.Min(yb.Hi, y[i]))
	}
	return xo, yo, nil
}
