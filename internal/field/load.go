package field

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// SurfaceData is a rectangular grid of potential samples.
type SurfaceData struct {
	X      []float64
	Y      []float64
	Values *mat.Dense // len(X) rows, len(Y) columns
}

// WireData holds potential samples across the channel, optionally with the
// matching dV/dx samples.
type WireData struct {
	X          []float64
	Potential  []float64
	Derivative []float64 // nil when the file has no third column
}

// LoadSurfaceCSV reads a surface grid from a file. See ReadSurfaceCSV.
func LoadSurfaceCSV(path string) (*SurfaceData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open surface data: %w", err)
	}
	defer f.Close()
	return ReadSurfaceCSV(f)
}

// ReadSurfaceCSV parses rows of "x,y,V". Rows may come in any order but must
// cover every (x, y) combination of the grid exactly once. A leading header
// row is skipped.
func ReadSurfaceCSV(r io.Reader) (*SurfaceData, error) {
	rows, err := readNumericRows(r, 3, 3)
	if err != nil {
		return nil, err
	}

	xs := uniqueSorted(rows, 0)
	ys := uniqueSorted(rows, 1)
	if len(rows) != len(xs)*len(ys) {
		return nil, &ValidationError{
			Field:  "grid",
			Reason: fmt.Sprintf("%d samples do not form a %dx%d rectangular grid", len(rows), len(xs), len(ys)),
		}
	}

	xi := indexOf(xs)
	yi := indexOf(ys)
	values := mat.NewDense(len(xs), len(ys), nil)
	seen := make([]bool, len(xs)*len(ys))
	for _, row := range rows {
		i, j := xi[row[0]], yi[row[1]]
		if seen[i*len(ys)+j] {
			return nil, &ValidationError{Field: "grid", Reason: fmt.Sprintf("duplicate sample at (%g, %g)", row[0], row[1])}
		}
		seen[i*len(ys)+j] = true
		values.Set(i, j, row[2])
	}

	return &SurfaceData{X: xs, Y: ys, Values: values}, nil
}

// LoadWireCSV reads wire samples from a file. See ReadWireCSV.
func LoadWireCSV(path string) (*WireData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wire data: %w", err)
	}
	defer f.Close()
	return ReadWireCSV(f)
}

// ReadWireCSV parses rows of "x,V" or "x,V,dVdx", sorted by x on return.
func ReadWireCSV(r io.Reader) (*WireData, error) {
	rows, err := readNumericRows(r, 2, 3)
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(a, b int) bool { return rows[a][0] < rows[b][0] })

	withDerivative := len(rows[0]) == 3
	d := &WireData{
		X:         make([]float64, len(rows)),
		Potential: make([]float64, len(rows)),
	}
	if withDerivative {
		d.Derivative = make([]float64, len(rows))
	}
	for i, row := range rows {
		if len(row) != len(rows[0]) {
			return nil, &ValidationError{Field: "columns", Reason: "rows must all have the same number of columns"}
		}
		d.X[i] = row[0]
		d.Potential[i] = row[1]
		if withDerivative {
			d.Derivative[i] = row[2]
		}
	}
	return d, nil
}

func readNumericRows(r io.Reader, minCols, maxCols int) ([][]float64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	var rows [][]float64
	for n, rec := range records {
		if len(rec) < minCols || len(rec) > maxCols {
			return nil, &ValidationError{
				Field:  "columns",
				Reason: fmt.Sprintf("line %d has %d columns, want %d to %d", n+1, len(rec), minCols, maxCols),
			}
		}
		row := make([]float64, len(rec))
		ok := true
		for i, s := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				ok = false
				break
			}
			row[i] = v
		}
		if !ok {
			if n == 0 {
				continue // header
			}
			return nil, &ValidationError{Field: "value", Reason: fmt.Sprintf("line %d is not numeric", n+1)}
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, &ValidationError{Field: "rows", Reason: "no samples"}
	}
	return rows, nil
}

func uniqueSorted(rows [][]float64, col int) []float64 {
	set := make(map[float64]struct{}, len(rows))
	for _, row := range rows {
		set[row[col]] = struct{}{}
	}
	out := make([]float64, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}

func indexOf(vs []float64) map[float64]int {
	m := make(map[float64]int, len(vs))
	for i, v := range vs {
		m[v] = i
	}
	return m
}
