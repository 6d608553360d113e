package store

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// Sheet names in an exported workbook.
const (
	SummarySheet   = "Summary"
	PositionsSheet = "Positions"
	TraceSheet     = "Trace"
)

// WriteWorkbook saves a solution as an xlsx file with a summary sheet, one
// row per charge and, if trace is non-empty, the diagnostics trace.
func WriteWorkbook(path string, c *Checkpoint, trace []TraceEntry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	rows := [][2]any{
		{"Job", c.JobID},
		{"Timestamp", c.Timestamp.Format("2006-01-02 15:04:05")},
		{"Field", c.Config.Field.Kind},
		{"Field file", c.Config.Field.Path},
		{"Electrons", c.Charges()},
		{"Energy (eV)", c.Energy},
		{"Field energy (eV)", c.FieldEnergy},
		{"Pair energy (eV)", c.PairEnergy},
		{"Initial energy (eV)", c.InitialEnergy},
		{"Converged", c.Converged},
		{"Annealing trials", c.Trials},
		{"Temperature (K)", c.Config.Anneal.Temperature},
		{"Density (m^-2)", c.Summary.Density},
		{"Mean spacing (m)", c.Summary.MeanSpacing},
	}
	if c.Summary.Trapped != nil {
		rows = append(rows, [2]any{"Trapped", *c.Summary.Trapped})
	}
	for i, kv := range rows {
		r := strconv.Itoa(i + 1)
		f.SetCellValue(SummarySheet, "A"+r, kv[0])
		f.SetCellValue(SummarySheet, "B"+r, kv[1])
	}

	f.NewSheet(PositionsSheet)
	writeRow(f, PositionsSheet, 1, "No", "x (m)", "y (m)")
	for i := 0; i < c.Charges(); i++ {
		writeRow(f, PositionsSheet, i+2, i+1, c.Positions[2*i], c.Positions[2*i+1])
	}

	if len(trace) > 0 {
		f.NewSheet(TraceSheet)
		writeRow(f, TraceSheet, 1, "Phase", "Iteration", "Energy (eV)", "Gradient norm", "Gradient error", "Outcome", "Best energy (eV)")
		for i, e := range trace {
			writeRow(f, TraceSheet, i+2, e.Phase, e.Iteration, e.Energy, e.GradientNorm, e.GradientError, e.Outcome, e.BestEnergy)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		f.SetCellValue(sheet, cell, v)
	}
}

// ReadWorkbookPositions reads the position vector back from an exported
// workbook.
func ReadWorkbookPositions(path string) ([]float64, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(PositionsSheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read positions: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("positions sheet is empty")
	}

	r := make([]float64, 0, 2*(len(rows)-1))
	for i, row := range rows[1:] {
		if len(row) < 3 {
			return nil, fmt.Errorf("positions row %d: expected 3 columns, got %d", i+2, len(row))
		}
		for _, s := range row[1:3] {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("positions row %d: %w", i+2, err)
			}
			r = append(r, v)
		}
	}
	return r, nil
}

// ExportWorkbook writes a job's checkpoint and trace to WorkbookPath(jobID).
func (fs *FSStore) ExportWorkbook(jobID string) (string, error) {
	c, err := fs.LoadCheckpoint(jobID)
	if err != nil {
		return "", err
	}
	trace, err := ReadTrace(fs.baseDir, jobID)
	if err != nil && !isNotFound(err) {
		return "", err
	}

	path := fs.WorkbookPath(jobID)
	if err := WriteWorkbook(path, c, trace); err != nil {
		return "", err
	}
	return path, nil
}

func isNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}
