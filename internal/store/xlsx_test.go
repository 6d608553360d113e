package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

func TestWriteWorkbook_RoundTripPositions(t *testing.T) {
	c := validCheckpoint()
	path := filepath.Join(t.TempDir(), "solution.xlsx")

	trace := []TraceEntry{
		{Phase: PhaseMinimize, Iteration: 0, Energy: -0.1, GradientNorm: 5},
		{Phase: PhaseAnneal, Iteration: 0, Energy: -0.31, Outcome: "improved", BestEnergy: -0.31},
	}
	if err := WriteWorkbook(path, c, trace); err != nil {
		t.Fatalf("WriteWorkbook failed: %v", err)
	}

	got, err := ReadWorkbookPositions(path)
	if err != nil {
		t.Fatalf("ReadWorkbookPositions failed: %v", err)
	}
	if len(got) != len(c.Positions) {
		t.Fatalf("Expected %d values, got %d", len(c.Positions), len(got))
	}
	for i := range got {
		if got[i] != c.Positions[i] {
			t.Errorf("Position %d: expected %g, got %g", i, c.Positions[i], got[i])
		}
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()

	if v, _ := f.GetCellValue(SummarySheet, "A1"); v != "Job" {
		t.Errorf("Expected summary header, got %q", v)
	}
	if v, _ := f.GetCellValue(SummarySheet, "B1"); v != c.JobID {
		t.Errorf("Expected job id %q, got %q", c.JobID, v)
	}
	rows, err := f.GetRows(TraceSheet)
	if err != nil {
		t.Fatalf("GetRows(trace) failed: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("Expected header plus 2 trace rows, got %d", len(rows))
	}
	if rows[2][5] != "improved" {
		t.Errorf("Expected outcome column, got %q", rows[2][5])
	}
}

func TestWriteWorkbook_NoTraceSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solution.xlsx")
	if err := WriteWorkbook(path, validCheckpoint(), nil); err != nil {
		t.Fatalf("WriteWorkbook failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()

	if idx, _ := f.GetSheetIndex(TraceSheet); idx != -1 {
		t.Errorf("Trace sheet should be absent, got index %d", idx)
	}
}

func TestFSStore_ExportWorkbook(t *testing.T) {
	store, _ := setupTestStore(t)

	jobID := "export-job"
	if err := store.SaveCheckpoint(jobID, createTestCheckpoint(jobID)); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	// without a trace
	path, err := store.ExportWorkbook(jobID)
	if err != nil {
		t.Fatalf("ExportWorkbook failed: %v", err)
	}
	if path != store.WorkbookPath(jobID) {
		t.Errorf("Unexpected path %s", path)
	}

	tw, err := NewTraceWriter(store.BaseDir(), jobID, false)
	if err != nil {
		t.Fatal(err)
	}
	tw.Write(TraceEntry{Phase: PhaseMinimize, Energy: 1, Timestamp: time.Now()})
	tw.Close()

	if _, err := store.ExportWorkbook(jobID); err != nil {
		t.Fatalf("ExportWorkbook with trace failed: %v", err)
	}
	if _, err := store.ExportWorkbook("missing"); !isNotFound(err) {
		t.Errorf("Expected NotFoundError, got %v", err)
	}
}
