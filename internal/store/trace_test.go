package store

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cwbudde/chargeanneal/internal/diag"
)

func TestTraceWriter_WriteAndRead(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-123"

	writer, err := NewTraceWriter(tmpDir, jobID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	entries := []TraceEntry{
		{Phase: PhaseMinimize, Iteration: 0, Energy: 1.0, GradientNorm: 3e3, Timestamp: time.Now()},
		{Phase: PhaseMinimize, Iteration: 10, Energy: 0.8, GradientNorm: 1e2, Timestamp: time.Now()},
		{Phase: PhaseAnneal, Iteration: 0, Energy: 0.7, Outcome: "improved", BestEnergy: 0.7, Timestamp: time.Now(), Positions: []float64{1, 2}},
		{Phase: PhaseAnneal, Iteration: 1, Energy: 0.75, Outcome: "no_improvement", BestEnergy: 0.7, Timestamp: time.Now()},
	}
	for _, entry := range entries {
		if err := writer.Write(entry); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}
	if writer.Count() != len(entries) {
		t.Errorf("Expected count %d, got %d", len(entries), writer.Count())
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	if want := filepath.Join(tmpDir, "jobs", jobID, "trace.jsonl"); writer.Path() != want {
		t.Errorf("Expected path %s, got %s", want, writer.Path())
	}

	got, err := ReadTrace(tmpDir, jobID)
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(got))
	}
	for i, entry := range got {
		if entry.Phase != entries[i].Phase || entry.Iteration != entries[i].Iteration {
			t.Errorf("Entry %d: expected %s/%d, got %s/%d", i, entries[i].Phase, entries[i].Iteration, entry.Phase, entry.Iteration)
		}
		if entry.Energy != entries[i].Energy {
			t.Errorf("Entry %d: expected energy %g, got %g", i, entries[i].Energy, entry.Energy)
		}
		if entry.Outcome != entries[i].Outcome {
			t.Errorf("Entry %d: expected outcome %q, got %q", i, entries[i].Outcome, entry.Outcome)
		}
		if len(entry.Positions) != len(entries[i].Positions) {
			t.Errorf("Entry %d: expected %d positions, got %d", i, len(entries[i].Positions), len(entry.Positions))
		}
	}
}

func TestTraceWriter_AppendAndTruncate(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-append"

	write := func(appendMode bool, iter int) {
		t.Helper()
		writer, err := NewTraceWriter(tmpDir, jobID, appendMode)
		if err != nil {
			t.Fatalf("Failed to create trace writer: %v", err)
		}
		if err := writer.Write(TraceEntry{Phase: PhaseAnneal, Iteration: iter, Timestamp: time.Now()}); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
		if err := writer.Close(); err != nil {
			t.Fatalf("Failed to close writer: %v", err)
		}
	}

	write(false, 0)
	write(true, 10)

	entries, err := ReadTrace(tmpDir, jobID)
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(entries) != 2 || entries[0].Iteration != 0 || entries[1].Iteration != 10 {
		t.Fatalf("Expected iterations [0 10], got %+v", entries)
	}

	write(false, 20)
	entries, err = ReadTrace(tmpDir, jobID)
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Iteration != 20 {
		t.Fatalf("Expected truncated trace with iteration 20, got %+v", entries)
	}
}

func TestTraceWriter_Flush(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-flush"

	writer, err := NewTraceWriter(tmpDir, jobID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	defer writer.Close()

	if err := writer.Write(TraceEntry{Phase: PhaseMinimize, Energy: 1.0, Timestamp: time.Now()}); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}
	if err := writer.Flush(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}

	data, err := os.ReadFile(writer.Path())
	if err != nil {
		t.Fatalf("Failed to read trace file: %v", err)
	}
	if len(data) == 0 || data[len(data)-1] != '\n' {
		t.Error("Expected one newline-terminated line after flush")
	}
}

func TestTraceReader_ReadIteratively(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-iter"

	writer, err := NewTraceWriter(tmpDir, jobID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := writer.Write(TraceEntry{Phase: PhaseMinimize, Iteration: i * 10, Energy: 1.0 - float64(i)*0.1, Timestamp: time.Now()}); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}
	writer.Close()

	reader, err := NewTraceReader(tmpDir, jobID)
	if err != nil {
		t.Fatalf("Failed to create trace reader: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		entry, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Failed to read entry: %v", err)
		}
		if entry.Iteration != count*10 {
			t.Errorf("Entry %d: expected iteration %d, got %d", count, count*10, entry.Iteration)
		}
		count++
	}
	if count != 5 {
		t.Errorf("Expected to read 5 entries, got %d", count)
	}
}

func TestTraceReader_NotFound(t *testing.T) {
	_, err := NewTraceReader(t.TempDir(), "nonexistent-job")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected NotFoundError, got: %v", err)
	}
}

func TestTraceReader_LongLines(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-positions"

	// 20000 charges produce a line well past bufio's default limit.
	positions := make([]float64, 40000)
	for i := range positions {
		positions[i] = float64(i) * 1.234567e-7
	}

	writer, err := NewTraceWriter(tmpDir, jobID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	if err := writer.Write(TraceEntry{Phase: PhaseAnneal, Positions: positions, Timestamp: time.Now()}); err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}
	writer.Close()

	entries, err := ReadTrace(tmpDir, jobID)
	if err != nil {
		t.Fatalf("Failed to read entry: %v", err)
	}
	if len(entries) != 1 || len(entries[0].Positions) != len(positions) {
		t.Fatalf("Expected one entry with %d positions", len(positions))
	}
	if entries[0].Positions[777] != positions[777] {
		t.Errorf("Position mismatch: %g vs %g", entries[0].Positions[777], positions[777])
	}
}

func TestSampleEntry(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := diag.Sample{
		Iteration:    40,
		Energy:       -0.25,
		GradientNorm: 12,
		Gradient:     []float64{12, -3},
		Numerical:    []float64{10, -3},
		Timestamp:    ts,
	}

	e := SampleEntry(s)
	if e.Phase != PhaseMinimize || e.Iteration != 40 || e.Energy != -0.25 || e.GradientNorm != 12 {
		t.Errorf("Unexpected entry: %+v", e)
	}
	if e.GradientError != 0.2 {
		t.Errorf("Expected gradient error 0.2, got %g", e.GradientError)
	}
	if !e.Timestamp.Equal(ts) {
		t.Errorf("Timestamp mismatch")
	}
}

func TestDeleteTrace(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-delete"

	writer, err := NewTraceWriter(tmpDir, jobID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}
	writer.Write(TraceEntry{Phase: PhaseMinimize, Timestamp: time.Now()})
	writer.Close()

	if err := DeleteTrace(tmpDir, jobID); err != nil {
		t.Fatalf("Failed to delete trace: %v", err)
	}
	if _, err := os.Stat(writer.Path()); !os.IsNotExist(err) {
		t.Error("Trace file still exists after delete")
	}

	if err := DeleteTrace(tmpDir, "nonexistent-job"); err != nil {
		t.Errorf("DeleteTrace should not error for nonexistent file, got: %v", err)
	}
}

func TestTraceWriter_ConcurrentWrites(t *testing.T) {
	tmpDir := t.TempDir()
	jobID := "test-job-concurrent"

	writer, err := NewTraceWriter(tmpDir, jobID, false)
	if err != nil {
		t.Fatalf("Failed to create trace writer: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(iter int) {
			defer wg.Done()
			if err := writer.Write(TraceEntry{Phase: PhaseMinimize, Iteration: iter, Energy: float64(iter), Timestamp: time.Now()}); err != nil {
				t.Errorf("Concurrent write failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries, err := ReadTrace(tmpDir, jobID)
	if err != nil {
		t.Fatalf("Failed to read entries: %v", err)
	}
	if len(entries) != 10 {
		t.Errorf("Expected 10 entries, got %d", len(entries))
	}
}
