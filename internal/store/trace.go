package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cwbudde/chargeanneal/internal/diag"
)

// Trace phases.
const (
	PhaseMinimize = "minimize"
	PhaseAnneal   = "anneal"
)

// TraceEntry is one line of trace.jsonl: either a monitored minimizer
// iterate or the result of an annealing trial.
type TraceEntry struct {
	Phase string `json:"phase"`

	// Iteration is the minimizer call index or the annealing trial index
	Iteration int `json:"iteration"`

	// Energy is the energy in eV at this point
	Energy float64 `json:"energy"`

	// GradientNorm is the infinity norm of the analytic gradient (minimize only)
	GradientNorm float64 `json:"gradientNorm,omitempty"`

	// GradientError is the relative analytic vs numerical gradient mismatch,
	// present when the numerical check was enabled
	GradientError float64 `json:"gradientError,omitempty"`

	// Outcome and BestEnergy describe an annealing trial
	Outcome    string  `json:"outcome,omitempty"`
	BestEnergy float64 `json:"bestEnergy,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	// Positions are optional, they make traces large
	Positions []float64 `json:"positions,omitempty"`
}

// SampleEntry converts a monitor sample into a trace line.
func SampleEntry(s diag.Sample) TraceEntry {
	return TraceEntry{
		Phase:         PhaseMinimize,
		Iteration:     s.Iteration,
		Energy:        s.Energy,
		GradientNorm:  s.GradientNorm,
		GradientError: s.GradientError(),
		Timestamp:     s.Timestamp,
	}
}

func tracePath(baseDir, jobID string) string {
	return filepath.Join(baseDir, "jobs", jobID, traceFile)
}

// TraceWriter appends entries to a job's trace.jsonl through a buffer.
// It is safe for concurrent use.
type TraceWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
	path string
	n    int
}

// NewTraceWriter opens <baseDir>/jobs/<jobID>/trace.jsonl, truncating it
// unless append is set.
func NewTraceWriter(baseDir, jobID string, append bool) (*TraceWriter, error) {
	path := tracePath(baseDir, jobID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create job directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	buf := bufio.NewWriterSize(file, 64*1024)
	return &TraceWriter{
		file: file,
		buf:  buf,
		enc:  json.NewEncoder(buf),
		path: path,
	}, nil
}

// Write buffers one entry. json.Encoder terminates each value with a newline.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.enc.Encode(entry); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	tw.n++
	return nil
}

// Count returns how many entries were written through this writer.
func (tw *TraceWriter) Count() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.n
}

// Flush writes buffered entries and syncs the file.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}
	return nil
}

// Close flushes buffered data and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.buf.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string { return tw.path }

// TraceReader reads entries back one line at a time.
type TraceReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewTraceReader opens a job's trace. A missing trace is a NotFoundError.
func NewTraceReader(baseDir, jobID string) (*TraceReader, error) {
	file, err := os.Open(tracePath(baseDir, jobID))
	if os.IsNotExist(err) {
		return nil, &NotFoundError{JobID: jobID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	// lines carrying positions for large N can be long
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &TraceReader{file: file, scanner: scanner}, nil
}

// Read returns the next entry, or io.EOF after the last one.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	if !tr.scanner.Scan() {
		if err := tr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan trace line: %w", err)
		}
		return nil, io.EOF
	}

	var entry TraceEntry
	if err := json.Unmarshal(tr.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
	}
	return &entry, nil
}

// ReadAll reads all remaining entries.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry
	for {
		entry, err := tr.Read()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
}

// Close closes the trace reader.
func (tr *TraceReader) Close() error {
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// ReadTrace loads a job's whole trace.
func ReadTrace(baseDir, jobID string) ([]TraceEntry, error) {
	tr, err := NewTraceReader(baseDir, jobID)
	if err != nil {
		return nil, err
	}
	defer tr.Close()
	return tr.ReadAll()
}

// DeleteTrace removes a job's trace file. A missing file is not an error.
func DeleteTrace(baseDir, jobID string) error {
	err := os.Remove(tracePath(baseDir, jobID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete trace file: %w", err)
	}
	return nil
}
