package store

import (
	"fmt"
	"math"
	"time"

	"github.com/cwbudde/chargeanneal/internal/analysis"
	"github.com/cwbudde/chargeanneal/internal/config"
)

// Checkpoint is a saved solution: the best converged configuration found for
// a run, plus enough of the run configuration to refit the field and continue
// annealing later.
//
// Only the best positions are stored. The minimizer's internal state is not;
// continuing a run starts a fresh local minimization from these positions.
type Checkpoint struct {
	// JobID is the unique identifier for this run
	JobID string `json:"jobId"`

	// Positions is the interleaved x0,y0,x1,y1,... vector in metres
	Positions []float64 `json:"positions"`

	// Energy is the total energy of Positions in eV
	Energy float64 `json:"energy"`

	// FieldEnergy and PairEnergy split Energy into its two parts
	FieldEnergy float64 `json:"fieldEnergy"`
	PairEnergy  float64 `json:"pairEnergy"`

	// InitialEnergy is the energy of the first converged minimization,
	// before any annealing
	InitialEnergy float64 `json:"initialEnergy"`

	// Converged is true when Positions came from a converged minimization
	Converged bool `json:"converged"`

	// Trials counts all annealing trials run so far, across invocations
	Trials int `json:"trials"`

	// Iterations is the major iteration count of the minimization that
	// produced Positions
	Iterations int `json:"iterations"`

	// Summary holds the post-processing results
	Summary analysis.Summary `json:"summary"`

	// Timestamp records when this checkpoint was created
	Timestamp time.Time `json:"timestamp"`

	// Config is the run configuration that produced the solution
	Config config.Run `json:"config"`
}

// CheckpointInfo is the listing view of a Checkpoint, without positions.
type CheckpointInfo struct {
	JobID     string    `json:"jobId"`
	Energy    float64   `json:"energy"`
	Charges   int       `json:"charges"`
	Converged bool      `json:"converged"`
	Density   float64   `json:"density"`
	Trials    int       `json:"trials"`
	Timestamp time.Time `json:"timestamp"`
	FieldKind string    `json:"fieldKind"`
	FieldPath string    `json:"fieldPath"`
}

// NewCheckpoint creates a checkpoint stamped with the current time.
func NewCheckpoint(jobID string, positions []float64, energy, initialEnergy float64, converged bool, cfg config.Run) *Checkpoint {
	return &Checkpoint{
		JobID:         jobID,
		Positions:     positions,
		Energy:        energy,
		InitialEnergy: initialEnergy,
		Converged:     converged,
		Timestamp:     time.Now(),
		Config:        cfg,
	}
}

// Charges returns the number of charges in the solution.
func (c *Checkpoint) Charges() int { return len(c.Positions) / 2 }

// ToInfo converts a full Checkpoint to CheckpointInfo (metadata only).
func (c *Checkpoint) ToInfo() CheckpointInfo {
	return CheckpointInfo{
		JobID:     c.JobID,
		Energy:    c.Energy,
		Charges:   c.Charges(),
		Converged: c.Converged,
		Density:   c.Summary.Density,
		Trials:    c.Trials,
		Timestamp: c.Timestamp,
		FieldKind: c.Config.Field.Kind,
		FieldPath: c.Config.Field.Path,
	}
}

// Validate checks that the checkpoint describes a usable solution.
func (c *Checkpoint) Validate() error {
	if c.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if len(c.Positions) == 0 {
		return &ValidationError{Field: "Positions", Reason: "cannot be empty"}
	}
	if len(c.Positions)%2 != 0 {
		return &ValidationError{Field: "Positions", Reason: "length must be even"}
	}
	for i, v := range c.Positions {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ValidationError{Field: "Positions", Reason: fmt.Sprintf("entry %d is not finite", i)}
		}
	}
	if math.IsNaN(c.Energy) || math.IsInf(c.Energy, 0) {
		return &ValidationError{Field: "Energy", Reason: "must be finite"}
	}
	if c.Trials < 0 {
		return &ValidationError{Field: "Trials", Reason: "cannot be negative"}
	}
	if c.Iterations < 0 {
		return &ValidationError{Field: "Iterations", Reason: "cannot be negative"}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if err := c.Config.Validate(); err != nil {
		return &ValidationError{Field: "Config", Reason: err.Error()}
	}
	if c.Charges() != c.Config.Electrons {
		return &ValidationError{
			Field:  "Positions",
			Reason: fmt.Sprintf("length mismatch: expected %d values for %d electrons", 2*c.Config.Electrons, c.Config.Electrons),
		}
	}
	return nil
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks whether a run with cfg can continue from this
// checkpoint: same field and the same number of electrons.
func (c *Checkpoint) IsCompatible(cfg config.Run) error {
	if c.Config.Field.Kind != cfg.Field.Kind {
		return &CompatibilityError{Field: "Field.Kind", Expected: c.Config.Field.Kind, Actual: cfg.Field.Kind}
	}
	if c.Config.Field.Path != cfg.Field.Path {
		return &CompatibilityError{Field: "Field.Path", Expected: c.Config.Field.Path, Actual: cfg.Field.Path}
	}
	if c.Config.Field.Kind == config.KindWire && c.Config.Field.Length != cfg.Field.Length {
		return &CompatibilityError{
			Field:    "Field.Length",
			Expected: fmt.Sprintf("%g", c.Config.Field.Length),
			Actual:   fmt.Sprintf("%g", cfg.Field.Length),
		}
	}
	if c.Config.Electrons != cfg.Electrons {
		return &CompatibilityError{
			Field:    "Electrons",
			Expected: fmt.Sprintf("%d", c.Config.Electrons),
			Actual:   fmt.Sprintf("%d", cfg.Electrons),
		}
	}
	return nil
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
