// Package config holds the run configuration shared by the CLI commands and
// persisted with every saved solution.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Field kinds.
const (
	KindSurface = "surface"
	KindWire    = "wire"
)

// Seeding methods for the initial configuration.
const (
	InitRandom = "random"
	InitMayfly = "mayfly"
)

// FieldConfig describes where the potential comes from and how it is fitted.
type FieldConfig struct {
	// Kind is "surface" for a 2D grid or "wire" for a periodic 1D channel.
	Kind string `yaml:"kind" json:"kind"`

	// Path is the CSV file with the potential samples.
	Path string `yaml:"path" json:"path"`

	// OrderX and OrderY select the spline order (1 or 3) per axis.
	OrderX int `yaml:"orderX" json:"orderX"`
	OrderY int `yaml:"orderY,omitempty" json:"orderY,omitempty"`

	// Smoothing must be 0; interpolating splines only.
	Smoothing float64 `yaml:"smoothing,omitempty" json:"smoothing,omitempty"`

	// Length is the wire period along y in metres.
	Length float64 `yaml:"length,omitempty" json:"length,omitempty"`
}

// InitConfig controls how starting positions are drawn.
type InitConfig struct {
	Method string `yaml:"method" json:"method"`

	// Box bounds the initial positions. A zero box means the field domain.
	XMin float64 `yaml:"xMin,omitempty" json:"xMin,omitempty"`
	XMax float64 `yaml:"xMax,omitempty" json:"xMax,omitempty"`
	YMin float64 `yaml:"yMin,omitempty" json:"yMin,omitempty"`
	YMax float64 `yaml:"yMax,omitempty" json:"yMax,omitempty"`

	// MayflyIters and MayflyPop size the global search.
	MayflyIters int `yaml:"mayflyIters,omitempty" json:"mayflyIters,omitempty"`
	MayflyPop   int `yaml:"mayflyPop,omitempty" json:"mayflyPop,omitempty"`
}

// HasBox reports whether an explicit box was configured.
func (c InitConfig) HasBox() bool {
	return c.XMin != c.XMax && c.YMin != c.YMax
}

// MinimizerConfig selects and tunes the local method.
type MinimizerConfig struct {
	Method            string  `yaml:"method" json:"method"`
	MaxIterations     int     `yaml:"maxIterations" json:"maxIterations"`
	GradientThreshold float64 `yaml:"gradientThreshold" json:"gradientThreshold"`
	Scale             float64 `yaml:"scale" json:"scale"`

	// Patience and PlateauThreshold stop a run whose energy has stalled.
	// Patience 0 disables plateau detection.
	Patience         int     `yaml:"patience,omitempty" json:"patience,omitempty"`
	PlateauThreshold float64 `yaml:"plateauThreshold,omitempty" json:"plateauThreshold,omitempty"`
}

// AnnealConfig sets the number of thermal trials and their temperature.
type AnnealConfig struct {
	Trials       int     `yaml:"trials" json:"trials"`
	Temperature  float64 `yaml:"temperature" json:"temperature"`
	MaxAmplitude float64 `yaml:"maxAmplitude,omitempty" json:"maxAmplitude,omitempty"`
}

// DiagnosticsConfig controls the per-iteration monitor.
type DiagnosticsConfig struct {
	Every int     `yaml:"every" json:"every"`
	Step  float64 `yaml:"step,omitempty" json:"step,omitempty"`
}

// Window is an x interval used to count trapped charges.
type Window struct {
	Lo float64 `yaml:"lo" json:"lo"`
	Hi float64 `yaml:"hi" json:"hi"`
}

// Run is a complete solve configuration.
type Run struct {
	Field       FieldConfig       `yaml:"field" json:"field"`
	Electrons   int               `yaml:"electrons" json:"electrons"`
	Seed        int64             `yaml:"seed" json:"seed"`
	Workers     int               `yaml:"workers,omitempty" json:"workers,omitempty"`
	Init        InitConfig        `yaml:"init" json:"init"`
	Minimizer   MinimizerConfig   `yaml:"minimizer" json:"minimizer"`
	Anneal      AnnealConfig      `yaml:"anneal" json:"anneal"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics" json:"diagnostics"`
	TrapWindow  *Window           `yaml:"trapWindow,omitempty" json:"trapWindow,omitempty"`
}

// Default returns the settings used when neither a file nor a flag sets a value.
func Default() Run {
	return Run{
		Field: FieldConfig{
			Kind:   KindSurface,
			OrderX: 3,
			OrderY: 3,
			Length: 40e-6,
		},
		Electrons: 10,
		Seed:      1,
		Workers:   1,
		Init: InitConfig{
			Method:      InitRandom,
			MayflyIters: 200,
			MayflyPop:   20,
		},
		Minimizer: MinimizerConfig{
			Method:            "cg",
			MaxIterations:     5000,
			GradientThreshold: 1e-5,
			Scale:             1e-6,
		},
		Anneal: AnnealConfig{
			Trials:      0,
			Temperature: 0.1,
		},
		Diagnostics: DiagnosticsConfig{
			Every: 10,
		},
	}
}

// ValidationError reports the first invalid field of a Run.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + e.Field + " " + e.Reason
}

// Is matches any *ValidationError.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// ErrInvalid matches every ValidationError with errors.Is.
var ErrInvalid = &ValidationError{}

// Validate checks the configuration for values no run can use.
func (r *Run) Validate() error {
	switch r.Field.Kind {
	case KindSurface, KindWire:
	default:
		return &ValidationError{Field: "field.kind", Reason: fmt.Sprintf("must be %q or %q, got %q", KindSurface, KindWire, r.Field.Kind)}
	}
	if r.Field.Path == "" {
		return &ValidationError{Field: "field.path", Reason: "cannot be empty"}
	}
	if !validOrder(r.Field.OrderX) {
		return &ValidationError{Field: "field.orderX", Reason: "must be 1 or 3"}
	}
	if r.Field.Kind == KindSurface && !validOrder(r.Field.OrderY) {
		return &ValidationError{Field: "field.orderY", Reason: "must be 1 or 3"}
	}
	if r.Field.Smoothing != 0 {
		return &ValidationError{Field: "field.smoothing", Reason: "must be 0"}
	}
	if r.Field.Kind == KindWire && !(r.Field.Length > 0) {
		return &ValidationError{Field: "field.length", Reason: "must be positive for a wire"}
	}
	if r.Electrons <= 0 {
		return &ValidationError{Field: "electrons", Reason: "must be positive"}
	}
	if r.Workers < 0 {
		return &ValidationError{Field: "workers", Reason: "cannot be negative"}
	}

	switch r.Init.Method {
	case InitRandom:
	case InitMayfly:
		if r.Init.MayflyIters <= 0 || r.Init.MayflyPop <= 0 {
			return &ValidationError{Field: "init", Reason: "mayflyIters and mayflyPop must be positive"}
		}
	default:
		return &ValidationError{Field: "init.method", Reason: fmt.Sprintf("must be %q or %q, got %q", InitRandom, InitMayfly, r.Init.Method)}
	}
	if r.Init.XMin > r.Init.XMax || r.Init.YMin > r.Init.YMax {
		return &ValidationError{Field: "init", Reason: "box minimum exceeds maximum"}
	}

	if r.Minimizer.Method == "" {
		return &ValidationError{Field: "minimizer.method", Reason: "cannot be empty"}
	}
	if r.Minimizer.MaxIterations <= 0 {
		return &ValidationError{Field: "minimizer.maxIterations", Reason: "must be positive"}
	}
	if r.Minimizer.GradientThreshold < 0 {
		return &ValidationError{Field: "minimizer.gradientThreshold", Reason: "cannot be negative"}
	}
	if !(r.Minimizer.Scale > 0) || math.IsInf(r.Minimizer.Scale, 0) {
		return &ValidationError{Field: "minimizer.scale", Reason: "must be positive and finite"}
	}
	if r.Minimizer.Patience < 0 || r.Minimizer.PlateauThreshold < 0 {
		return &ValidationError{Field: "minimizer", Reason: "patience and plateauThreshold cannot be negative"}
	}

	if r.Anneal.Trials < 0 {
		return &ValidationError{Field: "anneal.trials", Reason: "cannot be negative"}
	}
	if math.IsNaN(r.Anneal.Temperature) || math.IsInf(r.Anneal.Temperature, 0) {
		return &ValidationError{Field: "anneal.temperature", Reason: "must be finite"}
	}
	if r.Anneal.MaxAmplitude < 0 {
		return &ValidationError{Field: "anneal.maxAmplitude", Reason: "cannot be negative"}
	}

	if r.Diagnostics.Every < 0 || r.Diagnostics.Step < 0 {
		return &ValidationError{Field: "diagnostics", Reason: "every and step cannot be negative"}
	}
	if r.TrapWindow != nil && r.TrapWindow.Lo >= r.TrapWindow.Hi {
		return &ValidationError{Field: "trapWindow", Reason: "lo must be below hi"}
	}
	return nil
}

func validOrder(k int) bool { return k == 1 || k == 3 }

// Parse decodes YAML on top of the defaults. Unknown keys are rejected.
func Parse(data []byte) (Run, error) {
	run := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&run); err != nil && !errors.Is(err, io.EOF) {
		return Run{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return run, nil
}

// Load reads a YAML run file. The result is not validated; callers apply
// flag overrides first and then call Validate.
func Load(path string) (Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Run{}, fmt.Errorf("failed to read config file: %w", err)
	}
	run, err := Parse(data)
	if err != nil {
		return Run{}, fmt.Errorf("%s: %w", path, err)
	}
	return run, nil
}
