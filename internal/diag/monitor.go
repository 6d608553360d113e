// Package diag records how a minimization run converges: energy, gradient
// norm and, optionally, a numerical cross-check of the analytic gradient.
package diag

import (
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
)

// Sample is one recorded iterate.
type Sample struct {
	Iteration    int
	Energy       float64
	GradientNorm float64 // infinity norm
	Gradient     []float64
	Numerical    []float64 // central differences; nil when Step is 0
	Timestamp    time.Time
}

// GradientError returns the largest component mismatch between the analytic
// and numerical gradient, relative to the numerical gradient's infinity norm.
// It is 0 when no numerical gradient was recorded.
func (s Sample) GradientError() float64 {
	if s.Numerical == nil {
		return 0
	}
	scale := floats.Norm(s.Numerical, math.Inf(1))
	if scale == 0 {
		scale = 1
	}
	return floats.Distance(s.Gradient, s.Numerical, math.Inf(1)) / scale
}

// Monitor is meant to be passed as the minimizer's per-iteration callback.
// Every Every-th call it evaluates the energy and gradient at the iterate and
// keeps a Sample. It never modifies the iterate or the model.
type Monitor struct {
	Every    int
	Energy   func(x []float64) float64
	Gradient func(x []float64) []float64

	// Step is the finite-difference step for the numerical gradient check.
	// Zero disables the check.
	Step float64

	// Sink, if set, receives every recorded sample.
	Sink func(Sample)

	// Verbose logs each sample at info level.
	Verbose bool

	calls   int
	samples []Sample
}

// NewMonitor creates a monitor reporting every n calls.
func NewMonitor(n int, energy func([]float64) float64, gradient func([]float64) []float64) *Monitor {
	return &Monitor{
		Every:    n,
		Energy:   energy,
		Gradient: gradient,
	}
}

// Observe records x if the call counter is a multiple of Every.
func (m *Monitor) Observe(x []float64) {
	every := m.Every
	if every < 1 {
		every = 1
	}
	defer func() { m.calls++ }()
	if m.calls%every != 0 {
		return
	}

	grad := m.Gradient(x)
	s := Sample{
		Iteration:    m.calls,
		Energy:       m.Energy(x),
		GradientNorm: floats.Norm(grad, math.Inf(1)),
		Gradient:     grad,
		Timestamp:    time.Now(),
	}
	if m.Step > 0 {
		s.Numerical = fd.Gradient(nil, m.Energy, x, &fd.Settings{
			Formula: fd.Central,
			Step:    m.Step,
		})
	}
	m.samples = append(m.samples, s)

	if m.Verbose {
		slog.Info("Minimizer progress",
			"iteration", s.Iteration,
			"energy_ev", s.Energy,
			"grad_norm_ev_per_m", s.GradientNorm,
			"grad_error", s.GradientError(),
		)
	}
	if m.Sink != nil {
		m.Sink(s)
	}
}

// Calls returns how many times Observe has been invoked.
func (m *Monitor) Calls() int { return m.calls }

// Samples returns the recorded history.
func (m *Monitor) Samples() []Sample {
	return append([]Sample(nil), m.samples...)
}

// MaxGradientError returns the worst GradientError over all samples.
func (m *Monitor) MaxGradientError() float64 {
	var worst float64
	for _, s := range m.samples {
		worst = math.Max(worst, s.GradientError())
	}
	return worst
}

// Reset clears the history and the call counter.
func (m *Monitor) Reset() {
	m.calls = 0
	m.samples = nil
}
