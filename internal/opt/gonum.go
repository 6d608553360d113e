package opt

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// Settings tunes a gonum minimization run. Zero values fall back to gonum's
// defaults.
type Settings struct {
	// MaxIterations bounds the number of major iterations.
	MaxIterations int

	// GradientThreshold stops the run once the infinity norm of the gradient,
	// in scaled units, drops below it.
	GradientThreshold float64

	// FuncEvaluations bounds the number of objective evaluations.
	FuncEvaluations int

	// Runtime bounds the wall-clock time of a single run.
	Runtime time.Duration

	// Scale is the length unit the method works in. Positions of order 1e-6
	// are best minimized with Scale = 1e-6. Zero means 1.
	Scale float64

	// Converger overrides gonum's default function convergence test.
	Converger optimize.Converger

	// Callback, if set, receives a copy of the current iterate (unscaled)
	// after every major iteration.
	Callback func(x []float64)
}

// DefaultSettings mirrors the stopping rules used for charge configurations.
func DefaultSettings() Settings {
	return Settings{
		MaxIterations:     5000,
		GradientThreshold: 1e-5,
		Scale:             1e-6,
	}
}

var methods = map[string]func() optimize.Method{
	"cg":              func() optimize.Method { return &optimize.CG{} },
	"bfgs":            func() optimize.Method { return &optimize.BFGS{} },
	"lbfgs":           func() optimize.Method { return &optimize.LBFGS{} },
	"gradientdescent": func() optimize.Method { return &optimize.GradientDescent{} },
	"neldermead":      func() optimize.Method { return &optimize.NelderMead{} },
}

// Methods lists the accepted method names.
func Methods() []string {
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ErrUnknownMethod is returned by NewGonum for unsupported method names.
var ErrUnknownMethod = errors.New("unknown minimization method")

// GonumMinimizer runs gonum/optimize local methods.
type GonumMinimizer struct {
	method   string
	settings Settings
}

// NewGonum creates a minimizer for the named method (case-insensitive,
// e.g. "CG", "BFGS", "LBFGS", "GradientDescent", "NelderMead").
func NewGonum(method string, settings Settings) (*GonumMinimizer, error) {
	key := strings.ToLower(strings.ReplaceAll(method, "-", ""))
	if _, ok := methods[key]; !ok {
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownMethod, method, strings.Join(Methods(), ", "))
	}
	if settings.Scale == 0 {
		settings.Scale = 1
	}
	return &GonumMinimizer{method: key, settings: settings}, nil
}

// Method returns the normalized method name.
func (g *GonumMinimizer) Method() string { return g.method }

// Minimize implements Minimizer.
func (g *GonumMinimizer) Minimize(obj Objective, x0 []float64) (*Result, error) {
	if obj.Func == nil {
		return nil, errors.New("objective function is nil")
	}
	s := g.settings.Scale

	problem := optimize.Problem{
		Func: func(u []float64) float64 {
			return obj.Func(unscale(u, s))
		},
	}
	if obj.Grad != nil {
		problem.Grad = func(grad, u []float64) {
			obj.Grad(grad, unscale(u, s))
			floats.Scale(s, grad)
		}
	}

	settings := &optimize.Settings{
		MajorIterations:   g.settings.MaxIterations,
		GradientThreshold: g.settings.GradientThreshold,
		FuncEvaluations:   g.settings.FuncEvaluations,
		Runtime:           g.settings.Runtime,
		Converger:         g.settings.Converger,
	}
	if g.settings.Callback != nil {
		settings.Recorder = &callbackRecorder{scale: s, fn: g.settings.Callback}
	}

	u0 := make([]float64, len(x0))
	floats.ScaleTo(u0, 1/s, x0)

	res, err := optimize.Minimize(problem, u0, settings, methods[g.method]())
	if res == nil {
		return nil, fmt.Errorf("minimization failed: %w", err)
	}

	out := &Result{
		X:               unscale(res.X, s),
		F:               res.F,
		Status:          statusOf(res.Status, err),
		Message:         res.Status.String(),
		Iterations:      res.MajorIterations,
		FuncEvaluations: res.FuncEvaluations,
		GradEvaluations: res.GradEvaluations,
		Runtime:         res.Runtime,
	}
	if err != nil {
		out.Message = err.Error()
	}

	slog.Debug("Minimization finished",
		"method", g.method,
		"energy", out.F,
		"status", res.Status.String(),
		"iterations", out.Iterations,
		"func_evals", out.FuncEvaluations,
	)
	return out, nil
}

func statusOf(s optimize.Status, err error) int {
	if err != nil {
		return StatusNotConverged
	}
	switch s {
	case optimize.Success,
		optimize.FunctionThreshold,
		optimize.FunctionConvergence,
		optimize.GradientThreshold,
		optimize.StepConvergence,
		optimize.MethodConverge:
		return StatusConverged
	}
	return StatusNotConverged
}

func unscale(u []float64, s float64) []float64 {
	x := make([]float64, len(u))
	floats.ScaleTo(x, s, u)
	return x
}

// callbackRecorder forwards major iterations to a user callback.
type callbackRecorder struct {
	scale float64
	fn    func(x []float64)
}

func (r *callbackRecorder) Init() error { return nil }

func (r *callbackRecorder) Record(loc *optimize.Location, op optimize.Operation, _ *optimize.Stats) error {
	if op != optimize.MajorIteration {
		return nil
	}
	r.fn(unscale(loc.X, r.scale))
	return nil
}
