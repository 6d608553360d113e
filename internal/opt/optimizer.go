package opt

import "time"

// Objective is a differentiable cost function. Grad writes the gradient at x
// into grad and may be nil for derivative-free methods.
type Objective struct {
	Func func(x []float64) float64
	Grad func(grad, x []float64)
}

// Status codes reported in Result.Status.
const (
	StatusConverged    = 0
	StatusNotConverged = 1
)

// Result is the outcome of one local minimization.
type Result struct {
	X      []float64
	F      float64
	Status int

	// Message carries the method's termination reason.
	Message string

	Iterations      int
	FuncEvaluations int
	GradEvaluations int
	Runtime         time.Duration
}

// Converged reports whether the run met its stopping criteria.
func (r *Result) Converged() bool { return r.Status == StatusConverged }

// Clone returns a deep copy.
func (r *Result) Clone() *Result {
	c := *r
	c.X = append([]float64(nil), r.X...)
	return &c
}

// Minimizer defines a local minimization algorithm.
type Minimizer interface {
	// Minimize starts from x0 and returns the final point, its value and
	// whether the method converged. Non-convergence is reported through
	// Result.Status, not as an error; errors are reserved for runs that
	// produced no result at all.
	Minimize(obj Objective, x0 []float64) (*Result, error)
}

// MinimizerFunc adapts a plain function to the Minimizer interface.
type MinimizerFunc func(obj Objective, x0 []float64) (*Result, error)

func (f MinimizerFunc) Minimize(obj Objective, x0 []float64) (*Result, error) { return f(obj, x0) }
