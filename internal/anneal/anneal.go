// Package anneal refines a converged charge configuration by repeated thermal
// kicks followed by local re-minimization, keeping the lowest converged state.
package anneal

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/cwbudde/chargeanneal/internal/constants"
	"github.com/cwbudde/chargeanneal/internal/coords"
	"github.com/cwbudde/chargeanneal/internal/energy"
	"github.com/cwbudde/chargeanneal/internal/field"
	"github.com/cwbudde/chargeanneal/internal/opt"
)

// State is the refiner's position in the trial loop.
type State int

const (
	Idle State = iota
	Perturbing
	AwaitingMinimizer
	Evaluating
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Perturbing:
		return "perturbing"
	case AwaitingMinimizer:
		return "awaiting_minimizer"
	case Evaluating:
		return "evaluating"
	case Done:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Outcome classifies a single trial against the best result so far.
type Outcome int

const (
	// Improved: converged and strictly lower. The trial becomes the best.
	Improved Outcome = iota
	// NoImprovement: converged but not lower.
	NoImprovement
	// PossibleLowerStateMissed: not converged yet lower. Never kept.
	PossibleLowerStateMissed
	// MinimizerFailedNotLowest: not converged and not lower.
	MinimizerFailedNotLowest
)

func (o Outcome) String() string {
	switch o {
	case Improved:
		return "improved"
	case NoImprovement:
		return "no_improvement"
	case PossibleLowerStateMissed:
		return "possible_lower_state_missed"
	case MinimizerFailedNotLowest:
		return "minimizer_failed_not_lowest"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Classify compares a trial with the current best energy.
func Classify(converged bool, trialEnergy, bestEnergy float64) Outcome {
	lower := trialEnergy < bestEnergy
	switch {
	case converged && lower:
		return Improved
	case converged:
		return NoImprovement
	case lower:
		return PossibleLowerStateMissed
	default:
		return MinimizerFailedNotLowest
	}
}

// Trial is reported to the Observer after every perturbation.
type Trial struct {
	Index      int
	Outcome    Outcome
	Energy     float64 // +Inf when the minimizer returned an error
	BestEnergy float64 // best energy after this trial
	Converged  bool
	Result     *opt.Result // nil when the minimizer returned an error
	Err        error
	Duration   time.Duration
}

// Observer receives each trial as it completes.
type Observer func(Trial)

// ErrStartNotConverged is returned when Refine is given an unconverged start.
var ErrStartNotConverged = errors.New("starting solution is not converged")

// Refiner drives the perturb/minimize loop. It is not safe for concurrent use.
type Refiner struct {
	// Field supplies the curvature for thermal kicks. Defaults to Model.Field.
	Field     field.Field
	Model     *energy.Model
	Minimizer opt.Minimizer

	// Rand is the source of kick directions. A time-seeded source is created
	// when nil.
	Rand *rand.Rand

	Observer Observer

	// MaxAmplitude replaces kick amplitudes that are not finite, which happens
	// where the field has no curvature along x.
	MaxAmplitude float64

	state State
}

// State returns where the last Refine call got to.
func (r *Refiner) State() State { return r.state }

func (r *Refiner) field() field.Field {
	if r.Field != nil {
		return r.Field
	}
	return r.Model.Field
}

// Amplitudes returns the per-charge kick size sqrt(2 kB T / |qe d2V/dx2|) in
// metres. It is zero for T <= 0.
func (r *Refiner) Amplitudes(x, y []float64, temperature float64) []float64 {
	amps := make([]float64, len(x))
	if temperature <= 0 {
		return amps
	}
	curv := r.field().D2VDX2(x, y)
	for i, c := range curv {
		a := math.Sqrt(2 * constants.Boltzmann * temperature / math.Abs(constants.ElementaryCharge*c))
		if math.IsInf(a, 0) || math.IsNaN(a) {
			a = r.MaxAmplitude
		}
		amps[i] = a
	}
	return amps
}

// ThermalKick returns a copy of r with every charge displaced by independent
// normal draws. The x-curvature amplitude is used on both axes.
func (r *Refiner) ThermalKick(pos []float64, temperature float64) ([]float64, error) {
	x, y, err := coords.DecodeChecked(pos)
	if err != nil {
		return nil, err
	}
	amps := r.Amplitudes(x, y, temperature)
	for i := range x {
		x[i] += amps[i] * r.Rand.NormFloat64()
		y[i] += amps[i] * r.Rand.NormFloat64()
	}
	return coords.Encode(x, y)
}

// Refine runs trials perturbations at temperature T starting from start and
// returns the lowest converged result seen, which is start itself if no trial
// improved on it. Non-convergence of a trial is reported to the Observer,
// never returned as an error.
func (r *Refiner) Refine(start *opt.Result, trials int, temperature float64) (*opt.Result, error) {
	r.state = Idle
	if start == nil {
		return nil, errors.New("no starting solution")
	}
	if !start.Converged() {
		return nil, ErrStartNotConverged
	}
	if _, _, err := coords.DecodeChecked(start.X); err != nil {
		return nil, fmt.Errorf("starting solution: %w", err)
	}
	if r.Model == nil || r.Minimizer == nil {
		return nil, errors.New("refiner needs a model and a minimizer")
	}
	if r.Rand == nil {
		r.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	obj := opt.Objective{Func: r.Model.Energy, Grad: r.Model.Gradient}
	best := start.Clone()

	slog.Debug("Annealing started",
		"charges", coords.Count(best.X),
		"trials", trials,
		"temperature_k", temperature,
		"start_energy", best.F,
	)

	for i := 0; i < trials; i++ {
		began := time.Now()

		r.state = Perturbing
		kicked, err := r.ThermalKick(best.X, temperature)
		if err != nil {
			return nil, fmt.Errorf("trial %d: %w", i, err)
		}

		r.state = AwaitingMinimizer
		res, minErr := r.Minimizer.Minimize(obj, kicked)

		r.state = Evaluating
		trial := Trial{Index: i, Energy: math.Inf(1), Err: minErr}
		if minErr == nil && res != nil {
			trial.Result = res
			trial.Energy = res.F
			trial.Converged = res.Converged()
		} else if minErr == nil {
			trial.Err = errors.New("minimizer returned no result")
		}

		trial.Outcome = Classify(trial.Converged, trial.Energy, best.F)
		if trial.Outcome == Improved {
			best = res.Clone()
		}
		trial.BestEnergy = best.F
		trial.Duration = time.Since(began)

		slog.Debug("Annealing trial",
			"trial", i,
			"outcome", trial.Outcome.String(),
			"energy", trial.Energy,
			"best_energy", best.F,
		)
		if r.Observer != nil {
			r.Observer(trial)
		}
	}

	r.state = Done
	return best, nil
}
