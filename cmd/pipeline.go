package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/cwbudde/chargeanneal/internal/analysis"
	"github.com/cwbudde/chargeanneal/internal/anneal"
	"github.com/cwbudde/chargeanneal/internal/config"
	"github.com/cwbudde/chargeanneal/internal/coords"
	"github.com/cwbudde/chargeanneal/internal/diag"
	"github.com/cwbudde/chargeanneal/internal/energy"
	"github.com/cwbudde/chargeanneal/internal/field"
	"github.com/cwbudde/chargeanneal/internal/opt"
	"github.com/cwbudde/chargeanneal/internal/store"
)

// problem is a fitted field with its energy model and simulation box.
type problem struct {
	field field.Field
	model *energy.Model
	xb    coords.Bounds
	yb    coords.Bounds
}

func fitOptions(cfg config.FieldConfig) field.FitOptions {
	opts := field.FitOptions{OrderX: cfg.OrderX, OrderY: cfg.OrderY, Smoothing: cfg.Smoothing}
	if opts.OrderY == 0 {
		opts.OrderY = opts.OrderX
	}
	return opts
}

// buildProblem loads and fits the field named in cfg.
func buildProblem(cfg config.Run) (*problem, error) {
	opts := fitOptions(cfg.Field)
	p := &problem{}

	var xlo, xhi, ylo, yhi float64
	switch cfg.Field.Kind {
	case config.KindWire:
		data, err := field.LoadWireCSV(cfg.Field.Path)
		if err != nil {
			return nil, err
		}
		w, err := field.FitWire(data.X, data.Potential, data.Derivative, cfg.Field.Length, opts)
		if err != nil {
			return nil, err
		}
		p.field, p.model = w, energy.NewWireModel(w)
		xlo, xhi, ylo, yhi = w.Domain()
	default:
		data, err := field.LoadSurfaceCSV(cfg.Field.Path)
		if err != nil {
			return nil, err
		}
		s, err := field.FitSurface(data.X, data.Y, data.Values, opts)
		if err != nil {
			return nil, err
		}
		p.field, p.model = s, energy.NewModel(s)
		xlo, xhi, ylo, yhi = s.Domain()
	}
	p.model.Pairs.Workers = cfg.Workers

	p.xb = coords.Bounds{Lo: xlo, Hi: xhi}
	p.yb = coords.Bounds{Lo: ylo, Hi: yhi}
	if cfg.Init.HasBox() {
		p.xb = coords.Bounds{Lo: cfg.Init.XMin, Hi: cfg.Init.XMax}
		p.yb = coords.Bounds{Lo: cfg.Init.YMin, Hi: cfg.Init.YMax}
	}

	slog.Info("Field fitted",
		"kind", cfg.Field.Kind,
		"path", cfg.Field.Path,
		"x_range", []float64{p.xb.Lo, p.xb.Hi},
		"y_range", []float64{p.yb.Lo, p.yb.Hi},
	)
	return p, nil
}

// initialPositions draws the starting configuration.
func initialPositions(cfg config.Run, p *problem, rng *rand.Rand) ([]float64, error) {
	n := cfg.Electrons
	lower := make([]float64, 2*n)
	upper := make([]float64, 2*n)
	for i := 0; i < n; i++ {
		lower[2*i], upper[2*i] = p.xb.Lo, p.xb.Hi
		lower[2*i+1], upper[2*i+1] = p.yb.Lo, p.yb.Hi
	}

	switch cfg.Init.Method {
	case config.InitMayfly:
		seeder := opt.NewMayflySeeder(cfg.Init.MayflyIters, cfg.Init.MayflyPop, cfg.Seed)
		start := time.Now()
		r, e, err := seeder.Seed(p.model.Energy, lower, upper)
		if err != nil {
			return nil, err
		}
		slog.Info("Mayfly seeding complete", "energy", e, "elapsed", time.Since(start))
		return r, nil
	default:
		r := make([]float64, 2*n)
		for i := range r {
			r[i] = lower[i] + rng.Float64()*(upper[i]-lower[i])
		}
		return r, nil
	}
}

// positionsFromWorkbook reads a previous solution and brings it into the box.
func positionsFromWorkbook(path string, cfg config.Run, p *problem) ([]float64, error) {
	r, err := store.ReadWorkbookPositions(path)
	if err != nil {
		return nil, err
	}
	if coords.Count(r) != cfg.Electrons {
		return nil, fmt.Errorf("%s holds %d electrons, config asks for %d", path, coords.Count(r), cfg.Electrons)
	}
	x, y := coords.Decode(r)
	x, y, err = coords.MapIntoDomain(x, y, p.xb, p.yb)
	if err != nil {
		return nil, err
	}
	return coords.Encode(x, y)
}

// session ties a problem to its minimizer and diagnostics.
type session struct {
	cfg       config.Run
	problem   *problem
	minimizer opt.Minimizer
	monitor   *diag.Monitor
	trace     *store.TraceWriter
}

func newSession(cfg config.Run, p *problem, trace *store.TraceWriter) (*session, error) {
	s := &session{cfg: cfg, problem: p, trace: trace}

	settings := opt.Settings{
		MaxIterations:     cfg.Minimizer.MaxIterations,
		GradientThreshold: cfg.Minimizer.GradientThreshold,
		Scale:             cfg.Minimizer.Scale,
	}
	if cfg.Minimizer.Patience > 0 {
		settings.Converger = diag.NewConvergenceTracker(diag.ConvergenceConfig{
			Enabled:   true,
			Patience:  cfg.Minimizer.Patience,
			Threshold: cfg.Minimizer.PlateauThreshold,
		})
	}
	if cfg.Diagnostics.Every > 0 {
		s.monitor = diag.NewMonitor(cfg.Diagnostics.Every, p.model.Energy, p.model.GradientOf)
		s.monitor.Step = cfg.Diagnostics.Step
		s.monitor.Sink = s.recordSample
		settings.Callback = s.monitor.Observe
	}

	m, err := opt.NewGonum(cfg.Minimizer.Method, settings)
	if err != nil {
		return nil, err
	}
	s.minimizer = m
	return s, nil
}

func (s *session) recordSample(sample diag.Sample) {
	slog.Debug("Minimizer progress",
		"iteration", sample.Iteration,
		"energy", sample.Energy,
		"grad_norm", sample.GradientNorm,
		"grad_error", sample.GradientError(),
	)
	if s.trace == nil {
		return
	}
	if err := s.trace.Write(store.SampleEntry(sample)); err != nil {
		slog.Warn("Failed to write trace entry", "error", err)
	}
}

func (s *session) objective() opt.Objective {
	return opt.Objective{Func: s.problem.model.Energy, Grad: s.problem.model.Gradient}
}

// minimize relaxes x0 with the configured local method.
func (s *session) minimize(x0 []float64) (*opt.Result, error) {
	res, err := s.minimizer.Minimize(s.objective(), x0)
	if err != nil {
		return nil, fmt.Errorf("minimization failed: %w", err)
	}

	attrs := []any{
		"energy", res.F,
		"converged", res.Converged(),
		"status", res.Message,
		"iterations", res.Iterations,
		"elapsed", res.Runtime,
	}
	if s.monitor != nil {
		attrs = append(attrs, "max_grad_error", s.monitor.MaxGradientError())
	}
	if res.Converged() {
		slog.Info("Minimization complete", attrs...)
	} else {
		slog.Warn("Minimization did not converge", attrs...)
	}
	return res, nil
}

// anneal runs the configured number of trials from a converged start.
func (s *session) anneal(start *opt.Result, rng *rand.Rand, firstTrial int) (*opt.Result, error) {
	r := &anneal.Refiner{
		Field:        s.problem.field,
		Model:        s.problem.model,
		Minimizer:    s.minimizer,
		Rand:         rng,
		MaxAmplitude: s.cfg.Anneal.MaxAmplitude,
		Observer:     s.observeTrial(firstTrial),
	}
	best, err := r.Refine(start, s.cfg.Anneal.Trials, s.cfg.Anneal.Temperature)
	if err != nil {
		return nil, fmt.Errorf("annealing failed: %w", err)
	}
	slog.Info("Annealing complete",
		"trials", s.cfg.Anneal.Trials,
		"temperature_k", s.cfg.Anneal.Temperature,
		"start_energy", start.F,
		"best_energy", best.F,
	)
	return best, nil
}

// observeTrial logs each trial at a level matching its outcome and adds it
// to the trace.
func (s *session) observeTrial(offset int) anneal.Observer {
	return func(t anneal.Trial) {
		attrs := []any{
			"trial", offset + t.Index,
			"outcome", t.Outcome.String(),
			"energy", t.Energy,
			"best_energy", t.BestEnergy,
			"elapsed", t.Duration,
		}
		if t.Err != nil {
			attrs = append(attrs, "error", t.Err)
		}
		switch t.Outcome {
		case anneal.Improved:
			slog.Info("Lower energy state found", attrs...)
		case anneal.NoImprovement:
			slog.Debug("No improvement", attrs...)
		case anneal.PossibleLowerStateMissed:
			slog.Warn("Minimizer did not converge but energy is lower, possible lower state missed", attrs...)
		default:
			slog.Warn("Minimizer did not converge", attrs...)
		}

		if s.trace == nil {
			return
		}
		entry := store.TraceEntry{
			Phase:      store.PhaseAnneal,
			Iteration:  offset + t.Index,
			Energy:     t.Energy,
			Outcome:    t.Outcome.String(),
			BestEnergy: t.BestEnergy,
			Timestamp:  time.Now(),
		}
		if t.Err != nil {
			// JSON has no infinity
			entry.Energy = 0
		}
		if err := s.trace.Write(entry); err != nil {
			slog.Warn("Failed to write trace entry", "error", err)
		}
	}
}

// finish turns a result into a checkpoint with energies and summary filled in.
func (s *session) finish(jobID string, res *opt.Result, initialEnergy float64) (*store.Checkpoint, error) {
	positions := res.X
	if pairs := s.problem.model.Pairs; pairs.Periodic {
		x, y := coords.Decode(positions)
		var err error
		positions, err = coords.Encode(x, coords.WrapAll(y, -pairs.Length/2, pairs.Length/2))
		if err != nil {
			return nil, err
		}
	}

	c := store.NewCheckpoint(jobID, positions, res.F, initialEnergy, res.Converged(), s.cfg)
	c.Iterations = res.Iterations
	c.FieldEnergy, c.PairEnergy = s.problem.model.Breakdown(positions)

	var window *coords.Bounds
	if w := s.cfg.TrapWindow; w != nil {
		window = &coords.Bounds{Lo: w.Lo, Hi: w.Hi}
	}
	summary, err := analysis.Summarize(s.problem.model.Pairs, positions, window)
	if err != nil {
		return nil, err
	}
	c.Summary = summary

	attrs := []any{
		"job_id", jobID,
		"energy", c.Energy,
		"field_energy", c.FieldEnergy,
		"pair_energy", c.PairEnergy,
		"density_per_m2", summary.Density,
	}
	if summary.Trapped != nil {
		attrs = append(attrs, "trapped", *summary.Trapped)
	}
	slog.Info("Solution summary", attrs...)
	return c, nil
}
