package main

import (
	"fmt"
	"strings"

	"github.com/cwbudde/chargeanneal/internal/config"
	"github.com/spf13/pflag"
)

// addFieldFlags registers the flags that select and fit the potential.
func addFieldFlags(fs *pflag.FlagSet) {
	d := config.Default()
	fs.String("field", "", "Surface potential CSV (x,y,V rows)")
	fs.String("wire", "", "Wire potential CSV (x,V[,dV/dx] rows); makes y periodic")
	fs.Float64("wire-length", d.Field.Length, "Wire period along y in metres")
	fs.Int("order-x", d.Field.OrderX, "Spline order along x (1 or 3)")
	fs.Int("order-y", d.Field.OrderY, "Spline order along y (1 or 3)")
	fs.IntP("electrons", "n", d.Electrons, "Number of electrons")
	fs.String("init", d.Init.Method, "Initial positions: random or mayfly")
	fs.Float64Slice("box", nil, "Initial box xmin,xmax,ymin,ymax in metres (default: field domain)")
	fs.Int("mayfly-iters", d.Init.MayflyIters, "Mayfly seeding iterations")
	fs.Int("mayfly-pop", d.Init.MayflyPop, "Mayfly population size (>= 20)")
	fs.Float64Slice("trap-window", nil, "Count electrons with lo < x < hi, given as lo,hi in metres")
}

// addRunFlags registers the flags shared by every command that minimizes.
func addRunFlags(fs *pflag.FlagSet) {
	d := config.Default()
	fs.Int64("seed", d.Seed, "Random seed")
	fs.Int("workers", d.Workers, "Goroutines for the pair gradient (1 = serial)")
	fs.String("method", d.Minimizer.Method, "Local minimizer: cg, bfgs, lbfgs, gradientdescent, neldermead")
	fs.Int("max-iters", d.Minimizer.MaxIterations, "Maximum minimizer iterations")
	fs.Float64("grad-tol", d.Minimizer.GradientThreshold, "Gradient norm threshold in eV per scale unit")
	fs.Float64("scale", d.Minimizer.Scale, "Length unit the minimizer works in, metres")
	fs.Int("patience", d.Minimizer.Patience, "Stop after this many iterations without progress (0 = off)")
	fs.Float64("plateau", d.Minimizer.PlateauThreshold, "Relative energy change counted as progress")
	fs.Int("trials", d.Anneal.Trials, "Annealing trials")
	fs.Float64("temperature", d.Anneal.Temperature, "Annealing temperature in kelvin")
	fs.Float64("max-amplitude", d.Anneal.MaxAmplitude, "Kick size where the field has no curvature, metres")
	fs.Int("monitor-every", d.Diagnostics.Every, "Record diagnostics every N iterations (0 = off)")
	fs.Float64("fd-step", d.Diagnostics.Step, "Finite-difference step for the gradient check in metres (0 = off)")
}

// applyFlags copies every explicitly set flag onto cfg. Flags that only one
// command registers are skipped when absent.
func applyFlags(fs *pflag.FlagSet, cfg *config.Run) error {
	changed := func(name string) bool {
		f := fs.Lookup(name)
		return f != nil && f.Changed
	}

	var err error
	setString := func(name string, dst *string) {
		if err == nil && changed(name) {
			*dst, err = fs.GetString(name)
		}
	}
	setInt := func(name string, dst *int) {
		if err == nil && changed(name) {
			*dst, err = fs.GetInt(name)
		}
	}
	setFloat := func(name string, dst *float64) {
		if err == nil && changed(name) {
			*dst, err = fs.GetFloat64(name)
		}
	}

	if changed("field") && changed("wire") {
		return fmt.Errorf("--field and --wire are mutually exclusive")
	}
	if changed("field") {
		cfg.Field.Kind = config.KindSurface
		setString("field", &cfg.Field.Path)
	}
	if changed("wire") {
		cfg.Field.Kind = config.KindWire
		setString("wire", &cfg.Field.Path)
	}
	setFloat("wire-length", &cfg.Field.Length)
	setInt("order-x", &cfg.Field.OrderX)
	setInt("order-y", &cfg.Field.OrderY)
	setInt("electrons", &cfg.Electrons)
	setString("init", &cfg.Init.Method)
	setInt("mayfly-iters", &cfg.Init.MayflyIters)
	setInt("mayfly-pop", &cfg.Init.MayflyPop)

	if err == nil && changed("seed") {
		cfg.Seed, err = fs.GetInt64("seed")
	}
	setInt("workers", &cfg.Workers)
	setString("method", &cfg.Minimizer.Method)
	setInt("max-iters", &cfg.Minimizer.MaxIterations)
	setFloat("grad-tol", &cfg.Minimizer.GradientThreshold)
	setFloat("scale", &cfg.Minimizer.Scale)
	setInt("patience", &cfg.Minimizer.Patience)
	setFloat("plateau", &cfg.Minimizer.PlateauThreshold)
	setInt("trials", &cfg.Anneal.Trials)
	setFloat("temperature", &cfg.Anneal.Temperature)
	setFloat("max-amplitude", &cfg.Anneal.MaxAmplitude)
	setInt("monitor-every", &cfg.Diagnostics.Every)
	setFloat("fd-step", &cfg.Diagnostics.Step)
	if err != nil {
		return err
	}

	if changed("box") {
		box, err := fs.GetFloat64Slice("box")
		if err != nil {
			return err
		}
		if len(box) != 4 {
			return fmt.Errorf("--box needs 4 values, got %d", len(box))
		}
		cfg.Init.XMin, cfg.Init.XMax, cfg.Init.YMin, cfg.Init.YMax = box[0], box[1], box[2], box[3]
	}
	if changed("trap-window") {
		w, err := fs.GetFloat64Slice("trap-window")
		if err != nil {
			return err
		}
		if len(w) != 2 {
			return fmt.Errorf("--trap-window needs 2 values, got %d", len(w))
		}
		cfg.TrapWindow = &config.Window{Lo: w[0], Hi: w[1]}
	}

	cfg.Minimizer.Method = strings.ToLower(cfg.Minimizer.Method)
	return nil
}

// loadRunConfig starts from the YAML file if one is given, else from the
// defaults, and applies explicitly set flags on top.
func loadRunConfig(fs *pflag.FlagSet, path string) (config.Run, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Run{}, err
		}
	}
	if err := applyFlags(fs, &cfg); err != nil {
		return config.Run{}, err
	}
	return cfg, nil
}
